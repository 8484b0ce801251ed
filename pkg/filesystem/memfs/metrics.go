package memfs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	memfsPrometheusMetrics sync.Once

	memfsNodes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "buildbarn",
			Subsystem: "memfs",
			Name:      "nodes",
			Help:      "Number of nodes that have been created and not yet reclaimed, per kind.",
		},
		[]string{"kind"})
	memfsNodesReclaimed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "buildbarn",
			Subsystem: "memfs",
			Name:      "nodes_reclaimed_total",
			Help:      "Number of nodes that were reclaimed after their last link and handle were dropped, per kind.",
		},
		[]string{"kind"})
	memfsMemoryAllocatedBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "buildbarn",
			Subsystem: "memfs",
			Name:      "memory_allocated_bytes",
			Help:      "Number of bytes of memory charged against memory allocators.",
		})
	memfsMemoryAllocationFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "buildbarn",
			Subsystem: "memfs",
			Name:      "memory_allocation_failures_total",
			Help:      "Number of times an allocation was refused by a memory allocator.",
		})
)

func registerPrometheusMetrics() {
	memfsPrometheusMetrics.Do(func() {
		prometheus.MustRegister(memfsNodes)
		prometheus.MustRegister(memfsNodesReclaimed)
		prometheus.MustRegister(memfsMemoryAllocatedBytes)
		prometheus.MustRegister(memfsMemoryAllocationFailures)
	})
}

type metricsMemoryAllocator struct {
	base MemoryAllocator
}

// NewMetricsMemoryAllocator creates a decorator for MemoryAllocator
// that exposes Prometheus metrics on the amount of memory allocated
// and the number of allocations refused.
func NewMetricsMemoryAllocator(base MemoryAllocator) MemoryAllocator {
	registerPrometheusMetrics()

	return &metricsMemoryAllocator{
		base: base,
	}
}

func (ma *metricsMemoryAllocator) Allocate(sizeBytes int64) bool {
	if !ma.base.Allocate(sizeBytes) {
		memfsMemoryAllocationFailures.Inc()
		return false
	}
	memfsMemoryAllocatedBytes.Add(float64(sizeBytes))
	return true
}

func (ma *metricsMemoryAllocator) Release(sizeBytes int64) {
	ma.base.Release(sizeBytes)
	memfsMemoryAllocatedBytes.Sub(float64(sizeBytes))
}

func (ma *metricsMemoryAllocator) GetUsage() (int64, int64) {
	return ma.base.GetUsage()
}
