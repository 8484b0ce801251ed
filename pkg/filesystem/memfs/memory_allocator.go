package memfs

import (
	"sync/atomic"
)

// MemoryAllocator keeps track of the amount of memory consumed by a
// file system. Every node is charged a fixed overhead, symbolic links
// are charged for their target and regular files for the capacity of
// their content buffer. Failing to allocate memory causes operations
// to fail with StatusErrNoSpc.
type MemoryAllocator interface {
	// Allocate reserves a number of bytes. It returns false if the
	// reservation would exceed the limit, in which case nothing is
	// reserved.
	Allocate(sizeBytes int64) bool
	// Release returns bytes previously obtained through Allocate().
	Release(sizeBytes int64)
	// GetUsage returns the number of bytes allocated and the limit.
	GetUsage() (allocatedBytes, limitBytes int64)
}

// fallbackMemoryLimitBytes is the limit that is used when no limit is
// configured and the amount of physical memory cannot be determined.
const fallbackMemoryLimitBytes = 1 << 30

type limitingMemoryAllocator struct {
	allocated atomic.Int64
	limit     int64
}

// NewMemoryAllocator creates a MemoryAllocator that refuses
// allocations once the total number of bytes allocated would exceed a
// limit. A limit of zero causes the limit to be set to the amount of
// physical memory of the system, as file contents are backed by heap
// allocations that the Go runtime cannot recover from failing.
func NewMemoryAllocator(limitBytes int64) MemoryAllocator {
	if limitBytes == 0 {
		limitBytes = getPhysicalMemoryBytes()
	}
	return &limitingMemoryAllocator{limit: limitBytes}
}

func (ma *limitingMemoryAllocator) Allocate(sizeBytes int64) bool {
	for {
		allocated := ma.allocated.Load()
		if sizeBytes > ma.limit-allocated {
			return false
		}
		if ma.allocated.CompareAndSwap(allocated, allocated+sizeBytes) {
			return true
		}
	}
}

func (ma *limitingMemoryAllocator) Release(sizeBytes int64) {
	if ma.allocated.Add(-sizeBytes) < 0 {
		panic("Released more memory than was allocated")
	}
}

func (ma *limitingMemoryAllocator) GetUsage() (int64, int64) {
	return ma.allocated.Load(), ma.limit
}
