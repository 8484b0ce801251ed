//go:build darwin || linux
// +build darwin linux

package fuse

import (
	"sync"
	"syscall"
	"time"

	"github.com/buildbarn/bb-storage/pkg/clock"
	"github.com/buildbarn/bb-storage/pkg/util"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/prometheus/client_golang/prometheus"

	"golang.org/x/sys/unix"
)

var (
	rawFileSystemOperationsPrometheusMetrics sync.Once

	rawFileSystemOperationsDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "buildbarn",
			Subsystem: "memfs",
			Name:      "fuse_operations_duration_seconds",
			Help:      "Amount of time spent per FUSE operation on in-memory file systems, in seconds.",
			Buckets:   util.DecimalExponentialBuckets(-6, 7, 2),
		},
		[]string{"operation", "status_code"})
)

// operationHistogram holds references to Prometheus metrics for a
// single FUSE operation that can never fail.
type operationHistogram struct {
	ok prometheus.Observer
}

func newOperationHistogram(operation string) operationHistogram {
	return operationHistogram{
		ok: rawFileSystemOperationsDurationSeconds.WithLabelValues(operation, "OK"),
	}
}

func (m *operationHistogram) observe(timeStart, timeStop time.Time) {
	m.ok.Observe(timeStop.Sub(timeStart).Seconds())
}

// operationHistogramWithStatus holds references to Prometheus metrics
// for a single FUSE operation that can fail with a fuse.Status.
type operationHistogramWithStatus struct {
	ok      prometheus.Observer
	failure prometheus.ObserverVec
}

func newOperationHistogramWithStatus(operation string) operationHistogramWithStatus {
	return operationHistogramWithStatus{
		ok:      rawFileSystemOperationsDurationSeconds.WithLabelValues(operation, "OK"),
		failure: rawFileSystemOperationsDurationSeconds.MustCurryWith(map[string]string{"operation": operation}),
	}
}

func (m *operationHistogramWithStatus) observe(s fuse.Status, timeStart, timeStop time.Time) {
	d := timeStop.Sub(timeStart).Seconds()
	if s == fuse.OK {
		m.ok.Observe(d)
	} else {
		// Use unix.ErrnoName() instead of fuse.Status.String().
		// The latter inserts OS specific errno integer values
		// into the error message.
		m.failure.WithLabelValues(unix.ErrnoName(syscall.Errno(s))).Observe(d)
	}
}

var (
	// Already populate the HistogramVec with entries for all operations.
	operationHistogramLookup     = newOperationHistogramWithStatus("Lookup")
	operationHistogramForget     = newOperationHistogram("Forget")
	operationHistogramGetAttr    = newOperationHistogramWithStatus("GetAttr")
	operationHistogramSetAttr    = newOperationHistogramWithStatus("SetAttr")
	operationHistogramMknod      = newOperationHistogramWithStatus("Mknod")
	operationHistogramMkdir      = newOperationHistogramWithStatus("Mkdir")
	operationHistogramUnlink     = newOperationHistogramWithStatus("Unlink")
	operationHistogramRmdir      = newOperationHistogramWithStatus("Rmdir")
	operationHistogramRename     = newOperationHistogramWithStatus("Rename")
	operationHistogramLink       = newOperationHistogramWithStatus("Link")
	operationHistogramSymlink    = newOperationHistogramWithStatus("Symlink")
	operationHistogramReadlink   = newOperationHistogramWithStatus("Readlink")
	operationHistogramAccess     = newOperationHistogramWithStatus("Access")
	operationHistogramGetXAttr   = newOperationHistogramWithStatus("GetXAttr")
	operationHistogramListXAttr  = newOperationHistogramWithStatus("ListXAttr")
	operationHistogramCreate     = newOperationHistogramWithStatus("Create")
	operationHistogramOpen       = newOperationHistogramWithStatus("Open")
	operationHistogramRead       = newOperationHistogramWithStatus("Read")
	operationHistogramLseek      = newOperationHistogramWithStatus("Lseek")
	operationHistogramRelease    = newOperationHistogram("Release")
	operationHistogramWrite      = newOperationHistogramWithStatus("Write")
	operationHistogramFlush      = newOperationHistogramWithStatus("Flush")
	operationHistogramFsync      = newOperationHistogramWithStatus("Fsync")
	operationHistogramFallocate  = newOperationHistogramWithStatus("Fallocate")
	operationHistogramOpenDir    = newOperationHistogramWithStatus("OpenDir")
	operationHistogramReleaseDir = newOperationHistogram("ReleaseDir")
	operationHistogramStatFs     = newOperationHistogramWithStatus("StatFs")
)

// metricsRawFileSystem measures the duration of FUSE operations.
// Operations that are not overridden, such as directory listing, are
// forwarded to the base file system without being measured.
type metricsRawFileSystem struct {
	fuse.RawFileSystem

	clock clock.Clock
}

// NewMetricsRawFileSystem creates a decorator for fuse.RawFileSystem
// that exposes Prometheus metrics for each of the operations invoked.
func NewMetricsRawFileSystem(base fuse.RawFileSystem, clock clock.Clock) fuse.RawFileSystem {
	rawFileSystemOperationsPrometheusMetrics.Do(func() {
		prometheus.MustRegister(rawFileSystemOperationsDurationSeconds)
	})

	return &metricsRawFileSystem{
		RawFileSystem: base,
		clock:         clock,
	}
}

func (rfs *metricsRawFileSystem) Lookup(cancel <-chan struct{}, header *fuse.InHeader, name string, out *fuse.EntryOut) fuse.Status {
	timeStart := rfs.clock.Now()
	s := rfs.RawFileSystem.Lookup(cancel, header, name, out)
	operationHistogramLookup.observe(s, timeStart, rfs.clock.Now())
	return s
}

func (rfs *metricsRawFileSystem) Forget(nodeID, nLookup uint64) {
	timeStart := rfs.clock.Now()
	rfs.RawFileSystem.Forget(nodeID, nLookup)
	operationHistogramForget.observe(timeStart, rfs.clock.Now())
}

func (rfs *metricsRawFileSystem) GetAttr(cancel <-chan struct{}, input *fuse.GetAttrIn, out *fuse.AttrOut) fuse.Status {
	timeStart := rfs.clock.Now()
	s := rfs.RawFileSystem.GetAttr(cancel, input, out)
	operationHistogramGetAttr.observe(s, timeStart, rfs.clock.Now())
	return s
}

func (rfs *metricsRawFileSystem) SetAttr(cancel <-chan struct{}, input *fuse.SetAttrIn, out *fuse.AttrOut) fuse.Status {
	timeStart := rfs.clock.Now()
	s := rfs.RawFileSystem.SetAttr(cancel, input, out)
	operationHistogramSetAttr.observe(s, timeStart, rfs.clock.Now())
	return s
}

func (rfs *metricsRawFileSystem) Mknod(cancel <-chan struct{}, input *fuse.MknodIn, name string, out *fuse.EntryOut) fuse.Status {
	timeStart := rfs.clock.Now()
	s := rfs.RawFileSystem.Mknod(cancel, input, name, out)
	operationHistogramMknod.observe(s, timeStart, rfs.clock.Now())
	return s
}

func (rfs *metricsRawFileSystem) Mkdir(cancel <-chan struct{}, input *fuse.MkdirIn, name string, out *fuse.EntryOut) fuse.Status {
	timeStart := rfs.clock.Now()
	s := rfs.RawFileSystem.Mkdir(cancel, input, name, out)
	operationHistogramMkdir.observe(s, timeStart, rfs.clock.Now())
	return s
}

func (rfs *metricsRawFileSystem) Unlink(cancel <-chan struct{}, header *fuse.InHeader, name string) fuse.Status {
	timeStart := rfs.clock.Now()
	s := rfs.RawFileSystem.Unlink(cancel, header, name)
	operationHistogramUnlink.observe(s, timeStart, rfs.clock.Now())
	return s
}

func (rfs *metricsRawFileSystem) Rmdir(cancel <-chan struct{}, header *fuse.InHeader, name string) fuse.Status {
	timeStart := rfs.clock.Now()
	s := rfs.RawFileSystem.Rmdir(cancel, header, name)
	operationHistogramRmdir.observe(s, timeStart, rfs.clock.Now())
	return s
}

func (rfs *metricsRawFileSystem) Rename(cancel <-chan struct{}, input *fuse.RenameIn, oldName, newName string) fuse.Status {
	timeStart := rfs.clock.Now()
	s := rfs.RawFileSystem.Rename(cancel, input, oldName, newName)
	operationHistogramRename.observe(s, timeStart, rfs.clock.Now())
	return s
}

func (rfs *metricsRawFileSystem) Link(cancel <-chan struct{}, input *fuse.LinkIn, filename string, out *fuse.EntryOut) fuse.Status {
	timeStart := rfs.clock.Now()
	s := rfs.RawFileSystem.Link(cancel, input, filename, out)
	operationHistogramLink.observe(s, timeStart, rfs.clock.Now())
	return s
}

func (rfs *metricsRawFileSystem) Symlink(cancel <-chan struct{}, header *fuse.InHeader, pointedTo, linkName string, out *fuse.EntryOut) fuse.Status {
	timeStart := rfs.clock.Now()
	s := rfs.RawFileSystem.Symlink(cancel, header, pointedTo, linkName, out)
	operationHistogramSymlink.observe(s, timeStart, rfs.clock.Now())
	return s
}

func (rfs *metricsRawFileSystem) Readlink(cancel <-chan struct{}, header *fuse.InHeader) ([]byte, fuse.Status) {
	timeStart := rfs.clock.Now()
	target, s := rfs.RawFileSystem.Readlink(cancel, header)
	operationHistogramReadlink.observe(s, timeStart, rfs.clock.Now())
	return target, s
}

func (rfs *metricsRawFileSystem) Access(cancel <-chan struct{}, input *fuse.AccessIn) fuse.Status {
	timeStart := rfs.clock.Now()
	s := rfs.RawFileSystem.Access(cancel, input)
	operationHistogramAccess.observe(s, timeStart, rfs.clock.Now())
	return s
}

func (rfs *metricsRawFileSystem) GetXAttr(cancel <-chan struct{}, header *fuse.InHeader, attr string, dest []byte) (uint32, fuse.Status) {
	timeStart := rfs.clock.Now()
	size, s := rfs.RawFileSystem.GetXAttr(cancel, header, attr, dest)
	operationHistogramGetXAttr.observe(s, timeStart, rfs.clock.Now())
	return size, s
}

func (rfs *metricsRawFileSystem) ListXAttr(cancel <-chan struct{}, header *fuse.InHeader, dest []byte) (uint32, fuse.Status) {
	timeStart := rfs.clock.Now()
	size, s := rfs.RawFileSystem.ListXAttr(cancel, header, dest)
	operationHistogramListXAttr.observe(s, timeStart, rfs.clock.Now())
	return size, s
}

func (rfs *metricsRawFileSystem) Create(cancel <-chan struct{}, input *fuse.CreateIn, name string, out *fuse.CreateOut) fuse.Status {
	timeStart := rfs.clock.Now()
	s := rfs.RawFileSystem.Create(cancel, input, name, out)
	operationHistogramCreate.observe(s, timeStart, rfs.clock.Now())
	return s
}

func (rfs *metricsRawFileSystem) Open(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	timeStart := rfs.clock.Now()
	s := rfs.RawFileSystem.Open(cancel, input, out)
	operationHistogramOpen.observe(s, timeStart, rfs.clock.Now())
	return s
}

func (rfs *metricsRawFileSystem) Read(cancel <-chan struct{}, input *fuse.ReadIn, buf []byte) (fuse.ReadResult, fuse.Status) {
	timeStart := rfs.clock.Now()
	r, s := rfs.RawFileSystem.Read(cancel, input, buf)
	operationHistogramRead.observe(s, timeStart, rfs.clock.Now())
	return r, s
}

func (rfs *metricsRawFileSystem) Lseek(cancel <-chan struct{}, in *fuse.LseekIn, out *fuse.LseekOut) fuse.Status {
	timeStart := rfs.clock.Now()
	s := rfs.RawFileSystem.Lseek(cancel, in, out)
	operationHistogramLseek.observe(s, timeStart, rfs.clock.Now())
	return s
}

func (rfs *metricsRawFileSystem) Release(cancel <-chan struct{}, input *fuse.ReleaseIn) {
	timeStart := rfs.clock.Now()
	rfs.RawFileSystem.Release(cancel, input)
	operationHistogramRelease.observe(timeStart, rfs.clock.Now())
}

func (rfs *metricsRawFileSystem) Write(cancel <-chan struct{}, input *fuse.WriteIn, data []byte) (uint32, fuse.Status) {
	timeStart := rfs.clock.Now()
	n, s := rfs.RawFileSystem.Write(cancel, input, data)
	operationHistogramWrite.observe(s, timeStart, rfs.clock.Now())
	return n, s
}

func (rfs *metricsRawFileSystem) Flush(cancel <-chan struct{}, input *fuse.FlushIn) fuse.Status {
	timeStart := rfs.clock.Now()
	s := rfs.RawFileSystem.Flush(cancel, input)
	operationHistogramFlush.observe(s, timeStart, rfs.clock.Now())
	return s
}

func (rfs *metricsRawFileSystem) Fsync(cancel <-chan struct{}, input *fuse.FsyncIn) fuse.Status {
	timeStart := rfs.clock.Now()
	s := rfs.RawFileSystem.Fsync(cancel, input)
	operationHistogramFsync.observe(s, timeStart, rfs.clock.Now())
	return s
}

func (rfs *metricsRawFileSystem) Fallocate(cancel <-chan struct{}, input *fuse.FallocateIn) fuse.Status {
	timeStart := rfs.clock.Now()
	s := rfs.RawFileSystem.Fallocate(cancel, input)
	operationHistogramFallocate.observe(s, timeStart, rfs.clock.Now())
	return s
}

func (rfs *metricsRawFileSystem) OpenDir(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	timeStart := rfs.clock.Now()
	s := rfs.RawFileSystem.OpenDir(cancel, input, out)
	operationHistogramOpenDir.observe(s, timeStart, rfs.clock.Now())
	return s
}

func (rfs *metricsRawFileSystem) ReleaseDir(input *fuse.ReleaseIn) {
	timeStart := rfs.clock.Now()
	rfs.RawFileSystem.ReleaseDir(input)
	operationHistogramReleaseDir.observe(timeStart, rfs.clock.Now())
}

func (rfs *metricsRawFileSystem) StatFs(cancel <-chan struct{}, input *fuse.InHeader, out *fuse.StatfsOut) fuse.Status {
	timeStart := rfs.clock.Now()
	s := rfs.RawFileSystem.StatFs(cancel, input, out)
	operationHistogramStatFs.observe(s, timeStart, rfs.clock.Now())
	return s
}
