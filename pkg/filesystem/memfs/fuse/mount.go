//go:build darwin || linux
// +build darwin linux

package fuse

import (
	"context"
	"time"

	"github.com/buildbarn/bb-memfs/pkg/filesystem/memfs"
	"github.com/buildbarn/bb-storage/pkg/clock"
	"github.com/buildbarn/bb-storage/pkg/util"
	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// MountConfiguration contains the parameters of a FUSE mount of an
// in-memory file system.
type MountConfiguration struct {
	MountPath   string
	FsName      string
	AllowOther  bool
	DirectMount bool
	Debug       bool

	// Amount of time the kernel may cache directory entries and
	// attributes of nodes.
	EntryValidity     time.Duration
	AttributeValidity time.Duration
}

// NewRawFileSystem creates a fuse.RawFileSystem that exposes the
// contents of an in-memory file system, annotated with Prometheus
// metrics.
func NewRawFileSystem(mountRoot *memfs.MountRoot, entryValidity, attributeValidity time.Duration, clock clock.Clock) fuse.RawFileSystem {
	return NewMetricsRawFileSystem(
		fs.NewNodeFS(
			NewRootInode(mountRoot),
			&fs.Options{
				EntryTimeout: &entryValidity,
				AttrTimeout:  &attributeValidity,
			}),
		clock)
}

// Mount an in-memory file system at a location in the host's file
// system using FUSE. The file system remains mounted until
// Server.Unmount() is called.
func Mount(mountRoot *memfs.MountRoot, configuration *MountConfiguration) (*fuse.Server, error) {
	server, err := fuse.NewServer(
		NewRawFileSystem(
			mountRoot,
			configuration.EntryValidity,
			configuration.AttributeValidity,
			clock.SystemClock),
		configuration.MountPath,
		&fuse.MountOptions{
			// The name isn't strictly necessary, but is
			// filled in to prevent runc from crashing when
			// parsing /proc/self/mountinfo.
			FsName:      configuration.FsName,
			Name:        memfs.MemoryFileSystemType.Name(),
			AllowOther:  configuration.AllowOther,
			DirectMount: configuration.DirectMount,
			Debug:       configuration.Debug,
		})
	if err != nil {
		return nil, util.StatusWrapf(err, "Failed to create FUSE server for %#v", configuration.MountPath)
	}
	go server.Serve()
	if err := server.WaitMount(); err != nil {
		return nil, util.StatusWrapf(err, "Failed to wait for FUSE mount %#v", configuration.MountPath)
	}
	return server, nil
}

// Unmounter is implemented by fuse.Server.
type Unmounter interface {
	Unmount() error
}

// UnmountOnCancel blocks until the provided context is done. It then
// detaches the FUSE server from the host's file system and unmounts
// the in-memory file system, which reclaims all nodes that aren't
// opened. Failures to detach are reported through the ErrorLogger, as
// there is no caller to return them to.
func UnmountOnCancel(ctx context.Context, server Unmounter, mount *memfs.Mount, errorLogger util.ErrorLogger) {
	<-ctx.Done()
	if err := server.Unmount(); err != nil {
		errorLogger.Log(util.StatusWrap(err, "Failed to unmount FUSE server"))
	}
	mount.Unmount(context.Background())
}
