//go:build darwin || linux
// +build darwin linux

package fuse

import (
	"context"
	"syscall"

	"github.com/buildbarn/bb-memfs/pkg/filesystem/memfs"
	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"golang.org/x/sys/unix"
)

// fileHandle exposes an opened regular file through go-fuse's file
// handle API.
type fileHandle struct {
	handle *memfs.Handle
	append bool
}

var (
	_ fs.FileAllocater = (*fileHandle)(nil)
	_ fs.FileFlusher   = (*fileHandle)(nil)
	_ fs.FileLseeker   = (*fileHandle)(nil)
	_ fs.FileReader    = (*fileHandle)(nil)
	_ fs.FileReleaser  = (*fileHandle)(nil)
	_ fs.FileWriter    = (*fileHandle)(nil)
)

func newFileHandle(handle *memfs.Handle, flags uint32) *fileHandle {
	return &fileHandle{
		handle: handle,
		append: flags&syscall.O_APPEND != 0,
	}
}

func (fh *fileHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	n, _, s := fh.handle.Read(dest, off)
	if s != memfs.StatusOK {
		return nil, ToErrno(s)
	}
	return fuse.ReadResultData(dest[:n]), 0
}

func (fh *fileHandle) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	// The kernel provides the offset at which it believes the end
	// of the file is located. Ignore it, so that concurrent
	// appends through different handles don't overwrite each other.
	if fh.append {
		_, n, s := fh.handle.Append(data)
		return uint32(n), ToErrno(s)
	}
	n, _, s := fh.handle.Write(data, off)
	return uint32(n), ToErrno(s)
}

func (fh *fileHandle) Allocate(ctx context.Context, off, size uint64, mode uint32) syscall.Errno {
	if mode != 0 {
		return syscall.EOPNOTSUPP
	}
	return ToErrno(fh.handle.Allocate(int64(off), int64(size)))
}

func (fh *fileHandle) Lseek(ctx context.Context, off uint64, whence uint32) (uint64, syscall.Errno) {
	var attributes memfs.Attributes
	fh.handle.Node().GetAttributes(memfs.AttributesMaskSizeBytes, &attributes)
	sizeBytes, _ := attributes.GetSizeBytes()
	if off >= sizeBytes {
		return 0, syscall.ENXIO
	}

	// Holes are stored as zero bytes, meaning the entire file
	// consists of data, followed by a single implicit hole.
	switch whence {
	case unix.SEEK_DATA:
		return off, 0
	case unix.SEEK_HOLE:
		return sizeBytes, 0
	default:
		return 0, syscall.EINVAL
	}
}

func (fh *fileHandle) Flush(ctx context.Context) syscall.Errno {
	return 0
}

func (fh *fileHandle) Release(ctx context.Context) syscall.Errno {
	fh.handle.Close()
	return 0
}
