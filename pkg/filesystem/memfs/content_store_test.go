package memfs_test

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"io"
	"testing"
	"testing/iotest"
	"time"

	"github.com/buildbarn/bb-memfs/internal/mock"
	"github.com/buildbarn/bb-memfs/pkg/filesystem/memfs"
	"github.com/buildbarn/bb-storage/pkg/filesystem/path"
	"github.com/stretchr/testify/require"

	"go.uber.org/mock/gomock"
)

// newMountRootForTesting creates a file system whose clock always
// returns the same point in time.
func newMountRootForTesting(t *testing.T, ctrl *gomock.Controller, memoryAllocator memfs.MemoryAllocator) (*memfs.MountRoot, *mock.MockClock) {
	clock := mock.NewMockClock(ctrl)
	clock.EXPECT().Now().Return(time.Unix(1000, 0)).AnyTimes()
	mountRoot, s := memfs.NewMountRoot(context.Background(), memfs.MountOptions{
		Clock:           clock,
		MemoryAllocator: memoryAllocator,
	})
	require.Equal(t, memfs.StatusOK, s)
	return mountRoot, clock
}

// createFileForTesting creates a regular file in the root directory
// and opens it for reading and writing.
func createFileForTesting(t *testing.T, mountRoot *memfs.MountRoot, name string) *memfs.Handle {
	handle, created, s := mountRoot.Root().CreateAndOpen(context.Background(), path.MustNewComponent(name), 0o644, memfs.ShareMaskRead|memfs.ShareMaskWrite, true, false)
	require.Equal(t, memfs.StatusOK, s)
	require.True(t, created)
	return handle
}

func readAll(t *testing.T, handle *memfs.Handle) []byte {
	var attributes memfs.Attributes
	handle.Node().GetAttributes(memfs.AttributesMaskSizeBytes, &attributes)
	sizeBytes, ok := attributes.GetSizeBytes()
	require.True(t, ok)
	buf := make([]byte, sizeBytes+10)
	n, eof, s := handle.Read(buf, 0)
	require.Equal(t, memfs.StatusOK, s)
	require.True(t, eof)
	return buf[:n]
}

func TestContentStoreReadWrite(t *testing.T) {
	ctrl := gomock.NewController(t)
	mountRoot, _ := newMountRootForTesting(t, ctrl, nil)
	handle := createFileForTesting(t, mountRoot, "file")
	defer handle.Close()

	t.Run("ReadEmpty", func(t *testing.T) {
		var buf [10]byte
		n, eof, s := handle.Read(buf[:], 0)
		require.Equal(t, memfs.StatusOK, s)
		require.Equal(t, 0, n)
		require.True(t, eof)
	})

	t.Run("WriteThenRead", func(t *testing.T) {
		n, size, s := handle.Write([]byte("Hello"), 0)
		require.Equal(t, memfs.StatusOK, s)
		require.Equal(t, 5, n)
		require.Equal(t, uint64(5), size)

		var buf [5]byte
		n, eof, s := handle.Read(buf[:], 0)
		require.Equal(t, memfs.StatusOK, s)
		require.Equal(t, 5, n)
		require.True(t, eof)
		require.Equal(t, []byte("Hello"), buf[:])
	})

	t.Run("PartialRead", func(t *testing.T) {
		var buf [3]byte
		n, eof, s := handle.Read(buf[:], 1)
		require.Equal(t, memfs.StatusOK, s)
		require.Equal(t, 3, n)
		require.False(t, eof)
		require.Equal(t, []byte("ell"), buf[:])
	})

	t.Run("ReadPastEndOfFile", func(t *testing.T) {
		// Reads at or beyond the end of the file return no
		// data, but are not an error.
		for _, offset := range []int64{5, 6, 1 << 30} {
			var buf [10]byte
			n, eof, s := handle.Read(buf[:], offset)
			require.Equal(t, memfs.StatusOK, s)
			require.Equal(t, 0, n)
			require.True(t, eof)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		n, size, s := handle.Write([]byte("J"), 0)
		require.Equal(t, memfs.StatusOK, s)
		require.Equal(t, 1, n)
		require.Equal(t, uint64(5), size)
		require.Equal(t, []byte("Jello"), readAll(t, handle))
	})

	t.Run("ZeroSizedWrite", func(t *testing.T) {
		// Zero-sized writes past the end of the file should
		// not cause the file to grow.
		n, size, s := handle.Write(nil, 100)
		require.Equal(t, memfs.StatusOK, s)
		require.Equal(t, 0, n)
		require.Equal(t, uint64(5), size)
	})

	t.Run("HoleIsZeroFilled", func(t *testing.T) {
		n, size, s := handle.Write([]byte("World"), 8)
		require.Equal(t, memfs.StatusOK, s)
		require.Equal(t, 5, n)
		require.Equal(t, uint64(13), size)
		require.Equal(t, []byte("Jello\x00\x00\x00World"), readAll(t, handle))
	})

	t.Run("NegativeOffset", func(t *testing.T) {
		_, _, s := handle.Write([]byte("x"), -1)
		require.Equal(t, memfs.StatusErrInval, s)

		var buf [1]byte
		_, _, s = handle.Read(buf[:], -1)
		require.Equal(t, memfs.StatusErrInval, s)
	})

	t.Run("TooLarge", func(t *testing.T) {
		_, _, s := handle.Write([]byte("x"), memfs.MaximumFileSize)
		require.Equal(t, memfs.StatusErrInval, s)
		require.Equal(t, []byte("Jello\x00\x00\x00World"), readAll(t, handle))
	})
}

func TestContentStoreTruncate(t *testing.T) {
	ctrl := gomock.NewController(t)
	mountRoot, _ := newMountRootForTesting(t, ctrl, nil)
	handle := createFileForTesting(t, mountRoot, "file")
	defer handle.Close()
	contents, s := handle.Node().Contents()
	require.Equal(t, memfs.StatusOK, s)

	_, _, s = handle.Write([]byte("Hello world"), 0)
	require.Equal(t, memfs.StatusOK, s)

	// Shrinking and subsequently growing the file should not bring
	// back the data that was cut off.
	require.Equal(t, memfs.StatusOK, contents.Truncate(4))
	require.Equal(t, []byte("Hell"), readAll(t, handle))
	require.Equal(t, memfs.StatusOK, contents.Truncate(8))
	require.Equal(t, []byte("Hell\x00\x00\x00\x00"), readAll(t, handle))

	// Truncation to zero.
	require.Equal(t, memfs.StatusOK, contents.Truncate(0))
	require.Equal(t, uint64(0), contents.Size())

	require.Equal(t, memfs.StatusErrInval, contents.Truncate(-1))
	require.Equal(t, memfs.StatusErrInval, contents.Truncate(memfs.MaximumFileSize+1))
}

func TestContentStoreAllocate(t *testing.T) {
	ctrl := gomock.NewController(t)
	mountRoot, _ := newMountRootForTesting(t, ctrl, nil)
	handle := createFileForTesting(t, mountRoot, "file")
	defer handle.Close()
	contents, s := handle.Node().Contents()
	require.Equal(t, memfs.StatusOK, s)

	require.Equal(t, memfs.StatusErrInval, handle.Allocate(0, 0))
	require.Equal(t, memfs.StatusOK, handle.Allocate(10, 20))
	require.Equal(t, uint64(30), contents.Size())

	// Allocating space within the file should not shrink it.
	require.Equal(t, memfs.StatusOK, handle.Allocate(0, 5))
	require.Equal(t, uint64(30), contents.Size())
	require.Equal(t, make([]byte, 30), readAll(t, handle))
}

func TestContentStoreAppend(t *testing.T) {
	ctrl := gomock.NewController(t)
	mountRoot, _ := newMountRootForTesting(t, ctrl, nil)
	handle := createFileForTesting(t, mountRoot, "file")
	defer handle.Close()

	offset, n, s := handle.Append([]byte("Hello"))
	require.Equal(t, memfs.StatusOK, s)
	require.Equal(t, int64(0), offset)
	require.Equal(t, 5, n)

	offset, n, s = handle.Append([]byte(", world"))
	require.Equal(t, memfs.StatusOK, s)
	require.Equal(t, int64(5), offset)
	require.Equal(t, 7, n)
	require.Equal(t, []byte("Hello, world"), readAll(t, handle))
}

func TestContentStoreWriteFrom(t *testing.T) {
	ctrl := gomock.NewController(t)
	mountRoot, _ := newMountRootForTesting(t, ctrl, nil)
	handle := createFileForTesting(t, mountRoot, "file")
	defer handle.Close()

	t.Run("Success", func(t *testing.T) {
		n, size, s := handle.WriteFrom(bytes.NewBufferString("Hello world"), 5, 0)
		require.Equal(t, memfs.StatusOK, s)
		require.Equal(t, 5, n)
		require.Equal(t, uint64(5), size)
		require.Equal(t, []byte("Hello"), readAll(t, handle))
	})

	t.Run("ShortSource", func(t *testing.T) {
		// If the source cannot provide all of the data, the
		// file must be left untouched.
		_, _, s := handle.WriteFrom(bytes.NewBufferString("Bye"), 10, 0)
		require.Equal(t, memfs.StatusErrFault, s)
		require.Equal(t, []byte("Hello"), readAll(t, handle))
	})

	t.Run("FailingSource", func(t *testing.T) {
		r := io.MultiReader(bytes.NewBufferString("Jel"), iotest.ErrReader(errors.New("Bad address")))
		_, _, s := handle.WriteFrom(r, 5, 0)
		require.Equal(t, memfs.StatusErrFault, s)
		require.Equal(t, []byte("Hello"), readAll(t, handle))
	})
}

func TestContentStoreAllocationFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	mountRoot, _ := newMountRootForTesting(t, ctrl, memfs.NewMemoryAllocator(4096))
	handle := createFileForTesting(t, mountRoot, "file")
	defer handle.Close()

	_, _, s := handle.Write([]byte("Hello"), 0)
	require.Equal(t, memfs.StatusOK, s)

	// A write that needs more memory than available should fail
	// without altering the file.
	var attributesBefore memfs.Attributes
	handle.Node().GetAttributes(memfs.AttributesMaskAll, &attributesBefore)
	_, _, s = handle.Write(make([]byte, 8192), 2)
	require.Equal(t, memfs.StatusErrNoSpc, s)
	var attributesAfter memfs.Attributes
	handle.Node().GetAttributes(memfs.AttributesMaskAll, &attributesAfter)
	require.Equal(t, attributesBefore, attributesAfter)
	require.Equal(t, []byte("Hello"), readAll(t, handle))

	contents, s := handle.Node().Contents()
	require.Equal(t, memfs.StatusOK, s)
	require.Equal(t, memfs.StatusErrNoSpc, contents.Truncate(8192))
	require.Equal(t, uint64(5), contents.Size())
}

func TestContentStoreDefaultMemoryLimit(t *testing.T) {
	// Without an explicit memory allocator, growing a file beyond
	// the amount of physical memory must fail gracefully instead
	// of exhausting the heap.
	mountRoot, s := memfs.NewMountRoot(context.Background(), memfs.MountOptions{})
	require.Equal(t, memfs.StatusOK, s)
	handle := createFileForTesting(t, mountRoot, "file")
	defer handle.Close()

	_, _, s = handle.Write([]byte{1}, memfs.MaximumFileSize-1)
	require.Equal(t, memfs.StatusErrNoSpc, s)

	contents, s := handle.Node().Contents()
	require.Equal(t, memfs.StatusOK, s)
	require.Equal(t, memfs.StatusErrNoSpc, contents.Truncate(memfs.MaximumFileSize))
	require.Equal(t, memfs.StatusErrNoSpc, contents.Allocate(0, memfs.MaximumFileSize))
	require.Equal(t, uint64(0), contents.Size())

	// The file remains usable afterwards.
	_, size, s := handle.Write([]byte("Hello"), 0)
	require.Equal(t, memfs.StatusOK, s)
	require.Equal(t, uint64(5), size)
}

func TestContentStoreReleased(t *testing.T) {
	ctrl := gomock.NewController(t)
	memoryAllocator := memfs.NewMemoryAllocator(1 << 20)
	mountRoot, _ := newMountRootForTesting(t, ctrl, memoryAllocator)
	handle := createFileForTesting(t, mountRoot, "file")
	_, _, s := handle.Write([]byte("Hello"), 0)
	require.Equal(t, memfs.StatusOK, s)
	contents, s := handle.Node().Contents()
	require.Equal(t, memfs.StatusOK, s)

	// Reclaim the file. Only the root directory remains charged.
	require.Equal(t, memfs.StatusOK, mountRoot.Root().Unlink(path.MustNewComponent("file")))
	handle.Close()
	require.True(t, handle.Node().IsReclaimed())
	allocatedBefore, _ := memoryAllocator.GetUsage()
	require.Equal(t, int64(256), allocatedBefore)

	// Mutations of the contents of a reclaimed file must not cause
	// memory to be allocated that is never returned.
	_, _, s = contents.Write([]byte("World"), 0)
	require.Equal(t, memfs.StatusErrStale, s)
	_, _, s = contents.Append([]byte("World"))
	require.Equal(t, memfs.StatusErrStale, s)
	require.Equal(t, memfs.StatusErrStale, contents.Truncate(100))
	require.Equal(t, memfs.StatusErrStale, contents.Allocate(0, 100))
	require.Equal(t, uint64(0), contents.Size())
	allocatedAfter, _ := memoryAllocator.GetUsage()
	require.Equal(t, allocatedBefore, allocatedAfter)

	// Writes through the closed handle are rejected as well.
	_, _, s = handle.Write([]byte("World"), 0)
	require.Equal(t, memfs.StatusErrBadHandle, s)
}

func TestContentStoreGrowthFallsBackToExactSize(t *testing.T) {
	ctrl := gomock.NewController(t)
	memoryAllocator := mock.NewMockMemoryAllocator(ctrl)
	memoryAllocator.EXPECT().Allocate(gomock.Any()).Return(true).Times(2)
	mountRoot, _ := newMountRootForTesting(t, ctrl, memoryAllocator)
	handle := createFileForTesting(t, mountRoot, "file")

	gomock.InOrder(
		memoryAllocator.EXPECT().Allocate(int64(100)).Return(true),
		// Doubling the capacity fails, but growing to
		// exactly the size that is needed succeeds.
		memoryAllocator.EXPECT().Allocate(int64(100)).Return(false),
		memoryAllocator.EXPECT().Allocate(int64(50)).Return(true))
	_, _, s := handle.Write(make([]byte, 100), 0)
	require.Equal(t, memfs.StatusOK, s)
	_, _, s = handle.Write(make([]byte, 50), 100)
	require.Equal(t, memfs.StatusOK, s)

	// Unlinking and closing the file should release all memory.
	memoryAllocator.EXPECT().Release(int64(150))
	memoryAllocator.EXPECT().Release(gomock.Any())
	require.Equal(t, memfs.StatusOK, mountRoot.Root().Unlink(path.MustNewComponent("file")))
	handle.Close()
	require.True(t, handle.Node().IsReclaimed())
}

func TestContentStorePages(t *testing.T) {
	ctrl := gomock.NewController(t)
	mountRoot, _ := newMountRootForTesting(t, ctrl, nil)
	handle := createFileForTesting(t, mountRoot, "file")
	defer handle.Close()
	contents, s := handle.Node().Contents()
	require.Equal(t, memfs.StatusOK, s)

	require.Equal(t, uint64(0), contents.PageCount())

	t.Run("WritePages", func(t *testing.T) {
		require.Equal(t, memfs.StatusOK, contents.WritePage(0, bytes.Repeat([]byte{0xaa}, memfs.PageSize)))
		require.Equal(t, memfs.StatusOK, contents.WritePage(1, []byte("Tail")))
		require.Equal(t, uint64(2), contents.PageCount())
		require.Equal(t, uint64(memfs.PageSize+4), contents.Size())
	})

	t.Run("ReadPages", func(t *testing.T) {
		page := make([]byte, memfs.PageSize)
		n, s := contents.ReadPage(0, page)
		require.Equal(t, memfs.StatusOK, s)
		require.Equal(t, memfs.PageSize, n)
		require.Equal(t, bytes.Repeat([]byte{0xaa}, memfs.PageSize), page)

		// The part of the last page beyond the end of the
		// file should be zero.
		for i := range page {
			page[i] = 0xff
		}
		n, s = contents.ReadPage(1, page)
		require.Equal(t, memfs.StatusOK, s)
		require.Equal(t, 4, n)
		require.Equal(t, []byte("Tail"), page[:4])
		require.Equal(t, make([]byte, memfs.PageSize-4), page[4:])

		// Pages beyond the end of the file are entirely zero.
		n, s = contents.ReadPage(2, page)
		require.Equal(t, memfs.StatusOK, s)
		require.Equal(t, 0, n)
		require.Equal(t, make([]byte, memfs.PageSize), page)
	})

	t.Run("InvalidArguments", func(t *testing.T) {
		_, s := contents.ReadPage(0, make([]byte, 100))
		require.Equal(t, memfs.StatusErrInval, s)
		require.Equal(t, memfs.StatusErrInval, contents.WritePage(0, make([]byte, memfs.PageSize+1)))
	})

	t.Run("ConsistentWithReads", func(t *testing.T) {
		var buf [4]byte
		n, _, s := handle.Read(buf[:], memfs.PageSize)
		require.Equal(t, memfs.StatusOK, s)
		require.Equal(t, 4, n)
		require.Equal(t, []byte("Tail"), buf[:])
	})
}

func TestContentStoreDigest(t *testing.T) {
	ctrl := gomock.NewController(t)
	mountRoot, _ := newMountRootForTesting(t, ctrl, nil)
	handle := createFileForTesting(t, mountRoot, "file")
	defer handle.Close()
	contents, s := handle.Node().Contents()
	require.Equal(t, memfs.StatusOK, s)

	require.Equal(t, "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262", hex.EncodeToString(contents.Digest()))

	// Modifications should invalidate the cached digest.
	_, _, s = handle.Write([]byte("Hello"), 0)
	require.Equal(t, memfs.StatusOK, s)
	require.NotEqual(t, "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262", hex.EncodeToString(contents.Digest()))
	digest := contents.Digest()
	require.Equal(t, memfs.StatusOK, contents.Truncate(0))
	require.NotEqual(t, digest, contents.Digest())
	require.Equal(t, "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262", hex.EncodeToString(contents.Digest()))
}

func TestContentStoreNonRegularFiles(t *testing.T) {
	ctrl := gomock.NewController(t)
	mountRoot, _ := newMountRootForTesting(t, ctrl, nil)
	ctx := context.Background()

	_, s := mountRoot.Root().Contents()
	require.Equal(t, memfs.StatusErrIsDir, s)

	symlink, s := mountRoot.Root().Symlink(ctx, path.MustNewComponent("symlink"), []byte("target"))
	require.Equal(t, memfs.StatusOK, s)
	_, s = symlink.Contents()
	require.Equal(t, memfs.StatusErrInval, s)
}
