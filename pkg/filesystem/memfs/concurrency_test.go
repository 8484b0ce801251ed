package memfs_test

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/buildbarn/bb-memfs/pkg/filesystem/memfs"
	"github.com/buildbarn/bb-storage/pkg/filesystem/path"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"go.uber.org/mock/gomock"
)

func statusToError(s memfs.Status) error {
	return s.ToError("Operation failed")
}

func TestConcurrentWritesDoNotTear(t *testing.T) {
	ctrl := gomock.NewController(t)
	mountRoot, _ := newMountRootForTesting(t, ctrl, nil)
	handle := createFileForTesting(t, mountRoot, "file")
	defer handle.Close()

	// Each writer overwrites the same range with a distinct byte.
	// After all writers complete, the range must contain the data
	// of exactly one of them.
	group, _ := errgroup.WithContext(context.Background())
	for i := 0; i < 16; i++ {
		data := bytes.Repeat([]byte{byte('a' + i)}, 3*memfs.PageSize)
		group.Go(func() error {
			for j := 0; j < 50; j++ {
				if _, _, s := handle.Write(data, 0); s != memfs.StatusOK {
					return statusToError(s)
				}
			}
			return nil
		})
	}
	require.NoError(t, group.Wait())

	contents := readAll(t, handle)
	require.Len(t, contents, 3*memfs.PageSize)
	require.Equal(t, bytes.Repeat(contents[:1], len(contents)), contents)
}

func TestConcurrentFilesAndDirectories(t *testing.T) {
	ctrl := gomock.NewController(t)
	mountRoot, _ := newMountRootForTesting(t, ctrl, nil)
	root := mountRoot.Root()
	ctx := context.Background()

	dir1, s := root.Mkdir(ctx, path.MustNewComponent("dir1"), 0o755)
	require.Equal(t, memfs.StatusOK, s)
	dir2, s := root.Mkdir(ctx, path.MustNewComponent("dir2"), 0o755)
	require.Equal(t, memfs.StatusOK, s)

	group, _ := errgroup.WithContext(ctx)

	// Writers to separate files.
	for i := 0; i < 8; i++ {
		name := path.MustNewComponent(fmt.Sprintf("file%d", i))
		group.Go(func() error {
			handle, _, s := dir1.CreateAndOpen(ctx, name, 0o644, memfs.ShareMaskWrite, true, false)
			if s != memfs.StatusOK {
				return statusToError(s)
			}
			defer handle.Close()
			for j := 0; j < 100; j++ {
				if _, _, s := handle.Append([]byte("x")); s != memfs.StatusOK {
					return statusToError(s)
				}
			}
			return nil
		})
	}

	// Renames in opposite directions, which acquire the locks of
	// both directories.
	for i, directories := range [][2]*memfs.Node{{dir1, dir2}, {dir2, dir1}} {
		name := path.MustNewComponent(fmt.Sprintf("moving%d", i))
		from, to := directories[0], directories[1]
		group.Go(func() error {
			if _, s := from.Mkdir(ctx, name, 0o755); s != memfs.StatusOK {
				return statusToError(s)
			}
			for j := 0; j < 100; j++ {
				if s := from.Rename(name, to, name, false); s != memfs.StatusOK {
					return statusToError(s)
				}
				from, to = to, from
			}
			return nil
		})
	}

	// Readers of the directory hierarchy.
	group.Go(func() error {
		for j := 0; j < 100; j++ {
			for _, directory := range []*memfs.Node{root, dir1, dir2} {
				if _, s := directory.List(); s != memfs.StatusOK {
					return statusToError(s)
				}
			}
		}
		return nil
	})
	require.NoError(t, group.Wait())

	for i := 0; i < 8; i++ {
		file, s := dir1.Lookup(path.MustNewComponent(fmt.Sprintf("file%d", i)))
		require.Equal(t, memfs.StatusOK, s)
		var attributes memfs.Attributes
		file.GetAttributes(memfs.AttributesMaskSizeBytes, &attributes)
		sizeBytes, _ := attributes.GetSizeBytes()
		require.Equal(t, uint64(100), sizeBytes)
	}
	_, s = dir1.Lookup(path.MustNewComponent("moving0"))
	require.Equal(t, memfs.StatusOK, s)
	_, s = dir2.Lookup(path.MustNewComponent("moving1"))
	require.Equal(t, memfs.StatusOK, s)
	require.Equal(t, uint32(3), getLinkCount(dir1))
	require.Equal(t, uint32(3), getLinkCount(dir2))
}
