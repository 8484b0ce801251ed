//go:build darwin || linux
// +build darwin linux

package fuse_test

import (
	"context"
	"errors"
	"testing"

	"github.com/buildbarn/bb-memfs/internal/mock"
	"github.com/buildbarn/bb-memfs/pkg/filesystem/memfs"
	"github.com/buildbarn/bb-memfs/pkg/filesystem/memfs/fuse"
	"github.com/buildbarn/bb-storage/pkg/filesystem/path"
	"github.com/buildbarn/bb-storage/pkg/testutil"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"go.uber.org/mock/gomock"
)

func TestUnmountOnCancel(t *testing.T) {
	ctrl := gomock.NewController(t)

	registry := memfs.NewRegistry(noop.NewTracerProvider())
	require.NoError(t, registry.Register(memfs.MemoryFileSystemType))

	t.Run("Success", func(t *testing.T) {
		mount, err := registry.Mount(context.Background(), "memfs", memfs.MountOptions{})
		require.NoError(t, err)
		directory, s := mount.MountRoot().Root().Mkdir(context.Background(), path.MustNewComponent("directory"), 0o755)
		require.Equal(t, memfs.StatusOK, s)

		server := mock.NewMockUnmounter(ctrl)
		server.EXPECT().Unmount()
		errorLogger := mock.NewMockErrorLogger(ctrl)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		fuse.UnmountOnCancel(ctx, server, mount, errorLogger)
		require.True(t, directory.IsReclaimed())
	})

	t.Run("FUSEUnmountFailure", func(t *testing.T) {
		mount, err := registry.Mount(context.Background(), "memfs", memfs.MountOptions{})
		require.NoError(t, err)

		// Failing to detach from the host should be logged, but
		// should not prevent the file system from being unmounted.
		server := mock.NewMockUnmounter(ctrl)
		server.EXPECT().Unmount().Return(errors.New("Device busy"))
		errorLogger := mock.NewMockErrorLogger(ctrl)
		errorLogger.EXPECT().Log(gomock.Any()).Do(func(err error) {
			testutil.RequireEqualStatus(t, status.Error(codes.Unknown, "Failed to unmount FUSE server: Device busy"), err)
		})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		fuse.UnmountOnCancel(ctx, server, mount, errorLogger)
		require.True(t, mount.MountRoot().Root().IsReclaimed())
	})

	require.NoError(t, registry.Unregister("memfs"))
}
