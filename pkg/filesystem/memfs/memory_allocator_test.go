package memfs_test

import (
	"testing"

	"github.com/buildbarn/bb-memfs/internal/mock"
	"github.com/buildbarn/bb-memfs/pkg/filesystem/memfs"
	"github.com/stretchr/testify/require"

	"go.uber.org/mock/gomock"
)

func TestMemoryAllocator(t *testing.T) {
	t.Run("Limited", func(t *testing.T) {
		memoryAllocator := memfs.NewMemoryAllocator(100)
		require.True(t, memoryAllocator.Allocate(60))
		require.True(t, memoryAllocator.Allocate(40))

		// The limit has been reached.
		require.False(t, memoryAllocator.Allocate(1))
		allocated, limit := memoryAllocator.GetUsage()
		require.Equal(t, int64(100), allocated)
		require.Equal(t, int64(100), limit)

		memoryAllocator.Release(60)
		require.False(t, memoryAllocator.Allocate(61))
		require.True(t, memoryAllocator.Allocate(60))
	})

	t.Run("PhysicalMemory", func(t *testing.T) {
		// Without an explicit limit, allocations are bounded by
		// the amount of physical memory of the system.
		memoryAllocator := memfs.NewMemoryAllocator(0)
		_, limit := memoryAllocator.GetUsage()
		require.Greater(t, limit, int64(0))
		require.False(t, memoryAllocator.Allocate(limit+1))
		require.True(t, memoryAllocator.Allocate(limit))
		require.False(t, memoryAllocator.Allocate(1))
		allocated, _ := memoryAllocator.GetUsage()
		require.Equal(t, limit, allocated)
	})

	t.Run("ReleaseTooMuch", func(t *testing.T) {
		memoryAllocator := memfs.NewMemoryAllocator(0)
		require.True(t, memoryAllocator.Allocate(10))
		require.Panics(t, func() { memoryAllocator.Release(11) })
	})
}

func TestMetricsMemoryAllocator(t *testing.T) {
	ctrl := gomock.NewController(t)

	baseMemoryAllocator := mock.NewMockMemoryAllocator(ctrl)
	memoryAllocator := memfs.NewMetricsMemoryAllocator(baseMemoryAllocator)

	baseMemoryAllocator.EXPECT().Allocate(int64(123)).Return(true)
	require.True(t, memoryAllocator.Allocate(123))

	baseMemoryAllocator.EXPECT().Allocate(int64(456)).Return(false)
	require.False(t, memoryAllocator.Allocate(456))

	baseMemoryAllocator.EXPECT().Release(int64(123))
	memoryAllocator.Release(123)

	baseMemoryAllocator.EXPECT().GetUsage().Return(int64(0), int64(1000))
	allocated, limit := memoryAllocator.GetUsage()
	require.Equal(t, int64(0), allocated)
	require.Equal(t, int64(1000), limit)
}
