package memfs

import (
	"context"
	"sync"

	"github.com/buildbarn/bb-storage/pkg/clock"
	"github.com/buildbarn/bb-storage/pkg/filesystem"
	"github.com/google/uuid"
)

// Magic is the file system type identifier reported by StatFS().
const Magic = 0x12345678

// MountOptions contains the parameters of a file system instance.
type MountOptions struct {
	// Clock used to obtain timestamps. Defaults to the system clock.
	Clock clock.Clock
	// MemoryAllocator that is charged for all nodes and file
	// contents. Defaults to an allocator that is limited to the
	// amount of physical memory.
	MemoryAllocator MemoryAllocator
	// DefaultCredentials determines the owner of nodes that are
	// created without credentials being attached to the context.
	DefaultCredentials Credentials
}

// FilesystemStatistics is the information returned by statfs().
type FilesystemStatistics struct {
	Type            uint32
	BlockSize       uint32
	NameLength      uint32
	Blocks          uint64
	BlocksAvailable uint64
	Files           uint64
}

// MountRoot is a single instance of the in-memory file system. It owns
// the root directory, through which all other nodes are reachable.
type MountRoot struct {
	fileSystem *FileSystem
	root       *Node
	instanceID uuid.UUID

	lock      sync.Mutex
	unmounted bool
}

// NewMountRoot creates a new instance of the file system, consisting
// of an empty root directory with permissions 0755.
func NewMountRoot(ctx context.Context, options MountOptions) (*MountRoot, Status) {
	fs := newFileSystem(&options)
	root, s := fs.newNode(ctx, nil, KindDirectory, filesystem.FileTypeDirectory, 0o755, noDeviceNumber, nil)
	if s != StatusOK {
		return nil, s
	}
	// The root directory is referenced by the mount itself.
	root.linkCount = 1
	return &MountRoot{
		fileSystem: fs,
		root:       root,
		instanceID: uuid.New(),
	}, StatusOK
}

// Root returns the root directory of the file system.
func (mr *MountRoot) Root() *Node {
	return mr.root
}

// InstanceID returns a random identifier that is unique to this
// instance of the file system.
func (mr *MountRoot) InstanceID() uuid.UUID {
	return mr.instanceID
}

// StatFS returns statistics of the file system. As there is no
// backing device, the number of blocks is derived from the limit of
// the memory allocator.
func (mr *MountRoot) StatFS() FilesystemStatistics {
	stats := FilesystemStatistics{
		Type:       Magic,
		BlockSize:  PageSize,
		NameLength: MaximumNameLength,
		Files:      uint64(mr.fileSystem.nodeCount.Load()),
	}
	if allocated, limit := mr.fileSystem.memoryAllocator.GetUsage(); limit > 0 {
		stats.Blocks = uint64(limit) / PageSize
		if allocated < limit {
			stats.BlocksAvailable = uint64(limit-allocated) / PageSize
		}
	}
	return stats
}

// Sync flushes the file system. As all data is held in memory and
// nothing is persisted, this has no effect.
func (mr *MountRoot) Sync() Status {
	return StatusOK
}

// Unmount the file system. All nodes are detached from the hierarchy
// and reclaimed, except for those that are still opened, which are
// reclaimed when closed. Contents are discarded. Calling Unmount()
// more than once has no effect.
func (mr *MountRoot) Unmount() {
	mr.lock.Lock()
	defer mr.lock.Unlock()
	if mr.unmounted {
		return
	}
	mr.unmounted = true

	fs := mr.fileSystem
	fs.renameLock.Lock()
	defer fs.renameLock.Unlock()

	now := fs.clock.Now()
	mr.root.removeAllChildren(now)
	mr.root.unlink(now)
}
