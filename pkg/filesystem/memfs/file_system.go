package memfs

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/buildbarn/bb-storage/pkg/clock"
	"github.com/buildbarn/bb-storage/pkg/filesystem"
)

// FileSystem contains state that is shared by all nodes that form a
// single hierarchy, starting at a MountRoot. It acts as the factory of
// all nodes in the hierarchy.
type FileSystem struct {
	clock              clock.Clock
	memoryAllocator    MemoryAllocator
	defaultCredentials Credentials

	// Serializes renames between directories, so that checks for
	// moving a directory into itself remain valid while the rename
	// takes place.
	renameLock sync.Mutex

	nodeCount atomic.Int64
}

func newFileSystem(options *MountOptions) *FileSystem {
	fs := &FileSystem{
		clock:              options.Clock,
		memoryAllocator:    options.MemoryAllocator,
		defaultCredentials: options.DefaultCredentials,
	}
	if fs.clock == nil {
		fs.clock = clock.SystemClock
	}
	if fs.memoryAllocator == nil {
		fs.memoryAllocator = NewMemoryAllocator(0)
	}
	return fs
}

var fileTypesByKind = [...]filesystem.FileType{
	KindDirectory:   filesystem.FileTypeDirectory,
	KindRegularFile: filesystem.FileTypeRegularFile,
	KindSymlink:     filesystem.FileTypeSymlink,
}

// newNode creates a node that is not yet linked into any directory.
// The owner of the node is obtained from the credentials attached to
// the context. When the parent directory has the set-group-ID bit set,
// the node inherits the group of the parent directory instead, and
// directories also inherit the set-group-ID bit.
//
// The caller is responsible for either linking the node into a
// directory or attaching it to a Handle.
func (fs *FileSystem) newNode(ctx context.Context, parent *Node, kind Kind, fileType filesystem.FileType, permissions Permissions, deviceNumber filesystem.DeviceNumber, target []byte) (*Node, Status) {
	if !fs.memoryAllocator.Allocate(int64(nodeOverheadBytes + len(target))) {
		return nil, StatusErrNoSpc
	}

	credentials, ok := CredentialsFromContext(ctx)
	if !ok {
		credentials = fs.defaultCredentials
	}
	permissions &= permissionsMask
	if parent != nil {
		parent.lock.Lock()
		if parent.permissions&PermissionsSetGroupID != 0 {
			credentials.GroupID = parent.ownerGroupID
			if kind == KindDirectory {
				permissions |= PermissionsSetGroupID
			}
		}
		parent.lock.Unlock()
	}

	if kind != KindSpecial {
		fileType = fileTypesByKind[kind]
	}
	now := fs.clock.Now()
	n := &Node{
		fileSystem:   fs,
		id:           nextNodeID.Add(1) + 1,
		kind:         kind,
		fileType:     fileType,
		deviceNumber: deviceNumber,
		target:       target,

		ownerUserID:              credentials.UserID,
		ownerGroupID:             credentials.GroupID,
		permissions:              permissions,
		lastAccessTime:           now,
		lastDataModificationTime: now,
		lastStatusChangeTime:     now,
	}
	switch kind {
	case KindDirectory:
		n.directory = newDirectoryIndex(n.id, parent)
	case KindRegularFile:
		n.contents = newContentStore(fs.memoryAllocator)
	}

	fs.nodeCount.Add(1)
	memfsNodes.WithLabelValues(kind.String()).Inc()
	return n, StatusOK
}

// releaseNode releases all memory held by a node that has been
// reclaimed.
func (fs *FileSystem) releaseNode(n *Node) {
	if n.contents != nil {
		n.contents.release()
	}
	fs.memoryAllocator.Release(int64(nodeOverheadBytes + len(n.target)))
	fs.nodeCount.Add(-1)
	memfsNodes.WithLabelValues(n.kind.String()).Dec()
	memfsNodesReclaimed.WithLabelValues(n.kind.String()).Inc()
}
