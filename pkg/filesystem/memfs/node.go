package memfs

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/buildbarn/bb-storage/pkg/filesystem"
)

// Kind of a Node. It determines which payload the node carries, and
// which operations may be applied against it.
type Kind int

const (
	// KindDirectory nodes hold a DirectoryIndex.
	KindDirectory Kind = iota
	// KindRegularFile nodes hold a ContentStore.
	KindRegularFile
	// KindSymlink nodes hold an immutable target.
	KindSymlink
	// KindSpecial nodes are character devices, block devices,
	// FIFOs and sockets. They only hold a device number.
	KindSpecial
)

var kindNames = [...]string{
	KindDirectory:   "Directory",
	KindRegularFile: "RegularFile",
	KindSymlink:     "Symlink",
	KindSpecial:     "Special",
}

func (k Kind) String() string {
	return kindNames[k]
}

// nodeOverheadBytes is the amount of memory charged against the
// MemoryAllocator for every node, regardless of its payload.
const nodeOverheadBytes = 256

// nextNodeID is shared by all file systems in the process. Inode
// number 1 is reserved, meaning the first node is assigned 2.
var nextNodeID atomic.Uint64

// Node is a single object in the file system: a directory, regular
// file, symbolic link or special file. Operations that only apply to
// some kinds of nodes return StatusErrNotDir, StatusErrIsDir or
// StatusErrInval when applied against nodes of another kind.
//
// Every directory entry referring to a node counts as a link, while
// every open Handle counts as an open reference. The node is reclaimed
// when both counts drop to zero. Reclamation releases all memory
// charged for the node. Operations against a reclaimed node that
// require it to be alive fail with StatusErrStale.
//
// Locks are acquired in the following order:
//
//  1. FileSystem.renameLock,
//  2. DirectoryIndex locks, multiple of them ordered by node ID,
//  3. ContentStore locks,
//  4. Node.lock, which protects the node's metadata.
type Node struct {
	fileSystem *FileSystem
	id         uint64
	kind       Kind

	// Immutable payload. Only the field matching the kind is set.
	fileType     filesystem.FileType
	deviceNumber filesystem.DeviceNumber
	directory    *DirectoryIndex
	contents     *ContentStore
	target       []byte

	lock                     sync.Mutex
	ownerUserID              uint32
	ownerGroupID             uint32
	permissions              Permissions
	lastAccessTime           time.Time
	lastDataModificationTime time.Time
	lastStatusChangeTime     time.Time
	changeID                 uint64
	linkCount                uint32
	subdirectoryCount        uint32
	openCount                uint32
	reclaimed                bool
}

// ID returns the process unique identifier of the node. It is also
// reported as its inode number.
func (n *Node) ID() uint64 {
	return n.id
}

// Kind returns whether the node is a directory, regular file, symbolic
// link or special file.
func (n *Node) Kind() Kind {
	return n.kind
}

// FileType returns the type of the node, as reported in the upper
// bits of st_mode.
func (n *Node) FileType() filesystem.FileType {
	return n.fileType
}

// Contents returns the ContentStore of a regular file. This gives
// access to the page-addressable view of its data.
func (n *Node) Contents() (*ContentStore, Status) {
	switch n.kind {
	case KindRegularFile:
		return n.contents, StatusOK
	case KindDirectory:
		return nil, StatusErrIsDir
	default:
		return nil, StatusErrInval
	}
}

// ReadLink returns the target of a symbolic link.
func (n *Node) ReadLink() ([]byte, Status) {
	if n.kind != KindSymlink {
		return nil, StatusErrInval
	}
	return n.target, StatusOK
}

// GetAttributes returns the attributes of the node.
func (n *Node) GetAttributes(requested AttributesMask, attributes *Attributes) {
	// Obtain the size prior to locking the node, as the
	// ContentStore lock needs to be acquired first.
	if requested&AttributesMaskSizeBytes != 0 {
		switch n.kind {
		case KindRegularFile:
			attributes.SetSizeBytes(n.contents.Size())
		case KindSymlink:
			attributes.SetSizeBytes(uint64(len(n.target)))
		default:
			attributes.SetSizeBytes(0)
		}
	}
	if requested&AttributesMaskDeviceNumber != 0 && n.kind == KindSpecial {
		attributes.SetDeviceNumber(n.deviceNumber)
	}
	if requested&AttributesMaskFileType != 0 {
		attributes.SetFileType(n.fileType)
	}
	if requested&AttributesMaskInodeNumber != 0 {
		attributes.SetInodeNumber(n.id)
	}

	n.lock.Lock()
	defer n.lock.Unlock()

	if requested&AttributesMaskChangeID != 0 {
		attributes.SetChangeID(n.changeID)
	}
	if requested&AttributesMaskLastAccessTime != 0 {
		attributes.SetLastAccessTime(n.lastAccessTime)
	}
	if requested&AttributesMaskLastDataModificationTime != 0 {
		attributes.SetLastDataModificationTime(n.lastDataModificationTime)
	}
	if requested&AttributesMaskLastStatusChangeTime != 0 {
		attributes.SetLastStatusChangeTime(n.lastStatusChangeTime)
	}
	if requested&AttributesMaskLinkCount != 0 {
		attributes.SetLinkCount(n.getLinkCountLocked())
	}
	if requested&AttributesMaskOwnerGroupID != 0 {
		attributes.SetOwnerGroupID(n.ownerGroupID)
	}
	if requested&AttributesMaskOwnerUserID != 0 {
		attributes.SetOwnerUserID(n.ownerUserID)
	}
	if requested&AttributesMaskPermissions != 0 {
		attributes.SetPermissions(n.permissions)
	}
}

// getLinkCountLocked computes the link count reported to callers.
// Directories that are still linked report an additional link for
// "." and one for the ".." entry of every child directory.
func (n *Node) getLinkCountLocked() uint32 {
	if n.kind == KindDirectory && n.linkCount > 0 {
		return n.linkCount + 1 + n.subdirectoryCount
	}
	return n.linkCount
}

// SetAttributes adjusts the attributes of the node. Changing the size
// is only permitted on regular files, and truncates or extends the
// file's contents. The change time is always updated.
func (n *Node) SetAttributes(in *Attributes, requested AttributesMask, out *Attributes) Status {
	sizeBytes, hasSizeBytes := in.GetSizeBytes()
	if hasSizeBytes {
		switch n.kind {
		case KindRegularFile:
			if sizeBytes > MaximumFileSize {
				return StatusErrInval
			}
			if s := n.contents.Truncate(int64(sizeBytes)); s != StatusOK {
				return s
			}
		case KindDirectory:
			return StatusErrIsDir
		default:
			return StatusErrInval
		}
	}

	now := n.fileSystem.clock.Now()
	n.lock.Lock()
	if permissions, ok := in.GetPermissions(); ok {
		n.permissions = permissions & permissionsMask
	}
	if ownerUserID, ok := in.GetOwnerUserID(); ok {
		n.ownerUserID = ownerUserID
	}
	if ownerGroupID, ok := in.GetOwnerGroupID(); ok {
		n.ownerGroupID = ownerGroupID
	}
	if lastAccessTime, ok := in.GetLastAccessTime(); ok {
		n.lastAccessTime = lastAccessTime
	}
	if lastDataModificationTime, ok := in.GetLastDataModificationTime(); ok {
		n.lastDataModificationTime = lastDataModificationTime
	} else if hasSizeBytes {
		n.lastDataModificationTime = now
	}
	n.lastStatusChangeTime = now
	n.changeID++
	n.lock.Unlock()

	n.GetAttributes(requested, out)
	return StatusOK
}

// touch updates the timestamps and change ID of the node after its
// metadata or data has changed.
func (n *Node) touch(dataModified bool) {
	now := n.fileSystem.clock.Now()
	n.lock.Lock()
	n.touchLocked(now, dataModified)
	n.lock.Unlock()
}

func (n *Node) touchLocked(now time.Time, dataModified bool) {
	if dataModified {
		n.lastDataModificationTime = now
	}
	n.lastStatusChangeTime = now
	n.changeID++
}

// directoryModified updates the metadata of a directory after entries
// have been added or removed. The number of child directories is
// adjusted by the provided delta.
func (n *Node) directoryModified(now time.Time, subdirectoryDelta int) {
	n.lock.Lock()
	n.subdirectoryCount = uint32(int(n.subdirectoryCount) + subdirectoryDelta)
	n.touchLocked(now, true)
	n.lock.Unlock()
}

// link increments the link count of a node that is about to be
// entered into a directory. This fails if the node has already been
// reclaimed.
func (n *Node) link(now time.Time) Status {
	n.lock.Lock()
	defer n.lock.Unlock()

	if n.reclaimed {
		return StatusErrStale
	}
	n.linkCount++
	n.touchLocked(now, false)
	return StatusOK
}

// unlink decrements the link count of a node that has been removed
// from a directory, reclaiming it if it is no longer referenced.
func (n *Node) unlink(now time.Time) {
	n.lock.Lock()
	if n.linkCount == 0 {
		panic("Attempted to unlink a node that has no links")
	}
	n.linkCount--
	n.touchLocked(now, false)
	reclaim := n.markReclaimedIfUnreferencedLocked()
	n.lock.Unlock()

	if reclaim {
		n.fileSystem.releaseNode(n)
	}
}

// acquire increments the open count of the node on behalf of a Handle.
func (n *Node) acquire() Status {
	n.lock.Lock()
	defer n.lock.Unlock()

	if n.reclaimed {
		return StatusErrStale
	}
	n.openCount++
	return StatusOK
}

// release decrements the open count of the node after a Handle is
// closed, reclaiming it if it is no longer referenced.
func (n *Node) release() {
	n.lock.Lock()
	if n.openCount == 0 {
		panic("Attempted to release a node that is not open")
	}
	n.openCount--
	reclaim := n.markReclaimedIfUnreferencedLocked()
	n.lock.Unlock()

	if reclaim {
		n.fileSystem.releaseNode(n)
	}
}

func (n *Node) markReclaimedIfUnreferencedLocked() bool {
	if n.reclaimed || n.linkCount > 0 || n.openCount > 0 {
		return false
	}
	n.reclaimed = true
	return true
}

// IsReclaimed returns whether the node has been reclaimed, due to it
// no longer being linked into a directory and not being opened.
func (n *Node) IsReclaimed() bool {
	n.lock.Lock()
	defer n.lock.Unlock()
	return n.reclaimed
}

// Open the node for reading and/or writing. When truncate is set, the
// contents of a regular file are discarded.
func (n *Node) Open(shareAccess ShareMask, truncate bool) (*Handle, Status) {
	switch n.kind {
	case KindDirectory:
		if shareAccess&ShareMaskWrite != 0 {
			return nil, StatusErrIsDir
		}
	case KindSymlink:
		return nil, StatusErrInval
	}
	if s := n.acquire(); s != StatusOK {
		return nil, s
	}
	if truncate && n.kind == KindRegularFile {
		if shareAccess&ShareMaskWrite == 0 {
			n.release()
			return nil, StatusErrInval
		}
		if s := n.contents.Truncate(0); s != StatusOK {
			n.release()
			return nil, s
		}
		n.touch(true)
	}
	return &Handle{
		node:        n,
		shareAccess: shareAccess,
	}, StatusOK
}
