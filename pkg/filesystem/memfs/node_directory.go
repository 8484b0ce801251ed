package memfs

import (
	"context"
	"time"

	memfs_sync "github.com/buildbarn/bb-memfs/pkg/sync"
	"github.com/buildbarn/bb-storage/pkg/filesystem"
	"github.com/buildbarn/bb-storage/pkg/filesystem/path"
)

var noDeviceNumber filesystem.DeviceNumber

func (n *Node) getDirectory() (*DirectoryIndex, Status) {
	if n.kind != KindDirectory {
		return nil, StatusErrNotDir
	}
	return n.directory, StatusOK
}

// Directory returns the DirectoryIndex of a directory.
func (n *Node) Directory() (*DirectoryIndex, Status) {
	return n.getDirectory()
}

// Lookup a child of the directory by name.
func (n *Node) Lookup(name path.Component) (*Node, Status) {
	d, s := n.getDirectory()
	if s != StatusOK {
		return nil, s
	}
	if child, ok := d.Lookup(name); ok {
		return child, StatusOK
	}
	return nil, StatusErrNoEnt
}

// attachNewLocked enters a node that was just created into the
// directory. The caller must hold the directory's lock exclusively,
// and must have validated that the name is available.
func (n *Node) attachNewLocked(d *DirectoryIndex, name path.Component, child *Node) {
	child.linkCount = 1
	d.attach(name, child)
	subdirectoryDelta := 0
	if child.kind == KindDirectory {
		subdirectoryDelta = 1
	}
	n.directoryModified(child.lastStatusChangeTime, subdirectoryDelta)
}

// createChild creates a new node and enters it into the directory. The
// name is checked for collisions before the node is created, so that
// no node is created if the operation fails.
func (n *Node) createChild(ctx context.Context, name path.Component, kind Kind, fileType filesystem.FileType, permissions Permissions, deviceNumber filesystem.DeviceNumber, target []byte) (*Node, Status) {
	d, s := n.getDirectory()
	if s != StatusOK {
		return nil, s
	}

	d.lock.Lock()
	defer d.lock.Unlock()

	if s := d.mayAttach(name); s != StatusOK {
		return nil, s
	}
	child, s := n.fileSystem.newNode(ctx, n, kind, fileType, permissions, deviceNumber, target)
	if s != StatusOK {
		return nil, s
	}
	n.attachNewLocked(d, name, child)
	return child, StatusOK
}

// Create an empty regular file in the directory.
func (n *Node) Create(ctx context.Context, name path.Component, permissions Permissions) (*Node, Status) {
	return n.createChild(ctx, name, KindRegularFile, filesystem.FileTypeRegularFile, permissions, noDeviceNumber, nil)
}

// CreateAndOpen opens a regular file in the directory, creating it if
// it does not exist. If exclusive is set, the file may not exist yet.
// The boolean return value indicates whether the file was created.
func (n *Node) CreateAndOpen(ctx context.Context, name path.Component, permissions Permissions, shareAccess ShareMask, exclusive, truncate bool) (*Handle, bool, Status) {
	d, s := n.getDirectory()
	if s != StatusOK {
		return nil, false, s
	}

	d.lock.Lock()
	defer d.lock.Unlock()

	if entry, ok := d.entriesMap[name]; ok {
		if exclusive {
			return nil, false, StatusErrExist
		}
		if entry.node.kind == KindDirectory {
			return nil, false, StatusErrIsDir
		}
		handle, s := entry.node.Open(shareAccess, truncate)
		return handle, false, s
	}

	if s := d.mayAttach(name); s != StatusOK {
		return nil, false, s
	}
	child, s := n.fileSystem.newNode(ctx, n, KindRegularFile, filesystem.FileTypeRegularFile, permissions, noDeviceNumber, nil)
	if s != StatusOK {
		return nil, false, s
	}
	child.openCount = 1
	n.attachNewLocked(d, name, child)
	return &Handle{
		node:        child,
		shareAccess: shareAccess,
	}, true, StatusOK
}

// Mkdir creates an empty directory.
func (n *Node) Mkdir(ctx context.Context, name path.Component, permissions Permissions) (*Node, Status) {
	return n.createChild(ctx, name, KindDirectory, filesystem.FileTypeDirectory, permissions, noDeviceNumber, nil)
}

// Mknod creates a regular file or a special file. Special files may be
// character devices, block devices, FIFOs and sockets.
func (n *Node) Mknod(ctx context.Context, name path.Component, fileType filesystem.FileType, permissions Permissions, deviceNumber filesystem.DeviceNumber) (*Node, Status) {
	switch fileType {
	case filesystem.FileTypeRegularFile:
		return n.Create(ctx, name, permissions)
	case filesystem.FileTypeBlockDevice, filesystem.FileTypeCharacterDevice:
		return n.createChild(ctx, name, KindSpecial, fileType, permissions, deviceNumber, nil)
	case filesystem.FileTypeFIFO, filesystem.FileTypeSocket:
		return n.createChild(ctx, name, KindSpecial, fileType, permissions, noDeviceNumber, nil)
	default:
		return nil, StatusErrInval
	}
}

// Symlink creates a symbolic link. Its permissions are always 0777.
func (n *Node) Symlink(ctx context.Context, name path.Component, target []byte) (*Node, Status) {
	return n.createChild(ctx, name, KindSymlink, filesystem.FileTypeSymlink, 0o777, noDeviceNumber, append([]byte(nil), target...))
}

// Tmpfile creates a regular file that is not linked into any
// directory. The file is reclaimed when the returned handle is closed,
// unless it has been linked into a directory using Link() in the
// meantime.
func (n *Node) Tmpfile(ctx context.Context, permissions Permissions, shareAccess ShareMask) (*Handle, Status) {
	d, s := n.getDirectory()
	if s != StatusOK {
		return nil, s
	}

	d.lock.RLock()
	defer d.lock.RUnlock()

	if d.isDeleted {
		return nil, StatusErrNoEnt
	}
	child, s := n.fileSystem.newNode(ctx, n, KindRegularFile, filesystem.FileTypeRegularFile, permissions, noDeviceNumber, nil)
	if s != StatusOK {
		return nil, s
	}
	child.openCount = 1
	return &Handle{
		node:        child,
		shareAccess: shareAccess,
	}, StatusOK
}

// Link creates an additional directory entry for an existing node.
// Directories cannot be hard linked. Nodes that are no longer linked
// into any directory may be linked again, as long as they are still
// opened.
func (n *Node) Link(name path.Component, child *Node) Status {
	d, s := n.getDirectory()
	if s != StatusOK {
		return s
	}
	if child.kind == KindDirectory {
		return StatusErrPerm
	}
	if child.fileSystem != n.fileSystem {
		return StatusErrXDev
	}

	d.lock.Lock()
	defer d.lock.Unlock()

	if s := d.mayAttach(name); s != StatusOK {
		return s
	}
	now := n.fileSystem.clock.Now()
	if s := child.link(now); s != StatusOK {
		return s
	}
	d.attach(name, child)
	n.directoryModified(now, 0)
	return StatusOK
}

// Unlink removes a non-directory entry from the directory. The node is
// reclaimed if it has no remaining links and is not opened.
func (n *Node) Unlink(name path.Component) Status {
	d, s := n.getDirectory()
	if s != StatusOK {
		return s
	}

	d.lock.Lock()
	defer d.lock.Unlock()

	entry, ok := d.entriesMap[name]
	if !ok {
		return StatusErrNoEnt
	}
	child := entry.node
	if child.kind == KindDirectory {
		return StatusErrIsDir
	}
	d.detach(entry)
	now := n.fileSystem.clock.Now()
	n.directoryModified(now, 0)
	child.unlink(now)
	return StatusOK
}

// Rmdir removes an empty child directory.
func (n *Node) Rmdir(name path.Component) Status {
	d, s := n.getDirectory()
	if s != StatusOK {
		return s
	}

	lockPile := memfs_sync.LockPile{}
	defer lockPile.UnlockAll()
	lockPile.Lock(&d.lock)

	entry, ok := d.getAndLockIfDirectory(name, &lockPile)
	if !ok {
		return StatusErrNoEnt
	}
	child := entry.node
	if child.kind != KindDirectory {
		return StatusErrNotDir
	}
	if !child.directory.isEmpty() {
		return StatusErrNotEmpty
	}
	child.directory.markDeleted()
	d.detach(entry)
	now := n.fileSystem.clock.Now()
	n.directoryModified(now, -1)
	child.unlink(now)
	return StatusOK
}

// Rename an entry of this directory to a name in a potentially
// different directory. If overwrite is not set, the operation fails if
// the target name already exists. Otherwise, the existing target is
// replaced atomically, provided that it is compatible with the source.
func (n *Node) Rename(oldName path.Component, newDirectory *Node, newName path.Component, overwrite bool) Status {
	dOld, s := n.getDirectory()
	if s != StatusOK {
		return s
	}
	dNew, s := newDirectory.getDirectory()
	if s != StatusOK {
		return s
	}
	if n.fileSystem != newDirectory.fileSystem {
		return StatusErrXDev
	}
	if len(newName.String()) > MaximumNameLength {
		return StatusErrNameTooLong
	}

	fs := n.fileSystem
	if dOld != dNew {
		fs.renameLock.Lock()
		defer fs.renameLock.Unlock()
	}

	lockPile := memfs_sync.LockPile{}
	defer lockPile.UnlockAll()
	lockPile.Lock(&dOld.lock, &dNew.lock)

	newEntry, hasNewEntry := dNew.getAndLockIfDirectory(newName, &lockPile)
	oldEntry, ok := dOld.entriesMap[oldName]
	if !ok {
		return StatusErrNoEnt
	}
	oldChild := oldEntry.node

	var replacedChild *Node
	if hasNewEntry {
		replacedChild = newEntry.node
		if replacedChild == oldChild {
			// POSIX requires that renaming a file to itself
			// has no effect. After running the following
			// sequence of commands, both "a" and "b" should
			// still exist: "touch a; ln a b; mv a b".
			return StatusOK
		}
		if !overwrite {
			return StatusErrExist
		}
		if replacedChild.kind == KindDirectory {
			if oldChild.kind != KindDirectory {
				return StatusErrIsDir
			}
			if !replacedChild.directory.isEmpty() {
				return StatusErrNotEmpty
			}
		} else if oldChild.kind == KindDirectory {
			return StatusErrNotDir
		}
	} else if dNew.isDeleted {
		return StatusErrNoEnt
	}

	subdirectoryDeltaOld, subdirectoryDeltaNew := 0, 0
	if oldChild.kind == KindDirectory {
		if dOld != dNew {
			// Refuse to move a directory into itself.
			for ancestor := newDirectory; ancestor != nil; ancestor = ancestor.directory.parent {
				if ancestor == oldChild {
					return StatusErrInval
				}
			}
		}
		subdirectoryDeltaOld--
		subdirectoryDeltaNew++
	}

	// All checks have passed. Perform the rename.
	dOld.detach(oldEntry)
	if replacedChild != nil {
		dNew.detach(newEntry)
		if replacedChild.kind == KindDirectory {
			replacedChild.directory.markDeleted()
			subdirectoryDeltaNew--
		}
	}
	dNew.attach(newName, oldChild)
	if oldChild.kind == KindDirectory && dOld != dNew {
		oldChild.directory.parent = newDirectory
	}

	now := fs.clock.Now()
	if dOld == dNew {
		n.directoryModified(now, subdirectoryDeltaOld+subdirectoryDeltaNew)
	} else {
		n.directoryModified(now, subdirectoryDeltaOld)
		newDirectory.directoryModified(now, subdirectoryDeltaNew)
	}
	oldChild.lock.Lock()
	oldChild.touchLocked(now, false)
	oldChild.lock.Unlock()
	if replacedChild != nil {
		replacedChild.unlink(now)
	}
	return StatusOK
}

// ReadDir reports the entries of the directory, starting at the entry
// with a given cookie. A cookie of zero starts at the first entry.
func (n *Node) ReadDir(firstCookie uint64, reporter DirectoryEntryReporter) Status {
	d, s := n.getDirectory()
	if s != StatusOK {
		return s
	}

	d.lock.RLock()
	defer d.lock.RUnlock()

	for entry := d.getEntryAtCookie(firstCookie); entry != &d.entriesList; entry = entry.next {
		if !reporter.ReportEntry(entry.cookie+1, entry.name, entry.node) {
			break
		}
	}
	return StatusOK
}

// List all entries of the directory, in the order in which they were
// inserted.
func (n *Node) List() ([]DirectoryEntry, Status) {
	d, s := n.getDirectory()
	if s != StatusOK {
		return nil, s
	}
	return d.List(), StatusOK
}

// removeAllChildren detaches all entries of the directory, and
// recursively does the same for child directories. Nodes that are not
// opened are reclaimed. The directory itself is marked deleted.
func (n *Node) removeAllChildren(now time.Time) {
	d := n.directory
	d.lock.Lock()
	var entries *directoryEntry
	for d.entriesList.next != &d.entriesList {
		entry := d.entriesList.next
		d.detach(entry)
		entry.previous = entries
		entries = entry
	}
	d.isDeleted = true
	d.lock.Unlock()

	n.lock.Lock()
	n.subdirectoryCount = 0
	n.touchLocked(now, true)
	n.lock.Unlock()

	for entry := entries; entry != nil; entry = entry.previous {
		child := entry.node
		if child.kind == KindDirectory {
			child.removeAllChildren(now)
		}
		child.unlink(now)
	}
}
