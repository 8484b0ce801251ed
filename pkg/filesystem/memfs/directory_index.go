package memfs

import (
	"sync"

	memfs_sync "github.com/buildbarn/bb-memfs/pkg/sync"
	"github.com/buildbarn/bb-storage/pkg/filesystem/path"
)

// MaximumNameLength is the maximum length of a directory entry name.
const MaximumNameLength = 255

// directoryLock is the lock of a DirectoryIndex. It can be placed in a
// LockPile, where it is ordered by the ID of the directory node.
type directoryLock struct {
	sync.RWMutex
	id uint64
}

func (l *directoryLock) LockOrderKey() uint64 {
	return l.id
}

// directoryEntry is a single entry stored in a DirectoryIndex. Entries
// are stored both in a map and a list. The latter is needed for
// listings to behave deterministically.
type directoryEntry struct {
	node *Node

	cookie   uint64
	name     path.Component
	previous *directoryEntry
	next     *directoryEntry
}

// DirectoryEntry is a single entry returned by DirectoryIndex.List().
type DirectoryEntry struct {
	Name path.Component
	Kind Kind
	ID   uint64
}

// DirectoryEntryReporter is used by Node.ReadDir() to report
// individual entries of a directory, in the order in which they were
// inserted.
type DirectoryEntryReporter interface {
	// ReportEntry is called for every entry. nextCookie may be
	// passed to a subsequent call to Node.ReadDir() to resume
	// listing at the entry following this one. Listing stops if
	// false is returned.
	ReportEntry(nextCookie uint64, name path.Component, child *Node) bool
}

// DirectoryIndex contains the entries of a directory. The isDeleted
// flag is set when the directory is removed, after which no new
// entries may be added.
type DirectoryIndex struct {
	lock        directoryLock
	entriesMap  map[path.Component]*directoryEntry
	entriesList directoryEntry
	isDeleted   bool
	changeID    uint64

	// Non-owning reference to the parent directory, used to detect
	// attempts to move a directory into itself. Only modified while
	// holding FileSystem.renameLock.
	parent *Node
}

func newDirectoryIndex(id uint64, parent *Node) *DirectoryIndex {
	d := &DirectoryIndex{
		lock:       directoryLock{id: id},
		entriesMap: map[path.Component]*directoryEntry{},
		parent:     parent,
	}
	d.entriesList.previous = &d.entriesList
	d.entriesList.next = &d.entriesList
	return d
}

// attach a node to the directory.
func (d *DirectoryIndex) attach(name path.Component, node *Node) {
	entry := &directoryEntry{
		node: node,

		name:     name,
		cookie:   d.changeID,
		previous: d.entriesList.previous,
		next:     &d.entriesList,
	}
	d.entriesMap[name] = entry
	entry.previous.next = entry
	entry.next.previous = entry
	d.changeID++
}

// detach the entry from the directory. Clear the entry's links to
// allow ReadDir() to detect that iteration was interrupted.
func (d *DirectoryIndex) detach(entry *directoryEntry) {
	delete(d.entriesMap, entry.name)
	entry.previous.next = entry.next
	entry.next.previous = entry.previous
	entry.previous = nil
	entry.next = nil
	d.changeID++
}

func (d *DirectoryIndex) mayAttach(name path.Component) Status {
	if len(name.String()) > MaximumNameLength {
		return StatusErrNameTooLong
	}
	if d.isDeleted {
		return StatusErrNoEnt
	}
	if _, ok := d.entriesMap[name]; ok {
		return StatusErrExist
	}
	return StatusOK
}

func (d *DirectoryIndex) isEmpty() bool {
	return len(d.entriesMap) == 0
}

func (d *DirectoryIndex) markDeleted() {
	if !d.isEmpty() {
		panic("Attempted to delete a directory that was not empty")
	}
	d.isDeleted = true
}

func (d *DirectoryIndex) getEntryAtCookie(firstCookie uint64) *directoryEntry {
	entry := d.entriesList.next
	for {
		if entry == &d.entriesList || entry.cookie >= firstCookie {
			return entry
		}
		entry = entry.next
	}
}

// getAndLockIfDirectory obtains an entry from the current directory,
// and immediately locks its node if it is a directory. To prevent
// possible deadlocks, we must respect the lock order. This may require
// this function to drop the lock on the current directory prior to
// picking up the lock of the child directory.
func (d *DirectoryIndex) getAndLockIfDirectory(name path.Component, lockPile *memfs_sync.LockPile) (*directoryEntry, bool) {
	for {
		entry, ok := d.entriesMap[name]
		if !ok {
			// No child node present.
			return nil, false
		}
		if entry.node.kind != KindDirectory {
			// Not a directory.
			return entry, true
		}
		childDirectoryLock := &entry.node.directory.lock
		if lockPile.Lock(childDirectoryLock) {
			// Lock acquisition of child succeeded without
			// dropping any of the existing locks.
			return entry, true
		}
		if d.entriesMap[name] == entry {
			// Even though we dropped locks, no race occurred.
			return entry, true
		}
		lockPile.Unlock(childDirectoryLock)
	}
}

// Lookup a node by name.
func (d *DirectoryIndex) Lookup(name path.Component) (*Node, bool) {
	d.lock.RLock()
	defer d.lock.RUnlock()

	if entry, ok := d.entriesMap[name]; ok {
		return entry.node, true
	}
	return nil, false
}

// List all entries of the directory, in the order in which they were
// inserted.
func (d *DirectoryIndex) List() []DirectoryEntry {
	d.lock.RLock()
	defer d.lock.RUnlock()

	entries := make([]DirectoryEntry, 0, len(d.entriesMap))
	for entry := d.entriesList.next; entry != &d.entriesList; entry = entry.next {
		entries = append(entries, DirectoryEntry{
			Name: entry.name,
			Kind: entry.node.kind,
			ID:   entry.node.id,
		})
	}
	return entries
}

// Len returns the number of entries in the directory.
func (d *DirectoryIndex) Len() int {
	d.lock.RLock()
	defer d.lock.RUnlock()
	return len(d.entriesMap)
}
