package memfs

import (
	"io"
	"sync"

	"github.com/zeebo/blake3"
)

const (
	// PageSize is the granularity at which ContentStore exposes its
	// page-addressable view. It is also reported as the block size
	// of the file system.
	PageSize = 4096

	// MaximumFileSize is the largest size a regular file may attain.
	// Writes and truncations beyond it fail with StatusErrInval.
	MaximumFileSize = 1 << 40
)

// ContentStore holds the data of a regular file in a single buffer
// that grows on demand. The length of the buffer is its capacity. The
// logical size of the file is tracked separately and is the only
// source of truth for the file size. Bytes between the logical size
// and the capacity are always zero, meaning that holes created by
// writing past the end of the file read back as zeros.
//
// Reads acquire a shared lock, while all mutations acquire an
// exclusive lock. Every file has its own lock, meaning that writers to
// different files never contend.
type ContentStore struct {
	allocator MemoryAllocator

	lock     sync.RWMutex
	data     []byte
	size     int64
	digest   []byte
	released bool
}

func newContentStore(allocator MemoryAllocator) *ContentStore {
	return &ContentStore{
		allocator: allocator,
	}
}

// checkRange validates that a range of bytes starting at a given
// offset lies within the bounds of what a file may hold. It returns
// the end offset of the range.
func checkRange(offset, length int64) (int64, Status) {
	if offset < 0 || length < 0 || offset > MaximumFileSize || length > MaximumFileSize-offset {
		return 0, StatusErrInval
	}
	return offset + length, StatusOK
}

// reserveLocked ensures that the buffer has a capacity of at least
// the provided size. Capacity is doubled where possible, so that
// sequential appends take amortized constant time. When the doubled
// capacity cannot be allocated, growing to exactly the requested size
// is attempted instead. The buffer is only grown after the allocator
// has granted the additional capacity. Stores whose memory has already
// been released may not grow again.
func (c *ContentStore) reserveLocked(size int64) Status {
	if c.released {
		return StatusErrStale
	}
	oldCapacity := int64(len(c.data))
	if size <= oldCapacity {
		return StatusOK
	}

	for _, newCapacity := range []int64{min(max(2*oldCapacity, size), MaximumFileSize), size} {
		if c.allocator.Allocate(newCapacity - oldCapacity) {
			newData := make([]byte, newCapacity)
			copy(newData, c.data[:c.size])
			c.data = newData
			return StatusOK
		}
	}
	return StatusErrNoSpc
}

// shrinkLocked reduces the logical size of the file, zeroing the bytes
// that are cut off. The buffer is reallocated when it has become
// substantially larger than what is needed.
func (c *ContentStore) shrinkLocked(size int64) {
	clear(c.data[size:c.size])
	c.size = size
	if oldCapacity := int64(len(c.data)); size < oldCapacity/4 {
		var newData []byte
		if size > 0 {
			newData = make([]byte, size)
			copy(newData, c.data)
		}
		c.data = newData
		c.allocator.Release(oldCapacity - size)
	}
}

// Size returns the logical size of the file in bytes.
func (c *ContentStore) Size() uint64 {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return uint64(c.size)
}

// Read data from the file, starting at a given offset. The number of
// bytes returned is bounded by the size of the file. The boolean
// return value indicates that the end of the file has been reached.
func (c *ContentStore) Read(buf []byte, offset int64) (int, bool, Status) {
	if offset < 0 {
		return 0, false, StatusErrInval
	}

	c.lock.RLock()
	defer c.lock.RUnlock()

	if offset >= c.size {
		return 0, true, StatusOK
	}
	n := copy(buf, c.data[offset:c.size])
	return n, offset+int64(n) >= c.size, StatusOK
}

// Write data into the file at a given offset, growing the file if
// needed. Writing past the end of the file creates a hole that reads
// back as zeros. Upon failure the contents of the file are left
// unmodified. The new size of the file is returned.
func (c *ContentStore) Write(buf []byte, offset int64) (int, uint64, Status) {
	end, s := checkRange(offset, int64(len(buf)))
	if s != StatusOK {
		return 0, 0, s
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	return c.writeLocked(buf, offset, end)
}

func (c *ContentStore) writeLocked(buf []byte, offset, end int64) (int, uint64, Status) {
	// Zero-sized writes should not cause the file to grow.
	if len(buf) == 0 {
		return 0, uint64(c.size), StatusOK
	}
	if s := c.reserveLocked(end); s != StatusOK {
		return 0, uint64(c.size), s
	}
	n := copy(c.data[offset:end], buf)
	if end > c.size {
		c.size = end
	}
	c.digest = nil
	return n, uint64(c.size), StatusOK
}

// Append data to the end of the file atomically. This is used by
// handles opened with O_APPEND. The offset at which data was written
// is returned.
func (c *ContentStore) Append(buf []byte) (int64, int, Status) {
	c.lock.Lock()
	defer c.lock.Unlock()

	offset := c.size
	end, s := checkRange(offset, int64(len(buf)))
	if s != StatusOK {
		return 0, 0, s
	}
	n, _, s := c.writeLocked(buf, offset, end)
	return offset, n, s
}

// WriteFrom copies exactly length bytes from a caller provided source
// into the file at a given offset. The source is consumed completely
// before the file is modified, meaning that a source that fails or
// ends prematurely leaves the file untouched and yields
// StatusErrFault.
func (c *ContentStore) WriteFrom(r io.Reader, length int, offset int64) (int, uint64, Status) {
	if _, s := checkRange(offset, int64(length)); s != StatusOK {
		return 0, 0, s
	}
	staging := make([]byte, length)
	if _, err := io.ReadFull(r, staging); err != nil {
		return 0, 0, StatusErrFault
	}
	return c.Write(staging, offset)
}

// Truncate the file to a given size. Growing the file fills the new
// space with zeros.
func (c *ContentStore) Truncate(size int64) Status {
	if _, s := checkRange(0, size); s != StatusOK {
		return s
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	if size < c.size {
		c.shrinkLocked(size)
	} else if size > c.size {
		if s := c.reserveLocked(size); s != StatusOK {
			return s
		}
		c.size = size
	}
	c.digest = nil
	return StatusOK
}

// Allocate ensures that storage for a range of the file is present,
// extending the file with zeros if the range ends past the current
// size. This implements the default mode of fallocate().
func (c *ContentStore) Allocate(offset, length int64) Status {
	if length == 0 {
		return StatusErrInval
	}
	end, s := checkRange(offset, length)
	if s != StatusOK {
		return s
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	if s := c.reserveLocked(end); s != StatusOK {
		return s
	}
	if end > c.size {
		c.size = end
		c.digest = nil
	}
	return StatusOK
}

// PageCount returns the number of pages needed to cover the file.
func (c *ContentStore) PageCount() uint64 {
	return (c.Size() + PageSize - 1) / PageSize
}

// ReadPage fills a page sized buffer with the contents of the file at
// a given page index. The part of the page that lies past the end of
// the file is zero filled. The number of bytes of the page that lie
// within the file is returned.
func (c *ContentStore) ReadPage(index uint64, page []byte) (int, Status) {
	if len(page) != PageSize || index > MaximumFileSize/PageSize {
		return 0, StatusErrInval
	}
	n, _, s := c.Read(page, int64(index*PageSize))
	if s != StatusOK {
		return 0, s
	}
	clear(page[n:])
	return n, StatusOK
}

// WritePage writes the contents of a page back into the file at a
// given page index. The page may be shorter than PageSize if it is the
// last page of the file, in which case the file is extended to exactly
// the end of the provided data.
func (c *ContentStore) WritePage(index uint64, page []byte) Status {
	if len(page) > PageSize || index > MaximumFileSize/PageSize {
		return StatusErrInval
	}
	_, _, s := c.Write(page, int64(index*PageSize))
	return s
}

// Digest returns the BLAKE3 hash of the contents of the file. The
// hash is cached until the file is modified.
func (c *ContentStore) Digest() []byte {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.digest == nil {
		sum := blake3.Sum256(c.data[:c.size])
		c.digest = sum[:]
	}
	return c.digest
}

// release all memory held by the file. This is called when the file
// is reclaimed.
func (c *ContentStore) release() {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.allocator.Release(int64(len(c.data)))
	c.data = nil
	c.size = 0
	c.digest = nil
	c.released = true
}
