package memfs

import (
	"io"
	"sync/atomic"
)

// ShareMask is a bitmask of operations that may be performed through
// a Handle.
type ShareMask uint32

const (
	// ShareMaskRead permits reading the contents of the file.
	ShareMaskRead ShareMask = 1 << iota
	// ShareMaskWrite permits writing the contents of the file.
	ShareMaskWrite
)

// Handle is an open reference to a Node. As long as a handle is not
// closed, the node is not reclaimed, even if it is no longer linked
// into any directory.
type Handle struct {
	node        *Node
	shareAccess ShareMask
	closed      atomic.Bool
}

// Node returns the node that was opened.
func (h *Handle) Node() *Node {
	return h.node
}

func (h *Handle) getContents(required ShareMask) (*ContentStore, Status) {
	if h.closed.Load() || h.shareAccess&required != required {
		return nil, StatusErrBadHandle
	}
	return h.node.Contents()
}

// Read data from the file at a given offset. Reads at or past the end
// of the file return zero bytes and report end-of-file. Reading does
// not update the access time of the file.
func (h *Handle) Read(buf []byte, offset int64) (int, bool, Status) {
	contents, s := h.getContents(ShareMaskRead)
	if s != StatusOK {
		return 0, false, s
	}
	return contents.Read(buf, offset)
}

// Write data into the file at a given offset. The new size of the file
// is returned.
func (h *Handle) Write(buf []byte, offset int64) (int, uint64, Status) {
	contents, s := h.getContents(ShareMaskWrite)
	if s != StatusOK {
		return 0, 0, s
	}
	n, size, s := contents.Write(buf, offset)
	if s == StatusOK && n > 0 {
		h.node.touch(true)
	}
	return n, size, s
}

// Append data to the end of the file. The offset at which the data
// was written is returned.
func (h *Handle) Append(buf []byte) (int64, int, Status) {
	contents, s := h.getContents(ShareMaskWrite)
	if s != StatusOK {
		return 0, 0, s
	}
	offset, n, s := contents.Append(buf)
	if s == StatusOK && n > 0 {
		h.node.touch(true)
	}
	return offset, n, s
}

// WriteFrom copies length bytes from a caller provided source into the
// file at a given offset. If the source cannot provide all data, the
// file is left untouched and StatusErrFault is returned.
func (h *Handle) WriteFrom(r io.Reader, length int, offset int64) (int, uint64, Status) {
	contents, s := h.getContents(ShareMaskWrite)
	if s != StatusOK {
		return 0, 0, s
	}
	n, size, s := contents.WriteFrom(r, length, offset)
	if s == StatusOK && n > 0 {
		h.node.touch(true)
	}
	return n, size, s
}

// Allocate storage for a range of the file, extending it if needed.
func (h *Handle) Allocate(offset, length int64) Status {
	contents, s := h.getContents(ShareMaskWrite)
	if s != StatusOK {
		return s
	}
	if s := contents.Allocate(offset, length); s != StatusOK {
		return s
	}
	h.node.touch(true)
	return StatusOK
}

// Close the handle. If the node is no longer linked into any
// directory and this was its last handle, the node is reclaimed.
// Closing a handle more than once has no effect.
func (h *Handle) Close() {
	if h.closed.CompareAndSwap(false, true) {
		h.node.release()
	}
}
