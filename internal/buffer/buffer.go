// Package buffer implements the atomic record buffer: a versioned,
// immutable byte sequence behind an atomic pointer swap, giving lock-free
// reads and copy-on-write writes.
package buffer

import (
	"fmt"
	"sync/atomic"

	"github.com/leengari/tickdb/internal/dberrors"
)

// versioned pairs a storage backing with the monotonic version it was
// published at.
type versioned struct {
	store   storage
	version uint64
}

// Atomic is a lock-free, versioned record buffer for one table.
type Atomic struct {
	ptr        atomic.Pointer[versioned]
	recordSize uint32
	maxBytes   uint32 // 0 means unbounded
}

// New creates an atomic buffer for records of recordSize bytes, with an
// initial in-memory capacity and an optional maximum size in bytes (0 =
// unbounded). The buffer starts empty (length 0), matching an empty table.
func New(recordSize, initialCapacity, maxBytes uint32) *Atomic {
	a := &Atomic{recordSize: recordSize, maxBytes: maxBytes}
	data := make(memStorage, 0, initialCapacity)
	a.ptr.Store(&versioned{store: data, version: 0})
	return a
}

// NewFromMmap creates an atomic buffer backed by a read-only memory map of
// path, for reopening a table against a previously flushed data file
// without copying it into memory until the first write.
func NewFromMmap(recordSize uint32, maxBytes uint32, path string) (*Atomic, error) {
	m, err := mmapFile(path)
	if err != nil {
		return nil, err
	}
	a := &Atomic{recordSize: recordSize, maxBytes: maxBytes}
	a.ptr.Store(&versioned{store: m, version: 0})
	return a, nil
}

// Snapshot is a pinned, read-only view of the buffer as it was at the
// moment of Load(). Holding a Snapshot keeps its underlying storage alive
// and observable even after concurrent Store calls publish newer versions.
type Snapshot struct {
	data    []byte
	version uint64
}

func (s Snapshot) Bytes() []byte    { return s.data }
func (s Snapshot) Version() uint64  { return s.version }
func (s Snapshot) Len() int         { return len(s.data) }

// Load returns a pinned view of the current buffer. O(1), wait-free: it
// only swaps a pointer read, never blocks on a writer.
func (a *Atomic) Load() Snapshot {
	v := a.ptr.Load()
	return Snapshot{data: v.store.bytes(), version: v.version}
}

// LoadFull returns an owned, mutable copy of the current buffer contents.
func (a *Atomic) LoadFull() []byte {
	v := a.ptr.Load()
	src := v.store.bytes()
	out := make([]byte, len(src))
	copy(out, src)
	return out
}

// Store atomically publishes newData as the current buffer, incrementing
// the version. The previous backing is not closed here: a memory-mapped
// backing stays mapped, and Go's GC (not an explicit refcount) keeps a
// Snapshot's bytes alive for any reader that called Load() before this Store.
func (a *Atomic) Store(newData []byte) {
	prev := a.ptr.Load()
	next := &versioned{store: memStorage(newData), version: prev.version + 1}
	a.ptr.Store(next)
}

// RecordSize returns the fixed record size this buffer was created with.
func (a *Atomic) RecordSize() uint32 { return a.recordSize }

// RecordCount returns the number of whole records currently in the buffer.
func (a *Atomic) RecordCount() int {
	if a.recordSize == 0 {
		return 0
	}
	return a.Load().Len() / int(a.recordSize)
}

// RecordOffset computes the byte offset of record i, checked for overflow.
func (a *Atomic) RecordOffset(i uint64) (uint64, error) {
	off := i * uint64(a.recordSize)
	if a.recordSize != 0 && off/uint64(a.recordSize) != i {
		return 0, fmt.Errorf("%w: record offset calculation overflowed", dberrors.ErrOverflow)
	}
	return off, nil
}

// RecordSlice returns the bytes of record i from a pinned snapshot, bounds
// checked against that snapshot's length.
func (s Snapshot) RecordSlice(i uint64, recordSize uint32) ([]byte, error) {
	off := i * uint64(recordSize)
	end := off + uint64(recordSize)
	if end > uint64(len(s.data)) {
		return nil, fmt.Errorf("%w: record %d out of bounds (have %d records)",
			dberrors.ErrOutOfBounds, i, uint64(len(s.data))/uint64(recordSize))
	}
	return s.data[off:end], nil
}

// EnsureCapacity grows newData (a soon-to-be-published buffer clone) so its
// capacity is at least n bytes, doubling each step, refusing growth beyond
// maxBytes. It does not publish anything; callers grow their working clone
// before appending to it and only then call Store.
func (a *Atomic) EnsureCapacity(data []byte, n uint32) ([]byte, error) {
	if uint32(cap(data)) >= n {
		return data, nil
	}
	if a.maxBytes != 0 && n > a.maxBytes {
		return nil, fmt.Errorf("%w: requested %d bytes exceeds limit %d", dberrors.ErrMemoryLimitExceeded, n, a.maxBytes)
	}
	newCap := uint32(cap(data))
	if newCap == 0 {
		newCap = 1
	}
	for newCap < n {
		if a.maxBytes != 0 && newCap > a.maxBytes/2 {
			newCap = a.maxBytes
			break
		}
		newCap *= 2
	}
	if a.maxBytes != 0 && newCap > a.maxBytes {
		if n > a.maxBytes {
			return nil, fmt.Errorf("%w: requested %d bytes exceeds limit %d", dberrors.ErrMemoryLimitExceeded, n, a.maxBytes)
		}
		newCap = a.maxBytes
	}
	grown := make([]byte, len(data), newCap)
	copy(grown, data)
	return grown, nil
}
