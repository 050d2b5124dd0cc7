// Package txn implements multi-table transactions: per-table staging
// buffers, an all-or-nothing sorted commit, and automatic abort when a
// handle goes out of scope without an explicit commit.
package txn

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/leengari/tickdb/internal/dberrors"
	"github.com/leengari/tickdb/internal/table"
	"github.com/leengari/tickdb/internal/walog"
)

var idCounter uint64

// SeedID advances the transaction id counter so the next Begin returns an
// id greater than floor, avoiding collisions with transaction ids already
// observed in a recovered WAL.
func SeedID(floor uint64) {
	for {
		cur := atomic.LoadUint64(&idCounter)
		if cur >= floor {
			return
		}
		if atomic.CompareAndSwapUint64(&idCounter, cur, floor) {
			return
		}
	}
}

// TableProvider resolves a table by name, letting a transaction stage
// against whichever tables it touches without the txn package owning the
// registry itself.
type TableProvider interface {
	Table(name string) (*table.Table, bool)
}

// Handle is one in-flight transaction: a name-indexed set of staging
// buffers plus terminal-state tracking.
type Handle struct {
	mu sync.Mutex

	ID   uint64
	UUID string

	tables   TableProvider
	stagings map[string]*Staging
	wal      *walog.Log

	committed bool
	aborted   bool
}

// Begin opens a new transaction against tables, resolved lazily as each
// table name is first touched. wal may be nil, in which case Commit
// publishes staged changes without appending anything to a log.
func Begin(tables TableProvider, wal *walog.Log) *Handle {
	return &Handle{
		ID:       atomic.AddUint64(&idCounter, 1),
		UUID:     uuid.New().String(),
		tables:   tables,
		stagings: make(map[string]*Staging),
		wal:      wal,
	}
}

// Staging returns the staging buffer for tableName, cloning the table's
// current buffer the first time it is touched by this transaction.
func (h *Handle) Staging(tableName string) (*Staging, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.checkActive(); err != nil {
		return nil, err
	}
	if s, ok := h.stagings[tableName]; ok {
		return s, nil
	}
	t, ok := h.tables.Table(tableName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", dberrors.ErrTableNotFound, tableName)
	}
	s := newStaging(t)
	h.stagings[tableName] = s
	return s, nil
}

func (h *Handle) checkActive() error {
	if h.committed {
		return dberrors.ErrAlreadyCommitted
	}
	if h.aborted {
		return dberrors.ErrAlreadyAborted
	}
	return nil
}

// Commit publishes every touched table's staging buffer, all or nothing:
// table names are sorted lexicographically first so that no interleaving
// of two concurrent multi-table commits can deadlock on acquisition order.
// Isolation is last-writer-wins at buffer granularity; concurrent commits
// to the same table do not merge.
//
// When the handle carries a WAL, every staged operation is appended first,
// in the same table order, followed by one Commit entry for the
// transaction id — only once that succeeds are the staging buffers
// published to their live tables, so a crash between the two leaves the
// live tables untouched and the WAL without a trailing Commit entry,
// which recovery then discards.
func (h *Handle) Commit() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.checkActive(); err != nil {
		return err
	}

	names := make([]string, 0, len(h.stagings))
	for name := range h.stagings {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, ok := h.tables.Table(name); !ok {
			return fmt.Errorf("%w: %q", dberrors.ErrTableNotFound, name)
		}
	}

	if h.wal != nil {
		if err := h.appendLocked(names); err != nil {
			return err
		}
	}

	for _, name := range names {
		t, _ := h.tables.Table(name)
		t.Buffer().Store(h.stagings[name].data)
	}

	h.committed = true
	return nil
}

// appendLocked writes every staged operation across names, in order,
// followed by a single Commit entry for this transaction.
func (h *Handle) appendLocked(names []string) error {
	for _, name := range names {
		staging := h.stagings[name]
		for _, entry := range staging.log {
			e := walog.Entry{
				TxnID:    h.ID,
				Kind:     walEntryKind(entry.kind),
				TableID:  name,
				EntityID: entry.offset / uint64(staging.recordSize),
				Data:     entry.newBytes,
			}
			if err := h.wal.Append(e); err != nil {
				return err
			}
		}
	}
	return h.wal.Append(walog.Entry{TxnID: h.ID, Kind: walog.EntryCommit})
}

func walEntryKind(k opKind) walog.EntryKind {
	switch k {
	case opCreate:
		return walog.EntryInsert
	case opUpdate:
		return walog.EntryUpdate
	default:
		return walog.EntryDelete
	}
}

// Abort drops all staging buffers without publishing anything.
func (h *Handle) Abort() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.checkActive(); err != nil {
		return err
	}
	h.stagings = nil
	h.aborted = true
	return nil
}

// Close aborts the transaction if it is still active, implementing the
// required auto-abort-on-scope-exit pattern around fallible procedures:
//
//	tx := txn.Begin(tables, wal)
//	defer tx.Close()
//	... fallible work, returning early on error ...
//	return tx.Commit()
func (h *Handle) Close() error {
	h.mu.Lock()
	active := !h.committed && !h.aborted
	h.mu.Unlock()
	if !active {
		return nil
	}
	return h.Abort()
}

// Committed reports whether the transaction has committed.
func (h *Handle) Committed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.committed
}

// Aborted reports whether the transaction has aborted.
func (h *Handle) Aborted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.aborted
}
