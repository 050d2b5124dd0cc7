package txn

import (
	"fmt"

	"github.com/leengari/tickdb/internal/dberrors"
	"github.com/leengari/tickdb/internal/table"
)

// Staging is a cloned byte buffer for one table plus the change log of
// operations applied to the clone since it was taken. Nothing here is
// visible to readers of the live table until the owning transaction
// commits and publishes it.
type Staging struct {
	recordSize uint32
	data       []byte
	log        []logEntry
}

func newStaging(t *table.Table) *Staging {
	return &Staging{
		recordSize: t.RecordSize(),
		data:       t.Buffer().LoadFull(),
	}
}

// Create appends rec, which must be exactly recordSize bytes, returning the
// index it will occupy once committed.
func (s *Staging) Create(rec []byte) (uint64, error) {
	if uint32(len(rec)) != s.recordSize {
		return 0, fmt.Errorf("%w: expected %d bytes, got %d", dberrors.ErrWrongSize, s.recordSize, len(rec))
	}
	index := uint64(len(s.data)) / uint64(s.recordSize)
	byteOff := uint64(len(s.data))
	s.data = append(s.data, rec...)

	stored := append([]byte(nil), rec...)
	s.log = append(s.log, logEntry{kind: opCreate, offset: byteOff, newBytes: stored})
	return index, nil
}

// Update overwrites record index with newBytes, logging the prior contents.
func (s *Staging) Update(index uint64, newBytes []byte) error {
	if uint32(len(newBytes)) != s.recordSize {
		return fmt.Errorf("%w: expected %d bytes, got %d", dberrors.ErrWrongSize, s.recordSize, len(newBytes))
	}
	byteOff, err := s.boundsCheck(index)
	if err != nil {
		return err
	}
	old := append([]byte(nil), s.data[byteOff:byteOff+uint64(s.recordSize)]...)
	copy(s.data[byteOff:byteOff+uint64(s.recordSize)], newBytes)

	stored := append([]byte(nil), newBytes...)
	s.log = append(s.log, logEntry{kind: opUpdate, offset: byteOff, oldBytes: old, newBytes: stored})
	return nil
}

// Delete logs the deletion of record index without physically altering the
// staged buffer; physical removal is a table-level compaction concern, not
// a transaction one.
func (s *Staging) Delete(index uint64) error {
	byteOff, err := s.boundsCheck(index)
	if err != nil {
		return err
	}
	original := append([]byte(nil), s.data[byteOff:byteOff+uint64(s.recordSize)]...)
	s.log = append(s.log, logEntry{kind: opDelete, offset: byteOff, oldBytes: original})
	return nil
}

func (s *Staging) boundsCheck(index uint64) (uint64, error) {
	off := index * uint64(s.recordSize)
	end := off + uint64(s.recordSize)
	if end > uint64(len(s.data)) {
		return 0, fmt.Errorf("%w: record %d out of bounds", dberrors.ErrOutOfBounds, index)
	}
	return off, nil
}

// Log returns the ordered list of operations applied to this staging
// buffer, for a WAL writer or replication delta stream to consume at
// commit time.
func (s *Staging) Log() []logEntry {
	out := make([]logEntry, len(s.log))
	copy(out, s.log)
	return out
}
