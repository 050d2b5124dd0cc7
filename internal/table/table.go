// Package table implements the typed, fixed-layout record store: append-only
// growth, soft delete plus compaction, linear and parallel filtered scans,
// and field add/remove producing a new layout.
//
// The table's unexported RWMutex guards buffer *publication* rather than buffer
// contents, since reads against an already-Load()-ed snapshot never take
// the lock.
package table

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/leengari/tickdb/internal/buffer"
	"github.com/leengari/tickdb/internal/dberrors"
	"github.com/leengari/tickdb/internal/layout"
	"github.com/leengari/tickdb/internal/query"
	"github.com/leengari/tickdb/internal/types"
)

// Table is a single named, fixed-layout record store.
type Table struct {
	mu sync.RWMutex // guards layout + buffer publication, not buffer contents

	name      string
	schema    layout.Record
	buf       *buffer.Atomic
	nextID    atomic.Uint64
	relations []Relation
	maxBytes  uint32
}

// New creates an empty table named name with the given ordered field list.
func New(name string, fields []layout.FieldSpec, initialCapacity, maxBytes uint32) (*Table, error) {
	rec, err := layout.Compute(fields)
	if err != nil {
		return nil, err
	}
	if err := layout.Validate(rec); err != nil {
		return nil, err
	}
	return &Table{
		name:     name,
		schema:   rec,
		buf:      buffer.New(rec.Size, initialCapacity, maxBytes),
		maxBytes: maxBytes,
	}, nil
}

func (t *Table) Name() string { return t.name }

// Schema returns the table's current record layout. Safe to call
// concurrently with writers; a snapshot of the layout at call time.
func (t *Table) Schema() layout.Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.schema
}

// RecordSize returns the current fixed record size.
func (t *Table) RecordSize() uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.schema.Size
}

// RecordCount returns the number of live record slots (including soft-deleted
// ones not yet compacted).
func (t *Table) RecordCount() int {
	return t.buf.RecordCount()
}

// Relations returns the table's outgoing foreign references.
func (t *Table) Relations() []Relation {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Relation, len(t.relations))
	copy(out, t.relations)
	return out
}

// AddRelation records an advisory foreign reference from fromField to
// toTable.toField.
func (t *Table) AddRelation(r Relation) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.relations = append(t.relations, r)
}

// RemoveRelation drops the first outgoing relation matching r exactly,
// reporting whether one was found.
func (t *Table) RemoveRelation(r Relation) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, existing := range t.relations {
		if existing == r {
			t.relations = append(t.relations[:i], t.relations[i+1:]...)
			return true
		}
	}
	return false
}

// CreateRecord appends bytes, which must be exactly the current record
// size, publishing the grown buffer. Returns the monotonic id assigned to
// the new record (not its index: ids never go backwards even across
// compaction, while indices can shift).
func (t *Table) CreateRecord(rec []byte) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if uint32(len(rec)) != t.schema.Size {
		return 0, fmt.Errorf("%w: expected %d bytes, got %d", dberrors.ErrWrongSize, t.schema.Size, len(rec))
	}

	cur := t.buf.LoadFull()
	needed := uint32(len(cur)) + t.schema.Size
	grown, err := t.buf.EnsureCapacity(cur, needed)
	if err != nil {
		return 0, err
	}
	grown = append(grown, rec...)
	t.buf.Store(grown)

	return t.nextID.Add(1), nil
}

// CreateRecordFromValues packs one byte slice per field, in schema field
// order, validating each against its field's size before assembling and
// appending the record.
func (t *Table) CreateRecordFromValues(values [][]byte) (uint64, error) {
	t.mu.RLock()
	schema := t.schema
	t.mu.RUnlock()

	if len(values) != len(schema.Fields) {
		return 0, fmt.Errorf("%w: expected %d fields, got %d", dberrors.ErrWrongFieldCount, len(schema.Fields), len(values))
	}

	rec := make([]byte, schema.Size)
	for i, f := range schema.Fields {
		if uint32(len(values[i])) != f.Type.Size {
			return 0, fmt.Errorf("%w: field %q expected %d bytes, got %d", dberrors.ErrWrongFieldSize, f.Name, f.Type.Size, len(values[i]))
		}
		copy(rec[f.Offset:f.Offset+f.Type.Size], values[i])
	}
	return t.CreateRecord(rec)
}

// ReadRecord returns a shared slice of record index, pinned to the buffer
// snapshot it was read from — it remains valid and stable even if the
// table is concurrently mutated (copy-on-write never touches it in place).
func (t *Table) ReadRecord(index uint64) ([]byte, error) {
	snap := t.buf.Load()
	recSize := t.RecordSize()
	return snap.RecordSlice(index, recSize)
}

// ReadField returns the typed byte slice of one field within record index.
func (t *Table) ReadField(index uint64, fieldName string) ([]byte, error) {
	t.mu.RLock()
	schema := t.schema
	t.mu.RUnlock()

	f, ok := schema.ByName(fieldName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", dberrors.ErrFieldNotFound, fieldName)
	}
	rec, err := t.buf.Load().RecordSlice(index, schema.Size)
	if err != nil {
		return nil, err
	}
	return rec[f.Offset : f.Offset+f.Type.Size], nil
}

// UpdateRecord replaces record index's bytes wholesale, atomically: clone,
// overwrite the one record's byte range, publish.
func (t *Table) UpdateRecord(index uint64, rec []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if uint32(len(rec)) != t.schema.Size {
		return fmt.Errorf("%w: expected %d bytes, got %d", dberrors.ErrWrongSize, t.schema.Size, len(rec))
	}
	cur := t.buf.LoadFull()
	if _, err := sliceBoundsCheck(cur, index, t.schema.Size); err != nil {
		return err
	}
	off := index * uint64(t.schema.Size)
	copy(cur[off:off+uint64(t.schema.Size)], rec)
	t.buf.Store(cur)
	return nil
}

// FieldOverride is one (field, bytes) pair for PartialUpdate.
type FieldOverride struct {
	Field string
	Bytes []byte
}

// PartialUpdate overwrites only the named fields of record index.
func (t *Table) PartialUpdate(index uint64, overrides []FieldOverride) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur := t.buf.LoadFull()
	if _, err := sliceBoundsCheck(cur, index, t.schema.Size); err != nil {
		return err
	}
	recOff := index * uint64(t.schema.Size)

	for _, ov := range overrides {
		f, ok := t.schema.ByName(ov.Field)
		if !ok {
			return fmt.Errorf("%w: %q", dberrors.ErrFieldNotFound, ov.Field)
		}
		if uint32(len(ov.Bytes)) != f.Type.Size {
			return fmt.Errorf("%w: field %q expected %d bytes, got %d", dberrors.ErrWrongFieldSize, ov.Field, f.Type.Size, len(ov.Bytes))
		}
		fieldOff := recOff + uint64(f.Offset)
		copy(cur[fieldOff:fieldOff+uint64(f.Type.Size)], ov.Bytes)
	}
	t.buf.Store(cur)
	return nil
}

// DeleteRecord soft-deletes record index by setting its 1-byte flagField to
// 1. Physical removal happens only via Compact.
func (t *Table) DeleteRecord(index uint64, flagField string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, ok := t.schema.ByName(flagField)
	if !ok {
		return fmt.Errorf("%w: %q", dberrors.ErrFieldNotFound, flagField)
	}
	if f.Type.Size != 1 {
		return fmt.Errorf("%w: field %q is %d bytes", dberrors.ErrNotBooleanField, flagField, f.Type.Size)
	}
	cur := t.buf.LoadFull()
	if _, err := sliceBoundsCheck(cur, index, t.schema.Size); err != nil {
		return err
	}
	off := index*uint64(t.schema.Size) + uint64(f.Offset)
	cur[off] = 1
	t.buf.Store(cur)
	return nil
}

// Compact rewrites the buffer dropping every record whose flagField byte is
// nonzero, preserving the relative order of surviving records. Returns the
// number of records removed.
func (t *Table) Compact(flagField string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, ok := t.schema.ByName(flagField)
	if !ok {
		return 0, fmt.Errorf("%w: %q", dberrors.ErrFieldNotFound, flagField)
	}

	cur := t.buf.LoadFull()
	recSize := int(t.schema.Size)
	count := len(cur) / recSize

	out := make([]byte, 0, len(cur))
	removed := 0
	for i := 0; i < count; i++ {
		rec := cur[i*recSize : (i+1)*recSize]
		if rec[f.Offset] != 0 {
			removed++
			continue
		}
		out = append(out, rec...)
	}
	t.buf.Store(out)
	return removed, nil
}

// AddField appends a new field at an aligned offset, producing a new
// record layout; existing records are rewritten with zero bytes for the
// new field's range.
func (t *Table) AddField(name string, typ types.Type) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	newSchema, err := layout.AddField(t.schema, layout.FieldSpec{Name: name, Type: typ})
	if err != nil {
		return err
	}
	if t.maxBytes != 0 {
		count := uint64(len(t.buf.LoadFull())) / uint64(t.schema.Size)
		if count*uint64(newSchema.Size) > uint64(t.maxBytes) {
			return fmt.Errorf("%w: new layout would exceed %d bytes", dberrors.ErrWouldExceedLimit, t.maxBytes)
		}
	}

	cur := t.buf.LoadFull()
	oldSize := int(t.schema.Size)
	count := len(cur) / oldSize

	rebuilt := make([]byte, count*int(newSchema.Size))
	for i := 0; i < count; i++ {
		oldRec := cur[i*oldSize : (i+1)*oldSize]
		newRec := rebuilt[i*int(newSchema.Size) : (i+1)*int(newSchema.Size)]
		for _, of := range t.schema.Fields {
			nf, _ := newSchema.ByName(of.Name)
			copy(newRec[nf.Offset:nf.Offset+nf.Type.Size], oldRec[of.Offset:of.Offset+of.Type.Size])
		}
	}

	t.schema = newSchema
	t.buf = buffer.New(newSchema.Size, uint32(len(rebuilt)), t.maxBytes)
	t.buf.Store(rebuilt)
	return nil
}

// RemoveField drops a field and rebuilds offsets for the remaining fields
// in their original order.
func (t *Table) RemoveField(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	newSchema, err := layout.RemoveField(t.schema, name)
	if err != nil {
		return err
	}

	cur := t.buf.LoadFull()
	oldSize := int(t.schema.Size)
	count := len(cur) / oldSize

	rebuilt := make([]byte, count*int(newSchema.Size))
	for i := 0; i < count; i++ {
		oldRec := cur[i*oldSize : (i+1)*oldSize]
		newRec := rebuilt[i*int(newSchema.Size) : (i+1)*int(newSchema.Size)]
		for _, nf := range newSchema.Fields {
			of, _ := t.schema.ByName(nf.Name)
			copy(newRec[nf.Offset:nf.Offset+nf.Type.Size], oldRec[of.Offset:of.Offset+of.Type.Size])
		}
	}

	t.schema = newSchema
	t.buf = buffer.New(newSchema.Size, uint32(len(rebuilt)), t.maxBytes)
	t.buf.Store(rebuilt)
	return nil
}

// Query returns ascending indices of records matching every filter,
// scanned single-threaded, with offset/limit applied after filtering.
func (t *Table) Query(filters []query.Filter, offset, limit int) ([]uint64, error) {
	t.mu.RLock()
	schema := t.schema
	t.mu.RUnlock()
	return query.Scan(t.buf.Load().Bytes(), schema, filters, offset, limit)
}

// ParallelQuery is Query's cache-line-partitioned, concurrent counterpart;
// see internal/query for the partitioning scheme.
func (t *Table) ParallelQuery(ctx context.Context, filters []query.Filter, offset, limit int) ([]uint64, error) {
	t.mu.RLock()
	schema := t.schema
	t.mu.RUnlock()
	return query.ParallelScan(ctx, t.buf.Load().Bytes(), schema, filters, offset, limit)
}

// Buffer exposes the underlying atomic buffer for the query executor and
// the transaction layer, which stage against a cloned copy and publish
// through the same Store path used here.
func (t *Table) Buffer() *buffer.Atomic { return t.buf }

func sliceBoundsCheck(data []byte, index uint64, recSize uint32) ([]byte, error) {
	off := index * uint64(recSize)
	end := off + uint64(recSize)
	if end > uint64(len(data)) {
		return nil, fmt.Errorf("%w: record %d out of bounds (have %d records)",
			dberrors.ErrOutOfBounds, index, uint64(len(data))/uint64(recSize))
	}
	return data[off:end], nil
}
