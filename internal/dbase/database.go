// Package dbase implements the Database aggregate: a name-indexed mapping
// from table name to table, a shared type registry, a monotonic version
// counter, and configuration — the owner every other layer (txn,
// procedure, runtime) is ultimately handed.
package dbase

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/leengari/tickdb/internal/dberrors"
	"github.com/leengari/tickdb/internal/layout"
	"github.com/leengari/tickdb/internal/table"
	"github.com/leengari/tickdb/internal/types"
)

// Config carries every knob this package and its collaborators need. It
// is never parsed from flags or files; callers build it directly.
type Config struct {
	DataDir     string
	WALDir      string
	SnapshotDir string
	ArchiveDir  string

	TickRate                int
	MaxAPIRequestsPerTick   int
	PersistenceIntervalTicks int

	InitialTableCapacity uint32
	MaxBufferSize        uint32

	PersistenceMaxRetries   int
	PersistenceRetryDelayMS int

	KeepSnapshots     int
	CompressSnapshots bool
}

// Database is the name-indexed table set plus shared type registry and
// version counter.
type Database struct {
	mu sync.RWMutex

	tables   map[string]*table.Table
	registry *types.Registry
	version  atomic.Uint64

	config Config
}

// New creates an empty database with a fresh type registry (pre-populated
// with the built-in types).
func New(config Config) *Database {
	return &Database{
		tables:   make(map[string]*table.Table),
		registry: types.NewRegistry(),
		config:   config,
	}
}

// Config returns the database's configuration.
func (d *Database) Config() Config { return d.config }

// Registry returns the shared type registry.
func (d *Database) Registry() *types.Registry { return d.registry }

// Version returns the current commit version counter.
func (d *Database) Version() uint64 { return d.version.Load() }

// BumpVersion increments the version counter, called once per committed
// transaction.
func (d *Database) BumpVersion() uint64 { return d.version.Add(1) }

// SetVersion forces the version counter to v, used by recovery to restore
// the value recorded in a loaded snapshot/WAL replay.
func (d *Database) SetVersion(v uint64) { d.version.Store(v) }

// Table resolves a table by name, satisfying txn.TableProvider and
// procedure.Database.
func (d *Database) Table(name string) (*table.Table, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.tables[name]
	return t, ok
}

// Tables returns a snapshot of the current table set, keyed by name.
func (d *Database) Tables() map[string]*table.Table {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]*table.Table, len(d.tables))
	for k, v := range d.tables {
		out[k] = v
	}
	return out
}

// CreateTable registers a new table named name with the given ordered
// field list.
func (d *Database) CreateTable(name string, fields []layout.FieldSpec) (*table.Table, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.tables[name]; exists {
		return nil, fmt.Errorf("%w: %q", dberrors.ErrTableAlreadyExists, name)
	}
	t, err := table.New(name, fields, d.config.InitialTableCapacity, d.config.MaxBufferSize)
	if err != nil {
		return nil, err
	}
	d.tables[name] = t
	return t, nil
}

// DeleteTable removes table name, dropping its buffer.
func (d *Database) DeleteTable(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.tables[name]; !exists {
		return fmt.Errorf("%w: %q", dberrors.ErrTableNotFound, name)
	}
	delete(d.tables, name)
	return nil
}

// AdoptTable installs an already-constructed table, for loading a snapshot
// back into a fresh database instance.
func (d *Database) AdoptTable(t *table.Table) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tables[t.Name()] = t
}

// CreateRelation records an advisory foreign reference from fromTable's
// fromField to toTable's toField, failing if either table is unknown.
func (d *Database) CreateRelation(fromTable, fromField, toTable, toField string) (string, error) {
	d.mu.RLock()
	from, ok := d.tables[fromTable]
	_, toOK := d.tables[toTable]
	d.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("%w: %q", dberrors.ErrTableNotFound, fromTable)
	}
	if !toOK {
		return "", fmt.Errorf("%w: %q", dberrors.ErrTableNotFound, toTable)
	}
	from.AddRelation(table.Relation{FromField: fromField, ToTable: toTable, ToField: toField})
	return relationID(fromTable, fromField, toTable, toField), nil
}

// DeleteRelation removes the relation identified by id, the same string
// CreateRelation returned when it was created.
func (d *Database) DeleteRelation(id string) error {
	d.mu.RLock()
	tables := make(map[string]*table.Table, len(d.tables))
	for name, t := range d.tables {
		tables[name] = t
	}
	d.mu.RUnlock()

	for fromName, t := range tables {
		for _, r := range t.Relations() {
			if relationID(fromName, r.FromField, r.ToTable, r.ToField) == id {
				t.RemoveRelation(r)
				return nil
			}
		}
	}
	return fmt.Errorf("%w: %q", dberrors.ErrRelationNotFound, id)
}

func relationID(fromTable, fromField, toTable, toField string) string {
	return fmt.Sprintf("rel_%s_%s_%s_%s", fromTable, fromField, toTable, toField)
}
