package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"time"

	natomic "github.com/natefinch/atomic"

	"github.com/leengari/tickdb/internal/dberrors"
	"github.com/leengari/tickdb/internal/layout"
	"github.com/leengari/tickdb/internal/table"
	"github.com/leengari/tickdb/internal/types"
)

// RetryPolicy bounds how persistence retries a failed I/O operation,
// with a fixed delay between attempts, before surfacing it.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
}

func (p RetryPolicy) withRetry(op func() error) error {
	var lastErr error
	attempts := p.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if i < attempts-1 {
			time.Sleep(p.Delay)
		}
	}
	return lastErr
}

const schemaFileName = "schema.json"

func dataFilePath(dataDir, tableName string) string {
	return filepath.Join(dataDir, tableName+".bin")
}

// Flush writes every table's data file and the schema file, in that order,
// atomically installing each via temp+fsync+rename.
func Flush(schemaDir, dataDir string, tables map[string]*table.Table, customTypes map[string]CustomType, dbVersion uint64, policy RetryPolicy) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("%w: create data dir: %v", dberrors.ErrIOPermanent, err)
	}
	if err := os.MkdirAll(schemaDir, 0o755); err != nil {
		return fmt.Errorf("%w: create schema dir: %v", dberrors.ErrIOPermanent, err)
	}

	sf := SchemaFile{
		Version:     SchemaVersion,
		DBVersion:   dbVersion,
		Tables:      make(map[string]TableSchema, len(tables)),
		CustomTypes: customTypes,
		Checksums:   make(map[string]uint32, len(tables)),
	}

	for name, t := range tables {
		data := t.Buffer().LoadFull()
		sum := crc32.ChecksumIEEE(data)

		path := dataFilePath(dataDir, name)
		if err := policy.withRetry(func() error {
			return natomic.WriteFile(path, bytes.NewReader(data))
		}); err != nil {
			return fmt.Errorf("%w: flush data file for table %q: %v", dberrors.ErrIOPermanent, name, err)
		}

		sf.Checksums[name] = sum
		sf.Tables[name] = tableSchemaOf(t)
	}

	encoded, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal schema: %v", dberrors.ErrSerialization, err)
	}

	schemaPath := filepath.Join(schemaDir, schemaFileName)
	if err := policy.withRetry(func() error {
		return natomic.WriteFile(schemaPath, bytes.NewReader(encoded))
	}); err != nil {
		return fmt.Errorf("%w: flush schema file: %v", dberrors.ErrIOPermanent, err)
	}

	return nil
}

func tableSchemaOf(t *table.Table) TableSchema {
	schema := t.Schema()
	ts := TableSchema{
		RecordSize: schema.Size,
		Fields:     make([]FieldSchema, len(schema.Fields)),
	}
	for i, f := range schema.Fields {
		ts.Fields[i] = FieldSchema{Name: f.Name, Type: f.Type.Name, Offset: f.Offset}
	}
	for _, r := range t.Relations() {
		ts.Relations = append(ts.Relations, RelationEntry{ToTable: r.ToTable, FromField: r.FromField, ToField: r.ToField})
	}
	return ts
}

// LoadResult is the outcome of Load: the reconstructed tables, keyed by
// name, and the database version recorded in the schema file.
type LoadResult struct {
	Tables  map[string]*table.Table
	Version uint64
}

// Load reads the schema file, registers any custom types it declares,
// validates the schema, then reconstructs each table from its data file,
// verifying its checksum.
func Load(schemaDir, dataDir string, registry *types.Registry, initialCapacity, maxBufferSize uint32, policy RetryPolicy) (*LoadResult, error) {
	schemaPath := filepath.Join(schemaDir, schemaFileName)

	var raw []byte
	if err := policy.withRetry(func() error {
		var readErr error
		raw, readErr = os.ReadFile(schemaPath)
		return readErr
	}); err != nil {
		if os.IsNotExist(err) {
			return &LoadResult{Tables: make(map[string]*table.Table), Version: 0}, nil
		}
		return nil, fmt.Errorf("%w: read schema file: %v", dberrors.ErrIOPermanent, err)
	}

	var sf SchemaFile
	if err := json.Unmarshal(raw, &sf); err != nil {
		return nil, fmt.Errorf("%w: parse schema file: %v", dberrors.ErrSerialization, err)
	}
	if sf.Version != SchemaVersion {
		return nil, fmt.Errorf("%w: schema file version %d, want %d", dberrors.ErrUnsupportedVersion, sf.Version, SchemaVersion)
	}

	for name, ct := range sf.CustomTypes {
		if err := registry.EnsureRegistered(name, ct.Size, ct.Align, ct.POD); err != nil {
			return nil, err
		}
	}

	if err := validateSchema(sf, registry); err != nil {
		return nil, err
	}

	tables := make(map[string]*table.Table, len(sf.Tables))
	for name, ts := range sf.Tables {
		fields := make([]layout.FieldSpec, len(ts.Fields))
		for i, fs := range ts.Fields {
			typ, _ := registry.Get(fs.Type)
			fields[i] = layout.FieldSpec{Name: fs.Name, Type: typ}
		}

		t, err := table.New(name, fields, initialCapacity, maxBufferSize)
		if err != nil {
			return nil, err
		}
		for _, r := range ts.Relations {
			t.AddRelation(table.Relation{FromField: r.FromField, ToTable: r.ToTable, ToField: r.ToField})
		}

		path := dataFilePath(dataDir, name)
		if _, statErr := os.Stat(path); statErr == nil {
			var data []byte
			if err := policy.withRetry(func() error {
				var readErr error
				data, readErr = os.ReadFile(path)
				return readErr
			}); err != nil {
				return nil, fmt.Errorf("%w: read data file for table %q: %v", dberrors.ErrIOPermanent, name, err)
			}

			sum := crc32.ChecksumIEEE(data)
			if want, ok := sf.Checksums[name]; ok && sum != want {
				return nil, fmt.Errorf("%w: checksum mismatch for table %q", dberrors.ErrDataCorruption, name)
			}
			t.Buffer().Store(data)
		}

		tables[name] = t
	}

	return &LoadResult{Tables: tables, Version: sf.DBVersion}, nil
}

// validateSchema checks a loaded schema file for internal consistency:
// unique field names per table, known types, computed record size matches
// stored record_size, field offsets in bounds and non-overlapping, and
// every relation's source and target field exist.
func validateSchema(sf SchemaFile, registry *types.Registry) error {
	for name, ts := range sf.Tables {
		fields := make([]layout.FieldSpec, 0, len(ts.Fields))
		seen := make(map[string]struct{}, len(ts.Fields))
		for _, fs := range ts.Fields {
			if _, dup := seen[fs.Name]; dup {
				return fmt.Errorf("%w: table %q field %q duplicated", dberrors.ErrDuplicateField, name, fs.Name)
			}
			seen[fs.Name] = struct{}{}

			typ, ok := registry.Get(fs.Type)
			if !ok {
				return fmt.Errorf("%w: table %q field %q type %q", dberrors.ErrTypeNotFound, name, fs.Name, fs.Type)
			}
			fields = append(fields, layout.FieldSpec{Name: fs.Name, Type: typ})
		}

		computed, err := layout.Compute(fields)
		if err != nil {
			return err
		}
		if computed.Size != ts.RecordSize {
			return fmt.Errorf("%w: table %q computed %d, stored %d", dberrors.ErrRecordSizeMismatch, name, computed.Size, ts.RecordSize)
		}
		if err := layout.Validate(computed); err != nil {
			return err
		}

		for _, r := range ts.Relations {
			if _, ok := seen[r.FromField]; !ok {
				return fmt.Errorf("%w: table %q relation source field %q", dberrors.ErrFieldNotFound, name, r.FromField)
			}
			target, ok := sf.Tables[r.ToTable]
			if !ok {
				return fmt.Errorf("%w: relation target table %q", dberrors.ErrTableNotFound, r.ToTable)
			}
			found := false
			for _, tf := range target.Fields {
				if tf.Name == r.ToField {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("%w: relation target field %q.%q", dberrors.ErrFieldNotFound, r.ToTable, r.ToField)
			}
		}
	}
	return nil
}
