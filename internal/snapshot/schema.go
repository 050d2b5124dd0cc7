// Package snapshot implements schema-file and data-file persistence: a
// JSON schema document with per-table CRC32 checksums, raw per-table data
// files, atomically installed via temp+fsync+rename using
// github.com/natefinch/atomic.
package snapshot

// SchemaFile is the JSON document written to schema.json.
type SchemaFile struct {
	Version     int                     `json:"version"`
	DBVersion   uint64                  `json:"db_version"`
	Tables      map[string]TableSchema  `json:"tables"`
	CustomTypes map[string]CustomType   `json:"custom_types"`
	Checksums   map[string]uint32       `json:"checksums"`
}

// TableSchema is one table's entry in the schema file.
type TableSchema struct {
	RecordSize uint32          `json:"record_size"`
	Fields     []FieldSchema   `json:"fields"`
	Relations  []RelationEntry `json:"relations"`
}

// FieldSchema is one field's entry within a TableSchema.
type FieldSchema struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Offset uint32 `json:"offset"`
}

// RelationEntry is one outgoing relation within a TableSchema.
type RelationEntry struct {
	ToTable   string `json:"to_table"`
	FromField string `json:"from_field"`
	ToField   string `json:"to_field"`
}

// CustomType is a non-builtin registered type's entry in the schema file.
type CustomType struct {
	Size  uint32 `json:"size"`
	Align uint32 `json:"align"`
	POD   bool   `json:"pod"`
}

// SchemaVersion is the only schema file format version this package writes
// and accepts.
const SchemaVersion = 1
