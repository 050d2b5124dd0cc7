package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/leengari/tickdb/internal/layout"
	"github.com/leengari/tickdb/internal/table"
	"github.com/leengari/tickdb/internal/types"
)

func testDirs(t *testing.T) (schemaDir, dataDir string) {
	t.Helper()
	root, err := os.MkdirTemp("", "snapshot-test")
	assert.NilError(t, err)
	return root, filepath.Join(root, "data")
}

func pack64(v uint64) []byte {
	b := make([]byte, 8)
	types.ByteOrder.PutUint64(b, v)
	return b
}

func TestFlushThenLoadRoundTrips(t *testing.T) {
	schemaDir, dataDir := testDirs(t)
	defer os.RemoveAll(schemaDir)

	registry := types.NewRegistry()
	u64, _ := registry.Get("u64")

	users, err := table.New("users", []layout.FieldSpec{{Name: "id", Type: u64}}, 8, 0)
	assert.NilError(t, err)
	_, err = users.CreateRecord(pack64(42))
	assert.NilError(t, err)

	tables := map[string]*table.Table{"users": users}
	policy := RetryPolicy{MaxRetries: 0}

	assert.NilError(t, Flush(schemaDir, dataDir, tables, nil, 7, policy))

	loadRegistry := types.NewRegistry()
	result, err := snapshotLoad(t, schemaDir, dataDir, loadRegistry, policy)
	assert.NilError(t, err)
	assert.Equal(t, result.Version, uint64(7))

	loaded, ok := result.Tables["users"]
	assert.Assert(t, ok)
	rec, err := loaded.ReadRecord(0)
	assert.NilError(t, err)
	assert.Equal(t, types.ByteOrder.Uint64(rec), uint64(42))
}

func TestLoadMissingSchemaFileReturnsEmpty(t *testing.T) {
	schemaDir, dataDir := testDirs(t)
	defer os.RemoveAll(schemaDir)

	result, err := snapshotLoad(t, schemaDir, dataDir, types.NewRegistry(), RetryPolicy{})
	assert.NilError(t, err)
	assert.Equal(t, len(result.Tables), 0)
	assert.Equal(t, result.Version, uint64(0))
}

func TestLoadDetectsChecksumCorruption(t *testing.T) {
	schemaDir, dataDir := testDirs(t)
	defer os.RemoveAll(schemaDir)

	registry := types.NewRegistry()
	u64, _ := registry.Get("u64")
	users, err := table.New("users", []layout.FieldSpec{{Name: "id", Type: u64}}, 8, 0)
	assert.NilError(t, err)
	_, err = users.CreateRecord(pack64(1))
	assert.NilError(t, err)

	tables := map[string]*table.Table{"users": users}
	assert.NilError(t, Flush(schemaDir, dataDir, tables, nil, 1, RetryPolicy{}))

	dataPath := dataFilePath(dataDir, "users")
	raw, err := os.ReadFile(dataPath)
	assert.NilError(t, err)
	raw[0] ^= 0xFF
	assert.NilError(t, os.WriteFile(dataPath, raw, 0o644))

	_, err = snapshotLoad(t, schemaDir, dataDir, types.NewRegistry(), RetryPolicy{})
	assert.ErrorContains(t, err, "checksum mismatch")
}

func TestValidateSchemaRejectsUnknownType(t *testing.T) {
	sf := SchemaFile{
		Version: SchemaVersion,
		Tables: map[string]TableSchema{
			"users": {RecordSize: 8, Fields: []FieldSchema{{Name: "id", Type: "does_not_exist", Offset: 0}}},
		},
	}
	err := validateSchema(sf, types.NewRegistry())
	assert.ErrorContains(t, err, "type not found")
}

func TestValidateSchemaRejectsRecordSizeMismatch(t *testing.T) {
	sf := SchemaFile{
		Version: SchemaVersion,
		Tables: map[string]TableSchema{
			"users": {RecordSize: 99, Fields: []FieldSchema{{Name: "id", Type: "u64", Offset: 0}}},
		},
	}
	err := validateSchema(sf, types.NewRegistry())
	assert.ErrorContains(t, err, "computed")
}

// snapshotLoad is a thin wrapper around Load that passes a fixed initial
// capacity of 8 and no buffer-size limit, keeping the test call sites short.
func snapshotLoad(t *testing.T, schemaDir, dataDir string, registry *types.Registry, policy RetryPolicy) (*LoadResult, error) {
	t.Helper()
	return Load(schemaDir, dataDir, registry, 8, 0, policy)
}
