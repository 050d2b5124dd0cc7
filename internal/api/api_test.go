package api

import (
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/leengari/tickdb/internal/dbase"
	"github.com/leengari/tickdb/internal/layout"
	"github.com/leengari/tickdb/internal/runtime"
	"github.com/leengari/tickdb/internal/walog"
)

func newTestDB(t *testing.T) *dbase.Database {
	t.Helper()
	root, err := os.MkdirTemp("", "api-test")
	assert.NilError(t, err)
	t.Cleanup(func() { os.RemoveAll(root) })
	return dbase.New(dbase.Config{
		DataDir:              filepath.Join(root, "tables"),
		WALDir:               filepath.Join(root, "wal"),
		SnapshotDir:          root,
		InitialTableCapacity: 8,
	})
}

func call(db *dbase.Database, name string, payload any) runtime.Response {
	return NewDispatcher(nil).Dispatch(db, runtime.Request{Name: name, Payload: payload})
}

func TestCreateTableThenListTables(t *testing.T) {
	db := newTestDB(t)

	resp := call(db, "CreateTable", CreateTablePayload{
		Name: "users",
		Fields: []FieldDef{
			{Name: "id", Type: "u64"},
			{Name: "active", Type: "bool"},
		},
	})
	assert.NilError(t, resp.Err)
	created := resp.Result.(CreateTableResult)
	assert.Equal(t, created.Name, "users")
	assert.Equal(t, created.RecordSize, uint32(9))

	resp = call(db, "ListTables", nil)
	assert.NilError(t, resp.Err)
	listed := resp.Result.(ListTablesResult)
	assert.Equal(t, listed.Count, 1)
	assert.Equal(t, listed.Tables[0], "users")
}

func TestCreateTableUnknownTypeRejected(t *testing.T) {
	db := newTestDB(t)
	resp := call(db, "CreateTable", CreateTablePayload{
		Name:   "widgets",
		Fields: []FieldDef{{Name: "id", Type: "nope"}},
	})
	assert.ErrorContains(t, resp.Err, "type not found")
}

func TestDeleteTable(t *testing.T) {
	db := newTestDB(t)
	_, err := db.CreateTable("users", []layout.FieldSpec{})
	assert.NilError(t, err)

	resp := call(db, "DeleteTable", DeleteTablePayload{Name: "users"})
	assert.NilError(t, resp.Err)

	_, ok := db.Table("users")
	assert.Assert(t, !ok)
}

func TestAddFieldAndRemoveField(t *testing.T) {
	db := newTestDB(t)
	u64, _ := db.Registry().Get("u64")
	_, err := db.CreateTable("users", []layout.FieldSpec{{Name: "id", Type: u64}})
	assert.NilError(t, err)

	resp := call(db, "AddField", AddFieldPayload{Table: "users", Field: FieldDef{Name: "score", Type: "u32"}})
	assert.NilError(t, resp.Err)
	added := resp.Result.(AddFieldResult)
	assert.Equal(t, added.Offset, uint32(8))
	assert.Equal(t, added.RecordSize, uint32(12))

	resp = call(db, "RemoveField", RemoveFieldPayload{Table: "users", Field: "score"})
	assert.NilError(t, resp.Err)

	table, _ := db.Table("users")
	assert.Equal(t, table.RecordSize(), uint32(8))
}

func TestCreateRelationThenDeleteRelation(t *testing.T) {
	db := newTestDB(t)
	u64, _ := db.Registry().Get("u64")
	_, err := db.CreateTable("orders", []layout.FieldSpec{{Name: "user_id", Type: u64}})
	assert.NilError(t, err)
	_, err = db.CreateTable("users", []layout.FieldSpec{{Name: "id", Type: u64}})
	assert.NilError(t, err)

	resp := call(db, "CreateRelation", CreateRelationPayload{
		FromTable: "orders", FromField: "user_id", ToTable: "users", ToField: "id",
	})
	assert.NilError(t, resp.Err)
	rel := resp.Result.(CreateRelationResult)
	assert.Equal(t, rel.ID, "rel_orders_user_id_users_id")

	resp = call(db, "DeleteRelation", DeleteRelationPayload{ID: rel.ID})
	assert.NilError(t, resp.Err)

	resp = call(db, "DeleteRelation", DeleteRelationPayload{ID: rel.ID})
	assert.ErrorContains(t, resp.Err, "relation not found")
}

func TestCrudCreateReadUpdateDelete(t *testing.T) {
	db := newTestDB(t)
	u64, _ := db.Registry().Get("u64")
	boolT, _ := db.Registry().Get("bool")
	_, err := db.CreateTable("users", []layout.FieldSpec{
		{Name: "id", Type: u64},
		{Name: "active", Type: boolT},
		{Name: "deleted", Type: boolT},
	})
	assert.NilError(t, err)

	resp := call(db, "Crud", CrudPayload{
		Table: "users",
		Op:    CrudCreate,
		Values: map[string]any{
			"id":      float64(7),
			"active":  true,
			"deleted": false,
		},
	})
	assert.NilError(t, resp.Err)
	created := resp.Result.(map[string]any)
	assert.Equal(t, created["id"], uint64(0))

	resp = call(db, "Crud", CrudPayload{Table: "users", Op: CrudRead, Index: 0})
	assert.NilError(t, resp.Err)
	values := resp.Result.(map[string]any)
	assert.Equal(t, values["id"], uint64(7))
	assert.Equal(t, values["active"], true)

	resp = call(db, "Crud", CrudPayload{
		Table: "users",
		Op:    CrudUpdate,
		Index: 0,
		Values: map[string]any{"active": false},
	})
	assert.NilError(t, resp.Err)

	resp = call(db, "Crud", CrudPayload{Table: "users", Op: CrudRead, Index: 0})
	assert.NilError(t, resp.Err)
	values = resp.Result.(map[string]any)
	assert.Equal(t, values["active"], false)
	assert.Equal(t, values["id"], uint64(7))

	resp = call(db, "Crud", CrudPayload{Table: "users", Op: CrudDelete, Index: 0})
	assert.NilError(t, resp.Err)

	resp = call(db, "Crud", CrudPayload{Table: "users", Op: CrudQuery})
	assert.NilError(t, resp.Err)
	rows := resp.Result.([]map[string]any)
	assert.Equal(t, len(rows), 1)
	assert.Equal(t, rows[0]["deleted"], true)
}

func TestCrudDeleteWithoutFlagFieldRejected(t *testing.T) {
	db := newTestDB(t)
	u64, _ := db.Registry().Get("u64")
	_, err := db.CreateTable("events", []layout.FieldSpec{{Name: "id", Type: u64}})
	assert.NilError(t, err)

	resp := call(db, "Crud", CrudPayload{Table: "events", Op: CrudDelete, Index: 0})
	assert.ErrorContains(t, resp.Err, "field not found")
}

func TestQueryRecordsAppliesFilterAndPagination(t *testing.T) {
	db := newTestDB(t)
	u64, _ := db.Registry().Get("u64")
	boolT, _ := db.Registry().Get("bool")
	table, err := db.CreateTable("users", []layout.FieldSpec{
		{Name: "id", Type: u64},
		{Name: "active", Type: boolT},
	})
	assert.NilError(t, err)

	for i := uint64(0); i < 5; i++ {
		active := i%2 == 0
		idBuf := make([]byte, 8)
		u64.Ser(idBuf, i)
		activeBuf := make([]byte, 1)
		boolT.Ser(activeBuf, active)
		_, err := table.CreateRecordFromValues([][]byte{idBuf, activeBuf})
		assert.NilError(t, err)
	}

	resp := call(db, "QueryRecords", QueryRecordsPayload{
		Table:       "users",
		QueryParams: QueryParams{Filters: map[string]any{"active": true}, Limit: 1, Offset: 1},
	})
	assert.NilError(t, resp.Err)
	result := resp.Result.(QueryRecordsResult)
	assert.Equal(t, result.Total, 3)
	assert.Equal(t, result.Count, 1)
	assert.Equal(t, result.Limit, 1)
	assert.Equal(t, result.Offset, 1)
	assert.Equal(t, result.Records[0]["id"], uint64(2))
}

func TestCrudMutationsAppendToWAL(t *testing.T) {
	db := newTestDB(t)
	u64, _ := db.Registry().Get("u64")
	boolT, _ := db.Registry().Get("bool")
	_, err := db.CreateTable("users", []layout.FieldSpec{
		{Name: "id", Type: u64},
		{Name: "deleted", Type: boolT},
	})
	assert.NilError(t, err)

	wal, err := walog.Open(db.Config().WALDir, 0, false)
	assert.NilError(t, err)
	t.Cleanup(func() { wal.Close() })
	d := NewDispatcher(wal)

	resp := d.Dispatch(db, runtime.Request{Name: "Crud", Payload: CrudPayload{
		Table:  "users",
		Op:     CrudCreate,
		Values: map[string]any{"id": float64(1), "deleted": false},
	}})
	assert.NilError(t, resp.Err)

	resp = d.Dispatch(db, runtime.Request{Name: "Crud", Payload: CrudPayload{
		Table:  "users",
		Op:     CrudUpdate,
		Index:  0,
		Values: map[string]any{"id": float64(2)},
	}})
	assert.NilError(t, resp.Err)

	resp = d.Dispatch(db, runtime.Request{Name: "Crud", Payload: CrudPayload{Table: "users", Op: CrudDelete, Index: 0}})
	assert.NilError(t, resp.Err)

	entries, err := walog.Scan(db.Config().WALDir)
	assert.NilError(t, err)

	var kinds []walog.EntryKind
	for _, e := range entries {
		kinds = append(kinds, e.Kind)
	}
	assert.DeepEqual(t, kinds, []walog.EntryKind{
		walog.EntryInsert, walog.EntryCommit,
		walog.EntryUpdate, walog.EntryCommit,
		walog.EntryUpdate, walog.EntryCommit,
	})
}

func TestDispatchUnknownRequestName(t *testing.T) {
	db := newTestDB(t)
	resp := call(db, "Frobnicate", nil)
	assert.ErrorContains(t, resp.Err, "unknown request name")
}
