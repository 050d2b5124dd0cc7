package table

import (
	"context"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/leengari/tickdb/internal/layout"
	"github.com/leengari/tickdb/internal/query"
	"github.com/leengari/tickdb/internal/types"
)

func testSchema(t *testing.T) (u8, u32, u64, str types.Type) {
	t.Helper()
	r := types.NewRegistry()
	u8t, _ := r.Get("u8")
	u32t, _ := r.Get("u32")
	u64t, _ := r.Get("u64")
	strt, _ := r.Get("string")
	return u8t, u32t, u64t, strt
}

func newUsersTable(t *testing.T) *Table {
	t.Helper()
	_, u32, u64, str := testSchema(t)
	tbl, err := New("users", []layout.FieldSpec{
		{Name: "id", Type: u64},
		{Name: "age", Type: u32},
		{Name: "name", Type: str},
	}, 16, 0)
	assert.NilError(t, err)
	return tbl
}

func packUint32(v uint32) []byte {
	b := make([]byte, 4)
	types.ByteOrder.PutUint32(b, v)
	return b
}

func packUint64(v uint64) []byte {
	b := make([]byte, 8)
	types.ByteOrder.PutUint64(b, v)
	return b
}

func packString(t *testing.T, typ types.Type, s string) []byte {
	t.Helper()
	dst := make([]byte, typ.Size)
	_, err := typ.Ser(dst, s)
	assert.NilError(t, err)
	return dst
}

func TestCreateAndReadRecord(t *testing.T) {
	tbl := newUsersTable(t)
	_, _, _, str := testSchema(t)

	id, err := tbl.CreateRecordFromValues([][]byte{packUint64(1), packUint32(30), packString(t, str, "ada")})
	assert.NilError(t, err)
	assert.Equal(t, id, uint64(1))

	rec, err := tbl.ReadRecord(0)
	assert.NilError(t, err)
	assert.Equal(t, len(rec), int(tbl.RecordSize()))

	field, err := tbl.ReadField(0, "age")
	assert.NilError(t, err)
	assert.Equal(t, types.ByteOrder.Uint32(field), uint32(30))
}

func TestUpdateRecordWholesale(t *testing.T) {
	tbl := newUsersTable(t)
	_, _, _, str := testSchema(t)
	_, err := tbl.CreateRecordFromValues([][]byte{packUint64(1), packUint32(30), packString(t, str, "ada")})
	assert.NilError(t, err)

	full := make([]byte, tbl.RecordSize())
	copy(full, packUint64(1))
	copy(full[8:], packUint32(31))
	copy(full[12:], packString(t, str, "ada"))

	assert.NilError(t, tbl.UpdateRecord(0, full))

	field, err := tbl.ReadField(0, "age")
	assert.NilError(t, err)
	assert.Equal(t, types.ByteOrder.Uint32(field), uint32(31))
}

func TestPartialUpdateOverwritesOnlyNamedFields(t *testing.T) {
	tbl := newUsersTable(t)
	_, _, _, str := testSchema(t)
	_, err := tbl.CreateRecordFromValues([][]byte{packUint64(1), packUint32(30), packString(t, str, "ada")})
	assert.NilError(t, err)

	err = tbl.PartialUpdate(0, []FieldOverride{{Field: "age", Bytes: packUint32(99)}})
	assert.NilError(t, err)

	age, err := tbl.ReadField(0, "age")
	assert.NilError(t, err)
	assert.Equal(t, types.ByteOrder.Uint32(age), uint32(99))

	id, err := tbl.ReadField(0, "id")
	assert.NilError(t, err)
	assert.Equal(t, types.ByteOrder.Uint64(id), uint64(1))
}

func TestDeleteAndCompact(t *testing.T) {
	tbl := newUsersTable(t)
	_, _, _, str := testSchema(t)

	// table needs a 1-byte flag field to soft-delete against
	u8, _, _, _ := testSchema(t)
	assert.NilError(t, tbl.AddField("deleted", u8))

	_, err := tbl.CreateRecordFromValues([][]byte{packUint64(1), packUint32(30), packString(t, str, "ada"), {0}})
	assert.NilError(t, err)
	_, err = tbl.CreateRecordFromValues([][]byte{packUint64(2), packUint32(40), packString(t, str, "bea"), {0}})
	assert.NilError(t, err)

	assert.NilError(t, tbl.DeleteRecord(0, "deleted"))
	assert.Equal(t, tbl.RecordCount(), 2) // soft delete doesn't shrink the buffer

	removed, err := tbl.Compact("deleted")
	assert.NilError(t, err)
	assert.Equal(t, removed, 1)
	assert.Equal(t, tbl.RecordCount(), 1)

	id, err := tbl.ReadField(0, "id")
	assert.NilError(t, err)
	assert.Equal(t, types.ByteOrder.Uint64(id), uint64(2))
}

func TestAddFieldPreservesExistingData(t *testing.T) {
	tbl := newUsersTable(t)
	_, _, _, str := testSchema(t)
	_, err := tbl.CreateRecordFromValues([][]byte{packUint64(7), packUint32(21), packString(t, str, "cy")})
	assert.NilError(t, err)

	u8, _, _, _ := testSchema(t)
	assert.NilError(t, tbl.AddField("active", u8))

	age, err := tbl.ReadField(0, "age")
	assert.NilError(t, err)
	assert.Equal(t, types.ByteOrder.Uint32(age), uint32(21))

	active, err := tbl.ReadField(0, "active")
	assert.NilError(t, err)
	assert.Equal(t, active[0], byte(0))
}

func TestRemoveFieldDropsData(t *testing.T) {
	tbl := newUsersTable(t)
	_, _, _, str := testSchema(t)
	_, err := tbl.CreateRecordFromValues([][]byte{packUint64(7), packUint32(21), packString(t, str, "cy")})
	assert.NilError(t, err)

	assert.NilError(t, tbl.RemoveField("age"))
	_, err = tbl.ReadField(0, "age")
	assert.ErrorContains(t, err, "field not found")

	id, err := tbl.ReadField(0, "id")
	assert.NilError(t, err)
	assert.Equal(t, types.ByteOrder.Uint64(id), uint64(7))
}

func TestQueryFiltersRecords(t *testing.T) {
	tbl := newUsersTable(t)
	_, _, _, str := testSchema(t)
	_, err := tbl.CreateRecordFromValues([][]byte{packUint64(1), packUint32(30), packString(t, str, "ada")})
	assert.NilError(t, err)
	_, err = tbl.CreateRecordFromValues([][]byte{packUint64(2), packUint32(40), packString(t, str, "bea")})
	assert.NilError(t, err)

	idx, err := tbl.Query([]query.Filter{{Field: "age", Expected: packUint32(40)}}, 0, -1)
	assert.NilError(t, err)
	assert.DeepEqual(t, idx, []uint64{1})
}

func TestParallelQueryMatchesLinearScan(t *testing.T) {
	tbl := newUsersTable(t)
	_, _, _, str := testSchema(t)
	for i := 0; i < 200; i++ {
		_, err := tbl.CreateRecordFromValues([][]byte{packUint64(uint64(i)), packUint32(uint32(i % 3)), packString(t, str, "x")})
		assert.NilError(t, err)
	}

	linear, err := tbl.Query([]query.Filter{{Field: "age", Expected: packUint32(1)}}, 0, -1)
	assert.NilError(t, err)

	parallel, err := tbl.ParallelQuery(context.Background(), []query.Filter{{Field: "age", Expected: packUint32(1)}}, 0, -1)
	assert.NilError(t, err)

	assert.DeepEqual(t, linear, parallel)
}

func TestCreateRecordWrongSizeRejected(t *testing.T) {
	tbl := newUsersTable(t)
	_, err := tbl.CreateRecord([]byte{1, 2, 3})
	assert.ErrorContains(t, err, "wrong byte size")
}
