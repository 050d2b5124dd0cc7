package procedure

import (
	"context"
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/leengari/tickdb/internal/layout"
	"github.com/leengari/tickdb/internal/table"
	"github.com/leengari/tickdb/internal/txn"
	"github.com/leengari/tickdb/internal/types"
)

type fakeDB struct {
	tables map[string]*table.Table
}

func (f *fakeDB) Table(name string) (*table.Table, bool) {
	t, ok := f.tables[name]
	return t, ok
}

func newFakeDB(t *testing.T) *fakeDB {
	t.Helper()
	r := types.NewRegistry()
	u64, _ := r.Get("u64")
	users, err := table.New("users", []layout.FieldSpec{{Name: "id", Type: u64}}, 8, 0)
	assert.NilError(t, err)
	return &fakeDB{tables: map[string]*table.Table{"users": users}}
}

func pack64(v uint64) []byte {
	b := make([]byte, 8)
	types.ByteOrder.PutUint64(b, v)
	return b
}

func TestCallCommitsOnSuccess(t *testing.T) {
	db := newFakeDB(t)
	reg := NewRegistry()
	assert.NilError(t, reg.Register(Definition{
		Name: "create_user",
		Run: func(db Database, tx *txn.Handle, params []byte) ([]byte, error) {
			staging, err := tx.Staging("users")
			if err != nil {
				return nil, err
			}
			_, err = staging.Create(pack64(1))
			return nil, err
		},
	}))

	_, err := reg.Call(db, "create_user", nil)
	assert.NilError(t, err)
	assert.Equal(t, db.tables["users"].RecordCount(), 1)
}

func TestCallAbortsOnError(t *testing.T) {
	db := newFakeDB(t)
	reg := NewRegistry()
	assert.NilError(t, reg.Register(Definition{
		Name: "fails",
		Run: func(db Database, tx *txn.Handle, params []byte) ([]byte, error) {
			staging, err := tx.Staging("users")
			if err != nil {
				return nil, err
			}
			if _, err := staging.Create(pack64(1)); err != nil {
				return nil, err
			}
			return nil, assertErr
		},
	}))

	_, err := reg.Call(db, "fails", nil)
	assert.Assert(t, err != nil)
	assert.Equal(t, db.tables["users"].RecordCount(), 0)
}

var assertErr = assertError("procedure body failed")

type assertError string

func (e assertError) Error() string { return string(e) }

func TestCallRecoversPanicAsError(t *testing.T) {
	db := newFakeDB(t)
	reg := NewRegistry()
	assert.NilError(t, reg.Register(Definition{
		Name: "panics",
		Run: func(db Database, tx *txn.Handle, params []byte) ([]byte, error) {
			panic("boom")
		},
	}))

	_, err := reg.Call(db, "panics", nil)
	assert.ErrorContains(t, err, "procedure panicked")
	assert.Equal(t, db.tables["users"].RecordCount(), 0)
}

func TestCallValidatesParams(t *testing.T) {
	db := newFakeDB(t)
	reg := NewRegistry()
	assert.NilError(t, reg.Register(Definition{
		Name:     "validated",
		Validate: func(params []byte) error { return assertError("bad params") },
		Run: func(db Database, tx *txn.Handle, params []byte) ([]byte, error) {
			return nil, nil
		},
	}))

	_, err := reg.Call(db, "validated", nil)
	assert.ErrorContains(t, err, "bad procedure parameters")
}

func TestCallUnknownProcedure(t *testing.T) {
	db := newFakeDB(t)
	reg := NewRegistry()
	_, err := reg.Call(db, "nope", nil)
	assert.ErrorContains(t, err, "procedure not found")
}

func TestRunPoolHonorsDeadline(t *testing.T) {
	db := newFakeDB(t)
	reg := NewRegistry()
	assert.NilError(t, reg.Register(Definition{
		Name: "noop",
		Run: func(db Database, tx *txn.Handle, params []byte) ([]byte, error) {
			return nil, nil
		},
	}))

	respCh := make(chan Response, 1)
	requests := make(chan Request, 1)
	requests <- Request{Name: "noop", Response: respCh}
	close(requests)

	reg.RunPool(context.Background(), db, requests, 1, time.Now().Add(-time.Hour))
	resp := <-respCh
	assert.ErrorContains(t, resp.Err, "time budget")
}

func TestRunPoolRunsWithinDeadline(t *testing.T) {
	db := newFakeDB(t)
	reg := NewRegistry()
	assert.NilError(t, reg.Register(Definition{
		Name: "noop",
		Run: func(db Database, tx *txn.Handle, params []byte) ([]byte, error) {
			return []byte("ok"), nil
		},
	}))

	respCh := make(chan Response, 1)
	requests := make(chan Request, 1)
	requests <- Request{Name: "noop", Response: respCh}
	close(requests)

	reg.RunPool(context.Background(), db, requests, 2, time.Now().Add(time.Hour))
	resp := <-respCh
	assert.NilError(t, resp.Err)
	assert.DeepEqual(t, resp.Result, []byte("ok"))
}
