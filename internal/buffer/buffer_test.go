package buffer

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestNewStartsEmpty(t *testing.T) {
	a := New(8, 64, 0)
	assert.Equal(t, a.RecordCount(), 0)
	assert.Equal(t, a.Load().Version(), uint64(0))
}

func TestStoreIncrementsVersion(t *testing.T) {
	a := New(8, 64, 0)
	a.Store(make([]byte, 8))
	snap := a.Load()
	assert.Equal(t, snap.Version(), uint64(1))
	assert.Equal(t, snap.Len(), 8)
}

func TestLoadSnapshotIsStableAcrossConcurrentStore(t *testing.T) {
	a := New(8, 64, 0)
	a.Store([]byte{1, 2, 3, 4, 5, 6, 7, 8})

	snap := a.Load()
	a.Store([]byte{9, 9, 9, 9, 9, 9, 9, 9})

	// the pinned snapshot still observes its own bytes, unaffected by the
	// later Store publishing a new version
	assert.DeepEqual(t, snap.Bytes(), []byte{1, 2, 3, 4, 5, 6, 7, 8})
	assert.Equal(t, a.Load().Version(), uint64(2))
}

func TestRecordSliceBoundsChecked(t *testing.T) {
	a := New(4, 16, 0)
	a.Store([]byte{1, 2, 3, 4})
	snap := a.Load()

	rec, err := snap.RecordSlice(0, 4)
	assert.NilError(t, err)
	assert.DeepEqual(t, rec, []byte{1, 2, 3, 4})

	_, err = snap.RecordSlice(1, 4)
	assert.ErrorContains(t, err, "out of bounds")
}

func TestEnsureCapacityDoublesAndRespectsLimit(t *testing.T) {
	a := New(4, 0, 16)
	data := make([]byte, 0, 0)

	grown, err := a.EnsureCapacity(data, 10)
	assert.NilError(t, err)
	assert.Assert(t, cap(grown) >= 10)
	assert.Assert(t, cap(grown) <= 16)

	_, err = a.EnsureCapacity(data, 32)
	assert.ErrorContains(t, err, "memory limit exceeded")
}

func TestRecordOffsetOverflow(t *testing.T) {
	a := New(1<<20, 0, 0)
	_, err := a.RecordOffset(^uint64(0) / 2)
	assert.ErrorContains(t, err, "overflow")
}
