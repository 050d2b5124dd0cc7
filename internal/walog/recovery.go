package walog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/leengari/tickdb/internal/dberrors"
)

// Scan reads every segment in dir in ascending numeric order and returns
// the flat, in-file-order sequence of entries recovered from them. A short
// read at the tail of the final segment (a length prefix or payload cut
// off mid-write) is treated as truncation: the partial entry is discarded,
// not an error.
func Scan(dir string) ([]Entry, error) {
	names, err := segmentNamesSorted(dir)
	if err != nil {
		return nil, err
	}

	var all []Entry
	for _, name := range names {
		entries, err := scanSegment(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		all = append(all, entries...)
	}
	return all, nil
}

func segmentNamesSorted(dir string) ([]string, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: list wal dir: %v", dberrors.ErrIOPermanent, err)
	}

	type named struct {
		id   uint64
		name string
	}
	var segs []named
	for _, e := range dirEntries {
		var id uint64
		if _, scanErr := fmt.Sscanf(e.Name(), "wal_%010d.wal", &id); scanErr == nil {
			segs = append(segs, named{id: id, name: e.Name()})
		}
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i].id < segs[j].id })

	out := make([]string, len(segs))
	for i, s := range segs {
		out[i] = s.name
	}
	return out, nil
}

func scanSegment(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open segment %s: %v", dberrors.ErrIOPermanent, path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)

	header := make([]byte, FileHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, nil // empty/truncated header: nothing recoverable
		}
		return nil, fmt.Errorf("%w: read segment header %s: %v", dberrors.ErrIOTransient, path, err)
	}
	if string(header[0:8]) != string(Magic[:]) {
		return nil, fmt.Errorf("%w: bad magic in %s", dberrors.ErrDataCorruption, path)
	}
	version := ByteOrder.Uint32(header[8:12])
	if version != Version {
		return nil, fmt.Errorf("%w: segment %s has version %d, want %d", dberrors.ErrUnsupportedVersion, path, version, Version)
	}

	var entries []Entry
	for {
		lenBuf := make([]byte, 4)
		if _, err := io.ReadFull(r, lenBuf); err != nil {
			break // short read at tail: truncation, stop cleanly
		}
		length := ByteOrder.Uint32(lenBuf)

		payload := make([]byte, length)
		if _, err := io.ReadFull(r, payload); err != nil {
			break // partial entry: truncation, discard
		}

		e, err := decode(payload)
		if err != nil {
			// A corrupt (not merely truncated) entry mid-stream is a real
			// data integrity problem, not an expected truncation.
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// NextTransactionID returns 1 + the maximum transaction id observed across
// entries, or 1 if entries is empty.
func NextTransactionID(entries []Entry) uint64 {
	var max uint64
	for _, e := range entries {
		if e.TxnID > max {
			max = e.TxnID
		}
	}
	return max + 1
}

// CommittedOps groups entries by transaction id and returns, in ascending
// transaction-id order, the ordered operation entries (Insert/Update/
// Delete) of every transaction that reached a Commit entry. Transactions
// with no Commit entry (including ones ending in Rollback) are dropped.
func CommittedOps(entries []Entry, afterVersion uint64) []Entry {
	type txn struct {
		ops       []Entry
		committed bool
	}
	byTxn := make(map[uint64]*txn)
	var order []uint64

	for _, e := range entries {
		t, ok := byTxn[e.TxnID]
		if !ok {
			t = &txn{}
			byTxn[e.TxnID] = t
			order = append(order, e.TxnID)
		}
		switch e.Kind {
		case EntryCommit:
			t.committed = true
		case EntryRollback:
			t.committed = false
		default:
			t.ops = append(t.ops, e)
		}
	}

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	var out []Entry
	for _, id := range order {
		if id <= afterVersion {
			continue
		}
		t := byTxn[id]
		if !t.committed {
			continue
		}
		out = append(out, t.ops...)
	}
	return out
}
