// Package walog implements a write-ahead log: a rotating set of segment
// files, each holding length-framed entries with a CRC32 per entry,
// grouped by transaction at recovery time.
package walog

import "encoding/binary"

// ByteOrder is the byte order for every multi-byte field in the log.
var ByteOrder = binary.LittleEndian

// Magic identifies a valid segment file (ASCII "TICKWAL0").
var Magic = [8]byte{'T', 'I', 'C', 'K', 'W', 'A', 'L', '0'}

// Version is the current segment format version.
const Version uint32 = 1

// FileHeaderSize is the fixed size of a segment's file header: 8-byte
// magic, 4-byte version, 4-byte flags, 16 bytes reserved (zero).
const FileHeaderSize = 32

// FileHeader is written once at the start of every segment file.
type FileHeader struct {
	Magic   [8]byte
	Version uint32
	Flags   uint32
}

// EntryKind identifies the payload kind of one WAL entry.
type EntryKind uint8

const (
	EntryInsert EntryKind = iota + 1
	EntryUpdate
	EntryDelete
	EntryCommit
	EntryRollback
)

// Entry is one logical WAL record: a transaction id, a per-transaction
// sequence number, and a kind-specific payload.
type Entry struct {
	TxnID    uint64
	Seq      uint64
	Kind     EntryKind
	TableID  string // empty for Commit/Rollback
	EntityID uint64 // record index; unused for Commit/Rollback
	Data     []byte // new record bytes for Insert/Update; nil otherwise
}
