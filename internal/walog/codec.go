package walog

import (
	"fmt"
	"hash/crc32"

	"github.com/leengari/tickdb/internal/dberrors"
)

// encode serializes an entry as:
//
//	Kind(1) TxnID(8) Seq(8) TableIDLen(2) TableID EntityID(8) DataLen(4) Data CRC32(4)
//
// CRC32 covers every byte before it.
func encode(e Entry) []byte {
	tableIDBytes := []byte(e.TableID)
	size := 1 + 8 + 8 + 2 + len(tableIDBytes) + 8 + 4 + len(e.Data)
	buf := make([]byte, size+4)

	i := 0
	buf[i] = byte(e.Kind)
	i++
	ByteOrder.PutUint64(buf[i:], e.TxnID)
	i += 8
	ByteOrder.PutUint64(buf[i:], e.Seq)
	i += 8
	ByteOrder.PutUint16(buf[i:], uint16(len(tableIDBytes)))
	i += 2
	copy(buf[i:], tableIDBytes)
	i += len(tableIDBytes)
	ByteOrder.PutUint64(buf[i:], e.EntityID)
	i += 8
	ByteOrder.PutUint32(buf[i:], uint32(len(e.Data)))
	i += 4
	copy(buf[i:], e.Data)
	i += len(e.Data)

	sum := crc32.ChecksumIEEE(buf[:i])
	ByteOrder.PutUint32(buf[i:], sum)

	return buf
}

// decode reverses encode, verifying the trailing CRC32.
func decode(buf []byte) (Entry, error) {
	if len(buf) < 1+8+8+2+8+4+4 {
		return Entry{}, fmt.Errorf("%w: entry too short (%d bytes)", dberrors.ErrDataCorruption, len(buf))
	}

	payload := buf[:len(buf)-4]
	wantSum := ByteOrder.Uint32(buf[len(buf)-4:])
	gotSum := crc32.ChecksumIEEE(payload)
	if gotSum != wantSum {
		return Entry{}, fmt.Errorf("%w: entry CRC32 mismatch", dberrors.ErrDataCorruption)
	}

	var e Entry
	i := 0
	e.Kind = EntryKind(payload[i])
	i++
	e.TxnID = ByteOrder.Uint64(payload[i:])
	i += 8
	e.Seq = ByteOrder.Uint64(payload[i:])
	i += 8
	tableIDLen := int(ByteOrder.Uint16(payload[i:]))
	i += 2
	if i+tableIDLen > len(payload) {
		return Entry{}, fmt.Errorf("%w: table id length out of range", dberrors.ErrDataCorruption)
	}
	e.TableID = string(payload[i : i+tableIDLen])
	i += tableIDLen
	e.EntityID = ByteOrder.Uint64(payload[i:])
	i += 8
	dataLen := int(ByteOrder.Uint32(payload[i:]))
	i += 4
	if dataLen < 0 || i+dataLen > len(payload) {
		return Entry{}, fmt.Errorf("%w: data length out of range", dberrors.ErrDataCorruption)
	}
	if dataLen > 0 {
		e.Data = append([]byte(nil), payload[i:i+dataLen]...)
	}

	return e, nil
}
