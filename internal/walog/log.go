package walog

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/leengari/tickdb/internal/dberrors"
)

// segmentName formats the zero-padded decimal filename for segment id.
func segmentName(id uint64) string {
	return fmt.Sprintf("wal_%010d.wal", id)
}

// Log is an append-only, rotating write-ahead log. Appends are
// serialized; the current segment is rotated when appending the next
// entry would exceed maxFileSize.
type Log struct {
	mu sync.Mutex

	dir         string
	maxFileSize int64
	syncOnWrite bool

	segmentID uint64
	file      *os.File
	writer    *bufio.Writer
	offset    int64

	nextSeq map[uint64]uint64 // per-transaction sequence counters
}

// Open opens or creates a WAL in dir, reopening the highest-numbered
// existing segment (segment 0 if none exist), ready to append to it.
func Open(dir string, maxFileSize int64, syncOnWrite bool) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create wal dir: %v", dberrors.ErrIOPermanent, err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: list wal dir: %v", dberrors.ErrIOPermanent, err)
	}

	var maxID uint64
	found := false
	for _, e := range entries {
		var id uint64
		if _, scanErr := fmt.Sscanf(e.Name(), "wal_%010d.wal", &id); scanErr == nil {
			if !found || id > maxID {
				maxID = id
				found = true
			}
		}
	}

	l := &Log{
		dir:         dir,
		maxFileSize: maxFileSize,
		syncOnWrite: syncOnWrite,
		segmentID:   maxID,
		nextSeq:     make(map[uint64]uint64),
	}
	if err := l.openSegment(found); err != nil {
		return nil, err
	}
	return l, nil
}

// openSegment opens the current segment id, appending to it if existing is
// true, otherwise creating it fresh with a file header.
func (l *Log) openSegment(existing bool) error {
	path := filepath.Join(l.dir, segmentName(l.segmentID))

	flags := os.O_RDWR | os.O_CREATE
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return fmt.Errorf("%w: open segment %s: %v", dberrors.ErrIOPermanent, path, err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("%w: stat segment %s: %v", dberrors.ErrIOPermanent, path, err)
	}

	if fi.Size() == 0 {
		if err := writeFileHeader(f); err != nil {
			f.Close()
			return err
		}
	}
	if _, err := f.Seek(0, os.SEEK_END); err != nil {
		f.Close()
		return fmt.Errorf("%w: seek segment %s: %v", dberrors.ErrIOPermanent, path, err)
	}

	offset, err := f.Seek(0, os.SEEK_CUR)
	if err != nil {
		f.Close()
		return fmt.Errorf("%w: tell segment %s: %v", dberrors.ErrIOPermanent, path, err)
	}

	l.file = f
	l.writer = bufio.NewWriterSize(f, 32*1024)
	l.offset = offset
	return nil
}

func writeFileHeader(f *os.File) error {
	buf := make([]byte, FileHeaderSize)
	copy(buf[0:8], Magic[:])
	ByteOrder.PutUint32(buf[8:12], Version)
	ByteOrder.PutUint32(buf[12:16], 0) // flags
	if _, err := f.Write(buf); err != nil {
		return fmt.Errorf("%w: write segment header: %v", dberrors.ErrIOPermanent, err)
	}
	return nil
}

// rotate closes the current segment and opens the next one with a fresh
// header, incrementing the segment id.
func (l *Log) rotate() error {
	if err := l.flushLocked(); err != nil {
		return err
	}
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("%w: close segment: %v", dberrors.ErrIOPermanent, err)
	}
	l.segmentID++
	return l.openSegment(false)
}

// Append writes entry to the log, rotating the current segment first if
// necessary, assigning it the next per-transaction sequence number.
func (l *Log) Append(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e.Kind != EntryCommit && e.Kind != EntryRollback {
		e.Seq = l.nextSeq[e.TxnID]
		l.nextSeq[e.TxnID]++
	}

	payload := encode(e)
	frame := make([]byte, 4+len(payload))
	ByteOrder.PutUint32(frame, uint32(len(payload)))
	copy(frame[4:], payload)

	if l.maxFileSize > 0 && l.offset+int64(len(frame)) > l.maxFileSize {
		if err := l.rotate(); err != nil {
			return err
		}
	}

	n, err := l.writer.Write(frame)
	if err != nil {
		return fmt.Errorf("%w: append wal entry: %v", dberrors.ErrIOTransient, err)
	}
	l.offset += int64(n)

	if err := l.writer.Flush(); err != nil {
		return fmt.Errorf("%w: flush wal entry: %v", dberrors.ErrIOTransient, err)
	}
	if l.syncOnWrite {
		if err := l.file.Sync(); err != nil {
			return fmt.Errorf("%w: sync wal entry: %v", dberrors.ErrIOPermanent, err)
		}
	}

	if e.Kind == EntryCommit || e.Kind == EntryRollback {
		delete(l.nextSeq, e.TxnID)
	}
	return nil
}

func (l *Log) flushLocked() error {
	if l.writer == nil {
		return nil
	}
	if err := l.writer.Flush(); err != nil {
		return fmt.Errorf("%w: flush segment: %v", dberrors.ErrIOTransient, err)
	}
	return nil
}

// Sync flushes and fsyncs the current segment, for explicit durability
// checkpoints outside of per-write syncOnWrite.
func (l *Log) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.flushLocked(); err != nil {
		return err
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("%w: sync segment: %v", dberrors.ErrIOPermanent, err)
	}
	return nil
}

// Close flushes, syncs, and closes the current segment.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.flushLocked(); err != nil {
		return err
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("%w: sync segment on close: %v", dberrors.ErrIOPermanent, err)
	}
	return l.file.Close()
}

// Dir returns the directory this log writes segments into.
func (l *Log) Dir() string { return l.dir }
