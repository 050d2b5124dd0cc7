//go:build linux

package buffer

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// mmapStorage is a read-only memory map of a persisted data file, used when
// a table is reopened against a flushed data file before any write touches
// it. The first write clones into a memStorage, since the buffer is
// replaced wholesale on every mutating operation.
type mmapStorage struct {
	data []byte
}

// mmapFile opens path read-only and maps its full contents. Returns an
// empty mmapStorage (not an error) for a zero-length file, since unix.Mmap
// rejects a zero-length mapping.
func mmapFile(path string) (*mmapStorage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s for mmap: %w", path, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s for mmap: %w", path, err)
	}
	if fi.Size() == 0 {
		return &mmapStorage{data: nil}, nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(fi.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	return &mmapStorage{data: data}, nil
}

func (m *mmapStorage) bytes() []byte { return m.data }

func (m *mmapStorage) close() error {
	if m.data == nil {
		return nil
	}
	return unix.Munmap(m.data)
}
