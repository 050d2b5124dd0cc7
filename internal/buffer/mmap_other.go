//go:build !linux

package buffer

import (
	"fmt"
	"os"
)

// mmapStorage falls back to an ordinary read into memory on non-Linux
// platforms: the memory map is an optimization for reopening a flushed data
// file, not a correctness requirement, so a plain read keeps behavior
// identical off Linux at the cost of one extra copy.
type mmapStorage struct {
	data []byte
}

func mmapFile(path string) (*mmapStorage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return &mmapStorage{data: data}, nil
}

func (m *mmapStorage) bytes() []byte { return m.data }
func (m *mmapStorage) close() error  { return nil }
