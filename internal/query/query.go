// Package query implements the filtered scan operators over a table's
// record buffer: a linear scan baseline, and a parallel scan that
// partitions the buffer on cache-line-aligned chunk boundaries using
// errgroup.WithContext(ctx) for fan-out/join.
package query

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/leengari/tickdb/internal/dberrors"
	"github.com/leengari/tickdb/internal/layout"
)

// Filter pins one field to an exact expected byte sequence.
type Filter struct {
	Field    string
	Expected []byte
}

// resolved is a Filter with its field's offset/size already looked up,
// so the scan loop never re-walks the field list per record.
type resolved struct {
	offset   uint32
	size     uint32
	expected []byte
}

func resolve(schema layout.Record, filters []Filter) ([]resolved, error) {
	out := make([]resolved, 0, len(filters))
	for _, f := range filters {
		field, ok := schema.ByName(f.Field)
		if !ok {
			return nil, fmt.Errorf("%w: %q", dberrors.ErrFieldNotFound, f.Field)
		}
		if uint32(len(f.Expected)) != field.Type.Size {
			return nil, fmt.Errorf("%w: field %q expected %d bytes, got %d", dberrors.ErrWrongFieldSize, f.Field, field.Type.Size, len(f.Expected))
		}
		out = append(out, resolved{offset: field.Offset, size: field.Type.Size, expected: f.Expected})
	}
	return out, nil
}

func matches(rec []byte, filters []resolved) bool {
	for _, f := range filters {
		if !bytesEqual(rec[f.offset:f.offset+f.size], f.expected) {
			return false
		}
	}
	return true
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Scan performs a linear, single-threaded scan of data (a buffer snapshot
// whose length is a multiple of schema.Size), returning ascending indices
// of records matching every filter, with offset/limit applied after
// filtering.
func Scan(data []byte, schema layout.Record, filters []Filter, offset, limit int) ([]uint64, error) {
	resolved, err := resolve(schema, filters)
	if err != nil {
		return nil, err
	}
	recSize := int(schema.Size)
	count := len(data) / recSize

	var matched []uint64
	for i := 0; i < count; i++ {
		rec := data[i*recSize : (i+1)*recSize]
		if matches(rec, resolved) {
			matched = append(matched, uint64(i))
		}
	}
	return applyWindow(matched, offset, limit), nil
}

// lcm returns the least common multiple of a and b.
func lcm(a, b uint32) uint32 {
	if a == 0 || b == 0 {
		return 0
	}
	return a / gcd(a, b) * b
}

func gcd(a, b uint32) uint32 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// cacheLineSize is the chunk-boundary alignment target: false sharing
// between worker goroutines is avoided by never splitting a cache line
// across two chunks.
const cacheLineSize = 64

// ParallelScan partitions data into chunks whose boundaries are multiples
// of lcm(schema.Size, 64 bytes), scanning each chunk concurrently via an
// errgroup, then concatenates per-chunk results in index order (stable).
// Records before the first aligned boundary and after the last full chunk
// are scanned on the calling goroutine.
func ParallelScan(ctx context.Context, data []byte, schema layout.Record, filters []Filter, offset, limit int) ([]uint64, error) {
	resolved, err := resolve(schema, filters)
	if err != nil {
		return nil, err
	}
	recSize := int(schema.Size)
	if recSize == 0 {
		return nil, nil
	}
	count := len(data) / recSize

	chunkBytes := int(lcm(schema.Size, cacheLineSize))
	if chunkBytes == 0 || chunkBytes > len(data) {
		// Too small to partition usefully; fall back to a single scan.
		matched := make([]uint64, 0)
		for i := 0; i < count; i++ {
			rec := data[i*recSize : (i+1)*recSize]
			if matches(rec, resolved) {
				matched = append(matched, uint64(i))
			}
		}
		return applyWindow(matched, offset, limit), nil
	}

	recsPerChunk := chunkBytes / recSize
	if recsPerChunk == 0 {
		recsPerChunk = 1
	}

	numChunks := count / recsPerChunk
	tailStart := numChunks * recsPerChunk

	results := make([][]uint64, numChunks)
	group, _ := errgroup.WithContext(ctx)
	for c := 0; c < numChunks; c++ {
		c := c
		group.Go(func() error {
			start := c * recsPerChunk
			end := start + recsPerChunk
			var local []uint64
			for i := start; i < end; i++ {
				rec := data[i*recSize : (i+1)*recSize]
				if matches(rec, resolved) {
					local = append(local, uint64(i))
				}
			}
			results[c] = local
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	var matched []uint64
	for _, r := range results {
		matched = append(matched, r...)
	}
	for i := tailStart; i < count; i++ {
		rec := data[i*recSize : (i+1)*recSize]
		if matches(rec, resolved) {
			matched = append(matched, uint64(i))
		}
	}

	return applyWindow(matched, offset, limit), nil
}

func applyWindow(matched []uint64, offset, limit int) []uint64 {
	if offset >= len(matched) {
		return nil
	}
	matched = matched[offset:]
	if limit >= 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched
}
