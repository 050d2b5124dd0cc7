package types

import (
	"errors"
	"fmt"
	"math"
)

var errShortBuffer = errors.New("buffer too short for type")

func asInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("%w: cannot serialize %T as a signed integer", errShortBuffer, v)
	}
}

func asUint64(v any) (uint64, error) {
	switch n := v.(type) {
	case uint64:
		return n, nil
	case uint32:
		return uint64(n), nil
	case uint16:
		return uint64(n), nil
	case uint8:
		return uint64(n), nil
	case uint:
		return uint64(n), nil
	default:
		return 0, fmt.Errorf("%w: cannot serialize %T as an unsigned integer", errShortBuffer, v)
	}
}

func f32Ser(dst []byte, v any) (int, error) {
	f, ok := v.(float32)
	if !ok {
		if f64, ok2 := v.(float64); ok2 {
			f = float32(f64)
		} else {
			return 0, fmt.Errorf("%w: cannot serialize %T as f32", errShortBuffer, v)
		}
	}
	if len(dst) < 4 {
		return 0, fmt.Errorf("%w: need 4 bytes, have %d", errShortBuffer, len(dst))
	}
	ByteOrder.PutUint32(dst, math.Float32bits(f))
	return 4, nil
}

func f32Deser(src []byte) (any, int, error) {
	if len(src) < 4 {
		return nil, 0, fmt.Errorf("%w: need 4 bytes, have %d", errShortBuffer, len(src))
	}
	return math.Float32frombits(ByteOrder.Uint32(src)), 4, nil
}

func f64Ser(dst []byte, v any) (int, error) {
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("%w: cannot serialize %T as f64", errShortBuffer, v)
	}
	if len(dst) < 8 {
		return 0, fmt.Errorf("%w: need 8 bytes, have %d", errShortBuffer, len(dst))
	}
	ByteOrder.PutUint64(dst, math.Float64bits(f))
	return 8, nil
}

func f64Deser(src []byte) (any, int, error) {
	if len(src) < 8 {
		return nil, 0, fmt.Errorf("%w: need 8 bytes, have %d", errShortBuffer, len(src))
	}
	return math.Float64frombits(ByteOrder.Uint64(src)), 8, nil
}

// boolSer writes 1 byte: 0 for false, 1 for any true value.
func boolSer(dst []byte, v any) (int, error) {
	b, ok := v.(bool)
	if !ok {
		return 0, fmt.Errorf("%w: cannot serialize %T as bool", errShortBuffer, v)
	}
	if len(dst) < 1 {
		return 0, fmt.Errorf("%w: need 1 byte, have 0", errShortBuffer)
	}
	if b {
		dst[0] = 1
	} else {
		dst[0] = 0
	}
	return 1, nil
}

// boolDeser reads 1 byte: zero is false, any nonzero byte is true.
func boolDeser(src []byte) (any, int, error) {
	if len(src) < 1 {
		return nil, 0, fmt.Errorf("%w: need 1 byte, have 0", errShortBuffer)
	}
	return src[0] != 0, 1, nil
}

// stringSer writes a 4-byte little-endian length prefix followed by up to
// StringMaxPayload payload bytes, zero-padded. Strings longer than
// StringMaxPayload are silently truncated.
func stringSer(dst []byte, v any) (int, error) {
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("%w: cannot serialize %T as string", errShortBuffer, v)
	}
	if len(dst) < StringSize {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", errShortBuffer, StringSize, len(dst))
	}
	payload := []byte(s)
	n := len(payload)
	if n > StringMaxPayload {
		n = StringMaxPayload
	}
	ByteOrder.PutUint32(dst[0:4], uint32(n))
	copy(dst[4:4+n], payload[:n])
	for i := 4 + n; i < StringSize; i++ {
		dst[i] = 0
	}
	return StringSize, nil
}

func stringDeser(src []byte) (any, int, error) {
	if len(src) < StringSize {
		return nil, 0, fmt.Errorf("%w: need %d bytes, have %d", errShortBuffer, StringSize, len(src))
	}
	n := ByteOrder.Uint32(src[0:4])
	if n > StringMaxPayload {
		n = StringMaxPayload
	}
	return string(src[4 : 4+n]), StringSize, nil
}
