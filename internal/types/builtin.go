package types

import "fmt"

func intCodec(size uint32, toBytes func(dst []byte, v int64), fromBytes func(src []byte) int64) (Serializer, Deserializer) {
	ser := func(dst []byte, v any) (int, error) {
		i, err := asInt64(v)
		if err != nil {
			return 0, err
		}
		if uint32(len(dst)) < size {
			return 0, fmt.Errorf("%w: need %d bytes, have %d", errShortBuffer, size, len(dst))
		}
		toBytes(dst, i)
		return int(size), nil
	}
	deser := func(src []byte) (any, int, error) {
		if uint32(len(src)) < size {
			return nil, 0, fmt.Errorf("%w: need %d bytes, have %d", errShortBuffer, size, len(src))
		}
		return fromBytes(src), int(size), nil
	}
	return ser, deser
}

func uintCodec(size uint32, toBytes func(dst []byte, v uint64), fromBytes func(src []byte) uint64) (Serializer, Deserializer) {
	ser := func(dst []byte, v any) (int, error) {
		u, err := asUint64(v)
		if err != nil {
			return 0, err
		}
		if uint32(len(dst)) < size {
			return 0, fmt.Errorf("%w: need %d bytes, have %d", errShortBuffer, size, len(dst))
		}
		toBytes(dst, u)
		return int(size), nil
	}
	deser := func(src []byte) (any, int, error) {
		if uint32(len(src)) < size {
			return nil, 0, fmt.Errorf("%w: need %d bytes, have %d", errShortBuffer, size, len(src))
		}
		return fromBytes(src), int(size), nil
	}
	return ser, deser
}

// Builtins returns the set of built-in types: signed/unsigned integers of
// widths 8/16/32/64, f32, f64, bool, string.
func Builtins() []Type {
	i8Ser, i8Deser := intCodec(1,
		func(dst []byte, v int64) { dst[0] = byte(v) },
		func(src []byte) int64 { return int64(int8(src[0])) })
	i16Ser, i16Deser := intCodec(2,
		func(dst []byte, v int64) { ByteOrder.PutUint16(dst, uint16(int16(v))) },
		func(src []byte) int64 { return int64(int16(ByteOrder.Uint16(src))) })
	i32Ser, i32Deser := intCodec(4,
		func(dst []byte, v int64) { ByteOrder.PutUint32(dst, uint32(int32(v))) },
		func(src []byte) int64 { return int64(int32(ByteOrder.Uint32(src))) })
	i64Ser, i64Deser := intCodec(8,
		func(dst []byte, v int64) { ByteOrder.PutUint64(dst, uint64(v)) },
		func(src []byte) int64 { return int64(ByteOrder.Uint64(src)) })

	u8Ser, u8Deser := uintCodec(1,
		func(dst []byte, v uint64) { dst[0] = byte(v) },
		func(src []byte) uint64 { return uint64(src[0]) })
	u16Ser, u16Deser := uintCodec(2,
		func(dst []byte, v uint64) { ByteOrder.PutUint16(dst, uint16(v)) },
		func(src []byte) uint64 { return uint64(ByteOrder.Uint16(src)) })
	u32Ser, u32Deser := uintCodec(4,
		func(dst []byte, v uint64) { ByteOrder.PutUint32(dst, uint32(v)) },
		func(src []byte) uint64 { return uint64(ByteOrder.Uint32(src)) })
	u64Ser, u64Deser := uintCodec(8,
		func(dst []byte, v uint64) { ByteOrder.PutUint64(dst, v) },
		func(src []byte) uint64 { return ByteOrder.Uint64(src) })

	return []Type{
		{Name: "i8", Size: 1, Align: 1, POD: true, Ser: i8Ser, Deser: i8Deser},
		{Name: "i16", Size: 2, Align: 2, POD: true, Ser: i16Ser, Deser: i16Deser},
		{Name: "i32", Size: 4, Align: 4, POD: true, Ser: i32Ser, Deser: i32Deser},
		{Name: "i64", Size: 8, Align: 8, POD: true, Ser: i64Ser, Deser: i64Deser},
		{Name: "u8", Size: 1, Align: 1, POD: true, Ser: u8Ser, Deser: u8Deser},
		{Name: "u16", Size: 2, Align: 2, POD: true, Ser: u16Ser, Deser: u16Deser},
		{Name: "u32", Size: 4, Align: 4, POD: true, Ser: u32Ser, Deser: u32Deser},
		{Name: "u64", Size: 8, Align: 8, POD: true, Ser: u64Ser, Deser: u64Deser},
		{Name: "f32", Size: 4, Align: 4, POD: true, Ser: f32Ser, Deser: f32Deser},
		{Name: "f64", Size: 8, Align: 8, POD: true, Ser: f64Ser, Deser: f64Deser},
		{Name: "bool", Size: 1, Align: 1, POD: true, Ser: boolSer, Deser: boolDeser},
		{Name: "string", Size: StringSize, Align: 4, POD: false, Ser: stringSer, Deser: stringDeser},
	}
}
