// Package types implements the type registry: named, fixed-size,
// alignment-correct value types with opaque serialize/deserialize codecs.
package types

import "encoding/binary"

// Serializer appends v's wire form to dst and returns the number of bytes
// written. Deserializer reads one value from src and returns it plus the
// number of bytes consumed.
type Serializer func(dst []byte, v any) (int, error)
type Deserializer func(src []byte) (any, int, error)

// Type describes a named, fixed-size value type.
type Type struct {
	Name   string
	Size   uint32
	Align  uint32
	POD    bool
	Ser    Serializer
	Deser  Deserializer
}

// ByteOrder is the wire byte order for every built-in numeric codec.
var ByteOrder = binary.LittleEndian

// StringMaxPayload is the maximum payload length of a built-in string type
// before silent truncation, per the length-prefix-plus-payload layout
// (4-byte length prefix + 256 payload bytes = 260 bytes fixed size).
const StringMaxPayload = 256

// StringSize is the fixed wire size of the built-in string type.
const StringSize = 4 + StringMaxPayload
