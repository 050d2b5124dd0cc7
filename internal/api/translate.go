// Package api is the submission-API dispatcher: internal code stays
// strictly typed, and JSON-shaped values only ever appear at this
// boundary, mapped to and from {field_name -> typed bytes} via each
// field's registered codec.
package api

import (
	"fmt"

	"github.com/leengari/tickdb/internal/dberrors"
	"github.com/leengari/tickdb/internal/layout"
	"github.com/leengari/tickdb/internal/table"
	"github.com/leengari/tickdb/internal/types"
)

// valuesToRecord packs a {field_name -> JSON value} map into one full
// record according to schema, coercing each value to the Go
// representation its field's codec expects.
func valuesToRecord(schema layout.Record, values map[string]any) ([]byte, error) {
	rec := make([]byte, schema.Size)
	for _, f := range schema.Fields {
		raw, ok := values[f.Name]
		if !ok {
			return nil, fmt.Errorf("%w: missing field %q", dberrors.ErrBadRequest, f.Name)
		}
		coerced, err := coerce(f.Type, raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		n, err := f.Type.Ser(rec[f.Offset:f.Offset+f.Type.Size], coerced)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		if uint32(n) != f.Type.Size {
			return nil, fmt.Errorf("%w: field %q serialized %d of %d bytes", dberrors.ErrBadRequest, f.Name, n, f.Type.Size)
		}
	}
	return rec, nil
}

// fieldOverrides packs a partial {field_name -> JSON value} map into
// table.FieldOverride entries, for a Crud Update op.
func fieldOverrides(schema layout.Record, values map[string]any) ([]table.FieldOverride, error) {
	out := make([]table.FieldOverride, 0, len(values))
	for name, raw := range values {
		f, ok := schema.ByName(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", dberrors.ErrFieldNotFound, name)
		}
		coerced, err := coerce(f.Type, raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		buf := make([]byte, f.Type.Size)
		if _, err := f.Type.Ser(buf, coerced); err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		out = append(out, table.FieldOverride{Field: name, Bytes: buf})
	}
	return out, nil
}

// recordToValues unpacks one full record into a {field_name -> JSON
// value} map using schema's field codecs.
func recordToValues(schema layout.Record, rec []byte) (map[string]any, error) {
	out := make(map[string]any, len(schema.Fields))
	for _, f := range schema.Fields {
		v, n, err := f.Type.Deser(rec[f.Offset : f.Offset+f.Type.Size])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		if uint32(n) != f.Type.Size {
			return nil, fmt.Errorf("%w: field %q consumed %d of %d bytes", dberrors.ErrBadRequest, f.Name, n, f.Type.Size)
		}
		out[f.Name] = v
	}
	return out, nil
}

// coerce converts a JSON-decoded value (float64/bool/string, since
// encoding/json has no integer type of its own) into the Go
// representation fieldType's Ser expects. Custom, non-built-in types are
// passed through unchanged: their codec defines its own accepted shape.
func coerce(fieldType types.Type, v any) (any, error) {
	switch fieldType.Name {
	case "i8", "i16", "i32", "i64":
		f, err := asFloat64(v)
		if err != nil {
			return nil, err
		}
		return int64(f), nil
	case "u8", "u16", "u32", "u64":
		f, err := asFloat64(v)
		if err != nil {
			return nil, err
		}
		return uint64(f), nil
	case "f32":
		f, err := asFloat64(v)
		if err != nil {
			return nil, err
		}
		return float32(f), nil
	case "f64":
		return asFloat64(v)
	case "bool":
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: expected bool, got %T", dberrors.ErrBadRequest, v)
		}
		return b, nil
	case "string":
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: expected string, got %T", dberrors.ErrBadRequest, v)
		}
		return s, nil
	default:
		return v, nil
	}
}

func asFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("%w: expected a number, got %T", dberrors.ErrBadRequest, v)
	}
}
