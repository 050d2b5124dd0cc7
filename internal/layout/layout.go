// Package layout computes fixed record layouts from an ordered field list:
// start offset 0, round each field's offset up to its type's alignment,
// advance by its size.
package layout

import (
	"fmt"

	"github.com/leengari/tickdb/internal/dberrors"
	"github.com/leengari/tickdb/internal/types"
)

// FieldSpec is an input to Compute: a field's name and its type, with no
// offset assigned yet.
type FieldSpec struct {
	Name string
	Type types.Type
}

// Field is a FieldSpec with its computed byte offset.
type Field struct {
	Name   string
	Type   types.Type
	Offset uint32
}

// Record is the immutable, ordered field layout of a table.
type Record struct {
	Fields []Field
	Size   uint32
}

// ByName returns the field with the given name, if present.
func (r Record) ByName(name string) (Field, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// alignUp rounds offset up to the next multiple of align (align is a power
// of two, already validated by the type registry).
func alignUp(offset, align uint32) uint32 {
	if align == 0 {
		return offset
	}
	return (offset + align - 1) &^ (align - 1)
}

// Compute lays out fields in order: start offset 0; for each field, round
// the running offset up to the field's type alignment, assign it, then
// advance by the type's size. Record size is the final offset. Rejects
// duplicate field names and offset/size overflow.
func Compute(fields []FieldSpec) (Record, error) {
	seen := make(map[string]struct{}, len(fields))
	out := make([]Field, 0, len(fields))

	var offset uint32
	for _, fs := range fields {
		if _, dup := seen[fs.Name]; dup {
			return Record{}, fmt.Errorf("%w: %q", dberrors.ErrDuplicateField, fs.Name)
		}
		seen[fs.Name] = struct{}{}

		aligned := alignUp(offset, fs.Type.Align)
		if aligned < offset {
			return Record{}, fmt.Errorf("%w: offset overflow laying out field %q", dberrors.ErrOverflow, fs.Name)
		}
		next := aligned + fs.Type.Size
		if next < aligned {
			return Record{}, fmt.Errorf("%w: size overflow laying out field %q", dberrors.ErrOverflow, fs.Name)
		}

		out = append(out, Field{Name: fs.Name, Type: fs.Type, Offset: aligned})
		offset = next
	}

	return Record{Fields: out, Size: offset}, nil
}

// Validate checks an already-assigned field list: each field's offset is
// a multiple of its alignment, stays within bounds, and no two fields'
// byte ranges overlap.
func Validate(r Record) error {
	type span struct{ start, end uint32 }
	spans := make([]span, 0, len(r.Fields))

	for _, f := range r.Fields {
		if f.Type.Align != 0 && f.Offset%f.Type.Align != 0 {
			return fmt.Errorf("%w: field %q offset %d not a multiple of align %d",
				dberrors.ErrMisaligned, f.Name, f.Offset, f.Type.Align)
		}
		end := f.Offset + f.Type.Size
		if end < f.Offset {
			return fmt.Errorf("%w: field %q offset+size overflows", dberrors.ErrOverflow, f.Name)
		}
		if end > r.Size {
			return fmt.Errorf("%w: field %q extends past record size %d", dberrors.ErrOutOfBounds, f.Name, r.Size)
		}
		spans = append(spans, span{f.Offset, end})
	}

	for i := 0; i < len(spans); i++ {
		for j := i + 1; j < len(spans); j++ {
			if spans[i].start < spans[j].end && spans[j].start < spans[i].end {
				return fmt.Errorf("%w: fields %q and %q overlap", dberrors.ErrOutOfBounds, r.Fields[i].Name, r.Fields[j].Name)
			}
		}
	}
	return nil
}

// AddField returns a new Record with an additional field appended at an
// aligned offset: adding a field produces a new layout, it does not
// mutate the existing one.
func AddField(r Record, fs FieldSpec) (Record, error) {
	for _, f := range r.Fields {
		if f.Name == fs.Name {
			return Record{}, fmt.Errorf("%w: %q", dberrors.ErrFieldAlreadyExists, fs.Name)
		}
	}
	fields := make([]FieldSpec, 0, len(r.Fields)+1)
	for _, f := range r.Fields {
		fields = append(fields, FieldSpec{Name: f.Name, Type: f.Type})
	}
	fields = append(fields, fs)
	return Compute(fields)
}

// RemoveField returns a new Record with the named field dropped and offsets
// recomputed for the remaining fields in their original order.
func RemoveField(r Record, name string) (Record, error) {
	fields := make([]FieldSpec, 0, len(r.Fields))
	found := false
	for _, f := range r.Fields {
		if f.Name == name {
			found = true
			continue
		}
		fields = append(fields, FieldSpec{Name: f.Name, Type: f.Type})
	}
	if !found {
		return Record{}, fmt.Errorf("%w: %q", dberrors.ErrFieldNotFound, name)
	}
	return Compute(fields)
}
