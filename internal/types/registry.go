package types

import (
	"fmt"
	"sync"

	"github.com/leengari/tickdb/internal/dberrors"
)

// Registry holds named types. Writes are exclusive, reads are concurrent.
type Registry struct {
	mu      sync.RWMutex
	types   map[string]Type
	builtin map[string]bool
}

// NewRegistry returns a registry pre-populated with the built-in types.
func NewRegistry() *Registry {
	r := &Registry{types: make(map[string]Type), builtin: make(map[string]bool)}
	for _, t := range Builtins() {
		r.types[t.Name] = t
		r.builtin[t.Name] = true
	}
	return r
}

// Custom returns every registered type that is not one of the built-ins,
// for persisting to a schema file's custom_types section.
func (r *Registry) Custom() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Type
	for name, t := range r.types {
		if !r.builtin[name] {
			out = append(out, t)
		}
	}
	return out
}

func validateSpec(align, size uint32, pod bool) error {
	if align == 0 || (align&(align-1)) != 0 {
		return fmt.Errorf("%w: align must be a positive power of two, got %d", dberrors.ErrMisaligned, align)
	}
	if size%align != 0 {
		return fmt.Errorf("%w: size %d is not a multiple of align %d", dberrors.ErrMisaligned, size, align)
	}
	return nil
}

// Register adds a new named type. Fails with ErrAlreadyRegistered if the
// name already exists.
func (r *Registry) Register(t Type) error {
	if err := validateSpec(t.Align, t.Size, t.POD); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[t.Name]; exists {
		return fmt.Errorf("%w: %q", dberrors.ErrAlreadyRegistered, t.Name)
	}
	r.types[t.Name] = t
	return nil
}

// Get returns the type spec for name, if registered.
func (r *Registry) Get(name string) (Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	return t, ok
}

// EnsureRegistered idempotently registers name with the given shape. If the
// name already exists, the stored spec must match size/align/pod or this
// returns ErrSchemaMismatch. Used while loading a schema file, where custom
// types may already be registered from a previous load.
func (r *Registry) EnsureRegistered(name string, size, align uint32, pod bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.types[name]; ok {
		if existing.Size != size || existing.Align != align || existing.POD != pod {
			return fmt.Errorf("%w: %q registered as (size=%d,align=%d,pod=%v), schema wants (size=%d,align=%d,pod=%v)",
				dberrors.ErrSchemaMismatch, name, existing.Size, existing.Align, existing.POD, size, align, pod)
		}
		return nil
	}

	if err := validateSpec(align, size, pod); err != nil {
		return err
	}

	r.types[name] = Type{
		Name:  name,
		Size:  size,
		Align: align,
		POD:   pod,
		Ser:   rawCopySer(size),
		Deser: rawCopyDeser(size),
	}
	return nil
}

// rawCopySer/rawCopyDeser back custom POD types registered purely by shape
// (size/align) without a caller-supplied codec: a straight byte copy, the
// natural choice for a type whose only declared property is "this many
// bytes, this aligned."
func rawCopySer(size uint32) Serializer {
	return func(dst []byte, v any) (int, error) {
		b, ok := v.([]byte)
		if !ok || uint32(len(b)) != size {
			return 0, fmt.Errorf("%w: raw type expects exactly %d bytes", dberrors.ErrWrongSize, size)
		}
		if uint32(len(dst)) < size {
			return 0, fmt.Errorf("%w: need %d bytes, have %d", errShortBuffer, size, len(dst))
		}
		copy(dst[:size], b)
		return int(size), nil
	}
}

func rawCopyDeser(size uint32) Deserializer {
	return func(src []byte) (any, int, error) {
		if uint32(len(src)) < size {
			return nil, 0, fmt.Errorf("%w: need %d bytes, have %d", errShortBuffer, size, len(src))
		}
		out := make([]byte, size)
		copy(out, src[:size])
		return out, int(size), nil
	}
}
