// Package state implements a typed, lazily resolved value registry with
// epoch invalidation. Consumers register a resolver per kind up front, then
// ask for values whenever they need them; each kind is computed at most once
// per epoch and served from cache until the registry is invalidated.
//
// Invalidation never evicts. It bumps the registry's epoch, instantly
// marking every cached entry stale; entries are overwritten in place the
// next time their kind is resolved. Resolvers may resolve other kinds
// through the registry they are handed, so dependencies memoize naturally
// within an epoch.
//
// A Registry is not synchronized. It belongs to a single consumer loop, the
// way a per-frame cache belongs to the frame.
package state

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	// ErrUnregisteredState means Resolve was called for a kind nobody
	// registered, or with a key type its resolver does not take.
	ErrUnregisteredState = errors.New("state kind not registered")

	// ErrResolveCycle means a resolver asked, directly or through its
	// dependencies, for the value it is itself computing.
	ErrResolveCycle = errors.New("state resolve cycle")
)

// Registry holds resolvers and their memoized results.
type Registry struct {
	epoch     uint64
	resolvers map[reflect.Type]any
	entries   map[entryKey]*entry
}

type entryKey struct {
	kind reflect.Type
	key  any
}

type entry struct {
	value     any
	epoch     uint64 // epoch the value was computed in; stale when != current
	resolving bool
}

func New() *Registry {
	return &Registry{
		epoch:     1,
		resolvers: make(map[reflect.Type]any),
		entries:   make(map[entryKey]*entry),
	}
}

// Invalidate marks every cached entry stale. Nothing is recomputed until a
// resolve asks for it, and nothing is freed; the cost does not depend on
// how many entries exist.
func (r *Registry) Invalidate() {
	r.epoch++
}

// Epoch returns the current epoch, mostly for diagnostics.
func (r *Registry) Epoch() uint64 {
	return r.epoch
}

// unitKey is the key of unkeyed kinds.
type unitKey struct{}

// Register installs the resolver for kind T. Registering a kind twice is a
// wiring bug and panics.
func Register[T any](r *Registry, resolve func(r *Registry) (*T, error)) {
	RegisterKeyed(r, func(r *Registry, _ unitKey) (*T, error) {
		return resolve(r)
	})
}

// RegisterKeyed installs the resolver for kind T under keys of type K, for
// kinds with one instance per entity rather than one global instance.
func RegisterKeyed[T any, K comparable](r *Registry, resolve func(r *Registry, key K) (*T, error)) {
	kind := reflect.TypeOf((*T)(nil)).Elem()
	if _, dup := r.resolvers[kind]; dup {
		panic(fmt.Sprintf("state: duplicate resolver for %s", kind))
	}
	r.resolvers[kind] = resolve
}

// Resolve returns the current value of kind T, computing it if this epoch
// has not seen it yet. Failures are returned to the caller and never
// cached; the next Resolve retries.
func Resolve[T any](r *Registry) (*T, error) {
	return ResolveKeyed[T](r, unitKey{})
}

// ResolveKeyed is Resolve for keyed kinds. Entries under different keys are
// independent: each memoizes and invalidates on its own.
func ResolveKeyed[T any, K comparable](r *Registry, key K) (*T, error) {
	kind := reflect.TypeOf((*T)(nil)).Elem()

	ek := entryKey{kind: kind, key: key}
	ent := r.entries[ek]
	if ent != nil && ent.epoch == r.epoch {
		return ent.value.(*T), nil
	}

	fn, ok := r.resolvers[kind].(func(*Registry, K) (*T, error))
	if !ok {
		if r.resolvers[kind] == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnregisteredState, kind)
		}
		return nil, fmt.Errorf("%w: %s resolver does not take %s keys",
			ErrUnregisteredState, kind, reflect.TypeOf((*K)(nil)).Elem())
	}

	if ent == nil {
		ent = &entry{}
		r.entries[ek] = ent
	}
	if ent.resolving {
		return nil, fmt.Errorf("%w: %s", ErrResolveCycle, kind)
	}

	ent.resolving = true
	defer func() { ent.resolving = false }()

	value, err := fn(r, key)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", kind, err)
	}

	ent.value = value
	ent.epoch = r.epoch
	return value, nil
}
