// Package registry provides the explicit name-to-implementation lookup the
// engine is configured with. A registry is constructed once at process start,
// populated, and treated as read-only while flows execute; it is passed into
// flow and operation construction instead of living as hidden global state.
package registry

import (
	"fmt"
	"sort"

	"github.com/alphadose/haxmap"
)

// Registry maps names to implementations of T. It is safe for concurrent
// reads and writes, though normal operation only reads after startup.
type Registry[T any] struct {
	values *haxmap.Map[string, T]
}

// New creates an empty registry.
func New[T any]() *Registry[T] {
	return &Registry[T]{values: haxmap.New[string, T]()}
}

// Register stores value under name, overwriting any earlier registration.
func (r *Registry[T]) Register(name string, value T) {
	r.values.Set(name, value)
}

// Get returns the registration under name.
func (r *Registry[T]) Get(name string) (T, bool) {
	return r.values.Get(name)
}

// Resolve returns the registration under name or an error naming the missing
// entry, for call sites that treat absence as a configuration mistake.
func (r *Registry[T]) Resolve(name string) (T, error) {
	v, ok := r.values.Get(name)
	if !ok {
		var zero T
		return zero, fmt.Errorf("no registration named %q (%T)", name, zero)
	}
	return v, nil
}

// GetOrRegister returns the registration under name, computing and storing
// one when absent. It reports whether the value was already present.
func (r *Registry[T]) GetOrRegister(name string, value func() T) (T, bool) {
	return r.values.GetOrCompute(name, value)
}

// Deregister removes name.
func (r *Registry[T]) Deregister(name string) {
	r.values.Del(name)
}

// Names returns all registered names in sorted order.
func (r *Registry[T]) Names() []string {
	names := make([]string, 0, r.values.Len())
	r.values.ForEach(func(name string, _ T) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}

// Len returns the number of registrations.
func (r *Registry[T]) Len() int {
	return int(r.values.Len())
}
