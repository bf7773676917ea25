package registry

import (
	"fmt"
	"sync"
)

// Named is a constraint for values that can identify themselves by name.
type Named interface {
	Name() string
}

// Registry is a generic store for named values that remembers registration
// order. It is safe for concurrent use.
type Registry[T Named] struct {
	mu    sync.RWMutex
	items map[string]T
	order []string
}

// New creates an empty Registry.
func New[T Named]() *Registry[T] {
	return &Registry[T]{items: make(map[string]T)}
}

// Register adds a value keyed by its Name(). Names must be non-empty and
// unique.
func (r *Registry[T]) Register(item T) error {
	name := item.Name()
	if name == "" {
		return fmt.Errorf("registry: empty name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.items == nil {
		r.items = make(map[string]T)
	}
	if _, exists := r.items[name]; exists {
		return fmt.Errorf("registry: %q already registered", name)
	}
	r.items[name] = item
	r.order = append(r.order, name)
	return nil
}

// Get returns the value for the given name, or the zero value of T and
// false when nothing is registered under that name.
func (r *Registry[T]) Get(name string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.items[name]
	return item, ok
}

// All returns every registered value in registration order.
func (r *Registry[T]) All() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]T, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.items[name])
	}
	return out
}

// Len returns the number of registered values.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
