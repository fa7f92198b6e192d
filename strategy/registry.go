package strategy

import (
	"fmt"
	"reflect"
	"sync"
)

// Registry pins explicit (type, kind) assignments, overriding marker
// detection. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[reflect.Type]Kind
}

// Entry is a single (type, kind) association in a Registry snapshot.
type Entry struct {
	Type reflect.Type
	Kind Kind
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[reflect.Type]Kind)}
}

// Register associates t with kind. Re-registering the same pair is
// idempotent; a conflicting kind is an error.
func (r *Registry) Register(t reflect.Type, kind Kind) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.entries[t]; ok && existing != kind {
		return fmt.Errorf("type %s is already registered as %s", t, existing)
	}
	r.entries[t] = kind
	return nil
}

// Lookup returns the kind pinned for t, if any.
func (r *Registry) Lookup(t reflect.Type) (Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kind, ok := r.entries[t]
	return kind, ok
}

// Entries returns a snapshot for diagnostics (order is unspecified).
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.entries))
	for t, kind := range r.entries {
		out = append(out, Entry{Type: t, Kind: kind})
	}
	return out
}

// Count returns the number of registered entries.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Reset clears all registered entries.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[reflect.Type]Kind)
}

// DefaultRegistry is the process-wide registry consulted by
// DefaultResolver.
var DefaultRegistry = NewRegistry()

// Register associates t with kind in DefaultRegistry.
func Register(t reflect.Type, kind Kind) error {
	return DefaultRegistry.Register(t, kind)
}

// RegisterFor associates the type of the sample value with kind in
// DefaultRegistry.
func RegisterFor(sample any, kind Kind) error {
	return DefaultRegistry.Register(reflect.TypeOf(sample), kind)
}
