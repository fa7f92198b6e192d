// Package value abstracts the dynamic payloads produced by wire
// drivers, so the mapping engine walks JSON, YAML and archive output
// through one interface.
package value

import "sort"

// Dict is a string-keyed payload node.
type Dict interface {
	// Lookup returns the value stored under key.
	Lookup(key string) (any, bool)

	// Keys returns the keys of this node, sorted.
	Keys() []string

	// AsMap returns the node as a plain map. Implementations may
	// return the underlying storage, callers must not mutate it.
	AsMap() map[string]any
}

// MapDict wraps a plain map as a Dict. A nil MapDict behaves as an
// empty node.
type MapDict map[string]any

func (d MapDict) Lookup(key string) (any, bool) {
	v, ok := d[key]
	return v, ok
}

func (d MapDict) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (d MapDict) AsMap() map[string]any {
	return d
}

// Wrap returns a Dict over m. A nil map wraps into an empty node.
func Wrap(m map[string]any) Dict {
	return MapDict(m)
}

// AsDict views v as a Dict if its shape allows it.
func AsDict(v any) (Dict, bool) {
	switch x := v.(type) {
	case Dict:
		return x, true
	case map[string]any:
		return MapDict(x), true
	}
	return nil, false
}

// AsSlice views v as a generic slice if its shape allows it.
func AsSlice(v any) ([]any, bool) {
	x, ok := v.([]any)
	return x, ok
}

// Driver parses a wire format into a Dict and renders a dictionary
// back into that format.
type Driver interface {
	// Name identifies the driver in diagnostics ("json", "yaml",
	// "ion").
	Name() string

	// Unmarshal parses a payload. The top level must be a
	// dictionary.
	Unmarshal(data []byte) (Dict, error)

	// Marshal renders a dictionary of already normalized values.
	Marshal(dict map[string]any) ([]byte, error)
}
