package strategy

import "reflect"

// Resolver chains strategies in order; the first one to handle a type
// wins.
type Resolver struct {
	chain []Strategy
}

// NewResolver builds a resolver trying strategies in order.
func NewResolver(strategies ...Strategy) *Resolver {
	return &Resolver{chain: strategies}
}

// DefaultResolver consults DefaultRegistry, then marker interfaces,
// then the standard text protocols.
func DefaultResolver() *Resolver {
	return NewResolver(
		RegistryStrategy{Registry: DefaultRegistry},
		MarkerStrategy{},
		StdTextStrategy{},
	)
}

// Resolve returns the kind for t, or None when no strategy handles it.
// A nil resolver resolves everything to None.
func (r *Resolver) Resolve(t reflect.Type) Kind {
	if r == nil {
		return None
	}
	for _, s := range r.chain {
		if kind, handled := s.TryResolve(t); handled {
			return kind
		}
	}
	return None
}
