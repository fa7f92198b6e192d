// Package validation declares the lifecycle hooks honored by the
// mapping engine.
//
// These interfaces are primarily implemented by model structs that
// need defaults or invariants beyond what tags can express.
package validation

// Initializer is a type that supplies its own defaults.
//
// The mapping engine runs `Initialize()` at every depth of the value
// tree, **before** populating the node, so population starts from the
// type's defaults rather than from Go zero values.
//
// Important: implement `Initialize()` on a **pointer** receiver.
// A value receiver initializes a copy and the result is lost
// immediately; the engine rejects such types at schema compile time.
type Initializer interface {
	// Set up the contents of the struct.
	Initialize() error
}

// Validator is a type that checks itself after population.
//
// The mapping engine runs `Validate()` at every depth of the value
// tree, **after** populating the node. A failure becomes a diagnostic
// under the lenient policy and an error under the strict one.
//
// Implement `Validate()` on a **pointer** receiver if it needs to
// repair or complete the value, for instance to derive private fields
// from public ones.
type Validator interface {
	// Confirm that the data is valid.
	//
	// Return an error if it is invalid.
	//
	// If necessary, this method may alter the contents of the
	// struct.
	Validate() error
}
