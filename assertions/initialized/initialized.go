// Package initialized provides a witness type that detects values
// which skipped their constructor.
//
// Go offers plenty of ways to build a struct without going through its
// constructor:
//
//	foo := new(T)
//	foo := T{}
//	foo := T{ /* fields */ } // outside the constructor
//
// Such a value has type T at compile time and at run time, yet none of
// the invariants the constructor establishes. The witness turns that
// mistake into an immediate panic instead of a corrupted result three
// calls later.
//
// Operation manual:
//   - add a field `witness initialized.IsInitialized` to your struct;
//   - assign `initialized.Make()` in the constructor;
//   - call `witness.Assert()` at the top of methods that rely on the
//     constructor having run.
package initialized

// IsInitialized records whether the constructor ran.
type IsInitialized struct {
	isInitialized bool
}

// Make creates a witness in the initialized state. Only constructors
// should call this.
func Make() IsInitialized {
	return IsInitialized{
		isInitialized: true,
	}
}

// Assert panics if the containing struct was built without its
// constructor.
func (witness IsInitialized) Assert() {
	if !witness.isInitialized {
		panic("struct was not initialized")
	}
}

// Done reports whether the constructor ran, for callers that prefer a
// recoverable check over a panic.
func (witness IsInitialized) Done() bool {
	return witness.isInitialized
}
