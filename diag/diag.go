// Package diag collects the diagnostics emitted while mapping dynamic
// payloads onto typed values.
//
// Mapping is designed to degrade rather than abort: a value that cannot
// be converted, an unknown key, a missing archive all leave the target
// in a usable state. Each such event is recorded as a Diagnostic on a
// Report, and logged. Callers that prefer hard failures run under the
// Strict policy, which turns the collected diagnostics into an error.
package diag

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Policy decides what happens once diagnostics have been collected.
type Policy int

const (
	// Lenient records and logs diagnostics but never turns them into
	// an error. This is the default.
	Lenient Policy = iota

	// Strict additionally surfaces the collected diagnostics as an
	// error at the end of the operation that produced them.
	Strict
)

func (p Policy) String() string {
	switch p {
	case Strict:
		return "strict"
	default:
		return "lenient"
	}
}

// Kind classifies a Diagnostic.
type Kind int

const (
	// UnknownKey reports a payload key that no field accepts.
	UnknownKey Kind = iota

	// UnsupportedField reports a field whose type the mapper cannot
	// handle (channels, functions, maps with non-string keys, ...).
	UnsupportedField

	// CoercionFailure reports a payload value that could not be
	// converted into the field's type.
	CoercionFailure

	// MalformedInput reports a payload that could not be parsed at
	// all (bad JSON, bad YAML, truncated archive).
	MalformedInput

	// MissingArchive reports a load from a file that does not exist.
	MissingArchive

	// ValidationFailure reports a value rejected by its own
	// validation hook after population.
	ValidationFailure

	// ConverterFailure reports a field converter or raw-value hook
	// that returned an error.
	ConverterFailure
)

func (k Kind) String() string {
	switch k {
	case UnknownKey:
		return "unknown key"
	case UnsupportedField:
		return "unsupported field"
	case CoercionFailure:
		return "coercion failure"
	case MalformedInput:
		return "malformed input"
	case MissingArchive:
		return "missing archive"
	case ValidationFailure:
		return "validation failure"
	case ConverterFailure:
		return "converter failure"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Diagnostic is a single recorded event. Path is the dotted location
// within the value being mapped, Key the payload key involved (if any)
// and Type the Go type involved (if any). Err carries the underlying
// cause when one exists.
type Diagnostic struct {
	Kind Kind
	Path string
	Key  string
	Type string
	Err  error
}

// Error implements error, so a Diagnostic can travel inside a
// combined error under the Strict policy.
func (d Diagnostic) Error() string {
	switch d.Kind {
	case UnknownKey:
		return fmt.Sprintf("at %s, no property accepts key %q", d.Path, d.Key)
	case UnsupportedField:
		return fmt.Sprintf("at %s, cannot map values of type %s", d.Path, d.Type)
	case CoercionFailure:
		return fmt.Sprintf("at %s, cannot convert value into %s: %v", d.Path, d.Type, d.Err)
	case MalformedInput:
		return fmt.Sprintf("at %s, malformed input: %v", d.Path, d.Err)
	case MissingArchive:
		return fmt.Sprintf("no archive at %s", d.Path)
	case ValidationFailure:
		return fmt.Sprintf("at %s, validation rejected the value: %v", d.Path, d.Err)
	case ConverterFailure:
		return fmt.Sprintf("at %s, converter failed: %v", d.Path, d.Err)
	}
	return fmt.Sprintf("at %s, %s", d.Path, d.Kind)
}

// Unwrap exposes the underlying cause to errors.Is/errors.As.
func (d Diagnostic) Unwrap() error {
	return d.Err
}

// Report accumulates diagnostics. The zero value is not usable, call
// NewReport. A nil *Report is accepted everywhere and records nothing,
// so callers that do not care about diagnostics pass nil.
type Report struct {
	mu     sync.Mutex
	logger *zap.Logger
	items  []Diagnostic
}

// NewReport returns an empty report that logs each diagnostic through
// logger. A nil logger disables logging.
func NewReport(logger *zap.Logger) *Report {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Report{logger: logger}
}

// Add records d and logs it. Add on a nil report is a no-op, so call
// sites never need to guard.
func (r *Report) Add(d Diagnostic) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.items = append(r.items, d)
	logger := r.logger
	r.mu.Unlock()
	logger.Warn("mapping diagnostic",
		zap.Stringer("kind", d.Kind),
		zap.String("path", d.Path),
		zap.String("key", d.Key),
		zap.String("type", d.Type),
		zap.Error(d.Err),
	)
}

// All returns a copy of the recorded diagnostics, in order.
func (r *Report) All() []Diagnostic {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Diagnostic, len(r.items))
	copy(out, r.items)
	return out
}

// Len returns the number of recorded diagnostics.
func (r *Report) Len() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Has reports whether at least one diagnostic of the given kind was
// recorded.
func (r *Report) Has(kind Kind) bool {
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.items {
		if d.Kind == kind {
			return true
		}
	}
	return false
}

// Err combines every recorded diagnostic into a single error, or nil
// when the report is empty. Used by the Strict policy.
func (r *Report) Err() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	errs := make([]error, len(r.items))
	for i, d := range r.items {
		errs[i] = d
	}
	return multierr.Combine(errs...)
}

// Reset drops all recorded diagnostics, keeping the logger.
func (r *Report) Reset() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = nil
}

// Log replays every recorded diagnostic through logger, for callers
// that collect first and decide where the report goes later.
func (r *Report) Log(logger *zap.Logger) {
	if r == nil || logger == nil {
		return
	}
	for _, d := range r.All() {
		logger.Warn("mapping diagnostic",
			zap.Stringer("kind", d.Kind),
			zap.String("path", d.Path),
			zap.String("key", d.Key),
			zap.String("type", d.Type),
			zap.Error(d.Err),
		)
	}
}
