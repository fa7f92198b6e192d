// Package mapping converts between typed Go values and the
// string-keyed dictionaries produced by wire drivers.
//
// The engine compiles, once per reflect.Type, a schema of closures
// that populate a value from a dictionary (Populate) or render it
// into one (Encode). Population degrades instead of aborting: every
// value that cannot be converted, every unknown key, every rejected
// validation is recorded on a diag.Report and the walk continues.
// Under diag.Strict the collected diagnostics are returned as an
// error; misuse of the engine itself (a target that is not a struct
// pointer, an impossible tag) is a SetupError in both policies.
//
// Types customize their mapping through struct tags (see the tags
// package), through the strategy package's marker interfaces, and
// through the per-instance override interfaces below.
package mapping

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/verdigris/modelmap/diag"
	"github.com/verdigris/modelmap/mapping/value"
	"github.com/verdigris/modelmap/strategy"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Options configures a Mapper.
type Options struct {
	// TagName is the struct tag consulted for renames and skips,
	// "json" by default.
	TagName string

	// RootPath prefixes every path in diagnostics. When empty, the
	// target type's name is used.
	RootPath string

	// Policy decides whether the diagnostics collected by a call
	// turn into an error.
	Policy diag.Policy

	// Logger receives the diagnostics of calls that did not provide
	// their own report. zap.NewNop() by default.
	Logger *zap.Logger

	// Resolver decides payload representations per type.
	// strategy.DefaultResolver() by default.
	Resolver *strategy.Resolver
}

// DefaultOptions returns the lenient configuration: tag `json`, nop
// logger, default strategy resolver.
func DefaultOptions() Options {
	return Options{ //nolint:exhaustruct
		TagName: "json",
	}
}

// StrictOptions returns DefaultOptions with the strict policy, for
// callers that prefer errors over degraded values.
func StrictOptions() Options {
	options := DefaultOptions()
	options.Policy = diag.Strict
	return options
}

// SetupError reports misuse of the engine itself, as opposed to
// payload problems: a target that is not a struct pointer, a tag that
// cannot be parsed, a hook with the wrong receiver.
type SetupError struct {
	Message string
	Wrapped error
}

func (e SetupError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s:\n\t * %s", e.Message, e.Wrapped.Error())
	}
	return e.Message
}

func (e SetupError) Unwrap() error {
	return e.Wrapped
}

// KeyPair links one payload key to one property. See KeyMapper.
type KeyPair struct {
	// Key is the payload key. "-" hides the property from payloads
	// entirely.
	Key string

	// Property is the Go field name. "" drops the payload key
	// without a diagnostic.
	Property string
}

// KeyMapper renames payload keys per instance, on top of struct tags.
// Later pairs override earlier ones.
type KeyMapper interface {
	PropertyMapping() []KeyPair
}

// FieldConverter replaces the generic coercion of one property.
// Closures are bound to the instance that returned them, so Decode
// writes through the receiver and Encode reads from it. A nil Decode
// or Encode leaves that direction to the engine.
type FieldConverter struct {
	Property string
	Decode   func(raw any) error
	Encode   func() (any, error)
}

// FieldConverterProvider supplies per-property converters.
type FieldConverterProvider interface {
	FieldConverters() []FieldConverter
}

// TypeSelector picks a more specific prototype for the dictionary
// about to be materialized, usually from a discriminator key.
type TypeSelector interface {
	// SelectType returns a pointer to the value that should receive
	// the dictionary, or nil to keep the receiver.
	SelectType(dict map[string]any) any
}

// ExtraStore receives payload keys that no property accepts, keeping
// them out of the mapped property set. Implemented by mapped.Model.
type ExtraStore interface {
	SetExtra(key string, value any)
}

// ReportSink receives the report of the population that produced the
// value. Implemented by mapped.Model.
type ReportSink interface {
	AttachReport(r *diag.Report)
}

// Mapper converts between typed values and dictionaries. A Mapper is
// safe for concurrent use and caches one compiled schema per type, so
// it should be built once and reused.
type Mapper struct {
	opts Options

	// compileMu serializes schema compilation; the sync.Maps below
	// are the lock-free fast path once a type has been compiled.
	compileMu    sync.Mutex
	programs     sync.Map // reflect.Type -> *program
	populators   sync.Map // reflect.Type -> populator
	encoders     sync.Map // reflect.Type -> encoder
	popCompiling map[reflect.Type]bool
	encCompiling map[reflect.Type]bool
}

// New builds a Mapper. The zero Options value is usable and equals
// DefaultOptions.
func New(opts Options) *Mapper {
	if opts.TagName == "" {
		opts.TagName = "json"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Resolver == nil {
		opts.Resolver = strategy.DefaultResolver()
	}
	return &Mapper{ //nolint:exhaustruct
		opts:         opts,
		popCompiling: make(map[reflect.Type]bool),
		encCompiling: make(map[reflect.Type]bool),
	}
}

// Options returns the configuration the Mapper was built with.
func (m *Mapper) Options() Options {
	return m.opts
}

// state carries the per-call context through the compiled closures.
type state struct {
	report *diag.Report
}

// Populate fills target, a non-nil pointer to a struct, from dict.
//
// Fields absent from the dictionary keep their current value (the
// zero value, whatever Initialize() set, or the `default` tag).
// Unknown keys take the unknown-key route: an UndefinedKeySetter
// implementation, then the ExtraStore side channel, then a plain
// diagnostic. The walk builds into a fresh value and swaps it onto
// target at the end, so a strict-policy failure leaves target
// untouched.
func (m *Mapper) Populate(target any, dict map[string]any, report *diag.Report) error {
	if target == nil {
		return SetupError{Message: "Populate needs a non-nil pointer to a struct, got nil"} //nolint:exhaustruct
	}
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return SetupError{Message: fmt.Sprintf("Populate needs a non-nil pointer to a struct, got %T", target)} //nolint:exhaustruct
	}
	typ := rv.Elem().Type()
	prog := m.programFor(typ)
	if prog.err != nil {
		return SetupError{Message: fmt.Sprintf("cannot map values of type %s", typ), Wrapped: prog.err}
	}
	if report == nil {
		report = diag.NewReport(m.opts.Logger)
	}
	mark := report.Len()

	fresh := reflect.New(typ).Elem()
	fresh.Set(rv.Elem())

	st := &state{report: report}
	m.runStructPopulate(prog.schema, fresh, value.Wrap(dict), m.rootPath(typ), st, false)

	if m.opts.Policy == diag.Strict {
		if err := errorsSince(report, mark); err != nil {
			return err
		}
	}
	rv.Elem().Set(fresh)
	if sink, ok := target.(ReportSink); ok {
		sink.AttachReport(report)
	}
	return nil
}

// Encode renders source, a struct or non-nil pointer to one, into a
// fresh dictionary of its mapped properties. Values are normalized:
// integers widen to int64, timestamps become RFC 3339 text, byte
// slices become base64, nested structs become nested dictionaries.
func (m *Mapper) Encode(source any, report *diag.Report) (map[string]any, error) {
	if source == nil {
		return nil, SetupError{Message: "Encode needs a struct or a non-nil pointer to one, got nil"} //nolint:exhaustruct
	}
	rv := reflect.ValueOf(source)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, SetupError{Message: fmt.Sprintf("Encode needs a struct or a non-nil pointer to one, got nil %T", source)} //nolint:exhaustruct
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, SetupError{Message: fmt.Sprintf("Encode needs a struct or a non-nil pointer to one, got %T", source)} //nolint:exhaustruct
	}
	typ := rv.Type()
	prog := m.programFor(typ)
	if prog.err != nil {
		return nil, SetupError{Message: fmt.Sprintf("cannot map values of type %s", typ), Wrapped: prog.err}
	}
	if report == nil {
		report = diag.NewReport(m.opts.Logger)
	}
	mark := report.Len()

	st := &state{report: report}
	out := m.runStructEncode(prog.schema, rv, m.rootPath(typ), st)

	if m.opts.Policy == diag.Strict {
		if err := errorsSince(report, mark); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Materialize populates a prototype chosen for the dictionary: when
// proto implements TypeSelector, the prototype it returns for dict is
// populated instead of proto itself. The populated pointer is
// returned.
func (m *Mapper) Materialize(proto any, dict map[string]any, report *diag.Report) (any, error) {
	if proto == nil {
		return nil, SetupError{Message: "Materialize needs a non-nil prototype"} //nolint:exhaustruct
	}
	if ts, ok := proto.(TypeSelector); ok {
		if specific := ts.SelectType(dict); specific != nil {
			proto = specific
		}
	}
	if err := m.Populate(proto, dict, report); err != nil {
		return nil, err
	}
	return proto, nil
}

func (m *Mapper) rootPath(typ reflect.Type) string {
	if m.opts.RootPath != "" {
		return m.opts.RootPath
	}
	if name := typ.Name(); name != "" {
		return name
	}
	return "value"
}

// errorsSince combines the diagnostics recorded after mark, for the
// strict policy.
func errorsSince(report *diag.Report, mark int) error {
	all := report.All()
	if len(all) <= mark {
		return nil
	}
	errs := make([]error, 0, len(all)-mark)
	for _, d := range all[mark:] {
		errs = append(errs, d)
	}
	return multierr.Combine(errs...)
}
