package mapping

import (
	"encoding"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/verdigris/modelmap/mapping/tags"
	"github.com/verdigris/modelmap/strategy"
	"github.com/verdigris/modelmap/validation"
)

var (
	initializerType      = reflect.TypeOf((*validation.Initializer)(nil)).Elem()
	validatorType        = reflect.TypeOf((*validation.Validator)(nil)).Elem()
	extraStoreType       = reflect.TypeOf((*ExtraStore)(nil)).Elem()
	reportSinkType       = reflect.TypeOf((*ReportSink)(nil)).Elem()
	intRawValuerType     = reflect.TypeOf((*strategy.IntRawValuer)(nil)).Elem()
	intRawSetterType     = reflect.TypeOf((*strategy.IntRawSetter)(nil)).Elem()
	stringRawValuerType  = reflect.TypeOf((*strategy.StringRawValuer)(nil)).Elem()
	stringRawSetterType  = reflect.TypeOf((*strategy.StringRawSetter)(nil)).Elem()
	anyRawValuerType     = reflect.TypeOf((*strategy.AnyRawValuer)(nil)).Elem()
	associatedValuerType = reflect.TypeOf((*strategy.AssociatedValuer)(nil)).Elem()
	associatedSetterType = reflect.TypeOf((*strategy.AssociatedSetter)(nil)).Elem()
	textMarshalerType    = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
	textUnmarshalerType  = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()

	timeType     = reflect.TypeOf(time.Time{})
	durationType = reflect.TypeOf(time.Duration(0))
	uuidType     = reflect.TypeOf(uuid.UUID{})
	bytesType    = reflect.TypeOf([]byte(nil))
)

// populator writes the raw payload value into slot, an addressable
// value of the compiled type, recording diagnostics instead of
// failing.
type populator func(slot reflect.Value, raw any, path string, st *state)

// encoder renders v into its payload normal form. ok is false when
// the value has no representation and must be omitted.
type encoder func(v reflect.Value, path string, st *state) (any, bool)

// program is the compiled schema of one struct type. err is set when
// the type cannot be mapped at all; the zero program acts as a
// placeholder while its type is being compiled, which is what makes
// recursive types safe.
type program struct {
	schema *structSchema
	err    error
	ready  chan struct{}
}

type structSchema struct {
	typ    reflect.Type
	fields []*fieldSchema
	byName map[string]*fieldSchema
	// keySet holds every payload key this struct accepts, the keys
	// of flattened children included. Used to separate unknown keys
	// from keys a flattened child will consume.
	keySet map[string]bool
	init   bool
	valid  bool
}

type fieldSchema struct {
	name    string
	key     string
	index   int
	typ     reflect.Type
	flatten bool
	// sub is the flattened child's program; nil for regular fields.
	sub *program
	// arrayConv routes the whole slice through the containing
	// struct's ArrayConverter hook.
	arrayConv  bool
	hasDefault bool
	defaultNil bool
	defaultRaw any
	populate   populator
	encode     encoder
}

// programFor returns the compiled program for a struct type, compiling
// it on first use. Waits if another goroutine is mid-compile.
func (m *Mapper) programFor(t reflect.Type) *program {
	if cached, ok := m.programs.Load(t); ok {
		prog := cached.(*program)
		<-prog.ready
		return prog
	}
	m.compileMu.Lock()
	prog := m.programLocked(t)
	m.compileMu.Unlock()
	<-prog.ready
	return prog
}

// programLocked is the reentrant variant used during compilation: a
// mid-compile placeholder is returned as-is, so mutually recursive
// struct types terminate.
func (m *Mapper) programLocked(t reflect.Type) *program {
	if cached, ok := m.programs.Load(t); ok {
		return cached.(*program)
	}
	prog := &program{ready: make(chan struct{})} //nolint:exhaustruct
	m.programs.Store(t, prog)
	prog.schema, prog.err = m.compileStruct(t)
	close(prog.ready)
	return prog
}

// populatorFor returns the populator for an arbitrary type, compiling
// and caching it on first use.
func (m *Mapper) populatorFor(t reflect.Type) populator {
	if cached, ok := m.populators.Load(t); ok {
		return cached.(populator)
	}
	m.compileMu.Lock()
	defer m.compileMu.Unlock()
	return m.populatorLocked(t)
}

func (m *Mapper) populatorLocked(t reflect.Type) populator {
	if cached, ok := m.populators.Load(t); ok {
		return cached.(populator)
	}
	if m.popCompiling[t] {
		// Self-referential non-struct type, e.g. type S []S. The
		// trampoline resolves once compilation has finished.
		return func(slot reflect.Value, raw any, path string, st *state) {
			m.populatorFor(t)(slot, raw, path, st)
		}
	}
	m.popCompiling[t] = true
	pop := m.makeFieldPopulator(t)
	delete(m.popCompiling, t)
	m.populators.Store(t, pop)
	return pop
}

// encoderFor returns the encoder for an arbitrary type, compiling and
// caching it on first use. Also serves dynamic values whose type is
// only known at runtime.
func (m *Mapper) encoderFor(t reflect.Type) encoder {
	if cached, ok := m.encoders.Load(t); ok {
		return cached.(encoder)
	}
	m.compileMu.Lock()
	defer m.compileMu.Unlock()
	return m.encoderLocked(t)
}

func (m *Mapper) encoderLocked(t reflect.Type) encoder {
	if cached, ok := m.encoders.Load(t); ok {
		return cached.(encoder)
	}
	if m.encCompiling[t] {
		return func(v reflect.Value, path string, st *state) (any, bool) {
			return m.encoderFor(t)(v, path, st)
		}
	}
	m.encCompiling[t] = true
	enc := m.makeFieldEncoder(t)
	delete(m.encCompiling, t)
	m.encoders.Store(t, enc)
	return enc
}

func (m *Mapper) strategyKind(t reflect.Type) strategy.Kind {
	return m.opts.Resolver.Resolve(t)
}

func isSpecialType(t reflect.Type) bool {
	return t == timeType || t == durationType || t == uuidType || t == bytesType
}

// isBookkeepingEmbed recognizes the embedded bookkeeping base
// (mapped.Model or an equivalent): it carries the extras side channel
// or the report sink and is never itself a mapped property.
func isBookkeepingEmbed(t reflect.Type) bool {
	ptr := reflect.PointerTo(t)
	return ptr.Implements(extraStoreType) || ptr.Implements(reportSinkType)
}

func (m *Mapper) compileStruct(t reflect.Type) (*structSchema, error) {
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("expected a struct type, got %s", t)
	}
	if t.Implements(initializerType) {
		return nil, fmt.Errorf("type %s implements Initialize() with a value receiver, the defaults it sets would be lost; use a pointer receiver", t)
	}
	ptr := reflect.PointerTo(t)
	sc := &structSchema{
		typ:    t,
		fields: nil,
		byName: make(map[string]*fieldSchema),
		keySet: make(map[string]bool),
		init:   ptr.Implements(initializerType),
		valid:  ptr.Implements(validatorType),
	}
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Anonymous && isBookkeepingEmbed(field.Type) {
			continue
		}
		if !field.IsExported() {
			continue
		}
		parsed, err := tags.Parse(field.Tag)
		if err != nil {
			return nil, fmt.Errorf("failed to parse tags at %s.%s:\n\t * %w", t.Name(), field.Name, err)
		}
		if parsed.IsSkipped(m.opts.TagName) {
			continue
		}

		fs := &fieldSchema{ //nolint:exhaustruct
			name:  field.Name,
			key:   field.Name,
			index: i,
			typ:   field.Type,
		}
		renamed := false
		if key := parsed.Key(m.opts.TagName); key != nil && *key != "" {
			fs.key = *key
			renamed = true
		}

		ft := field.Type
		base := ft
		if base.Kind() == reflect.Pointer {
			base = base.Elem()
		}
		flattenable := base.Kind() == reflect.Struct && !isSpecialType(base) &&
			m.strategyKind(base) == strategy.None
		if ((field.Anonymous && !renamed) || parsed.IsFlattened()) && flattenable {
			fs.flatten = true
			fs.sub = m.programLocked(base)
			if fs.sub.err != nil {
				return nil, fmt.Errorf("at %s.%s, cannot flatten:\n\t * %w", t.Name(), field.Name, fs.sub.err)
			}
			for key := range fs.sub.schema.keySet {
				sc.keySet[key] = true
			}
			sc.fields = append(sc.fields, fs)
			sc.byName[fs.name] = fs
			continue
		}

		if def := parsed.Default(); def != nil {
			raw, nilDefault, err := m.compileDefault(ft, *def)
			if err != nil {
				return nil, fmt.Errorf("at %s.%s, %w", t.Name(), field.Name, err)
			}
			fs.hasDefault = true
			fs.defaultNil = nilDefault
			fs.defaultRaw = raw
		}

		if ft.Kind() == reflect.Slice && ft != bytesType {
			kind := m.strategyKind(ft)
			elem := ft.Elem()
			if kind == strategy.CustomArray ||
				(elem.Kind() == reflect.Interface && elem.NumMethod() > 0) {
				fs.arrayConv = true
			}
		}
		if !fs.arrayConv {
			fs.populate = m.populatorLocked(ft)
		}
		fs.encode = m.encoderLocked(ft)

		sc.fields = append(sc.fields, fs)
		sc.byName[fs.name] = fs
		sc.keySet[fs.key] = true
	}
	return sc, nil
}

// compileDefault turns the text of a `default` tag into the raw value
// fed through the field's populator when the payload has no value.
func (m *Mapper) compileDefault(t reflect.Type, text string) (raw any, nilDefault bool, err error) {
	if m.strategyKind(t) != strategy.None || isSpecialType(t) {
		return text, false, nil
	}
	switch t.Kind() {
	case reflect.Pointer:
		if text != "nil" {
			return nil, false, fmt.Errorf("invalid `default` value, the only supported `default` for pointers is \"nil\", got: %s", text)
		}
		return nil, true, nil
	case reflect.Struct:
		if text != "{}" {
			return nil, false, fmt.Errorf("invalid `default` value, the only supported `default` for structs is \"{}\", got: %s", text)
		}
		return map[string]any{}, false, nil
	case reflect.Map:
		if text != "{}" {
			return nil, false, fmt.Errorf("invalid `default` value, the only supported `default` for maps is \"{}\", got: %s", text)
		}
		return map[string]any{}, false, nil
	case reflect.Slice, reflect.Array:
		if text != "[]" {
			return nil, false, fmt.Errorf("invalid `default` value, the only supported `default` for arrays or slices is \"[]\", got: %s", text)
		}
		return []any{}, false, nil
	default:
		return text, false, nil
	}
}
