package mapping

import (
	"encoding"
	"errors"
	"fmt"
	"math"
	"reflect"

	"github.com/verdigris/modelmap/coerce"
	"github.com/verdigris/modelmap/diag"
	"github.com/verdigris/modelmap/strategy"
)

// materialized returns an addressable pointer to v, copying when v
// does not live in addressable storage. Hook interfaces with pointer
// receivers stay reachable either way.
func materialized(v reflect.Value) reflect.Value {
	if v.CanAddr() {
		return v.Addr()
	}
	ptr := reflect.New(v.Type())
	ptr.Elem().Set(v)
	return ptr
}

func (m *Mapper) runStructEncode(sc *structSchema, v reflect.Value, path string, st *state) map[string]any {
	return m.runStructEncodeInner(sc, v, path, st, false)
}

func (m *Mapper) runStructEncodeInner(sc *structSchema, v reflect.Value, path string, st *state, flattened bool) map[string]any {
	receiver := materialized(v)
	v = receiver.Elem()

	var convByProp map[string]*FieldConverter
	if provider, ok := receiver.Interface().(FieldConverterProvider); ok {
		list := provider.FieldConverters()
		convByProp = make(map[string]*FieldConverter, len(list))
		for i := range list {
			convByProp[list[i].Property] = &list[i]
		}
	}

	out := make(map[string]any, len(sc.fields))
	for _, field := range sc.fields {
		fieldPath := path + "." + field.name
		if field.flatten {
			sub := v.Field(field.index)
			if field.typ.Kind() == reflect.Pointer {
				if sub.IsNil() {
					continue
				}
				sub = sub.Elem()
			}
			for key, item := range m.runStructEncodeInner(field.sub.schema, sub, fieldPath, st, true) {
				out[key] = item
			}
			continue
		}
		if conv, ok := convByProp[field.name]; ok && conv.Encode != nil {
			raw, err := conv.Encode()
			if err != nil {
				st.report.Add(diag.Diagnostic{Kind: diag.ConverterFailure, Path: fieldPath, Key: field.key, Type: field.typ.String(), Err: err})
				continue
			}
			if normal, ok := m.encodeAny(raw, fieldPath, st); ok {
				out[field.key] = normal
			}
			continue
		}
		if normal, ok := field.encode(v.Field(field.index), fieldPath, st); ok {
			out[field.key] = normal
		}
	}

	if !flattened {
		if km, ok := receiver.Interface().(KeyMapper); ok {
			applyKeyPairsEncode(out, km.PropertyMapping(), sc, path, st)
		}
	}
	return out
}

// applyKeyPairsEncode rewrites an encoded dictionary from canonical
// keys to the type's published keys. The last pair naming a property
// wins, mirroring the populate side.
func applyKeyPairsEncode(out map[string]any, pairs []KeyPair, sc *structSchema, path string, st *state) {
	final := make(map[string]KeyPair, len(pairs))
	order := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		if pair.Property == "" {
			continue
		}
		if _, seen := final[pair.Property]; !seen {
			order = append(order, pair.Property)
		}
		final[pair.Property] = pair
	}
	for _, prop := range order {
		pair := final[prop]
		field, ok := sc.byName[prop]
		if !ok {
			st.report.Add(diag.Diagnostic{Kind: diag.UnknownKey, Path: path, Key: prop, Type: sc.typ.String(), Err: fmt.Errorf("the property mapping names no property %q", prop)})
			continue
		}
		if pair.Key == "-" {
			delete(out, field.key)
			continue
		}
		if raw, ok := out[field.key]; ok && pair.Key != field.key {
			delete(out, field.key)
			out[pair.Key] = raw
		}
	}
}

// encodeAny renders a value whose type is only known at runtime.
func (m *Mapper) encodeAny(raw any, path string, st *state) (any, bool) {
	if raw == nil {
		return nil, true
	}
	if normal, ok := coerce.NormalizeSpecial(raw); ok {
		return normal, true
	}
	rv := reflect.ValueOf(raw)
	return m.encoderFor(rv.Type())(rv, path, st)
}

// makeFieldEncoder compiles the encoder for one type, preferring the
// type's raw-value strategy over its reflect kind.
func (m *Mapper) makeFieldEncoder(t reflect.Type) encoder {
	if enc := makeSpecialEncoder(t); enc != nil {
		return enc
	}
	switch m.strategyKind(t) {
	case strategy.RawInt:
		return makeRawIntEncoder(t)
	case strategy.RawString:
		return makeRawStringEncoder(t)
	case strategy.RawAny:
		return m.makeRawAnyEncoder(t)
	case strategy.AssociatedPayload:
		return m.makeAssociatedEncoder(t)
	case strategy.None, strategy.CustomArray:
	}
	return m.makeKindEncoder(t)
}

func makeSpecialEncoder(t reflect.Type) encoder {
	if isSpecialType(t) {
		return func(v reflect.Value, path string, st *state) (any, bool) {
			if normal, ok := coerce.NormalizeSpecial(v.Interface()); ok {
				return normal, true
			}
			return v.Interface(), true
		}
	}
	if t.Kind() == reflect.Slice && t.Elem() == reflect.TypeOf(byte(0)) {
		return func(v reflect.Value, path string, st *state) (any, bool) {
			if v.IsNil() {
				return nil, true
			}
			normal, _ := coerce.NormalizeSpecial(v.Bytes())
			return normal, true
		}
	}
	return nil
}

func makeRawIntEncoder(t reflect.Type) encoder {
	useValuer := t.Implements(intRawValuerType) || reflect.PointerTo(t).Implements(intRawValuerType)
	kind := t.Kind()
	switch {
	case useValuer:
		return func(v reflect.Value, path string, st *state) (any, bool) {
			return materialized(v).Interface().(strategy.IntRawValuer).RawInt(), true
		}
	case kind >= reflect.Int && kind <= reflect.Int64:
		return func(v reflect.Value, path string, st *state) (any, bool) {
			return v.Int(), true
		}
	case kind >= reflect.Uint && kind <= reflect.Uint64:
		return func(v reflect.Value, path string, st *state) (any, bool) {
			return normalUint(v.Uint()), true
		}
	default:
		return unsupportedEncoder(t, fmt.Sprintf("type %s declares an integer raw value but has no RawInt and no integer representation", t))
	}
}

// normalUint keeps every integer that fits as an int64, so equal
// numbers compare and hash equal whatever the declared field type.
func normalUint(u uint64) any {
	if u <= math.MaxInt64 {
		return int64(u)
	}
	return u
}

func makeRawStringEncoder(t reflect.Type) encoder {
	useValuer := t.Implements(stringRawValuerType) || reflect.PointerTo(t).Implements(stringRawValuerType)
	useText := t.Implements(textMarshalerType) || reflect.PointerTo(t).Implements(textMarshalerType)
	switch {
	case useValuer:
		return func(v reflect.Value, path string, st *state) (any, bool) {
			return materialized(v).Interface().(strategy.StringRawValuer).RawString(), true
		}
	case useText:
		return func(v reflect.Value, path string, st *state) (any, bool) {
			text, err := materialized(v).Interface().(encoding.TextMarshaler).MarshalText()
			if err != nil {
				st.report.Add(diag.Diagnostic{Kind: diag.ConverterFailure, Path: path, Key: "", Type: t.String(), Err: err})
				return nil, false
			}
			return string(text), true
		}
	case t.Kind() == reflect.String:
		return func(v reflect.Value, path string, st *state) (any, bool) {
			return v.String(), true
		}
	default:
		return unsupportedEncoder(t, fmt.Sprintf("type %s declares a string raw value but has no RawString, no MarshalText and no string representation", t))
	}
}

func (m *Mapper) makeRawAnyEncoder(t reflect.Type) encoder {
	if !t.Implements(anyRawValuerType) && !reflect.PointerTo(t).Implements(anyRawValuerType) {
		return unsupportedEncoder(t, fmt.Sprintf("type %s declares a dynamic raw value but has no RawValue", t))
	}
	return func(v reflect.Value, path string, st *state) (any, bool) {
		return m.encodeAny(materialized(v).Interface().(strategy.AnyRawValuer).RawValue(), path, st)
	}
}

func (m *Mapper) makeAssociatedEncoder(t reflect.Type) encoder {
	useValuer := t.Implements(associatedValuerType) || reflect.PointerTo(t).Implements(associatedValuerType)
	if !useValuer {
		return unsupportedEncoder(t, fmt.Sprintf("type %s carries an associated value but has no AssociatedValue", t))
	}
	return func(v reflect.Value, path string, st *state) (any, bool) {
		av := materialized(v).Interface().(strategy.AssociatedValuer)
		folded := strategy.AssociatedMap([]strategy.AssociatedValuer{av}, st.report)
		out := make(map[string]any, len(folded))
		for label, payload := range folded {
			if normal, ok := m.encodeAny(payload, path, st); ok {
				out[label] = normal
			}
		}
		return out, true
	}
}

func (m *Mapper) makeKindEncoder(t reflect.Type) encoder {
	switch t.Kind() {
	case reflect.Bool:
		return func(v reflect.Value, path string, st *state) (any, bool) {
			return v.Bool(), true
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return func(v reflect.Value, path string, st *state) (any, bool) {
			return v.Int(), true
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return func(v reflect.Value, path string, st *state) (any, bool) {
			return normalUint(v.Uint()), true
		}
	case reflect.Float32, reflect.Float64:
		return func(v reflect.Value, path string, st *state) (any, bool) {
			return v.Float(), true
		}
	case reflect.String:
		return func(v reflect.Value, path string, st *state) (any, bool) {
			return v.String(), true
		}
	case reflect.Struct:
		prog := m.programLocked(t)
		return func(v reflect.Value, path string, st *state) (any, bool) {
			if prog.err != nil {
				st.report.Add(diag.Diagnostic{Kind: diag.UnsupportedField, Path: path, Key: "", Type: t.String(), Err: prog.err})
				return nil, false
			}
			return m.runStructEncodeInner(prog.schema, v, path, st, false), true
		}
	case reflect.Slice:
		elemEnc := m.encoderLocked(t.Elem())
		return func(v reflect.Value, path string, st *state) (any, bool) {
			if v.IsNil() {
				return nil, true
			}
			out := make([]any, v.Len())
			for i := 0; i < v.Len(); i++ {
				if normal, ok := elemEnc(v.Index(i), fmt.Sprintf("%s[%d]", path, i), st); ok {
					out[i] = normal
				}
			}
			return out, true
		}
	case reflect.Array:
		elemEnc := m.encoderLocked(t.Elem())
		return func(v reflect.Value, path string, st *state) (any, bool) {
			out := make([]any, v.Len())
			for i := 0; i < v.Len(); i++ {
				if normal, ok := elemEnc(v.Index(i), fmt.Sprintf("%s[%d]", path, i), st); ok {
					out[i] = normal
				}
			}
			return out, true
		}
	case reflect.Map:
		if t.Key().Kind() != reflect.String {
			return unsupportedEncoder(t, fmt.Sprintf("cannot encode a map keyed by %s, only string keys fit a dictionary", t.Key()))
		}
		elemEnc := m.encoderLocked(t.Elem())
		return func(v reflect.Value, path string, st *state) (any, bool) {
			if v.IsNil() {
				return nil, true
			}
			out := make(map[string]any, v.Len())
			iter := v.MapRange()
			for iter.Next() {
				key := iter.Key().String()
				if normal, ok := elemEnc(iter.Value(), fmt.Sprintf("%s[%s]", path, key), st); ok {
					out[key] = normal
				}
			}
			return out, true
		}
	case reflect.Pointer:
		elemEnc := m.encoderLocked(t.Elem())
		return func(v reflect.Value, path string, st *state) (any, bool) {
			if v.IsNil() {
				return nil, true
			}
			return elemEnc(v.Elem(), path, st)
		}
	case reflect.Interface:
		return func(v reflect.Value, path string, st *state) (any, bool) {
			if v.IsNil() {
				return nil, true
			}
			return m.encodeAny(v.Interface(), path, st)
		}
	default:
		return unsupportedEncoder(t, fmt.Sprintf("cannot encode values of kind %s", t.Kind()))
	}
}

func unsupportedEncoder(t reflect.Type, reason string) encoder {
	return func(v reflect.Value, path string, st *state) (any, bool) {
		st.report.Add(diag.Diagnostic{Kind: diag.UnsupportedField, Path: path, Key: "", Type: t.String(), Err: errors.New(reason)})
		return nil, false
	}
}
