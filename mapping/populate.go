package mapping

import (
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/verdigris/modelmap/coerce"
	"github.com/verdigris/modelmap/diag"
	"github.com/verdigris/modelmap/mapping/value"
	"github.com/verdigris/modelmap/strategy"
	"github.com/verdigris/modelmap/validation"
)

// runStructPopulate fills slot, an addressable struct value, from
// dict. flattened marks a child sharing its parent's dictionary: its
// keys were already merged into the parent's key set, and the parent
// owns the unknown-key sweep.
func (m *Mapper) runStructPopulate(sc *structSchema, slot reflect.Value, dict value.Dict, path string, st *state, flattened bool) {
	receiver := slot.Addr()

	if sc.init {
		if err := receiver.Interface().(validation.Initializer).Initialize(); err != nil {
			st.report.Add(diag.Diagnostic{Kind: diag.ValidationFailure, Path: path, Key: "", Type: sc.typ.String(), Err: fmt.Errorf("encountered an error while initializing the value: %w", err)})
		}
	}

	var suppressed map[string]bool
	if !flattened {
		if km, ok := receiver.Interface().(KeyMapper); ok {
			dict, suppressed = applyKeyPairs(dict, km.PropertyMapping(), sc, path, st)
		}
	}

	var convByProp map[string]*FieldConverter
	if provider, ok := receiver.Interface().(FieldConverterProvider); ok {
		list := provider.FieldConverters()
		convByProp = make(map[string]*FieldConverter, len(list))
		for i := range list {
			convByProp[list[i].Property] = &list[i]
		}
	}

	for _, field := range sc.fields {
		fieldPath := path + "." + field.name
		if field.flatten {
			sub := slot.Field(field.index)
			if field.typ.Kind() == reflect.Pointer {
				if sub.IsNil() {
					sub.Set(reflect.New(field.typ.Elem()))
				}
				sub = sub.Elem()
			}
			m.runStructPopulate(field.sub.schema, sub, dict, fieldPath, st, true)
			continue
		}
		if suppressed[field.name] {
			continue
		}

		slotField := slot.Field(field.index)
		raw, found := dict.Lookup(field.key)

		if conv, ok := convByProp[field.name]; ok && conv.Decode != nil {
			if !found {
				if !field.hasDefault || field.defaultNil {
					continue
				}
				raw = field.defaultRaw
			}
			if err := conv.Decode(resolveDeep(raw)); err != nil {
				st.report.Add(diag.Diagnostic{Kind: diag.ConverterFailure, Path: fieldPath, Key: field.key, Type: field.typ.String(), Err: err})
			}
			continue
		}

		if !found {
			if field.hasDefault && !field.defaultNil {
				if field.arrayConv {
					m.populateCustomArray(field, receiver, slotField, field.defaultRaw, fieldPath, st)
				} else {
					field.populate(slotField, field.defaultRaw, fieldPath, st)
				}
			}
			continue
		}
		if raw == nil {
			switch field.typ.Kind() {
			case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
				slotField.Set(reflect.Zero(field.typ))
			default:
				// null for a scalar keeps whatever the value holds.
			}
			continue
		}
		if field.arrayConv {
			m.populateCustomArray(field, receiver, slotField, raw, fieldPath, st)
			continue
		}
		field.populate(slotField, raw, fieldPath, st)
	}

	if !flattened {
		for _, key := range dict.Keys() {
			if sc.keySet[key] {
				continue
			}
			raw, _ := dict.Lookup(key)
			m.routeUnknownKey(receiver, sc.typ, key, raw, path, st)
		}
	}

	if sc.valid {
		if err := receiver.Interface().(validation.Validator).Validate(); err != nil {
			st.report.Add(diag.Diagnostic{Kind: diag.ValidationFailure, Path: path, Key: "", Type: sc.typ.String(), Err: err})
		}
	}
}

// applyKeyPairs rewrites a copy of dict according to the type's
// property mapping. Later pairs override earlier ones. The returned
// set names properties hidden by a "-" key.
func applyKeyPairs(dict value.Dict, pairs []KeyPair, sc *structSchema, path string, st *state) (value.Dict, map[string]bool) {
	out := make(map[string]any, len(dict.Keys()))
	for _, key := range dict.Keys() {
		raw, _ := dict.Lookup(key)
		out[key] = raw
	}
	suppressed := make(map[string]bool)
	for _, pair := range pairs {
		if pair.Property == "" {
			delete(out, pair.Key)
			continue
		}
		field, ok := sc.byName[pair.Property]
		if !ok {
			st.report.Add(diag.Diagnostic{Kind: diag.UnknownKey, Path: path, Key: pair.Property, Type: sc.typ.String(), Err: fmt.Errorf("the property mapping names no property %q", pair.Property)})
			continue
		}
		if pair.Key == "-" {
			delete(out, field.key)
			suppressed[field.name] = true
			continue
		}
		delete(suppressed, field.name)
		if raw, ok := out[pair.Key]; ok && pair.Key != field.key {
			delete(out, pair.Key)
			out[field.key] = raw
		}
	}
	return value.MapDict(out), suppressed
}

// routeUnknownKey hands an unclaimed payload key to the value, in
// order of preference: its SetUndefinedKey hook, then its extras
// store. The key is always recorded, except when the hook accepts it.
func (m *Mapper) routeUnknownKey(receiver reflect.Value, typ reflect.Type, key string, raw any, path string, st *state) {
	if setter, ok := receiver.Interface().(strategy.UndefinedKeySetter); ok {
		if err := setter.SetUndefinedKey(key, resolveDeep(raw)); err != nil {
			st.report.Add(diag.Diagnostic{Kind: diag.UnknownKey, Path: path, Key: key, Type: typ.String(), Err: err})
		}
		return
	}
	if store, ok := receiver.Interface().(ExtraStore); ok {
		store.SetExtra(key, resolveDeep(raw))
	}
	st.report.Add(diag.Diagnostic{Kind: diag.UnknownKey, Path: path, Key: key, Type: typ.String(), Err: nil})
}

func (m *Mapper) populateCustomArray(field *fieldSchema, receiver, slotField reflect.Value, raw any, path string, st *state) {
	items, ok := value.AsSlice(raw)
	if !ok {
		st.report.Add(diag.Diagnostic{Kind: diag.CoercionFailure, Path: path, Key: field.key, Type: field.typ.String(), Err: fmt.Errorf("expected an array, got %T", raw)})
		return
	}
	conv, ok := receiver.Interface().(strategy.ArrayConverter)
	if !ok {
		st.report.Add(diag.Diagnostic{Kind: diag.UnsupportedField, Path: path, Key: field.key, Type: field.typ.String(), Err: fmt.Errorf("a slice of interface %s needs a ConvertArray hook on %s", field.typ.Elem(), receiver.Type().Elem())})
		return
	}
	resolved := make([]any, len(items))
	for i, item := range items {
		resolved[i] = resolveDeep(item)
	}
	converted, err := conv.ConvertArray(field.name, resolved)
	if err != nil {
		st.report.Add(diag.Diagnostic{Kind: diag.ConverterFailure, Path: path, Key: field.key, Type: field.typ.String(), Err: err})
		return
	}
	if converted == nil {
		slotField.Set(reflect.Zero(field.typ))
		return
	}
	cv := reflect.ValueOf(converted)
	if !cv.Type().AssignableTo(field.typ) {
		if !cv.Type().ConvertibleTo(field.typ) {
			st.report.Add(diag.Diagnostic{Kind: diag.ConverterFailure, Path: path, Key: field.key, Type: field.typ.String(), Err: fmt.Errorf("ConvertArray returned %T, expected %s", converted, field.typ)})
			return
		}
		cv = cv.Convert(field.typ)
	}
	slotField.Set(cv)
}

// makeFieldPopulator compiles the populator for one type. Well-known
// wire types come first, then the type's raw-value strategy, then the
// generic path over the reflect kind.
func (m *Mapper) makeFieldPopulator(t reflect.Type) populator {
	if pop := makeSpecialPopulator(t); pop != nil {
		return pop
	}
	switch m.strategyKind(t) {
	case strategy.RawInt:
		return makeRawIntPopulator(t)
	case strategy.RawString:
		return makeRawStringPopulator(t)
	case strategy.AssociatedPayload:
		return makeAssociatedPopulator(t)
	case strategy.None, strategy.RawAny, strategy.CustomArray:
		// RawAny declares how the value encodes, not how it decodes;
		// CustomArray only applies to a field inside its containing
		// struct. Both fall through to the kind of the type.
	}
	return m.makeKindPopulator(t)
}

func (m *Mapper) makeKindPopulator(t reflect.Type) populator {
	switch t.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return makeScalarPopulator(t)
	case reflect.Struct:
		return m.makeStructPopulator(t)
	case reflect.Slice:
		return m.makeSlicePopulator(t)
	case reflect.Array:
		return m.makeArrayPopulator(t)
	case reflect.Map:
		return m.makeMapPopulator(t)
	case reflect.Pointer:
		return m.makePointerPopulator(t)
	case reflect.Interface:
		return makeInterfacePopulator(t)
	default:
		return unsupportedPopulator(t, fmt.Sprintf("cannot populate values of kind %s", t.Kind()))
	}
}

func makeSpecialPopulator(t reflect.Type) populator {
	switch t {
	case timeType:
		return func(slot reflect.Value, raw any, path string, st *state) {
			tm, err := coerce.ToTime(raw)
			if err != nil {
				coercionDiag(st, path, t, err)
				return
			}
			slot.Set(reflect.ValueOf(tm))
		}
	case durationType:
		return func(slot reflect.Value, raw any, path string, st *state) {
			d, err := coerce.ToDuration(raw)
			if err != nil {
				coercionDiag(st, path, t, err)
				return
			}
			slot.Set(reflect.ValueOf(d))
		}
	case uuidType:
		return func(slot reflect.Value, raw any, path string, st *state) {
			id, err := coerce.ToUUID(raw)
			if err != nil {
				coercionDiag(st, path, t, err)
				return
			}
			slot.Set(reflect.ValueOf(id))
		}
	}
	if t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8 && t.Elem() == reflect.TypeOf(byte(0)) {
		return func(slot reflect.Value, raw any, path string, st *state) {
			b, err := coerce.ToBytes(raw)
			if err != nil {
				coercionDiag(st, path, t, err)
				return
			}
			slot.SetBytes(b)
		}
	}
	return nil
}

func makeScalarPopulator(t reflect.Type) populator {
	switch t.Kind() {
	case reflect.Bool:
		return func(slot reflect.Value, raw any, path string, st *state) {
			b, err := coerce.ToBool(raw)
			if err != nil {
				coercionDiag(st, path, t, err)
				return
			}
			slot.SetBool(b)
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		bits := t.Bits()
		return func(slot reflect.Value, raw any, path string, st *state) {
			n, err := coerce.ToInt(raw, bits)
			if err != nil {
				coercionDiag(st, path, t, err)
				return
			}
			slot.SetInt(n)
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		bits := t.Bits()
		return func(slot reflect.Value, raw any, path string, st *state) {
			n, err := coerce.ToUint(raw, bits)
			if err != nil {
				coercionDiag(st, path, t, err)
				return
			}
			slot.SetUint(n)
		}
	case reflect.Float32, reflect.Float64:
		bits := t.Bits()
		return func(slot reflect.Value, raw any, path string, st *state) {
			f, err := coerce.ToFloat(raw, bits)
			if err != nil {
				coercionDiag(st, path, t, err)
				return
			}
			slot.SetFloat(f)
		}
	default:
		return func(slot reflect.Value, raw any, path string, st *state) {
			s, err := coerce.ToString(raw)
			if err != nil {
				coercionDiag(st, path, t, err)
				return
			}
			slot.SetString(s)
		}
	}
}

func (m *Mapper) makeStructPopulator(t reflect.Type) populator {
	prog := m.programLocked(t)
	return func(slot reflect.Value, raw any, path string, st *state) {
		if prog.err != nil {
			st.report.Add(diag.Diagnostic{Kind: diag.UnsupportedField, Path: path, Key: "", Type: t.String(), Err: prog.err})
			return
		}
		dict, ok := value.AsDict(raw)
		if !ok {
			coercionDiag(st, path, t, fmt.Errorf("expected an object, got %T", raw))
			return
		}
		m.runStructPopulate(prog.schema, slot, dict, path, st, false)
	}
}

func (m *Mapper) makeSlicePopulator(t reflect.Type) populator {
	elemPop := m.populatorLocked(t.Elem())
	return func(slot reflect.Value, raw any, path string, st *state) {
		items, ok := value.AsSlice(raw)
		if !ok {
			coercionDiag(st, path, t, fmt.Errorf("expected an array, got %T", raw))
			return
		}
		out := reflect.MakeSlice(t, len(items), len(items))
		for i, item := range items {
			if item == nil {
				continue
			}
			elemPop(out.Index(i), item, fmt.Sprintf("%s[%d]", path, i), st)
		}
		slot.Set(out)
	}
}

func (m *Mapper) makeArrayPopulator(t reflect.Type) populator {
	elemPop := m.populatorLocked(t.Elem())
	length := t.Len()
	return func(slot reflect.Value, raw any, path string, st *state) {
		items, ok := value.AsSlice(raw)
		if !ok {
			coercionDiag(st, path, t, fmt.Errorf("expected an array, got %T", raw))
			return
		}
		if len(items) > length {
			coercionDiag(st, path, t, fmt.Errorf("expected at most %d elements, got %d", length, len(items)))
		}
		for i := 0; i < length && i < len(items); i++ {
			if items[i] == nil {
				slot.Index(i).Set(reflect.Zero(t.Elem()))
				continue
			}
			elemPop(slot.Index(i), items[i], fmt.Sprintf("%s[%d]", path, i), st)
		}
	}
}

func (m *Mapper) makeMapPopulator(t reflect.Type) populator {
	if t.Key().Kind() != reflect.String {
		return unsupportedPopulator(t, fmt.Sprintf("cannot populate a map keyed by %s, only string keys appear in payloads", t.Key()))
	}
	keyType := t.Key()
	elemPop := m.populatorLocked(t.Elem())
	return func(slot reflect.Value, raw any, path string, st *state) {
		dict, ok := value.AsDict(raw)
		if !ok {
			coercionDiag(st, path, t, fmt.Errorf("expected an object, got %T", raw))
			return
		}
		keys := dict.Keys()
		out := reflect.MakeMapWithSize(t, len(keys))
		for _, key := range keys {
			item, _ := dict.Lookup(key)
			ev := reflect.New(t.Elem()).Elem()
			if item != nil {
				elemPop(ev, item, fmt.Sprintf("%s[%s]", path, key), st)
			}
			out.SetMapIndex(reflect.ValueOf(key).Convert(keyType), ev)
		}
		slot.Set(out)
	}
}

func (m *Mapper) makePointerPopulator(t reflect.Type) populator {
	elemPop := m.populatorLocked(t.Elem())
	return func(slot reflect.Value, raw any, path string, st *state) {
		if raw == nil {
			slot.Set(reflect.Zero(t))
			return
		}
		target := reflect.New(t.Elem())
		elemPop(target.Elem(), raw, path, st)
		slot.Set(target)
	}
}

func makeInterfacePopulator(t reflect.Type) populator {
	if t.NumMethod() > 0 {
		return unsupportedPopulator(t, fmt.Sprintf("cannot populate interface %s, declare the field as a concrete type or use a converter", t))
	}
	return func(slot reflect.Value, raw any, path string, st *state) {
		if raw == nil {
			slot.Set(reflect.Zero(t))
			return
		}
		slot.Set(reflect.ValueOf(resolveDeep(raw)))
	}
}

func makeRawIntPopulator(t reflect.Type) populator {
	useSetter := t.Implements(intRawSetterType) || reflect.PointerTo(t).Implements(intRawSetterType)
	kind := t.Kind()
	switch {
	case useSetter:
		return func(slot reflect.Value, raw any, path string, st *state) {
			n, err := coerce.ToInt(raw, 64)
			if err != nil {
				coercionDiag(st, path, t, err)
				return
			}
			if err := slot.Addr().Interface().(strategy.IntRawSetter).SetRawInt(n); err != nil {
				st.report.Add(diag.Diagnostic{Kind: diag.ConverterFailure, Path: path, Key: "", Type: t.String(), Err: err})
			}
		}
	case kind >= reflect.Int && kind <= reflect.Int64:
		bits := t.Bits()
		return func(slot reflect.Value, raw any, path string, st *state) {
			n, err := coerce.ToInt(raw, bits)
			if err != nil {
				coercionDiag(st, path, t, err)
				return
			}
			slot.SetInt(n)
		}
	case kind >= reflect.Uint && kind <= reflect.Uint64:
		bits := t.Bits()
		return func(slot reflect.Value, raw any, path string, st *state) {
			n, err := coerce.ToUint(raw, bits)
			if err != nil {
				coercionDiag(st, path, t, err)
				return
			}
			slot.SetUint(n)
		}
	default:
		return unsupportedPopulator(t, fmt.Sprintf("type %s exposes an integer raw value but has no SetRawInt and no integer representation", t))
	}
}

func makeRawStringPopulator(t reflect.Type) populator {
	useSetter := t.Implements(stringRawSetterType) || reflect.PointerTo(t).Implements(stringRawSetterType)
	useText := reflect.PointerTo(t).Implements(textUnmarshalerType)
	switch {
	case useSetter:
		return func(slot reflect.Value, raw any, path string, st *state) {
			s, err := coerce.ToString(raw)
			if err != nil {
				coercionDiag(st, path, t, err)
				return
			}
			if err := slot.Addr().Interface().(strategy.StringRawSetter).SetRawString(s); err != nil {
				st.report.Add(diag.Diagnostic{Kind: diag.ConverterFailure, Path: path, Key: "", Type: t.String(), Err: err})
			}
		}
	case useText:
		return func(slot reflect.Value, raw any, path string, st *state) {
			s, err := coerce.ToString(raw)
			if err != nil {
				coercionDiag(st, path, t, err)
				return
			}
			if err := slot.Addr().Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(s)); err != nil {
				st.report.Add(diag.Diagnostic{Kind: diag.ConverterFailure, Path: path, Key: "", Type: t.String(), Err: err})
			}
		}
	case t.Kind() == reflect.String:
		return makeScalarPopulator(t)
	default:
		return unsupportedPopulator(t, fmt.Sprintf("type %s exposes a string raw value but has no SetRawString, no UnmarshalText and no string representation", t))
	}
}

func makeAssociatedPopulator(t reflect.Type) populator {
	useSetter := t.Implements(associatedSetterType) || reflect.PointerTo(t).Implements(associatedSetterType)
	if !useSetter {
		return unsupportedPopulator(t, fmt.Sprintf("type %s exposes an associated value but has no SetAssociatedValue", t))
	}
	return func(slot reflect.Value, raw any, path string, st *state) {
		setter := slot.Addr().Interface().(strategy.AssociatedSetter)
		if label, ok := raw.(string); ok {
			// A bare label is a case without payload.
			if err := setter.SetAssociatedValue(label, nil); err != nil {
				st.report.Add(diag.Diagnostic{Kind: diag.ConverterFailure, Path: path, Key: "", Type: t.String(), Err: err})
			}
			return
		}
		dict, ok := value.AsDict(raw)
		if !ok {
			coercionDiag(st, path, t, fmt.Errorf("expected an object carrying one case label, got %T", raw))
			return
		}
		keys := dict.Keys()
		if len(keys) == 0 {
			coercionDiag(st, path, t, errors.New("expected an object carrying one case label, got an empty object"))
			return
		}
		if len(keys) > 1 {
			coercionDiag(st, path, t, fmt.Errorf("expected a single case label, got %d, using %q", len(keys), keys[0]))
		}
		payload, _ := dict.Lookup(keys[0])
		if err := setter.SetAssociatedValue(keys[0], resolveDeep(payload)); err != nil {
			st.report.Add(diag.Diagnostic{Kind: diag.ConverterFailure, Path: path, Key: "", Type: t.String(), Err: err})
		}
	}
}

func unsupportedPopulator(t reflect.Type, reason string) populator {
	return func(slot reflect.Value, raw any, path string, st *state) {
		st.report.Add(diag.Diagnostic{Kind: diag.UnsupportedField, Path: path, Key: "", Type: t.String(), Err: errors.New(reason)})
	}
}

func coercionDiag(st *state, path string, t reflect.Type, err error) {
	st.report.Add(diag.Diagnostic{Kind: diag.CoercionFailure, Path: path, Key: "", Type: t.String(), Err: err})
}

// resolveDeep normalizes a raw payload value for hooks and dynamic
// fields: numbers lose their wire form, containers are rebuilt with
// normalized children.
func resolveDeep(raw any) any {
	switch v := raw.(type) {
	case json.Number:
		return coerce.Resolve(v)
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = resolveDeep(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = resolveDeep(item)
		}
		return out
	case value.Dict:
		return resolveDeep(v.AsMap())
	default:
		return raw
	}
}
