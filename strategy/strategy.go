// Package strategy decides how the mapping engine represents a Go type
// inside a dynamic payload.
//
// Most types need no decision: structs, slices, maps and scalars are
// walked generically. Types that carry their payload form themselves,
// enumeration-like types in particular, advertise it by implementing
// one of the marker interfaces below, or by being pinned to a Kind in
// a Registry. A Resolver chains pluggable strategies to turn a
// reflect.Type into its Kind.
package strategy

import (
	"encoding"
	"reflect"
)

// Kind is the payload representation selected for a type. The set is
// closed: the engine only ever dispatches on the kinds below.
type Kind int

const (
	// None leaves the type to the generic struct, slice, map and
	// scalar handling.
	None Kind = iota

	// RawInt represents the type by its integral raw value.
	RawInt

	// RawString represents the type by its textual raw value.
	RawString

	// RawAny represents the type by an arbitrarily typed raw value.
	RawAny

	// CustomArray delegates slice payloads to the containing
	// struct's ArrayConverter hook.
	CustomArray

	// AssociatedPayload represents the type as a single
	// {label: payload} dictionary.
	AssociatedPayload
)

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case RawInt:
		return "raw int"
	case RawString:
		return "raw string"
	case RawAny:
		return "raw any"
	case CustomArray:
		return "custom array"
	case AssociatedPayload:
		return "associated payload"
	}
	return "invalid kind"
}

// UndefinedKeySetter receives payload keys that no property accepts.
// Returning an error records a diagnostic but never aborts population.
type UndefinedKeySetter interface {
	SetUndefinedKey(key string, value any) error
}

// IntRawValuer exposes the integral raw value of its receiver.
type IntRawValuer interface {
	RawInt() int64
}

// IntRawSetter rebuilds its receiver from an integral raw value.
// Implemented with a pointer receiver.
type IntRawSetter interface {
	SetRawInt(raw int64) error
}

// StringRawValuer exposes the textual raw value of its receiver.
type StringRawValuer interface {
	RawString() string
}

// StringRawSetter rebuilds its receiver from a textual raw value.
// Implemented with a pointer receiver.
type StringRawSetter interface {
	SetRawString(raw string) error
}

// AnyRawValuer exposes an arbitrarily typed raw value, for types whose
// payload form varies from instance to instance. There is no matching
// setter: reconstruction goes through the type's generic handling or a
// field converter.
type AnyRawValuer interface {
	RawValue() any
}

// ArrayConverter converts a generic slice payload into the typed slice
// expected by the named property. Implemented by the struct that
// contains the property, not by the slice's element type.
type ArrayConverter interface {
	ConvertArray(property string, payload []any) (any, error)
}

// AssociatedValuer decomposes its receiver into a case label and the
// payload carried by that case. ok is false when the case carries no
// payload.
type AssociatedValuer interface {
	AssociatedValue() (label string, payload any, ok bool)
}

// AssociatedSetter rebuilds its receiver from a case label and its
// payload. Implemented with a pointer receiver.
type AssociatedSetter interface {
	SetAssociatedValue(label string, payload any) error
}

// Strategy is a pluggable resolution step. A Resolver chains several
// in order; the first one to handle a type wins.
type Strategy interface {
	// TryResolve returns (kind, true) if this strategy handles t,
	// otherwise (None, false) to fall through.
	TryResolve(t reflect.Type) (Kind, bool)
}

var (
	intRawValuerType     = reflect.TypeOf((*IntRawValuer)(nil)).Elem()
	intRawSetterType     = reflect.TypeOf((*IntRawSetter)(nil)).Elem()
	stringRawValuerType  = reflect.TypeOf((*StringRawValuer)(nil)).Elem()
	stringRawSetterType  = reflect.TypeOf((*StringRawSetter)(nil)).Elem()
	anyRawValuerType     = reflect.TypeOf((*AnyRawValuer)(nil)).Elem()
	associatedValuerType = reflect.TypeOf((*AssociatedValuer)(nil)).Elem()
	associatedSetterType = reflect.TypeOf((*AssociatedSetter)(nil)).Elem()
	textMarshalerType    = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
	textUnmarshalerType  = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
)

// implementsMarker checks t and *t, since setters live on pointer
// receivers while valuers usually live on value receivers.
func implementsMarker(t reflect.Type, iface reflect.Type) bool {
	if t.Implements(iface) {
		return true
	}
	if t.Kind() != reflect.Pointer {
		return reflect.PointerTo(t).Implements(iface)
	}
	return false
}

// MarkerStrategy resolves types by the marker interfaces they
// implement, on the value or on its pointer. When several apply the
// precedence is AssociatedPayload, RawInt, RawString, RawAny.
type MarkerStrategy struct{}

func (MarkerStrategy) TryResolve(t reflect.Type) (Kind, bool) {
	switch {
	case implementsMarker(t, associatedValuerType) || implementsMarker(t, associatedSetterType):
		return AssociatedPayload, true
	case implementsMarker(t, intRawValuerType) || implementsMarker(t, intRawSetterType):
		return RawInt, true
	case implementsMarker(t, stringRawValuerType) || implementsMarker(t, stringRawSetterType):
		return RawString, true
	case implementsMarker(t, anyRawValuerType):
		return RawAny, true
	}
	return None, false
}

// StdTextStrategy resolves types that speak the standard library's
// text protocols as RawString, so types written for encoding/json keep
// working unchanged.
type StdTextStrategy struct{}

func (StdTextStrategy) TryResolve(t reflect.Type) (Kind, bool) {
	if implementsMarker(t, textMarshalerType) || implementsMarker(t, textUnmarshalerType) {
		return RawString, true
	}
	return None, false
}

// RegistryStrategy resolves types by explicit registration.
type RegistryStrategy struct {
	Registry *Registry
}

func (s RegistryStrategy) TryResolve(t reflect.Type) (Kind, bool) {
	if s.Registry == nil {
		return None, false
	}
	return s.Registry.Lookup(t)
}
