// Package coerce converts the loosely typed scalars found in dynamic
// payloads into concrete Go values, and back into their canonical
// payload form.
//
// Payloads decoded from JSON, YAML or a binary archive disagree on how
// they spell numbers, timestamps and byte strings. This package is
// where the disagreements are settled: conversions are deliberately
// lenient ("42" converts into an int, 1 into true), widths are checked
// and every failure is an error the caller can attach to a diagnostic.
package coerce

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cast"
)

// Resolve replaces json.Number with int64 or float64 so downstream
// conversions see ordinary scalars. Other values pass through.
func Resolve(v any) any {
	if n, ok := v.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	}
	return v
}

// ToBool converts v into a bool.
func ToBool(v any) (bool, error) {
	return cast.ToBoolE(Resolve(v))
}

// ToInt converts v into a signed integer that fits in bits.
func ToInt(v any, bits int) (int64, error) {
	i, err := cast.ToInt64E(Resolve(v))
	if err != nil {
		return 0, err
	}
	if bits < 64 {
		lo := int64(-1) << (bits - 1)
		hi := int64(1)<<(bits-1) - 1
		if i < lo || i > hi {
			return 0, fmt.Errorf("value %d overflows int%d", i, bits)
		}
	}
	return i, nil
}

// ToUint converts v into an unsigned integer that fits in bits.
// Negative inputs are an error.
func ToUint(v any, bits int) (uint64, error) {
	u, err := cast.ToUint64E(Resolve(v))
	if err != nil {
		return 0, err
	}
	if bits < 64 {
		hi := uint64(1)<<bits - 1
		if u > hi {
			return 0, fmt.Errorf("value %d overflows uint%d", u, bits)
		}
	}
	return u, nil
}

// ToFloat converts v into a float that fits in bits.
func ToFloat(v any, bits int) (float64, error) {
	f, err := cast.ToFloat64E(Resolve(v))
	if err != nil {
		return 0, err
	}
	if bits == 32 && (f > math.MaxFloat32 || f < -math.MaxFloat32) {
		return 0, fmt.Errorf("value %g overflows float32", f)
	}
	return f, nil
}

// ToString converts v into a string. Numbers and bools convert to
// their textual form.
func ToString(v any) (string, error) {
	return cast.ToStringE(Resolve(v))
}

// ToTime converts v into a time.Time. Strings are parsed against the
// usual layouts, RFC 3339 first; integers count seconds since the Unix
// epoch.
func ToTime(v any) (time.Time, error) {
	return cast.ToTimeE(Resolve(v))
}

// ToDuration converts v into a time.Duration. Strings use the standard
// notation ("1m30s"); bare numbers count nanoseconds.
func ToDuration(v any) (time.Duration, error) {
	return cast.ToDurationE(Resolve(v))
}

// ToUUID converts v into a UUID, accepting the textual form or a
// 16-byte slice.
func ToUUID(v any) (uuid.UUID, error) {
	switch x := Resolve(v).(type) {
	case uuid.UUID:
		return x, nil
	case string:
		return uuid.Parse(x)
	case []byte:
		if len(x) == 16 {
			return uuid.FromBytes(x)
		}
		return uuid.ParseBytes(x)
	}
	return uuid.Nil, fmt.Errorf("cannot interpret %T as a UUID", v)
}

// ToBytes converts v into a byte slice. Strings are decoded as
// standard base64, the form NormalizeSpecial produces.
func ToBytes(v any) ([]byte, error) {
	switch x := Resolve(v).(type) {
	case []byte:
		return x, nil
	case string:
		decoded, err := base64.StdEncoding.DecodeString(x)
		if err != nil {
			return nil, fmt.Errorf("cannot decode base64 payload: %w", err)
		}
		return decoded, nil
	}
	return nil, fmt.Errorf("cannot interpret %T as bytes", v)
}

// NormalizeSpecial maps the leaf types that have a canonical textual
// payload form. ok is false for values that need generic handling.
func NormalizeSpecial(v any) (normal any, ok bool) {
	switch x := v.(type) {
	case time.Time:
		return x.Format(time.RFC3339Nano), true
	case time.Duration:
		return x.String(), true
	case uuid.UUID:
		return x.String(), true
	case []byte:
		return base64.StdEncoding.EncodeToString(x), true
	case json.Number:
		return Resolve(x), true
	}
	return nil, false
}
