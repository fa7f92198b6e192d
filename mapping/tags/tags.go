// Package tags parses the struct tags consulted by the mapping engine.
//
// The engine cares about three tags: the main tag (usually `json`)
// which renames a field or hides it with "-", `default` which supplies
// a textual default used when the payload has no value for the field,
// and `flatten` which merges a nested struct's keys into its parent's
// dictionary. Everything else is parsed and kept available through
// Lookup.
package tags

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/verdigris/modelmap/assertions/initialized"
)

// Tags holds the parsed tags of one struct field.
type Tags struct {
	tags    map[string][]string
	witness initialized.IsInitialized
}

// Empty returns the tags of an untagged field.
func Empty() Tags {
	return Tags{
		tags:    make(map[string][]string),
		witness: initialized.Make(),
	}
}

// Parse reads a struct field tag, following the conventions of
// reflect.StructTag. The scanner is adapted from Go's type.go.
func Parse(tag reflect.StructTag) (Tags, error) {
	parsed := make(map[string][]string)
	for tag != "" {
		// Skip leading space.
		i := 0
		for i < len(tag) && tag[i] == ' ' {
			i++
		}
		tag = tag[i:]
		if tag == "" {
			break
		}

		// Scan to colon. A space, a quote or a control character is
		// a syntax error, in which case we give up on the rest of
		// the tag, as the reflect package does.
		i = 0
		for i < len(tag) && tag[i] > ' ' && tag[i] != ':' && tag[i] != '"' && tag[i] != 0x7f {
			i++
		}
		if i == 0 || i+1 >= len(tag) || tag[i] != ':' || tag[i+1] != '"' {
			break
		}
		name := string(tag[:i])
		if name == "" {
			return Tags{}, errors.New("invalid tag with empty name")
		}
		if _, exists := parsed[name]; exists {
			return Tags{}, fmt.Errorf("invalid tag, name %s should only be defined once", name)
		}

		tag = tag[i+1:]

		// Scan the quoted value.
		i = 1
		for i < len(tag) && tag[i] != '"' {
			if tag[i] == '\\' {
				i++
			}
			i++
		}
		if i >= len(tag) {
			break
		}
		qvalue := string(tag[:i+1])
		tag = tag[i+1:]

		unquoted, err := strconv.Unquote(qvalue)
		if err != nil {
			return Tags{}, fmt.Errorf("ill-formed tag %s:\n\t * %w", name, err)
		}

		if name == "default" {
			// Defaults are kept verbatim, commas and spaces
			// included.
			parsed[name] = []string{unquoted}
			continue
		}
		split := strings.Split(unquoted, ",")
		trimmed := make([]string, 0)
		for _, s := range split {
			t := strings.Trim(s, " ")
			if t != "" {
				trimmed = append(trimmed, t)
			}
		}
		if len(trimmed) == 0 {
			trimmed = append(trimmed, "")
		}
		parsed[name] = trimmed
	}
	return Tags{
		tags:    parsed,
		witness: initialized.Make(),
	}, nil
}

// Default returns the textual default for the field, or nil when the
// field carries no `default` tag.
func (tags Tags) Default() *string {
	tags.witness.Assert()
	result, ok := tags.tags["default"]
	if !ok || len(result) == 0 {
		return nil
	}

	return &result[0]
}

// Key returns the payload key the field is renamed to under the given
// main tag, e.g. `json:"foo"` renames to "foo". Nil when the tag is
// absent.
func (tags Tags) Key(mainTag string) *string {
	tags.witness.Assert()
	result, ok := tags.tags[mainTag]
	if !ok || len(result) == 0 {
		return nil
	}
	return &result[0]
}

// IsSkipped returns true when the main tag hides the field entirely,
// e.g. `json:"-"`.
func (tags Tags) IsSkipped(mainTag string) bool {
	key := tags.Key(mainTag)
	return key != nil && *key == "-"
}

// IsFlattened returns true if the field is marked `flatten`, e.g.
//
//	type Flattening struct {
//	    A string
//	    B struct {
//	        C string
//	        D string
//	    } `flatten:""`
//	}
//
// maps to and from the dictionary
//
//	{
//	   "A": "aaaaa",
//	   // no key B
//	   "C": "ccccc",
//	   "D": "ddddd"
//	}
func (tags Tags) IsFlattened() bool {
	tags.witness.Assert()
	_, ok := tags.tags["flatten"]
	return ok
}

// Lookup returns the values parsed for an arbitrary tag name.
func (tags Tags) Lookup(key string) ([]string, bool) {
	tags.witness.Assert()
	result, ok := tags.tags[key]
	return result, ok
}
