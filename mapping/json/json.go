// Package json implements the JSON wire driver.
package json

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/verdigris/modelmap/mapping/value"
)

// api is frozen once. UseNumber keeps integer payloads exact instead
// of routing every number through float64.
var api = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	UseNumber:              true,
}.Froze()

// Driver parses and renders JSON payloads.
type Driver struct{}

func (Driver) Name() string {
	return "json"
}

func (Driver) Unmarshal(data []byte) (value.Dict, error) {
	dict := make(map[string]any)
	if err := api.Unmarshal(data, &dict); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return value.MapDict(dict), nil
}

func (Driver) Marshal(dict map[string]any) ([]byte, error) {
	return api.Marshal(dict)
}

// MarshalIndent renders dict with two-space indentation, for debug
// output.
func MarshalIndent(dict map[string]any) ([]byte, error) {
	return api.MarshalIndent(dict, "", "  ")
}
