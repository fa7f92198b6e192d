// Package yaml implements the YAML wire driver.
package yaml

import (
	"fmt"

	goyaml "github.com/goccy/go-yaml"
	"github.com/verdigris/modelmap/mapping/value"
)

// Driver parses and renders YAML payloads.
type Driver struct{}

func (Driver) Name() string {
	return "yaml"
}

func (Driver) Unmarshal(data []byte) (value.Dict, error) {
	dict := make(map[string]any)
	if err := goyaml.Unmarshal(data, &dict); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	return value.MapDict(dict), nil
}

func (Driver) Marshal(dict map[string]any) ([]byte, error) {
	return goyaml.Marshal(dict)
}
