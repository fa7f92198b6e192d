// Package testutils carries small helpers shared by tests across the
// module.
package testutils

import (
	"testing"

	"github.com/verdigris/modelmap/archive"
	mapjson "github.com/verdigris/modelmap/mapping/json"
)

// JSONDict parses an inline JSON object literal, failing the test on
// malformed input. Numbers come back as json.Number, exactly as the
// JSON driver delivers them to the engine.
func JSONDict(t *testing.T, payload string) map[string]any {
	t.Helper()
	dict, err := mapjson.Driver{}.Unmarshal([]byte(payload))
	if err != nil {
		t.Fatalf("test payload does not parse: %v", err)
	}
	return dict.AsMap()
}

// TempStore returns an archive store rooted in a directory that lives
// for the duration of the test.
func TempStore(t *testing.T) *archive.Store {
	t.Helper()
	store, err := archive.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("cannot build a store over a test directory: %v", err)
	}
	return store
}
