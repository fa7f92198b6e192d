package tags_test

import (
	"reflect"
	"testing"

	"github.com/verdigris/modelmap/mapping/tags"
	"gotest.tools/v3/assert"
)

type RandomStruct struct {
	ABC           string  `first:"1,2,3" second:"" third:"abc" fourth:"1,     2,3" fifth:"    abc  " `
	DefaultString string  `default:""`
	DefaultNil    *string `default:"nil"`
	DefaultStruct string  `default:"{}"`
	Repeat        string  `abc:"" abc:""` //lint:ignore SA5008 we're testing for this
	Interesting   string  `default:"abc, def" json:"interesting" flatten:""`
	Hidden        string  `json:"-"`
}

func fieldTags(t *testing.T, name string) tags.Tags {
	t.Helper()
	reflectT := reflect.TypeOf(RandomStruct{}) //nolint:exhaustruct
	reflectField, ok := reflectT.FieldByName(name)
	assert.Assert(t, ok, "no field %s", name)
	parsed, err := tags.Parse(reflectField.Tag)
	assert.NilError(t, err)
	return parsed
}

func TestReadTags(t *testing.T) {
	parsed := fieldTags(t, "ABC")

	first, ok := parsed.Lookup("first")
	assert.Assert(t, ok)
	assert.DeepEqual(t, first, []string{"1", "2", "3"})

	second, ok := parsed.Lookup("second")
	assert.Assert(t, ok)
	assert.DeepEqual(t, second, []string{""})

	third, ok := parsed.Lookup("third")
	assert.Assert(t, ok)
	assert.DeepEqual(t, third, []string{"abc"})

	fourth, ok := parsed.Lookup("fourth")
	assert.Assert(t, ok)
	assert.DeepEqual(t, fourth, []string{"1", "2", "3"})

	fifth, ok := parsed.Lookup("fifth")
	assert.Assert(t, ok)
	assert.DeepEqual(t, fifth, []string{"abc"})

	_, ok = parsed.Lookup("absent")
	assert.Assert(t, !ok, "should not find a non-existent tag")
}

func TestDefaults(t *testing.T) {
	samples := []struct {
		field    string
		expected string
	}{
		{field: "DefaultString", expected: ""},
		{field: "DefaultNil", expected: "nil"},
		{field: "DefaultStruct", expected: "{}"},
	}
	for _, sample := range samples {
		parsed := fieldTags(t, sample.field)
		defaultValue := parsed.Default()
		assert.Assert(t, defaultValue != nil, "field %s should carry a default", sample.field)
		assert.Equal(t, *defaultValue, sample.expected)
	}

	parsed := fieldTags(t, "ABC")
	assert.Assert(t, parsed.Default() == nil)
}

// Parsing fails if the same tag appears more than once.
func TestRepeatFails(t *testing.T) {
	reflectT := reflect.TypeOf(RandomStruct{}) //nolint:exhaustruct
	reflectField, _ := reflectT.FieldByName("Repeat")
	_, err := tags.Parse(reflectField.Tag)
	assert.ErrorContains(t, err, "should only be defined once")
}

func TestMainTag(t *testing.T) {
	parsed := fieldTags(t, "Interesting")

	defaultValue := parsed.Default()
	assert.Equal(t, *defaultValue, "abc, def", "defaults should remain untrimmed")

	key := parsed.Key("json")
	assert.Assert(t, key != nil)
	assert.Equal(t, *key, "interesting")

	assert.Assert(t, parsed.IsFlattened())
	assert.Assert(t, !parsed.IsSkipped("json"))

	missing := parsed.Key("yaml")
	assert.Assert(t, missing == nil)
}

func TestSkipped(t *testing.T) {
	parsed := fieldTags(t, "Hidden")
	assert.Assert(t, parsed.IsSkipped("json"))

	empty := tags.Empty()
	assert.Assert(t, !empty.IsSkipped("json"))
	assert.Assert(t, !empty.IsFlattened())
	assert.Assert(t, empty.Default() == nil)
}
