package diag_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/verdigris/modelmap/diag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gotest.tools/v3/assert"
)

func TestDiagnosticMessages(t *testing.T) {
	cause := errors.New("strconv: bad syntax")
	samples := []struct {
		diagnostic diag.Diagnostic
		expected   string
	}{
		{
			diagnostic: diag.Diagnostic{Kind: diag.UnknownKey, Path: "Outer.Inner", Key: "surprise"},
			expected:   `at Outer.Inner, no property accepts key "surprise"`,
		},
		{
			diagnostic: diag.Diagnostic{Kind: diag.UnsupportedField, Path: "Outer.Hook", Type: "func()"},
			expected:   "at Outer.Hook, cannot map values of type func()",
		},
		{
			diagnostic: diag.Diagnostic{Kind: diag.CoercionFailure, Path: "Outer.Count", Type: "int", Err: cause},
			expected:   "at Outer.Count, cannot convert value into int: strconv: bad syntax",
		},
		{
			diagnostic: diag.Diagnostic{Kind: diag.MalformedInput, Path: "Outer", Err: cause},
			expected:   "at Outer, malformed input: strconv: bad syntax",
		},
		{
			diagnostic: diag.Diagnostic{Kind: diag.MissingArchive, Path: "/tmp/missing.ion"},
			expected:   "no archive at /tmp/missing.ion",
		},
		{
			diagnostic: diag.Diagnostic{Kind: diag.ValidationFailure, Path: "Outer", Err: cause},
			expected:   "at Outer, validation rejected the value: strconv: bad syntax",
		},
		{
			diagnostic: diag.Diagnostic{Kind: diag.ConverterFailure, Path: "Outer.Level", Err: cause},
			expected:   "at Outer.Level, converter failed: strconv: bad syntax",
		},
	}
	for _, sample := range samples {
		assert.Equal(t, sample.diagnostic.Error(), sample.expected)
	}
}

func TestDiagnosticUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	wrapped := diag.Diagnostic{Kind: diag.CoercionFailure, Path: "X", Err: fmt.Errorf("while parsing: %w", cause)}
	assert.Assert(t, errors.Is(wrapped, cause))
}

func TestReportCollects(t *testing.T) {
	report := diag.NewReport(zap.NewNop())
	assert.Equal(t, report.Len(), 0)
	assert.NilError(t, report.Err())

	report.Add(diag.Diagnostic{Kind: diag.UnknownKey, Path: "T", Key: "a"})
	report.Add(diag.Diagnostic{Kind: diag.CoercionFailure, Path: "T.B", Type: "int", Err: errors.New("nope")})

	assert.Equal(t, report.Len(), 2)
	assert.Assert(t, report.Has(diag.UnknownKey))
	assert.Assert(t, report.Has(diag.CoercionFailure))
	assert.Assert(t, !report.Has(diag.MissingArchive))

	all := report.All()
	assert.Equal(t, len(all), 2)
	assert.Equal(t, all[0].Key, "a")

	err := report.Err()
	assert.ErrorContains(t, err, `no property accepts key "a"`)
	assert.ErrorContains(t, err, "cannot convert value into int")

	report.Reset()
	assert.Equal(t, report.Len(), 0)
	assert.NilError(t, report.Err())
}

func TestNilReportIsInert(t *testing.T) {
	var report *diag.Report
	report.Add(diag.Diagnostic{Kind: diag.UnknownKey, Path: "T", Key: "a"})
	assert.Equal(t, report.Len(), 0)
	assert.NilError(t, report.Err())
	assert.Assert(t, report.All() == nil)
	report.Reset()
}

func TestNilLoggerIsAccepted(t *testing.T) {
	report := diag.NewReport(nil)
	report.Add(diag.Diagnostic{Kind: diag.MissingArchive, Path: "/nowhere"})
	assert.Equal(t, report.Len(), 1)
}

func TestLogReplaysDiagnostics(t *testing.T) {
	core, observed := observer.New(zapcore.WarnLevel)
	report := diag.NewReport(nil)
	report.Add(diag.Diagnostic{Kind: diag.UnknownKey, Path: "T", Key: "a"})
	report.Add(diag.Diagnostic{Kind: diag.MissingArchive, Path: "/nowhere"})

	report.Log(zap.New(core))
	assert.Equal(t, observed.Len(), 2)
	assert.Equal(t, observed.All()[0].ContextMap()["key"], "a")

	report.Log(nil)
	assert.Equal(t, observed.Len(), 2)
}

func TestPolicyString(t *testing.T) {
	assert.Equal(t, diag.Lenient.String(), "lenient")
	assert.Equal(t, diag.Strict.String(), "strict")
}
