package strategy

import (
	"fmt"

	"github.com/verdigris/modelmap/diag"
)

// AssociatedMap folds associated values into a {label: payload}
// dictionary. A nil or empty input yields an empty, non-nil map so the
// result is always safe to encode. Duplicate labels keep the last
// payload. A case that carries no payload contributes its textual form
// under its label and records a diagnostic on report.
func AssociatedMap(values []AssociatedValuer, report *diag.Report) map[string]any {
	out := make(map[string]any, len(values))
	for _, v := range values {
		if v == nil {
			continue
		}
		label, payload, ok := v.AssociatedValue()
		if !ok {
			out[label] = textualForm(v)
			report.Add(diag.Diagnostic{
				Kind: diag.ConverterFailure,
				Path: label,
				Err:  fmt.Errorf("case %q carries no payload", label),
			})
			continue
		}
		out[label] = payload
	}
	return out
}

func textualForm(v any) string {
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", v)
}
