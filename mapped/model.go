package mapped

import (
	"github.com/verdigris/modelmap/diag"
	"github.com/verdigris/modelmap/mapping"
)

// Model is the embeddable base of a mapped object. It carries the
// side channel for payload keys that matched no property, and the
// report of the population that produced the value. Embedding it is
// optional; a plain struct maps fine, it just has nowhere to keep
// extras.
//
//	type Profile struct {
//	    mapped.Model
//	    Name string `json:"name"`
//	}
type Model struct {
	extras map[string]any
	report *diag.Report
}

// SetExtra stores a payload key that no property accepted.
func (m *Model) SetExtra(key string, value any) {
	if m.extras == nil {
		m.extras = make(map[string]any)
	}
	m.extras[key] = value
}

// Extra returns one stored extra.
func (m *Model) Extra(key string) (any, bool) {
	v, ok := m.extras[key]
	return v, ok
}

// Extras returns the stored extras. Callers must not mutate the map.
func (m *Model) Extras() map[string]any {
	return m.extras
}

// AttachReport hands the value the report of its population.
func (m *Model) AttachReport(r *diag.Report) {
	m.report = r
}

// MappingReport returns the report attached by the last population,
// nil before the first one.
func (m *Model) MappingReport() *diag.Report {
	return m.report
}

var (
	_ mapping.ExtraStore = (*Model)(nil)
	_ mapping.ReportSink = (*Model)(nil)
)
