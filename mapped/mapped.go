// Package mapped is the front door of the module: generic helpers
// that map structs to dictionaries, JSON, YAML and binary archives,
// plus structural equality, hashing and readable descriptions, all
// driven by the mapping engine.
//
// The helpers never panic. In the default lenient policy they degrade:
// a malformed payload or a value that cannot be coerced yields a
// default-valued instance and diagnostics on the population report,
// reachable through Model.MappingReport or an injected WithReport.
// WithStrict turns those diagnostics into errors.
package mapped

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/go-cmp/cmp"
	"github.com/mitchellh/hashstructure/v2"
	"github.com/verdigris/modelmap/archive"
	"github.com/verdigris/modelmap/diag"
	"github.com/verdigris/modelmap/mapping"
	mapjson "github.com/verdigris/modelmap/mapping/json"
	"github.com/verdigris/modelmap/mapping/value"
	mapyaml "github.com/verdigris/modelmap/mapping/yaml"
	"go.uber.org/zap"
)

// Option adjusts one call to the facade.
type Option func(*config)

// WithReport collects the call's diagnostics on r instead of a fresh
// report.
func WithReport(r *diag.Report) Option {
	return func(c *config) { c.report = r }
}

// WithStrict makes degradations fail the call instead of landing on
// the report.
func WithStrict() Option {
	return func(c *config) { c.policy = diag.Strict }
}

// WithLogger logs diagnostics through l. The default is no logging.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithTagName reads renames and skips from another struct tag than
// `json`.
func WithTagName(name string) Option {
	return func(c *config) { c.tagName = name }
}

// WithStore saves and loads archives through s instead of the
// function's default store.
func WithStore(s *archive.Store) Option {
	return func(c *config) { c.store = s }
}

type config struct {
	report  *diag.Report
	policy  diag.Policy
	logger  *zap.Logger
	tagName string
	store   *archive.Store
}

func newConfig(opts []Option) *config {
	cfg := &config{} //nolint:exhaustruct
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.tagName == "" {
		cfg.tagName = "json"
	}
	return cfg
}

func (c *config) ensureReport() *diag.Report {
	if c.report == nil {
		c.report = diag.NewReport(c.logger)
	}
	return c.report
}

// mapperKey identifies one compiled-schema cache. Schemas depend on
// the tag name only; policy and logger ride along so a Mapper can be
// reused as-is.
type mapperKey struct {
	policy  diag.Policy
	tagName string
	logger  *zap.Logger
}

var mappers sync.Map // mapperKey -> *mapping.Mapper

func mapperFor(cfg *config) *mapping.Mapper {
	key := mapperKey{policy: cfg.policy, tagName: cfg.tagName, logger: cfg.logger}
	if cached, ok := mappers.Load(key); ok {
		return cached.(*mapping.Mapper)
	}
	mapper := mapping.New(mapping.Options{ //nolint:exhaustruct
		TagName: cfg.tagName,
		Policy:  cfg.policy,
		Logger:  cfg.logger,
	})
	actual, _ := mappers.LoadOrStore(key, mapper)
	return actual.(*mapping.Mapper)
}

func attachReport[T any](out *T, r *diag.Report) {
	if sink, ok := any(out).(mapping.ReportSink); ok {
		sink.AttachReport(r)
	}
}

func typeName[T any]() string {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if name := t.Name(); name != "" {
		return name
	}
	return t.String()
}

// FromMap builds a T from a dictionary. A nil or empty dictionary
// yields a default-valued instance.
func FromMap[T any](dict map[string]any, opts ...Option) (*T, error) {
	cfg := newConfig(opts)
	out := new(T)
	if err := mapperFor(cfg).Populate(out, dict, cfg.ensureReport()); err != nil {
		return out, err
	}
	return out, nil
}

// FromJSON builds a T from a JSON object. Malformed JSON degrades to
// the default-valued instance with a MalformedInput diagnostic, or
// fails the call under WithStrict.
func FromJSON[T any](text string, opts ...Option) (*T, error) {
	return fromPayload[T](newConfig(opts), mapjson.Driver{}, []byte(text))
}

// FromYAML is FromJSON for YAML payloads.
func FromYAML[T any](text string, opts ...Option) (*T, error) {
	return fromPayload[T](newConfig(opts), mapyaml.Driver{}, []byte(text))
}

func fromPayload[T any](cfg *config, driver value.Driver, data []byte) (*T, error) {
	report := cfg.ensureReport()
	dict, err := driver.Unmarshal(data)
	if err != nil {
		report.Add(diag.Diagnostic{Kind: diag.MalformedInput, Path: typeName[T](), Key: "", Type: driver.Name(), Err: err})
		out := new(T)
		attachReport(out, report)
		if cfg.policy == diag.Strict {
			return out, err
		}
		return out, nil
	}
	out := new(T)
	if err := mapperFor(cfg).Populate(out, dict.AsMap(), report); err != nil {
		return out, err
	}
	return out, nil
}

// ToMap renders a struct, or non-nil pointer to one, into the
// dictionary of its mapped properties.
func ToMap(v any, opts ...Option) (map[string]any, error) {
	cfg := newConfig(opts)
	return mapperFor(cfg).Encode(v, cfg.ensureReport())
}

// ToJSON renders a struct into a JSON object.
func ToJSON(v any, opts ...Option) (string, error) {
	dict, err := ToMap(v, opts...)
	if err != nil {
		return "", err
	}
	data, err := mapjson.Driver{}.Marshal(dict)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ToYAML renders a struct into a YAML document.
func ToYAML(v any, opts ...Option) (string, error) {
	dict, err := ToMap(v, opts...)
	if err != nil {
		return "", err
	}
	data, err := mapyaml.Driver{}.Marshal(dict)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Encode renders a struct into binary archive bytes.
func Encode(v any, opts ...Option) ([]byte, error) {
	dict, err := ToMap(v, opts...)
	if err != nil {
		return nil, err
	}
	return archive.Codec{}.Marshal(dict)
}

// Decode builds a T from binary archive bytes. Unlike FromJSON it
// fails on undecodable bytes in both policies; an archive that does
// not parse carries nothing to degrade to.
func Decode[T any](data []byte, opts ...Option) (*T, error) {
	cfg := newConfig(opts)
	report := cfg.ensureReport()
	dict, err := archive.Codec{}.Unmarshal(data)
	if err != nil {
		out := new(T)
		report.Add(diag.Diagnostic{Kind: diag.MalformedInput, Path: typeName[T](), Key: "", Type: "ion", Err: err})
		attachReport(out, report)
		return out, err
	}
	out := new(T)
	if err := mapperFor(cfg).Populate(out, dict, report); err != nil {
		return out, err
	}
	return out, nil
}

// SaveTemp archives a struct under name in the temporary store,
// reporting success. Failures land on the report as diagnostics.
func SaveTemp(v any, name string, opts ...Option) bool {
	cfg := newConfig(opts)
	return saveTo(cfg, resolveStore(cfg, archive.Temp), v, name)
}

// SaveDocuments is SaveTemp against the user's Documents store.
func SaveDocuments(v any, name string, opts ...Option) bool {
	cfg := newConfig(opts)
	return saveTo(cfg, resolveStore(cfg, archive.Documents), v, name)
}

// LoadTemp restores a struct archived under name in the temporary
// store. A missing or unreadable archive yields the default-valued
// instance and a MissingArchive diagnostic.
func LoadTemp[T any](name string, opts ...Option) *T {
	cfg := newConfig(opts)
	return loadFrom[T](cfg, resolveStore(cfg, archive.Temp), name)
}

// LoadDocuments is LoadTemp against the user's Documents store.
func LoadDocuments[T any](name string, opts ...Option) *T {
	cfg := newConfig(opts)
	return loadFrom[T](cfg, resolveStore(cfg, archive.Documents), name)
}

func resolveStore(cfg *config, fallback func() (*archive.Store, error)) *archive.Store {
	if cfg.store != nil {
		return cfg.store
	}
	store, err := fallback()
	if err != nil {
		cfg.ensureReport().Add(diag.Diagnostic{Kind: diag.MissingArchive, Path: "", Key: "", Type: "", Err: err})
		return nil
	}
	return store
}

func saveTo(cfg *config, store *archive.Store, v any, name string) bool {
	if store == nil {
		return false
	}
	dict, err := mapperFor(cfg).Encode(v, cfg.ensureReport())
	if err != nil {
		return false
	}
	if err := store.Save(name, dict); err != nil {
		cfg.ensureReport().Add(diag.Diagnostic{Kind: diag.MissingArchive, Path: name, Key: "", Type: "", Err: err})
		return false
	}
	return true
}

func loadFrom[T any](cfg *config, store *archive.Store, name string) *T {
	report := cfg.ensureReport()
	out := new(T)
	attachReport(out, report)
	if store == nil {
		return out
	}
	var dict map[string]any
	if err := store.Load(name, &dict); err != nil {
		report.Add(diag.Diagnostic{Kind: diag.MissingArchive, Path: name, Key: "", Type: "", Err: err})
		return out
	}
	// Population degrades on its own; a strict-policy error still
	// returns the untouched default instance.
	_ = mapperFor(cfg).Populate(out, dict, report)
	return out
}

// Equal compares two values structurally, by the dictionaries they
// encode to. Operands of different types are equal when their mapped
// properties are. Nil or unencodable operands are never equal.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return false
	}
	cfg := newConfig(nil)
	report := cfg.ensureReport()
	mapper := mapperFor(cfg)
	da, err := mapper.Encode(a, report)
	if err != nil {
		return false
	}
	db, err := mapper.Encode(b, report)
	if err != nil {
		return false
	}
	return cmp.Equal(da, db)
}

// Hash returns a structural hash of the encoded dictionary. Equal
// values hash equal; unencodable values hash to zero.
func Hash(v any) uint64 {
	cfg := newConfig(nil)
	dict, err := mapperFor(cfg).Encode(v, cfg.ensureReport())
	if err != nil {
		return 0
	}
	h, err := hashstructure.Hash(dict, hashstructure.FormatV2, nil)
	if err != nil {
		return 0
	}
	return h
}

// describer renders deterministic dumps: keys sorted, no pointer
// addresses or capacities.
var describer = spew.ConfigState{ //nolint:exhaustruct
	Indent:                  "  ",
	SortKeys:                true,
	DisablePointerAddresses: true,
	DisableCapacities:       true,
}

// Describe renders a human-readable dump of the mapped properties.
// Equal values describe identically. The format is for eyes, not for
// parsers.
func Describe(v any) string {
	cfg := newConfig(nil)
	dict, err := mapperFor(cfg).Encode(v, cfg.ensureReport())
	if err != nil {
		return describer.Sdump(v)
	}
	return describer.Sdump(dict)
}

// DebugDescribe is Describe plus the extras and the diagnostics of
// the last population, when v carries them.
func DebugDescribe(v any) string {
	var b strings.Builder
	b.WriteString(Describe(v))
	if carrier, ok := v.(interface{ Extras() map[string]any }); ok {
		if extras := carrier.Extras(); len(extras) > 0 {
			b.WriteString("extras:\n")
			b.WriteString(describer.Sdump(extras))
		}
	}
	if carrier, ok := v.(interface{ MappingReport() *diag.Report }); ok {
		if report := carrier.MappingReport(); report.Len() > 0 {
			b.WriteString("diagnostics:\n")
			for _, d := range report.All() {
				fmt.Fprintf(&b, "  %s\n", d.Error())
			}
		}
	}
	return b.String()
}

// Materialize populates the prototype that mapping.TypeSelector picks
// for the dictionary, for payloads whose concrete type depends on a
// discriminator.
func Materialize(proto any, dict map[string]any, opts ...Option) (any, error) {
	cfg := newConfig(opts)
	return mapperFor(cfg).Materialize(proto, dict, cfg.ensureReport())
}
