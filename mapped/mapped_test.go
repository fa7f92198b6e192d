//nolint:exhaustruct
package mapped_test

import (
	"strings"
	"testing"
	"time"

	"github.com/verdigris/modelmap/assertions/testutils"
	"github.com/verdigris/modelmap/diag"
	"github.com/verdigris/modelmap/mapped"
	"go.uber.org/zap"
	"gotest.tools/v3/assert"
)

type Track struct {
	mapped.Model

	Title    string        `json:"title"`
	Artist   string        `json:"artist" default:"unknown"`
	Duration time.Duration `json:"duration" default:"3m"`
	Plays    int           `json:"plays"`
}

type Playlist struct {
	mapped.Model

	Name   string  `json:"name"`
	Tracks []Track `json:"tracks"`
}

// Remaster mirrors Track property for property, without sharing a
// type.
type Remaster struct {
	Title    string        `json:"title"`
	Artist   string        `json:"artist"`
	Duration time.Duration `json:"duration"`
	Plays    int           `json:"plays"`
}

type Notice struct {
	mapped.Model

	Kind string `json:"kind"`
}

func (n *Notice) SelectType(dict map[string]any) any {
	if kind, ok := dict["kind"].(string); ok && kind == "urgent" {
		return &UrgentNotice{}
	}
	return nil
}

type UrgentNotice struct {
	mapped.Model

	Kind     string `json:"kind"`
	Escalate string `json:"escalate"`
}

func TestFromMapAppliesDefaults(t *testing.T) {
	track, err := mapped.FromMap[Track](map[string]any{
		"title": "Holiday",
		"plays": 4,
	})
	assert.NilError(t, err)

	assert.Equal(t, track.Title, "Holiday")
	assert.Equal(t, track.Artist, "unknown")
	assert.Equal(t, track.Duration, 3*time.Minute)
	assert.Equal(t, track.Plays, 4)
}

func TestFromMapNilDictionaryYieldsDefaults(t *testing.T) {
	track, err := mapped.FromMap[Track](nil)
	assert.NilError(t, err)

	assert.Equal(t, track.Artist, "unknown")
	assert.Equal(t, track.Duration, 3*time.Minute)
}

func TestFromJSONRoundTrip(t *testing.T) {
	playlist, err := mapped.FromJSON[Playlist](`{
		"name": "road trip",
		"tracks": [
			{"title": "Holiday", "artist": "Bebel", "duration": "2m43s", "plays": 9},
			{"title": "Metric"}
		]
	}`)
	assert.NilError(t, err)

	assert.Equal(t, playlist.Name, "road trip")
	assert.Equal(t, len(playlist.Tracks), 2)
	assert.Equal(t, playlist.Tracks[0].Duration, 2*time.Minute+43*time.Second)
	assert.Equal(t, playlist.Tracks[1].Artist, "unknown")

	text, err := mapped.ToJSON(playlist)
	assert.NilError(t, err)

	again, err := mapped.FromJSON[Playlist](text)
	assert.NilError(t, err)
	assert.Assert(t, mapped.Equal(playlist, again))
}

func TestFromJSONMalformedDegrades(t *testing.T) {
	track, err := mapped.FromJSON[Track](`{"title": broken`)
	assert.NilError(t, err)

	assert.Equal(t, track.Title, "", "the default instance is untouched, not defaulted")
	report := track.MappingReport()
	assert.Assert(t, report != nil)
	assert.Assert(t, report.Has(diag.MalformedInput))
}

func TestFromJSONMalformedFailsStrict(t *testing.T) {
	track, err := mapped.FromJSON[Track](`{"title": broken`, mapped.WithStrict())
	assert.Assert(t, err != nil)
	assert.Assert(t, track != nil, "even the failing call hands back an instance")
}

func TestFromYAMLRoundTrip(t *testing.T) {
	track, err := mapped.FromYAML[Track]("title: Holiday\nduration: 2m43s\nplays: 9\n")
	assert.NilError(t, err)

	assert.Equal(t, track.Title, "Holiday")
	assert.Equal(t, track.Duration, 2*time.Minute+43*time.Second)

	text, err := mapped.ToYAML(track)
	assert.NilError(t, err)
	assert.Assert(t, strings.Contains(text, "Holiday"))

	again, err := mapped.FromYAML[Track](text)
	assert.NilError(t, err)
	assert.Assert(t, mapped.Equal(track, again))
}

func TestToMapNormalizesScalars(t *testing.T) {
	dict, err := mapped.ToMap(Track{Title: "Holiday", Artist: "Bebel", Duration: 90 * time.Second, Plays: 9})
	assert.NilError(t, err)

	assert.DeepEqual(t, dict, map[string]any{
		"title":    "Holiday",
		"artist":   "Bebel",
		"duration": "1m30s",
		"plays":    int64(9),
	})
}

func TestExtrasAreKeptOutOfTheDictionary(t *testing.T) {
	track, err := mapped.FromJSON[Track](`{"title": "Holiday", "mood": "blue"}`)
	assert.NilError(t, err)

	mood, ok := track.Extra("mood")
	assert.Assert(t, ok)
	assert.Equal(t, mood, "blue")
	assert.Assert(t, track.MappingReport().Has(diag.UnknownKey))

	dict, err := mapped.ToMap(track)
	assert.NilError(t, err)
	_, leaked := dict["mood"]
	assert.Assert(t, !leaked, "extras never travel back out")
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	original := Track{Title: "Holiday", Artist: "Bebel", Duration: 2 * time.Minute, Plays: 9}
	data, err := mapped.Encode(original)
	assert.NilError(t, err)
	assert.Assert(t, len(data) > 0)

	decoded, err := mapped.Decode[Track](data)
	assert.NilError(t, err)
	assert.Assert(t, mapped.Equal(original, decoded))
}

func TestDecodeFailsOnUndecodableBytes(t *testing.T) {
	report := diag.NewReport(nil)
	_, err := mapped.Decode[Track]([]byte{0xE0, 0x01, 0x00, 0xEA, 0xFF}, mapped.WithReport(report))

	assert.Assert(t, err != nil)
	assert.Assert(t, report.Has(diag.MalformedInput))
}

func TestSaveAndLoadThroughStore(t *testing.T) {
	store := testutils.TempStore(t)
	original := Track{Title: "Holiday", Artist: "Bebel", Duration: 2 * time.Minute, Plays: 9}

	assert.Assert(t, mapped.SaveTemp(original, "track.ion", mapped.WithStore(store)))

	loaded := mapped.LoadTemp[Track]("track.ion", mapped.WithStore(store))
	assert.Assert(t, mapped.Equal(original, loaded))
}

func TestSaveRejectsInvalidNames(t *testing.T) {
	report := diag.NewReport(nil)
	store := testutils.TempStore(t)
	ok := mapped.SaveTemp(Track{Title: "x"}, "../escape.ion", mapped.WithStore(store), mapped.WithReport(report))

	assert.Assert(t, !ok)
	assert.Assert(t, report.Has(diag.MissingArchive))
}

func TestLoadMissingArchiveDegrades(t *testing.T) {
	report := diag.NewReport(nil)
	store := testutils.TempStore(t)
	loaded := mapped.LoadTemp[Track]("absent.ion", mapped.WithStore(store), mapped.WithReport(report))

	assert.Assert(t, loaded != nil)
	assert.Equal(t, loaded.Title, "")
	assert.Assert(t, report.Has(diag.MissingArchive))
	assert.Assert(t, loaded.MappingReport() == report, "the instance carries the report it degraded under")
}

func TestDocumentsStoreRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	original := Track{Title: "Holiday", Plays: 2}

	assert.Assert(t, mapped.SaveDocuments(original, "track.ion"))

	loaded := mapped.LoadDocuments[Track]("track.ion")
	assert.Assert(t, mapped.Equal(original, loaded))
}

func TestEqualComparesAcrossTypes(t *testing.T) {
	track := Track{Title: "Holiday", Artist: "Bebel", Duration: time.Minute, Plays: 2}
	same := Remaster{Title: "Holiday", Artist: "Bebel", Duration: time.Minute, Plays: 2}
	other := Remaster{Title: "Holiday", Artist: "Bebel", Duration: time.Minute, Plays: 3}

	assert.Assert(t, mapped.Equal(track, same))
	assert.Assert(t, !mapped.Equal(track, other))
	assert.Assert(t, !mapped.Equal(track, nil))
	assert.Assert(t, !mapped.Equal(nil, track))
}

func TestHashFollowsEquality(t *testing.T) {
	track := Track{Title: "Holiday", Artist: "Bebel", Duration: time.Minute, Plays: 2}
	same := Remaster{Title: "Holiday", Artist: "Bebel", Duration: time.Minute, Plays: 2}
	other := Track{Title: "Holiday", Artist: "Bebel", Duration: time.Minute, Plays: 3}

	assert.Assert(t, mapped.Hash(track) != 0)
	assert.Equal(t, mapped.Hash(track), mapped.Hash(same))
	assert.Assert(t, mapped.Hash(track) != mapped.Hash(other))
	assert.Equal(t, mapped.Hash(42), uint64(0), "unencodable values hash to zero")
}

func TestDescribeIsDeterministic(t *testing.T) {
	track := Track{Title: "Holiday", Artist: "Bebel", Duration: time.Minute, Plays: 2}

	first := mapped.Describe(track)
	assert.Equal(t, first, mapped.Describe(track))
	assert.Assert(t, strings.Contains(first, "Holiday"))
	assert.Assert(t, strings.Contains(first, "1m0s"))
	assert.Assert(t, !strings.Contains(first, "0x"), "no pointer addresses in dumps")
}

func TestDebugDescribeCarriesExtrasAndDiagnostics(t *testing.T) {
	track, err := mapped.FromJSON[Track](`{"title": "Holiday", "mood": "blue"}`)
	assert.NilError(t, err)

	dump := mapped.DebugDescribe(track)
	assert.Assert(t, strings.Contains(dump, "mood"))
	assert.Assert(t, strings.Contains(dump, "no property accepts key"))
}

func TestWithTagNameSelectsAnotherTag(t *testing.T) {
	type exported struct {
		Name string `config:"name" json:"ignored"`
	}
	out, err := mapped.FromMap[exported](map[string]any{"name": "right"}, mapped.WithTagName("config"))
	assert.NilError(t, err)
	assert.Equal(t, out.Name, "right")
}

func TestWithLoggerIsAccepted(t *testing.T) {
	track, err := mapped.FromJSON[Track](`{"title": "Holiday"}`, mapped.WithLogger(zap.NewNop()))
	assert.NilError(t, err)
	assert.Equal(t, track.Title, "Holiday")
}

func TestMaterializeSelectsSubtype(t *testing.T) {
	out, err := mapped.Materialize(&Notice{}, map[string]any{
		"kind":     "urgent",
		"escalate": "oncall",
	})
	assert.NilError(t, err)

	urgent, ok := out.(*UrgentNotice)
	assert.Assert(t, ok, "expected an *UrgentNotice, got %T", out)
	assert.Equal(t, urgent.Escalate, "oncall")
}
