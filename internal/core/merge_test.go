package core_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"rocklandcensus/internal/core"
	"rocklandcensus/internal/geo"
)

func sourceRecord(key core.GeoKey, fields ...any) *core.Record {
	rec := &core.Record{Key: key}
	for i := 0; i+1 < len(fields); i += 2 {
		rec.Set(fields[i].(string), fields[i+1].(core.Value))
	}
	return rec
}

func TestMergeOverlayOrder(t *testing.T) {
	reg := geo.Rockland()
	keys := []core.GeoKey{"10952", "10901"}
	src := core.SourceResults{
		Income: []*core.Record{
			sourceRecord("10952", core.FieldPlaceName, core.Text("income name"), "MedianIncome", core.Number(80000)),
			sourceRecord("10901", core.FieldPlaceName, core.Text("income name"), "MedianIncome", core.Number(120000)),
		},
		Occupation: []*core.Record{
			sourceRecord("10952", core.FieldPlaceName, core.Text("occupation name"), "CivEmp16Over", core.Number(9000)),
			nil,
		},
		Race: []*core.Record{
			sourceRecord("10901", core.FieldPlaceName, core.Text("race name"), "White alone", core.Number(1)),
		},
	}

	got := core.Merge(reg, keys, src)
	if diff := cmp.Diff(keys, got.Keys()); diff != "" {
		t.Fatalf("key order mismatch (-want +got):\n%s", diff)
	}

	monsey := got[0]
	wantFields := []string{core.FieldGeoKey, core.FieldDisplayName, core.FieldPlaceName, "MedianIncome", "CivEmp16Over"}
	if diff := cmp.Diff(wantFields, monsey.FieldNames()); diff != "" {
		t.Fatalf("field order mismatch (-want +got):\n%s", diff)
	}
	if v, _ := monsey.Get(core.FieldPlaceName); v.String() != "occupation name" {
		t.Fatalf("expected later source to win, got %q", v.String())
	}
	if v, _ := monsey.Get(core.FieldDisplayName); v.String() != "Monsey" {
		t.Fatalf("expected registry display name, got %q", v.String())
	}

	suffern := got[1]
	if v, _ := suffern.Get(core.FieldPlaceName); v.String() != "race name" {
		t.Fatalf("expected race to win, got %q", v.String())
	}
	if suffern.Has("CivEmp16Over") {
		t.Fatalf("missing occupation row should leave no occupation fields")
	}
}

func TestMergeWithoutData(t *testing.T) {
	reg := geo.Rockland()
	keys := []core.GeoKey{"10994"}
	got := core.Merge(reg, keys, core.SourceResults{Income: make([]*core.Record, 1), Occupation: make([]*core.Record, 1)})
	if len(got) != 1 {
		t.Fatalf("expected one record, got %d", len(got))
	}
	want := []string{core.FieldGeoKey, core.FieldDisplayName}
	if diff := cmp.Diff(want, got[0].FieldNames()); diff != "" {
		t.Fatalf("expected identifying fields only (-want +got):\n%s", diff)
	}
}

func TestMergeIgnoresMisalignedRecords(t *testing.T) {
	reg := geo.Rockland()
	keys := []core.GeoKey{"10901"}
	src := core.SourceResults{
		Income: []*core.Record{sourceRecord("10952", "MedianIncome", core.Number(1))},
	}
	got := core.Merge(reg, keys, src)
	if got[0].Has("MedianIncome") {
		t.Fatalf("record for another key must not be merged")
	}
}

func TestMergeDuplicateKeys(t *testing.T) {
	reg := geo.Rockland()
	keys := []core.GeoKey{"10901", "10901"}
	income := sourceRecord("10901", "MedianIncome", core.Number(5))
	src := core.SourceResults{
		Income: []*core.Record{income, income},
		Race:   []*core.Record{sourceRecord("10901", "Total", core.Number(10))},
	}
	got := core.Merge(reg, keys, src)
	if len(got) != 2 {
		t.Fatalf("expected a record per requested key, got %d", len(got))
	}
	if got[0] == got[1] {
		t.Fatalf("records must be independent")
	}
	for _, rec := range got {
		if v, _ := rec.Get("Total"); v != core.Number(10) {
			t.Fatalf("expected race data on each duplicate, got %v", v)
		}
	}
}

func TestMergeCombinesRaceChunks(t *testing.T) {
	reg := geo.Rockland()
	keys := []core.GeoKey{"10956"}
	src := core.SourceResults{
		Race: []*core.Record{
			sourceRecord("10956", "Total", core.Number(100)),
			sourceRecord("10956", "Population of five or six races", core.Number(1)),
		},
	}
	got := core.Merge(reg, keys, src)
	if !got[0].Has("Total") || !got[0].Has("Population of five or six races") {
		t.Fatalf("expected fields from both chunks, got %v", got[0].FieldNames())
	}
	if src.Race[0].Has("Population of five or six races") || src.Race[0].Len() != 1 {
		t.Fatalf("merge modified its race input: %v", src.Race[0].FieldNames())
	}
}
