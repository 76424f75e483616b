package pivot

import (
	"strings"
	"testing"

	json "github.com/goccy/go-json"
)

func f(v float64) *float64 { return &v }

func id(geo string) Identity {
	return Identity{GeoID: geo, GeoName: geo + "-name", GeoLevel: "ADM", GeoParentName: "city1"}
}

func TestPivot_SingleIndicator(t *testing.T) {
	res := Pivot([]ValueRow{{Identity: id("geo1"), Indicator: "IND_1", Value: f(10)}})

	if len(res.Records) != 1 {
		t.Fatalf("records=%d want 1", len(res.Records))
	}
	if v, ok := res.Records[0].Value("IND_1"); !ok || v != 10 {
		t.Fatalf("IND_1=%v,%v want 10", v, ok)
	}

	b, err := json.Marshal(res.Records[0])
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatal(err)
	}
	if m["geo_id"] != "geo1" || m["IND_1"] != float64(10) || m["geo_parent_name"] != "city1" {
		t.Fatalf("record json=%s", b)
	}
}

func TestPivot_SentinelBecomesNull(t *testing.T) {
	res := Pivot([]ValueRow{
		{Identity: id("geo1"), Indicator: "IND_1", Value: f(Sentinel)},
		{Identity: id("geo1"), Indicator: "IND_2", Value: f(3)},
	})
	if res.Records[0].Values["IND_1"] != nil {
		t.Fatal("sentinel must be null")
	}
	b, _ := json.Marshal(res.Records[0])
	if strings.Contains(string(b), "9999") {
		t.Fatalf("sentinel leaked: %s", b)
	}
	if !strings.Contains(string(b), `"IND_1":null`) {
		t.Fatalf("IND_1 should be null: %s", b)
	}
}

func TestPivot_ColumnsAreUnionAndMissingCellsNull(t *testing.T) {
	res := Pivot([]ValueRow{
		{Identity: id("geo2"), Indicator: "B", Value: f(2)},
		{Identity: id("geo1"), Indicator: "A", Value: f(1)},
		{Identity: id("geo1"), Indicator: "B", Value: f(3)},
	})
	if got := strings.Join(res.Columns, ","); got != "A,B" {
		t.Fatalf("columns=%s want A,B", got)
	}
	if res.Records[0].GeoID != "geo2" || res.Records[1].GeoID != "geo1" {
		t.Fatalf("records must keep first-appearance order: %s,%s", res.Records[0].GeoID, res.Records[1].GeoID)
	}
	a, present := res.Records[0].Values["A"]
	if !present || a != nil {
		t.Fatalf("geo2 must carry a null A column, got present=%v value=%v", present, a)
	}
	for _, r := range res.Records {
		if len(r.Values) != len(res.Columns) {
			t.Fatalf("%s has %d cells want %d", r.GeoID, len(r.Values), len(res.Columns))
		}
	}
}

func TestPivot_NoRowsIsEmpty(t *testing.T) {
	res := Pivot(nil)
	if !res.Empty() || len(res.Columns) != 0 {
		t.Fatalf("res=%+v want empty", res)
	}
}

func TestPivot_DuplicateFirstWinsAndIsReported(t *testing.T) {
	res := Pivot([]ValueRow{
		{Identity: id("geo1"), Indicator: "IND_1", Value: f(1)},
		{Identity: id("geo1"), Indicator: "IND_1", Value: f(2)},
	})
	if v, _ := res.Records[0].Value("IND_1"); v != 1 {
		t.Fatalf("IND_1=%v want first value 1", v)
	}
	if len(res.Duplicates) != 1 {
		t.Fatalf("duplicates=%d want 1", len(res.Duplicates))
	}
	d := res.Duplicates[0]
	if d.GeoID != "geo1" || *d.Kept != 1 || *d.Dropped != 2 {
		t.Fatalf("duplicate=%+v", d)
	}
}

func TestPivot_VersionsAreSeparateRecords(t *testing.T) {
	v1 := id("geo1")
	v1.IndicatorVersion = 1
	res := Pivot([]ValueRow{
		{Identity: id("geo1"), Indicator: "IND_1", Value: f(1)},
		{Identity: v1, Indicator: "IND_1", Value: f(2)},
	})
	if len(res.Records) != 2 || len(res.Duplicates) != 0 {
		t.Fatalf("records=%d duplicates=%d want 2/0", len(res.Records), len(res.Duplicates))
	}
	if idx := res.Index(); idx["geo1"].IndicatorVersion != 0 {
		t.Fatalf("Index must keep the first record, got version %d", idx["geo1"].IndicatorVersion)
	}
}

func TestPivot_RoundTrip(t *testing.T) {
	in := []ValueRow{
		{Identity: id("geo1"), Indicator: "A", Value: f(1)},
		{Identity: id("geo1"), Indicator: "B", Value: f(2)},
		{Identity: id("geo2"), Indicator: "A", Value: f(3)},
		{Identity: id("geo3"), Indicator: "B", Value: f(Sentinel)},
	}
	first := Pivot(in)
	second := Pivot(Unpivot(first))

	want := map[string]float64{"geo1/A": 1, "geo1/B": 2, "geo2/A": 3}
	got := map[string]float64{}
	for _, r := range second.Records {
		for c, v := range r.Values {
			if v != nil {
				got[r.GeoID+"/"+c] = *v
			}
		}
	}
	if len(got) != len(want) {
		t.Fatalf("cells=%v want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("%s=%v want %v", k, got[k], v)
		}
	}
}
