package geojsonagg

import (
	"strings"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/mohammed-shakir/city-indicators-api/internal/aggregate/pivot"
	"github.com/mohammed-shakir/city-indicators-api/internal/warehouse"
)

const polygon = `{"type":"MultiPolygon","coordinates":[[[[0,3],[100,5],[73,73],[42,159.8],[17,73],[0,3]]]]}`

func shape(t *testing.T, text string) Shape {
	t.Helper()
	g, err := warehouse.DecodeGeometry([]byte(text))
	if err != nil {
		t.Fatalf("DecodeGeometry: %v", err)
	}
	return g
}

func square(t *testing.T, x0, y0, x1, y1 string) Shape {
	return shape(t, `{"type":"Polygon","coordinates":[[[`+x0+`,`+y0+`],[`+x1+`,`+y0+`],[`+x1+`,`+y1+`],[`+x0+`,`+y1+`],[`+x0+`,`+y0+`]]]}`)
}

func boundary(id string, g Shape) Boundary {
	return Boundary{GeoID: id, GeoName: id + "-name", GeoLevel: "ADM", GeoParentName: "city1", Geometry: g}
}

func fp(v float64) *float64 { return &v }

func TestGeometryOnly_SingleFeatureBBox(t *testing.T) {
	fc := GeometryOnly([]Boundary{boundary("geo1", shape(t, polygon))})

	want := BBox{0, 3, 100, 159.8}
	if fc.BBox != want {
		t.Fatalf("bbox=%v want %v", fc.BBox, want)
	}
	if len(fc.Features) != 1 {
		t.Fatalf("features=%d want 1", len(fc.Features))
	}
	p := fc.Features[0].Properties
	if p["bbox"] != want {
		t.Fatalf("feature bbox=%v want %v", p["bbox"], want)
	}
	if p["geo_id"] != "geo1" || p["geo_level"] != "ADM" || p["geo_name"] != "geo1-name" ||
		p["geo_parent_name"] != "city1" || p["geo_version"] != int64(0) {
		t.Fatalf("properties=%v", p)
	}
}

func TestGeometryOnly_EmptyKeepsSentinel(t *testing.T) {
	fc := GeometryOnly(nil)
	if fc.BBox != EmptyBBox() || !fc.Empty() || !fc.BBox.IsEmpty() {
		t.Fatalf("bbox=%v empty=%v", fc.BBox, fc.Empty())
	}
	b, err := json.Marshal(fc)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"features":[]`) {
		t.Fatalf("json=%s want empty feature list", b)
	}
}

func TestBBox_FoldIsOrderIndependent(t *testing.T) {
	boxes := []BBox{{0, 0, 1, 1}, {-5, 2, 0, 3}, {4, -1, 6, 0.5}}
	fwd, rev := EmptyBBox(), EmptyBBox()
	for i := range boxes {
		fwd = fwd.Extend(boxes[i])
		rev = rev.Extend(boxes[len(boxes)-1-i])
	}
	if fwd != rev || fwd != (BBox{-5, -1, 6, 3}) {
		t.Fatalf("fwd=%v rev=%v", fwd, rev)
	}
	grouped := EmptyBBox().Extend(boxes[0].Extend(boxes[1])).Extend(boxes[2])
	if grouped != fwd {
		t.Fatalf("grouped=%v want %v", grouped, fwd)
	}
}

func TestJoin_InnerJoinAndOverallBBox(t *testing.T) {
	bs := []Boundary{
		boundary("geo1", square(t, "0", "0", "1", "1")),
		boundary("geo2", square(t, "10", "10", "12", "11")),
		boundary("geo3", square(t, "-50", "-50", "-40", "-40")),
	}
	res := pivot.Pivot([]pivot.ValueRow{
		{Identity: pivot.Identity{GeoID: "geo1"}, Indicator: "IND_1", Value: fp(10)},
		{Identity: pivot.Identity{GeoID: "geo2"}, Indicator: "IND_1", Value: fp(pivot.Sentinel)},
	})

	fc := Join(bs, res.Index(), JoinOptions{})
	if len(fc.Features) != 2 {
		t.Fatalf("features=%d want 2 (geo3 has no values)", len(fc.Features))
	}
	if fc.BBox != (BBox{0, 0, 12, 11}) {
		t.Fatalf("bbox=%v", fc.BBox)
	}
	if v, ok := fc.Features[0].Properties["IND_1"].(*float64); !ok || *v != 10 {
		t.Fatalf("IND_1=%v", fc.Features[0].Properties["IND_1"])
	}
	b, _ := json.Marshal(fc.Features[1])
	if !strings.Contains(string(b), `"IND_1":null`) || strings.Contains(string(b), "9999") {
		t.Fatalf("feature json=%s", b)
	}
}

func TestJoin_MetaBuildsValueObjects(t *testing.T) {
	res := pivot.Pivot([]pivot.ValueRow{
		{Identity: pivot.Identity{GeoID: "geo1"}, Indicator: "IND_1", Value: fp(42)},
		{Identity: pivot.Identity{GeoID: "geo1"}, Indicator: "IND_2", Value: fp(1)},
	})
	meta := map[string]IndicatorMeta{
		"IND_1": {ID: "IND_1", Name: "Tree cover", Unit: "%", MapStyling: map[string]any{"color": "green"}},
	}
	fc := Join([]Boundary{boundary("geo1", square(t, "0", "0", "1", "1"))}, res.Index(), JoinOptions{Meta: meta})

	v, ok := fc.Features[0].Properties["IND_1"].(IndicatorValue)
	if !ok || v.Name != "Tree cover" || v.Unit != "%" || *v.Value != 42 {
		t.Fatalf("IND_1=%+v", fc.Features[0].Properties["IND_1"])
	}
	other, ok := fc.Features[0].Properties["IND_2"].(IndicatorValue)
	if !ok || other.Name != "IND_2" || other.Unit != "" || other.MapStyling != nil {
		t.Fatalf("IND_2 without metadata=%+v", other)
	}
}

func TestJoin_ColumnsRestrictProperties(t *testing.T) {
	res := pivot.Pivot([]pivot.ValueRow{
		{Identity: pivot.Identity{GeoID: "geo1"}, Indicator: "A", Value: fp(1)},
		{Identity: pivot.Identity{GeoID: "geo1"}, Indicator: "B", Value: fp(2)},
	})
	fc := Join([]Boundary{boundary("geo1", square(t, "0", "0", "1", "1"))}, res.Index(), JoinOptions{Columns: []string{"B"}})
	if _, ok := fc.Features[0].Properties["A"]; ok {
		t.Fatal("column A should be left out")
	}
	if _, ok := fc.Features[0].Properties["B"]; !ok {
		t.Fatal("column B missing")
	}
}

func TestBuild_SkipsDuplicateAndNilGeometry(t *testing.T) {
	bs := []Boundary{
		boundary("geo1", square(t, "0", "0", "1", "1")),
		boundary("geo1", square(t, "5", "5", "6", "6")),
		boundary("geo2", nil),
	}
	fc := GeometryOnly(bs)
	if len(fc.Features) != 1 || fc.Skipped != 2 {
		t.Fatalf("features=%d skipped=%d want 1/2", len(fc.Features), fc.Skipped)
	}
	if fc.BBox != (BBox{0, 0, 1, 1}) {
		t.Fatalf("bbox=%v, the first geo1 must win", fc.BBox)
	}
}
