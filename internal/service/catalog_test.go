package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mohammed-shakir/city-indicators-api/internal/core/model"
	"github.com/mohammed-shakir/city-indicators-api/internal/recordstore"
	"github.com/mohammed-shakir/city-indicators-api/internal/warehouse"
)

func TestListCities_ResolvesProjectsAndLayersURL(t *testing.T) {
	rs := newFakeRecords()
	rs.many[recordstore.Projects] = []recordstore.Record{rec("proj1", recordstore.Fields{"id": "Project 1"})}
	rs.many[recordstore.Cities] = []recordstore.Record{
		rec("ct1", recordstore.Fields{"id": "city1", "projects": []any{"proj1", "projX"}, "secret": "x"}),
	}
	svc := New(rs, newFakeWarehouse(), Config{BoundariesBaseURL: "https://data.example.org/boundaries/"}, nil)

	cities, err := svc.ListCities(context.Background(), model.AppCID, []string{"proj1"}, "USA")
	if err != nil {
		t.Fatalf("ListCities: %v", err)
	}
	if len(cities) != 1 || cities[0]["id"] != "city1" {
		t.Fatalf("cities=%v", cities)
	}
	if ps := cities[0]["projects"].([]string); len(ps) != 1 || ps[0] != "Project 1" {
		t.Fatalf("projects=%v want [Project 1]", ps)
	}
	if _, ok := cities[0]["secret"]; ok {
		t.Fatal("fields outside the response keys must not leak")
	}
	lu := cities[0]["layers_url"].(LayersURL)
	if lu.PMTiles != "https://data.example.org/boundaries/pmtiles/city1.pmtiles" {
		t.Fatalf("pmtiles=%q", lu.PMTiles)
	}

	pf := rs.seen(recordstore.Projects)[0]
	if !strings.Contains(pf, "SEARCH('cid', {application_id})") || !strings.Contains(pf, "SEARCH('proj1', {id})") {
		t.Fatalf("projects formula=%q", pf)
	}
	cf := rs.seen(recordstore.Cities)[0]
	if !strings.Contains(cf, "SEARCH('USA', {country_code_iso3})") || !strings.Contains(cf, "SEARCH('Project 1', {projects})") {
		t.Fatalf("cities formula=%q", cf)
	}
}

func TestListCities_NoProjectsIsNotFound(t *testing.T) {
	svc := New(newFakeRecords(), newFakeWarehouse(), Config{}, nil)
	if _, err := svc.ListCities(context.Background(), "", nil, ""); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("err=%v want ErrNotFound", err)
	}
}

func TestListCities_NoCitiesIsEmptyList(t *testing.T) {
	rs := newFakeRecords()
	rs.many[recordstore.Projects] = []recordstore.Record{rec("proj1", recordstore.Fields{"id": "Project 1"})}
	svc := New(rs, newFakeWarehouse(), Config{}, nil)
	cities, err := svc.ListCities(context.Background(), "", nil, "")
	if err != nil || cities == nil || len(cities) != 0 {
		t.Fatalf("cities=%v err=%v want empty list", cities, err)
	}
}

func TestGetCity(t *testing.T) {
	rs := newFakeRecords()
	svc := New(rs, newFakeWarehouse(), Config{}, nil)
	if _, err := svc.GetCity(context.Background(), "", "city1"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("err=%v want ErrNotFound", err)
	}

	rs.first[recordstore.Cities] = recp("ct1", recordstore.Fields{"id": "city1", "projects": []any{"proj1"}})
	rs.many[recordstore.Projects] = []recordstore.Record{rec("proj1", recordstore.Fields{"id": "Project 1"})}
	city, err := svc.GetCity(context.Background(), model.AppCCL, "city1")
	if err != nil {
		t.Fatalf("GetCity: %v", err)
	}
	if ps := city["projects"].([]string); len(ps) != 1 || ps[0] != "Project 1" {
		t.Fatalf("projects=%v", ps)
	}
	if !strings.Contains(rs.seen(recordstore.Cities)[1], "{id} = 'city1'") {
		t.Fatalf("city formula=%v", rs.seen(recordstore.Cities))
	}
}

func TestListIndicators_Enrichment(t *testing.T) {
	rs := newFakeRecords()
	rs.many[recordstore.Projects] = []recordstore.Record{
		rec("pr1", recordstore.Fields{"id": "project1"}),
		rec("pr2", recordstore.Fields{"id": "project2"}),
	}
	rs.many[recordstore.Cities] = []recordstore.Record{rec("ct1", recordstore.Fields{"id": "city1"})}
	rs.many[recordstore.Datasets] = []recordstore.Record{rec("ds1", recordstore.Fields{"name": "Dataset 1"})}
	rs.many[recordstore.Layers] = []recordstore.Record{rec("layer1", recordstore.Fields{"id": "layer_1", "layer_name": "Layer 1"})}
	rs.many[recordstore.Indicators] = []recordstore.Record{
		rec("ind1", recordstore.Fields{
			"id":                "IND_1",
			"data_sources_link": []any{"ds1", "dsX"},
			"projects":          []any{"pr1", "prX"},
			"layers":            []any{"layer1", "layerX"},
			"cities":            []any{"ct1"},
			"legend_styling":    `{"min":0}`,
		}),
	}
	svc := New(rs, newFakeWarehouse(), Config{}, nil)

	inds, err := svc.ListIndicators(context.Background(), model.AppAll, "", []string{"city1"})
	if err != nil {
		t.Fatalf("ListIndicators: %v", err)
	}
	ind := inds[0]
	if got := ind["data_sources_link"].([]string); len(got) != 2 || got[0] != "Dataset 1" || got[1] != "dsX" {
		t.Fatalf("data_sources_link=%v", got)
	}
	if got := ind["projects"].([]string); len(got) != 1 || got[0] != "project1" {
		t.Fatalf("projects=%v", got)
	}
	if got := ind["layers"].([]LayerRef); len(got) != 1 || got[0] != (LayerRef{ID: "layer_1", Name: "Layer 1"}) {
		t.Fatalf("layers=%v", got)
	}
	if got := ind["city_ids"].([]string); len(got) != 1 || got[0] != "city1" {
		t.Fatalf("city_ids=%v", got)
	}
	if m, ok := ind["legend_styling"].(map[string]any); !ok || m["min"] != float64(0) {
		t.Fatalf("legend_styling=%v", ind["legend_styling"])
	}
	if _, ok := ind["cities"]; ok {
		t.Fatal("raw city links must be replaced by city_ids")
	}
	f := rs.seen(recordstore.Indicators)[0]
	if !strings.Contains(f, "SEARCH('city1', {cities})") || !strings.Contains(f, "SEARCH('project2', {projects})") {
		t.Fatalf("indicators formula=%q", f)
	}
}

func TestListThemes_Unique(t *testing.T) {
	rs := newFakeRecords()
	rs.many[recordstore.Indicators] = []recordstore.Record{
		rec("i1", recordstore.Fields{"themes": []any{"Theme 1", "Theme 2"}}),
		rec("i2", recordstore.Fields{"themes": []any{"Theme 2", "Theme 3"}}),
		rec("i3", recordstore.Fields{}),
	}
	themes, err := New(rs, newFakeWarehouse(), Config{}, nil).ListThemes(context.Background())
	if err != nil {
		t.Fatalf("ListThemes: %v", err)
	}
	if strings.Join(themes, ",") != "Theme 1,Theme 2,Theme 3" {
		t.Fatalf("themes=%v", themes)
	}
}

func TestIndicatorMetadata_NotFoundIsEmpty(t *testing.T) {
	svc := New(newFakeRecords(), newFakeWarehouse(), Config{}, nil)
	md, err := svc.IndicatorMetadata(context.Background(), "IND_1")
	if err != nil || md == nil || len(md) != 0 {
		t.Fatalf("metadata=%v err=%v want {}", md, err)
	}
}

func TestCityLevelValues(t *testing.T) {
	rs := newFakeRecords()
	wh := newFakeWarehouse()
	svc := New(rs, wh, Config{}, nil)

	vals, err := svc.CitiesByIndicator(context.Background(), "IND_1")
	if err != nil || vals == nil || len(vals) != 0 {
		t.Fatalf("vals=%v err=%v want empty list", vals, err)
	}
	one, err := svc.CityIndicator(context.Background(), "IND_1", "city1")
	if err != nil || one != nil {
		t.Fatalf("one=%v err=%v want nil", one, err)
	}

	rs.many[recordstore.Cities] = []recordstore.Record{rec("ct1", recordstore.Fields{"id": "city1", "name": "City 1", "country_code_iso3": "BRA"})}
	rs.first[recordstore.Indicators] = recp("ind1", recordstore.Fields{"id": "IND_1", "unit": "ha"})
	wh.tables["city_level_values"] = &warehouse.Table{Rows: []warehouse.Row{
		{"geo_id": "city1_ADM", "geo_level": "ADM", "geo_parent_name": "city1", "value": 10.0},
	}}
	one, err = svc.CityIndicator(context.Background(), "IND_1", "city1")
	if err != nil || one == nil {
		t.Fatalf("one=%v err=%v", one, err)
	}
	if one.CityName != "City 1" || one.CountryCodeISO3 != "BRA" || one.Unit != "ha" || *one.Value != 10 {
		t.Fatalf("value=%+v", one)
	}
	qs := wh.executed("city_level_values")
	if last := qs[len(qs)-1]; len(last.Args) != 2 || last.Args[1] != "city1" {
		t.Fatalf("query=%+v", last)
	}
}

func TestListDatasets_FilterByCity(t *testing.T) {
	rs := newFakeRecords()
	rs.many[recordstore.Cities] = []recordstore.Record{
		rec("ct1", recordstore.Fields{"id": "city1"}),
		rec("ct2", recordstore.Fields{"id": "city2"}),
	}
	rs.many[recordstore.Indicators] = []recordstore.Record{rec("ind1", recordstore.Fields{"id": "IND_1"})}
	rs.many[recordstore.Layers] = []recordstore.Record{rec("l1", recordstore.Fields{"id": "albedo"})}
	rs.many[recordstore.Datasets] = []recordstore.Record{
		rec("ds1", recordstore.Fields{"name": "A", "cities": "city1, city2", "indicators": []any{"ind1"}, "layers": []any{"l1"}}),
		rec("ds2", recordstore.Fields{"name": "B", "cities": "city2"}),
	}
	svc := New(rs, newFakeWarehouse(), Config{}, nil)

	ds, err := svc.ListDatasets(context.Background(), model.AppCID, "city1", []string{"albedo"})
	if err != nil {
		t.Fatalf("ListDatasets: %v", err)
	}
	if len(ds) != 1 || ds[0]["name"] != "A" {
		t.Fatalf("datasets=%v", ds)
	}
	if got := ds[0]["indicators"].([]string); len(got) != 1 || got[0] != "IND_1" {
		t.Fatalf("indicators=%v", got)
	}
	if got := ds[0]["layers"].([]string); len(got) != 1 || got[0] != "albedo" {
		t.Fatalf("layers=%v", got)
	}
	if got := ds[0]["city_ids"].([]string); len(got) != 2 {
		t.Fatalf("city_ids=%v", got)
	}
	if f := rs.seen(recordstore.Datasets)[0]; !strings.Contains(f, "SEARCH('albedo', {layers})") {
		t.Fatalf("datasets formula=%q", f)
	}
}

func TestListProjects(t *testing.T) {
	rs := newFakeRecords()
	rs.many[recordstore.Projects] = []recordstore.Record{rec("p1", recordstore.Fields{"id": "urbanshift", "name": []any{"UrbanShift"}})}
	ps, err := New(rs, newFakeWarehouse(), Config{}, nil).ListProjects(context.Background(), model.AppCID)
	if err != nil {
		t.Fatalf("ListProjects: %v", err)
	}
	if len(ps) != 1 || ps[0] != (Project{ID: "urbanshift", Name: "UrbanShift"}) {
		t.Fatalf("projects=%v", ps)
	}
	f := rs.seen(recordstore.Projects)[0]
	if !strings.Contains(f, "SEARCH('Active', {status})") || !strings.Contains(f, "SEARCH('cid', {application_id})") {
		t.Fatalf("formula=%q", f)
	}
}

func TestCityLayer_BuildsURLs(t *testing.T) {
	rs := newFakeRecords()
	rs.first[recordstore.Layers] = recp("l1", recordstore.Fields{
		"id":              "trees",
		"layer_url":       "s3://cities-indicators/data/layers/",
		"layer_file_name": "tree-cover",
		"version":         "v2",
		"file_type":       "geojson",
		"layer_type":      "vector",
		"cif_class_name":  "TreeCover",
		"map_styling":     `{"fill":"green"}`,
		"legend_styling":  `not json`,
	})
	rs.first[recordstore.Cities] = recp("ct1", recordstore.Fields{"id": "city1", "city_admin_level": "ADM4"})
	svc := New(rs, newFakeWarehouse(), Config{}, nil)

	l, err := svc.CityLayer(context.Background(), "city1", "trees")
	if err != nil {
		t.Fatalf("CityLayer: %v", err)
	}
	want := "https://cities-indicators.s3.amazonaws.com/data/layers/city1-ADM4-tree-cover-v2.geojson"
	if l.LayerURL != want {
		t.Fatalf("layer_url=%q want %q", l.LayerURL, want)
	}
	if l.PMTilesLayerURL != strings.TrimSuffix(want, ".geojson")+".pmtiles" {
		t.Fatalf("pmtiles=%q", l.PMTilesLayerURL)
	}
	if m, ok := l.LegendStyling.(map[string]any); !ok || len(m) != 0 {
		t.Fatalf("legend_styling=%v want {}", l.LegendStyling)
	}

	rs.first[recordstore.Layers] = nil
	if _, err := svc.CityLayer(context.Background(), "city1", "trees"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("err=%v want ErrNotFound", err)
	}
}
