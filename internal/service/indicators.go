package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mohammed-shakir/city-indicators-api/internal/aggregate/pivot"
	"github.com/mohammed-shakir/city-indicators-api/internal/core/model"
	"github.com/mohammed-shakir/city-indicators-api/internal/recordstore"
	"github.com/mohammed-shakir/city-indicators-api/internal/recordstore/formula"
	"github.com/mohammed-shakir/city-indicators-api/internal/warehouse"
)

// MetadataKeys are the indicator fields returned by IndicatorMetadata.
var MetadataKeys = []string{
	"id",
	"name",
	"indicator_definition",
	"methods",
	"importance",
	"data_sources",
	"unit",
}

type Indicator map[string]any

type LayerRef struct {
	ID     string `json:"id"`
	Legend string `json:"legend"`
	Name   string `json:"name"`
}

// ListIndicators returns the indicators of the application's projects,
// optionally restricted to one project and to some cities, with their
// references resolved to dataset names, project ids, layers and city ids.
func (s *Service) ListIndicators(ctx context.Context, appID model.ApplicationID, project string, cityIDs []string) ([]Indicator, error) {
	pf := appFilter(appID, nil)
	if project != "" {
		pf["id"] = formula.One(project)
	}
	prs, err := s.records.FetchMany(ctx, recordstore.Projects, formula.Build(pf))
	if err != nil {
		return nil, fmt.Errorf("list indicators: %w", err)
	}
	if project != "" && len(prs) == 0 {
		return []Indicator{}, nil
	}
	pmap := byField(prs, "id")

	filters := formula.Filters{"cities": formula.Any(cityIDs...)}
	if len(pmap) > 0 {
		filters["projects"] = formula.Any(values(pmap)...)
	}

	g := s.group(ctx)
	citiesF := s.fetch(g, recordstore.Cities, "")
	datasetsF := s.fetch(g, recordstore.Datasets, "")
	layersF := s.fetch(g, recordstore.Layers, "")
	indicatorsF := s.fetch(g, recordstore.Indicators, formula.Build(filters))
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("list indicators: %w", err)
	}

	cities := byField(citiesF.Get(), "id")
	datasets := byField(datasetsF.Get(), "name")
	layers := recordstore.Index(layersF.Get(), func(r recordstore.Record) LayerRef {
		return LayerRef{ID: r.Fields.String("id"), Legend: r.Fields.String("layer_legend"), Name: r.Fields.String("layer_name")}
	})

	out := make([]Indicator, 0, len(indicatorsF.Get()))
	for _, r := range indicatorsF.Get() {
		ind := Indicator{}
		for k, v := range r.Fields {
			if strings.HasSuffix(k, "styling") {
				v = r.Fields.JSON(k)
			}
			ind[k] = v
		}
		delete(ind, "cities")

		links := r.Fields.Strings("data_sources_link")
		names := make([]string, 0, len(links))
		for _, l := range links {
			if n, ok := datasets[l]; ok {
				names = append(names, n)
			} else {
				names = append(names, l)
			}
		}
		ind["data_sources_link"] = names
		ind["projects"] = resolve(r.Fields.Strings("projects"), pmap)

		refs := make([]LayerRef, 0)
		for _, l := range r.Fields.Strings("layers") {
			if ref, ok := layers[l]; ok {
				refs = append(refs, ref)
			}
		}
		ind["layers"] = refs
		ind["city_ids"] = resolve(r.Fields.Strings("cities"), cities)
		out = append(out, ind)
	}
	return out, nil
}

// ListThemes returns the distinct themes of all indicators, sorted.
func (s *Service) ListThemes(ctx context.Context) ([]string, error) {
	recs, err := s.records.FetchMany(ctx, recordstore.Indicators, "")
	if err != nil {
		return nil, fmt.Errorf("list themes: %w", err)
	}
	set := map[string]struct{}{}
	for _, r := range recs {
		for _, t := range r.Fields.Strings("themes") {
			set[t] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}

// IndicatorMetadata returns the descriptive fields of one indicator, or an
// empty object when it does not exist.
func (s *Service) IndicatorMetadata(ctx context.Context, indicatorID string) (map[string]any, error) {
	rec, err := s.records.FetchFirst(ctx, recordstore.Indicators, formula.Search("id", indicatorID))
	if err != nil {
		return nil, fmt.Errorf("indicator metadata %s: %w", indicatorID, err)
	}
	if rec == nil {
		return map[string]any{}, nil
	}
	return pick(rec.Fields, MetadataKeys), nil
}

// CityIndicatorValue is the whole-city value of one indicator.
type CityIndicatorValue struct {
	CityID          string   `json:"city_id"`
	CityName        string   `json:"city_name"`
	CountryName     string   `json:"country_name"`
	CountryCodeISO3 string   `json:"country_code_iso3"`
	GeoID           string   `json:"geo_id"`
	GeoLevel        string   `json:"geo_level"`
	GeoParentName   string   `json:"geo_parent_name"`
	Unit            string   `json:"unit"`
	Value           *float64 `json:"value"`
}

func (s *Service) cityLevelValues(ctx context.Context, indicatorID, cityID string) ([]CityIndicatorValue, error) {
	g := s.group(ctx)
	valsF := s.query(g, warehouse.CityLevelValuesQuery(indicatorID, cityID))
	cityFilter := ""
	if cityID != "" {
		cityFilter = formula.Equals("id", cityID)
	}
	citiesF := s.fetch(g, recordstore.Cities, cityFilter)
	indF := s.fetchFirst(g, recordstore.Indicators, formula.Equals("id", indicatorID))
	if err := g.Wait(); err != nil {
		return nil, err
	}

	cities := make(map[string]recordstore.Fields, len(citiesF.Get()))
	for _, c := range citiesF.Get() {
		cities[c.Fields.String("id")] = c.Fields
	}
	unit := ""
	if ind := indF.Get(); ind != nil {
		unit = ind.Fields.String("unit")
	}

	t := valsF.Get()
	out := make([]CityIndicatorValue, 0, t.Len())
	if t == nil {
		return out, nil
	}
	for _, r := range t.Rows {
		parent := r.String("geo_parent_name")
		c := cities[parent]
		out = append(out, CityIndicatorValue{
			CityID:          parent,
			CityName:        c.String("name"),
			CountryName:     c.String("country_name"),
			CountryCodeISO3: c.String("country_code_iso3"),
			GeoID:           r.String("geo_id"),
			GeoLevel:        r.String("geo_level"),
			GeoParentName:   parent,
			Unit:            unit,
			Value:           pivot.Clean(r.Float("value")),
		})
	}
	return out, nil
}

// CitiesByIndicator returns the whole-city value of an indicator for every
// city that has one.
func (s *Service) CitiesByIndicator(ctx context.Context, indicatorID string) ([]CityIndicatorValue, error) {
	out, err := s.cityLevelValues(ctx, indicatorID, "")
	if err != nil {
		return nil, fmt.Errorf("cities by indicator %s: %w", indicatorID, err)
	}
	return out, nil
}

// CityIndicator returns the whole-city value of an indicator for one city,
// or nil when there is none.
func (s *Service) CityIndicator(ctx context.Context, indicatorID, cityID string) (*CityIndicatorValue, error) {
	out, err := s.cityLevelValues(ctx, indicatorID, cityID)
	if err != nil {
		return nil, fmt.Errorf("city indicator %s/%s: %w", indicatorID, cityID, err)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return &out[0], nil
}
