package service

import (
	"context"
	"fmt"

	"github.com/mohammed-shakir/city-indicators-api/internal/core/model"
	"github.com/mohammed-shakir/city-indicators-api/internal/recordstore"
	"github.com/mohammed-shakir/city-indicators-api/internal/recordstore/formula"
)

// CityResponseKeys are the city fields exposed by the API.
var CityResponseKeys = []string{
	"id",
	"name",
	"admin_levels",
	"aoi_boundary_level",
	"city_admin_level",
	"subcity_admin_level",
	"country_name",
	"country_code_iso3",
	"latitude",
	"longitude",
	"projects",
	"s3_base_path",
}

type City map[string]any

type LayersURL struct {
	PMTiles string `json:"pmtiles"`
	GeoJSON string `json:"geojson"`
}

func (s *Service) layersURL(cityID string) LayersURL {
	return LayersURL{
		PMTiles: fmt.Sprintf("%s/pmtiles/%s.pmtiles", s.cfg.BoundariesBaseURL, cityID),
		GeoJSON: fmt.Sprintf("%s/geojson/%s.geojson", s.cfg.BoundariesBaseURL, cityID),
	}
}

func (s *Service) city(f recordstore.Fields, projects map[string]string) City {
	c := City(pick(f, CityResponseKeys))
	c["projects"] = resolve(f.Strings("projects"), projects)
	c["layers_url"] = s.layersURL(f.String("id"))
	return c
}

func appFilter(appID model.ApplicationID, f formula.Filters) formula.Filters {
	if f == nil {
		f = formula.Filters{}
	}
	if appID != "" {
		f["application_id"] = formula.One(string(appID))
	}
	return f
}

// ListCities returns the cities of the selected projects, optionally
// restricted to one country. No matching project is ErrNotFound; matching
// projects without cities yield an empty list.
func (s *Service) ListCities(ctx context.Context, appID model.ApplicationID, projects []string, iso3 string) ([]City, error) {
	pf := appFilter(appID, nil)
	if len(projects) > 0 {
		pf["id"] = formula.Any(projects...)
	}
	prs, err := s.records.FetchMany(ctx, recordstore.Projects, formula.Build(pf))
	if err != nil {
		return nil, fmt.Errorf("list cities: %w", err)
	}
	if len(prs) == 0 {
		return nil, fmt.Errorf("projects %v: %w", projects, model.ErrNotFound)
	}
	pmap := byField(prs, "id")

	cf := formula.Filters{
		"projects":          formula.Any(values(pmap)...),
		"country_code_iso3": formula.One(iso3),
	}
	recs, err := s.records.FetchMany(ctx, recordstore.Cities, formula.Build(cf))
	if err != nil {
		return nil, fmt.Errorf("list cities: %w", err)
	}

	out := make([]City, 0, len(recs))
	for _, r := range recs {
		out = append(out, s.city(r.Fields, pmap))
	}
	return out, nil
}

// GetCity fetches one city with its projects resolved to project ids.
func (s *Service) GetCity(ctx context.Context, appID model.ApplicationID, cityID string) (City, error) {
	g := s.group(ctx)
	cityF := s.fetchFirst(g, recordstore.Cities, formula.Equals("id", cityID))
	prsF := s.fetch(g, recordstore.Projects, formula.Build(appFilter(appID, formula.Filters{
		"cities": formula.Any(cityID),
	})))
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("get city %s: %w", cityID, err)
	}
	rec := cityF.Get()
	if rec == nil {
		return nil, fmt.Errorf("city %s: %w", cityID, model.ErrNotFound)
	}
	return s.city(rec.Fields, byField(prsF.Get(), "id")), nil
}

// cityRecord fetches a city's fields or ErrNotFound.
func (s *Service) cityRecord(ctx context.Context, cityID string) (recordstore.Fields, error) {
	rec, err := s.records.FetchFirst(ctx, recordstore.Cities, formula.Equals("id", cityID))
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("city %s: %w", cityID, model.ErrNotFound)
	}
	return rec.Fields, nil
}
