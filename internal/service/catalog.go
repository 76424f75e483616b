package service

import (
	"context"
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/mohammed-shakir/city-indicators-api/internal/core/model"
	"github.com/mohammed-shakir/city-indicators-api/internal/recordstore"
	"github.com/mohammed-shakir/city-indicators-api/internal/recordstore/formula"
)

type Dataset map[string]any

// ListDatasets returns datasets with their indicator, city and layer
// references resolved to ids. cityID keeps only datasets covering that city.
func (s *Service) ListDatasets(ctx context.Context, appID model.ApplicationID, cityID string, layerIDs []string) ([]Dataset, error) {
	app := appFilter(appID, nil)
	df := appFilter(appID, formula.Filters{"layers": formula.Any(layerIDs...)})

	g := s.group(ctx)
	layersF := s.fetch(g, recordstore.Layers, formula.Build(app))
	citiesF := s.fetch(g, recordstore.Cities, "")
	indicatorsF := s.fetch(g, recordstore.Indicators, "")
	datasetsF := s.fetch(g, recordstore.Datasets, formula.Build(df))
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}

	layers := byField(layersF.Get(), "id")
	indicators := byField(indicatorsF.Get(), "id")
	known := make(map[string]string, len(citiesF.Get()))
	for _, c := range citiesF.Get() {
		id := c.Fields.String("id")
		known[id] = id
	}

	out := make([]Dataset, 0, len(datasetsF.Get()))
	for _, r := range datasetsF.Get() {
		cityIDs := resolve(r.Fields.Strings("cities"), known)
		if cityID != "" && !slices.Contains(cityIDs, cityID) {
			continue
		}
		d := Dataset{}
		for k, v := range r.Fields {
			d[k] = v
		}
		delete(d, "cities")
		d["indicators"] = resolve(r.Fields.Strings("indicators"), indicators)
		d["layers"] = resolve(r.Fields.Strings("layers"), layers)
		d["city_ids"] = cityIDs
		out = append(out, d)
	}
	return out, nil
}

type Project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ListProjects returns the active projects of an application.
func (s *Service) ListProjects(ctx context.Context, appID model.ApplicationID) ([]Project, error) {
	f := formula.And(
		formula.Search("status", "Active"),
		formula.Build(appFilter(appID, nil)),
	)
	recs, err := s.records.FetchMany(ctx, recordstore.Projects, f)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	out := make([]Project, 0, len(recs))
	for _, r := range recs {
		out = append(out, Project{ID: r.Fields.String("id"), Name: r.Fields.String("name")})
	}
	return out, nil
}

type CityLayer struct {
	CityID          string `json:"city_id"`
	LayerID         string `json:"layer_id"`
	LayerURL        string `json:"layer_url"`
	PMTilesLayerURL string `json:"pmtiles_layer_url,omitempty"`
	ClassName       string `json:"class_name"`
	FileType        string `json:"file_type"`
	MapStyling      any    `json:"map_styling"`
	LegendStyling   any    `json:"legend_styling"`
}

// CityLayer locates the rendered file of a layer for a city.
func (s *Service) CityLayer(ctx context.Context, cityID, layerID string) (*CityLayer, error) {
	g := s.group(ctx)
	layerF := s.fetchFirst(g, recordstore.Layers, formula.Search("id", layerID))
	cityF := s.fetchFirst(g, recordstore.Cities, formula.Search("id", cityID))
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("city layer %s/%s: %w", layerID, cityID, err)
	}
	layer, city := layerF.Get(), cityF.Get()
	if layer == nil || city == nil {
		return nil, fmt.Errorf("city layer %s/%s: %w", layerID, cityID, model.ErrNotFound)
	}
	return s.layer(cityID, layerID, layer.Fields, city.Fields), nil
}

// layer builds the response of one layer rendered for a city.
func (s *Service) layer(cityID, layerID string, lf, cf recordstore.Fields) *CityLayer {
	var b strings.Builder
	b.WriteString(s.cfg.LayersBaseURL)
	b.WriteString(strings.TrimPrefix(lf.String("layer_url"), layersBucketPrefix))
	b.WriteString(cityID)
	b.WriteString("-")
	b.WriteString(cf.String("city_admin_level"))
	b.WriteString("-")
	b.WriteString(lf.String("layer_file_name"))
	if v := lf.String("version"); v != "" {
		b.WriteString("-" + v)
	}
	b.WriteString("." + lf.String("file_type"))

	out := &CityLayer{
		CityID:        cityID,
		LayerID:       layerID,
		LayerURL:      b.String(),
		ClassName:     lf.String("cif_class_name"),
		FileType:      lf.String("file_type"),
		MapStyling:    lf.JSON("map_styling"),
		LegendStyling: lf.JSON("legend_styling"),
	}
	if lf.String("layer_type") == "vector" {
		out.PMTilesLayerURL = strings.TrimSuffix(out.LayerURL, path.Ext(out.LayerURL)) + ".pmtiles"
	}
	return out
}
