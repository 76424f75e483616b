package service

import (
	"context"
	"fmt"
	"slices"

	"github.com/mohammed-shakir/city-indicators-api/internal/core/model"
	"github.com/mohammed-shakir/city-indicators-api/internal/recordstore"
	"github.com/mohammed-shakir/city-indicators-api/internal/recordstore/formula"
)

var interventionKeys = []string{
	"id", "name", "areas_id", "areas_name",
	"filter_solution_type", "filter_impact_timescale", "filter_solution_area",
	"card_intervention_short_description", "card_intervention_long_description",
	"card_cooling_impact_estimation", "card_timescale_impact", "card_investment",
	"card_intervention_photo",
}

var (
	scenarioKeys      = []string{"id", "name", "description", "cities", "interventions"}
	scenarioValueKeys = []string{"value", "unit"}
)

type Intervention map[string]any

// ListInterventions returns interventions with their city and scenario
// references resolved to ids. A non-empty cityID keeps the interventions
// applied in that city.
func (s *Service) ListInterventions(ctx context.Context, cityID string) ([]Intervention, error) {
	g := s.group(ctx)
	scenariosF := s.fetch(g, recordstore.Scenarios, "")
	interventionsF := s.fetch(g, recordstore.Interventions, "")
	citiesF := s.fetch(g, recordstore.Cities, "")
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("list interventions: %w", err)
	}

	scenarios := byField(scenariosF.Get(), "id")
	cities := byField(citiesF.Get(), "id")

	out := make([]Intervention, 0, len(interventionsF.Get()))
	for _, r := range interventionsF.Get() {
		cityIDs := resolve(r.Fields.Strings("cities"), cities)
		if cityID != "" && !slices.Contains(cityIDs, cityID) {
			continue
		}
		iv := Intervention(pick(r.Fields, interventionKeys))
		iv["cities"] = cityIDs
		iv["scenarios"] = resolve(r.Fields.Strings("scenarios"), scenarios)
		out = append(out, iv)
	}
	return out, nil
}

type Scenario map[string]any

// Scenarios returns the scenarios of one intervention in an area of a city,
// each with its layers rendered for the city and the indicator values
// computed for it.
func (s *Service) Scenarios(ctx context.Context, cityID, aoiID, interventionID string) ([]Scenario, error) {
	byCity := formula.Build(formula.Filters{"cities": formula.One(cityID)})
	sf := formula.Build(formula.Filters{
		"cities":        formula.One(cityID),
		"Interventions": formula.One(interventionID + "__" + cityID + "__" + aoiID),
	})

	g := s.group(ctx)
	scenariosF := s.fetch(g, recordstore.Scenarios, sf)
	valuesF := s.fetch(g, recordstore.IndicatorValues, byCity)
	indicatorsF := s.fetch(g, recordstore.Indicators, byCity)
	layersF := s.fetch(g, recordstore.Layers, "")
	cityF := s.fetchFirst(g, recordstore.Cities, formula.Search("id", cityID))
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("scenarios %s/%s/%s: %w", cityID, aoiID, interventionID, err)
	}
	if len(scenariosF.Get()) == 0 {
		return nil, nil
	}
	city := cityF.Get()
	if city == nil {
		return nil, fmt.Errorf("scenarios %s: %w", cityID, model.ErrNotFound)
	}

	names := byField(indicatorsF.Get(), "name")
	perScenario := make(map[string][]map[string]any)
	for _, r := range valuesF.Get() {
		ids := r.Fields.Strings("scenarios_ids")
		if len(ids) == 0 {
			continue
		}
		v := pick(r.Fields, scenarioValueKeys)
		v["name"] = ""
		if refs := r.Fields.Strings("indicators"); len(refs) > 0 {
			v["name"] = names[refs[0]]
		}
		perScenario[ids[0]] = append(perScenario[ids[0]], v)
	}

	layers := recordstore.Index(layersF.Get(), func(r recordstore.Record) recordstore.Fields { return r.Fields })
	out := make([]Scenario, 0, len(scenariosF.Get()))
	for _, r := range scenariosF.Get() {
		sc := Scenario{}
		for _, k := range scenarioKeys {
			sc[k] = r.Fields.Raw(k)
		}
		rendered := make([]*CityLayer, 0)
		for _, ref := range r.Fields.Strings("layers") {
			if lf, ok := layers[ref]; ok {
				rendered = append(rendered, s.layer(cityID, lf.String("id"), lf, city.Fields))
			}
		}
		sc["layers"] = rendered
		ind := perScenario[r.Fields.String("id")]
		if ind == nil {
			ind = []map[string]any{}
		}
		sc["indicators"] = ind
		out = append(out, sc)
	}
	return out, nil
}
