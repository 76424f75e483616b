package service

import (
	"context"
	"fmt"

	"github.com/mohammed-shakir/city-indicators-api/internal/aggregate/geojsonagg"
	"github.com/mohammed-shakir/city-indicators-api/internal/aggregate/pivot"
	"github.com/mohammed-shakir/city-indicators-api/internal/composer"
	"github.com/mohammed-shakir/city-indicators-api/internal/core/executor"
	"github.com/mohammed-shakir/city-indicators-api/internal/core/model"
	"github.com/mohammed-shakir/city-indicators-api/internal/core/observability"
	"github.com/mohammed-shakir/city-indicators-api/internal/recordstore"
	"github.com/mohammed-shakir/city-indicators-api/internal/recordstore/formula"
	"github.com/mohammed-shakir/city-indicators-api/internal/warehouse"
)

// level fills q.AdminLevel with the city's default level when it is empty.
func (s *Service) level(ctx context.Context, q *model.GeoQuery) error {
	if q.AdminLevel != "" {
		return nil
	}
	f, err := s.cityRecord(ctx, q.CityID)
	if err != nil {
		return err
	}
	q.AdminLevel = f.String("city_admin_level")
	if q.AdminLevel == "" {
		return fmt.Errorf("city %s has no default admin level: %w", q.CityID, model.ErrNotFound)
	}
	return nil
}

func ids(indicatorID string) []string {
	if indicatorID == "" {
		return nil
	}
	return []string{indicatorID}
}

func valueRows(t *warehouse.Table) []pivot.ValueRow {
	out := make([]pivot.ValueRow, 0, t.Len())
	if t == nil {
		return out
	}
	for _, r := range t.Rows {
		ver, _ := r.Int("indicator_version")
		out = append(out, pivot.ValueRow{
			Identity: pivot.Identity{
				GeoID:            r.String("geo_id"),
				GeoName:          r.String("geo_name"),
				GeoLevel:         r.String("geo_level"),
				GeoParentName:    r.String("geo_parent_name"),
				IndicatorVersion: ver,
			},
			Indicator: r.String("indicator"),
			Value:     r.Float("value"),
		})
	}
	return out
}

func yearRows(t *warehouse.Table) []pivot.YearRow {
	if t == nil {
		return nil
	}
	out := make([]pivot.YearRow, 0, t.Len())
	for _, r := range t.Rows {
		y, _ := r.Int("year")
		out = append(out, pivot.YearRow{
			GeoID:         r.String("geo_id"),
			GeoName:       r.String("geo_name"),
			GeoLevel:      r.String("geo_level"),
			GeoParentName: r.String("geo_parent_name"),
			Year:          int(y),
			Value:         r.Float("value"),
		})
	}
	return out
}

func boundaries(t *warehouse.Table) []geojsonagg.Boundary {
	if t == nil {
		return nil
	}
	out := make([]geojsonagg.Boundary, 0, t.Len())
	for _, r := range t.Rows {
		ver, _ := r.Int("geo_version")
		b := geojsonagg.Boundary{
			GeoID:         r.String("geo_id"),
			GeoName:       r.String("geo_name"),
			GeoLevel:      r.String("geo_level"),
			GeoParentName: r.String("geo_parent_name"),
			GeoVersion:    ver,
		}
		if g := r.Geometry(warehouse.GeometryColumn); g != nil {
			b.Geometry = g
		}
		out = append(out, b)
	}
	return out
}

// scheduleValues queues the value queries for ids on g. Plain indicators
// share one query; every special indicator reads its own table. No ids
// means every plain indicator of the level.
func (s *Service) scheduleValues(g *executor.Group, cityID, level string, ids []string) func() []pivot.ValueRow {
	var plain []string
	var specials []pivot.SpecialKind
	for _, id := range ids {
		if k, ok := pivot.LookupSpecial(id); ok {
			specials = append(specials, k)
			continue
		}
		plain = append(plain, id)
	}

	var futures []*executor.Future[[]pivot.ValueRow]
	if len(ids) == 0 || len(plain) > 0 {
		single := ""
		if len(plain) == 1 {
			single = plain[0]
		}
		want := make(map[string]struct{}, len(plain))
		for _, id := range plain {
			want[id] = struct{}{}
		}
		q := warehouse.IndicatorValuesQuery(cityID, level, single)
		futures = append(futures, executor.Go(g, "query_"+q.Name, func(ctx context.Context) ([]pivot.ValueRow, error) {
			t, err := s.wh.Query(ctx, q)
			if err != nil {
				return nil, err
			}
			rows := valueRows(t)
			if len(want) < 2 {
				return rows, nil
			}
			kept := rows[:0]
			for _, r := range rows {
				if _, ok := want[r.Indicator]; ok {
					kept = append(kept, r)
				}
			}
			return kept, nil
		}))
	}
	for _, k := range specials {
		q := warehouse.SpecialValuesQuery(k.Table(), cityID, level)
		futures = append(futures, executor.Go(g, "query_"+k.Table(), func(ctx context.Context) ([]pivot.ValueRow, error) {
			t, err := s.wh.Query(ctx, q)
			if err != nil {
				return nil, err
			}
			return k.Aggregate(yearRows(t)), nil
		}))
	}

	return func() []pivot.ValueRow {
		var out []pivot.ValueRow
		for _, f := range futures {
			out = append(out, f.Get()...)
		}
		return out
	}
}

// scheduleMeta queues the indicator metadata lookup: one record for a single
// id, every indicator otherwise.
func (s *Service) scheduleMeta(g *executor.Group, ids []string) func() map[string]geojsonagg.IndicatorMeta {
	var f *executor.Future[[]recordstore.Record]
	if len(ids) == 1 {
		f = executor.Go(g, "fetch_first_indicators", func(ctx context.Context) ([]recordstore.Record, error) {
			rec, err := s.records.FetchFirst(ctx, recordstore.Indicators, formula.Equals("id", ids[0]))
			if err != nil || rec == nil {
				return nil, err
			}
			return []recordstore.Record{*rec}, nil
		})
	} else {
		f = s.fetch(g, recordstore.Indicators, formula.SearchAny("id", ids))
	}
	return func() map[string]geojsonagg.IndicatorMeta {
		out := make(map[string]geojsonagg.IndicatorMeta)
		for _, r := range f.Get() {
			id := r.Fields.String("id")
			out[id] = geojsonagg.IndicatorMeta{
				ID:            id,
				Name:          r.Fields.String("name"),
				Unit:          r.Fields.String("unit"),
				MapStyling:    r.Fields.JSON("map_styling"),
				LegendStyling: r.Fields.JSON("legend_styling"),
			}
		}
		return out
	}
}

func (s *Service) pivot(ctx context.Context, q model.GeoQuery, rows []pivot.ValueRow) pivot.Result {
	res := pivot.Pivot(rows)
	if n := len(res.Duplicates); n > 0 {
		d := res.Duplicates[0]
		s.logger.WarnContext(ctx, "duplicate indicator values dropped",
			"city_id", q.CityID,
			"admin_level", q.AdminLevel,
			"count", n,
			"geo_id", d.GeoID,
			"indicator", d.Indicator,
		)
		observability.AddPivotDuplicates(n)
	}
	return res
}

// requireMeta fails with ErrBadReference when an explicitly requested
// indicator is unknown to the record store.
func requireMeta(indicatorID string, meta map[string]geojsonagg.IndicatorMeta) error {
	if indicatorID == "" {
		return nil
	}
	if _, ok := meta[indicatorID]; !ok {
		return fmt.Errorf("indicator %s: %w", indicatorID, model.ErrBadReference)
	}
	return nil
}

// CityIndicators returns the pivoted values of one city level.
func (s *Service) CityIndicators(ctx context.Context, q model.GeoQuery) (pivot.Result, error) {
	if err := s.level(ctx, &q); err != nil {
		return pivot.Result{}, err
	}
	g := s.group(ctx)
	vals := s.scheduleValues(g, q.CityID, q.AdminLevel, ids(q.IndicatorID))
	if err := g.Wait(); err != nil {
		return pivot.Result{}, fmt.Errorf("city indicators %s/%s: %w", q.CityID, q.AdminLevel, err)
	}
	res := s.pivot(ctx, q, vals())
	if res.Empty() {
		return pivot.Result{}, fmt.Errorf("city indicators %s/%s: %w", q.CityID, q.AdminLevel, model.ErrNoData)
	}
	return res, nil
}

// CityGeometry returns every boundary of one city level.
func (s *Service) CityGeometry(ctx context.Context, cityID, adminLevel string) (geojsonagg.FeatureCollection, error) {
	q := model.GeoQuery{CityID: cityID, AdminLevel: adminLevel}
	if err := s.level(ctx, &q); err != nil {
		return geojsonagg.FeatureCollection{}, err
	}
	t, err := s.wh.Query(ctx, warehouse.BoundariesQuery(q.CityID, q.AdminLevel))
	if err != nil {
		return geojsonagg.FeatureCollection{}, fmt.Errorf("city geometry %s/%s: %w", q.CityID, q.AdminLevel, err)
	}
	fc := geojsonagg.GeometryOnly(boundaries(t))
	if fc.Empty() {
		return fc, fmt.Errorf("city geometry %s/%s: %w", q.CityID, q.AdminLevel, model.ErrNoGeometry)
	}
	observability.ObserveFeatures("geometry", len(fc.Features))
	return fc, nil
}

// CityIndicatorsGeoJSON joins the boundaries of one city level with its
// pivoted values. Each value carries its unit, name and styling.
func (s *Service) CityIndicatorsGeoJSON(ctx context.Context, q model.GeoQuery) (geojsonagg.FeatureCollection, error) {
	if err := s.level(ctx, &q); err != nil {
		return geojsonagg.FeatureCollection{}, err
	}
	g := s.group(ctx)
	bounds := s.query(g, warehouse.BoundariesQuery(q.CityID, q.AdminLevel))
	vals := s.scheduleValues(g, q.CityID, q.AdminLevel, ids(q.IndicatorID))
	meta := s.scheduleMeta(g, ids(q.IndicatorID))
	if err := g.Wait(); err != nil {
		return geojsonagg.FeatureCollection{}, fmt.Errorf("city indicators geojson %s/%s: %w", q.CityID, q.AdminLevel, err)
	}

	m := meta()
	if err := requireMeta(q.IndicatorID, m); err != nil {
		return geojsonagg.FeatureCollection{}, err
	}
	bs := boundaries(bounds.Get())
	if len(bs) == 0 {
		return geojsonagg.FeatureCollection{}, fmt.Errorf("city indicators geojson %s/%s: %w", q.CityID, q.AdminLevel, model.ErrNoGeometry)
	}
	res := s.pivot(ctx, q, vals())
	if res.Empty() {
		return geojsonagg.FeatureCollection{}, fmt.Errorf("city indicators geojson %s/%s: %w", q.CityID, q.AdminLevel, model.ErrNoData)
	}

	fc := geojsonagg.Join(bs, res.Index(), geojsonagg.JoinOptions{Columns: ids(q.IndicatorID), Meta: m})
	if fc.Skipped > 0 {
		s.logger.DebugContext(ctx, "boundaries skipped", "city_id", q.CityID, "count", fc.Skipped)
	}
	if fc.Empty() {
		return fc, fmt.Errorf("city indicators geojson %s/%s: %w", q.CityID, q.AdminLevel, model.ErrNoGeometry)
	}
	observability.ObserveFeatures("indicators", len(fc.Features))
	return fc, nil
}

// CityIndicatorsTable flattens the pivoted values of one city level into
// unit-formatted text cells.
func (s *Service) CityIndicatorsTable(ctx context.Context, q model.GeoQuery) (composer.TabularResult, error) {
	if err := s.level(ctx, &q); err != nil {
		return composer.TabularResult{}, err
	}
	g := s.group(ctx)
	vals := s.scheduleValues(g, q.CityID, q.AdminLevel, ids(q.IndicatorID))
	meta := s.scheduleMeta(g, ids(q.IndicatorID))
	if err := g.Wait(); err != nil {
		return composer.TabularResult{}, fmt.Errorf("city indicators table %s/%s: %w", q.CityID, q.AdminLevel, err)
	}

	m := meta()
	if err := requireMeta(q.IndicatorID, m); err != nil {
		return composer.TabularResult{}, err
	}
	res := s.pivot(ctx, q, vals())
	if res.Empty() {
		return composer.TabularResult{}, fmt.Errorf("city indicators table %s/%s: %w", q.CityID, q.AdminLevel, model.ErrNoData)
	}
	units := make(map[string]string, len(m))
	for id, im := range m {
		units[id] = im.Unit
	}
	return composer.Table(res, ids(q.IndicatorID), units), nil
}

// CityIndicatorsStats returns min and max per indicator over one city level.
// Indicators without any value are left out.
func (s *Service) CityIndicatorsStats(ctx context.Context, cityID, adminLevel string, indicatorIDs []string) (map[string]composer.MinMax, error) {
	q := model.GeoQuery{CityID: cityID, AdminLevel: adminLevel}
	if err := s.level(ctx, &q); err != nil {
		return nil, err
	}
	g := s.group(ctx)
	vals := s.scheduleValues(g, q.CityID, q.AdminLevel, indicatorIDs)
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("city indicators stats %s/%s: %w", q.CityID, q.AdminLevel, err)
	}
	res := s.pivot(ctx, q, vals())
	if res.Empty() {
		return nil, fmt.Errorf("city indicators stats %s/%s: %w", q.CityID, q.AdminLevel, model.ErrNoData)
	}
	return composer.Stats(res, indicatorIDs), nil
}
