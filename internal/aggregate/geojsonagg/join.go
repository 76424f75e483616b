// Package geojsonagg joins boundary polygons with pivoted indicator records
// and assembles GeoJSON feature collections with bounding boxes.
package geojsonagg

import (
	"github.com/mohammed-shakir/city-indicators-api/internal/aggregate/pivot"
)

type JoinOptions struct {
	// Columns restricts the indicators attached to each feature. Empty
	// means every column of the record.
	Columns []string
	// Meta turns each attached value into an IndicatorValue. Indicators
	// absent from Meta fall back to their id as name.
	Meta map[string]IndicatorMeta
}

// GeometryOnly builds a collection of every boundary with its bbox.
func GeometryOnly(bs []Boundary) FeatureCollection {
	return build(bs, func(Boundary) (map[string]any, bool) { return nil, true })
}

// Join inner-joins boundaries with records on geo_id. Boundaries without a
// record are left out.
func Join(bs []Boundary, records map[string]pivot.Record, opts JoinOptions) FeatureCollection {
	return build(bs, func(b Boundary) (map[string]any, bool) {
		rec, ok := records[b.GeoID]
		if !ok {
			return nil, false
		}
		cols := opts.Columns
		if len(cols) == 0 {
			cols = sortedKeys(rec.Values)
		}
		out := make(map[string]any, len(cols))
		for _, c := range cols {
			v, has := rec.Values[c]
			if !has {
				continue
			}
			if opts.Meta == nil {
				out[c] = v
				continue
			}
			out[c] = valueWithMeta(c, v, opts.Meta)
		}
		return out, true
	})
}

func valueWithMeta(indicator string, v *float64, meta map[string]IndicatorMeta) IndicatorValue {
	m, ok := meta[indicator]
	if !ok {
		return IndicatorValue{Value: v, Name: indicator}
	}
	name := m.Name
	if name == "" {
		name = indicator
	}
	return IndicatorValue{
		Value:         v,
		Unit:          m.Unit,
		Name:          name,
		MapStyling:    m.MapStyling,
		LegendStyling: m.LegendStyling,
	}
}

func build(bs []Boundary, extra func(Boundary) (map[string]any, bool)) FeatureCollection {
	fc := FeatureCollection{
		BBox:     EmptyBBox(),
		Type:     "FeatureCollection",
		Features: make([]Feature, 0, len(bs)),
	}
	seen := make(map[string]struct{}, len(bs))
	for _, b := range bs {
		if b.Geometry == nil {
			fc.Skipped++
			continue
		}
		if _, dup := seen[b.GeoID]; dup {
			fc.Skipped++
			continue
		}
		props, keep := extra(b)
		if !keep {
			continue
		}
		seen[b.GeoID] = struct{}{}

		box := FromBounds(b.Geometry.Bounds())
		fc.BBox = fc.BBox.Extend(box)

		p := make(map[string]any, len(props)+6)
		for k, v := range props {
			p[k] = v
		}
		p["geo_id"] = b.GeoID
		p["geo_name"] = b.GeoName
		p["geo_level"] = b.GeoLevel
		p["geo_parent_name"] = b.GeoParentName
		p["geo_version"] = b.GeoVersion
		p["bbox"] = box

		fc.Features = append(fc.Features, Feature{
			ID:         b.GeoID,
			Type:       "Feature",
			Properties: p,
			Geometry:   b.Geometry,
		})
	}
	return fc
}
