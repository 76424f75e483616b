package geojsonagg

// Shape is a geometry that knows its bounds and marshals itself as GeoJSON.
type Shape interface {
	Bounds() (minx, miny, maxx, maxy float64)
	MarshalJSON() ([]byte, error)
}

// Boundary is one geography polygon of a city level.
type Boundary struct {
	GeoID         string
	GeoName       string
	GeoLevel      string
	GeoParentName string
	GeoVersion    int64
	Geometry      Shape
}

// IndicatorMeta is the display metadata of one indicator.
type IndicatorMeta struct {
	ID            string
	Name          string
	Unit          string
	MapStyling    any
	LegendStyling any
}

// IndicatorValue is a feature property carrying a value with the metadata
// needed to render it.
type IndicatorValue struct {
	Value         *float64 `json:"value"`
	Unit          string   `json:"unit,omitempty"`
	Name          string   `json:"name"`
	MapStyling    any      `json:"map_styling,omitempty"`
	LegendStyling any      `json:"legend_styling,omitempty"`
}

type Feature struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	Geometry   Shape          `json:"geometry"`
}

type FeatureCollection struct {
	BBox     BBox      `json:"bbox"`
	Type     string    `json:"type"`
	Features []Feature `json:"features"`

	// boundaries skipped because their geo_id was already present or they
	// had no geometry
	Skipped int `json:"-"`
}

func (fc FeatureCollection) Empty() bool {
	return len(fc.Features) == 0 || fc.BBox.IsEmpty()
}
