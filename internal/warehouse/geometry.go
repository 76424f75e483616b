package warehouse

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Geometry is a decoded polygon or multipolygon column.
type Geometry struct {
	g orb.Geometry
}

// DecodeGeometry parses GeoJSON geometry text as produced by ST_AsGeoJSON.
func DecodeGeometry(text []byte) (*Geometry, error) {
	gj, err := geojson.UnmarshalGeometry(text)
	if err != nil {
		return nil, fmt.Errorf("decode geometry: %w", err)
	}
	g := gj.Geometry()
	if g == nil {
		return nil, fmt.Errorf("decode geometry: empty %q geometry", gj.Type)
	}
	return &Geometry{g: g}, nil
}

func NewGeometry(g orb.Geometry) *Geometry { return &Geometry{g: g} }

func (g *Geometry) Orb() orb.Geometry { return g.g }

func (g *Geometry) Type() string { return g.g.GeoJSONType() }

// Bounds returns (minx, miny, maxx, maxy).
func (g *Geometry) Bounds() (float64, float64, float64, float64) {
	b := g.g.Bound()
	return b.Min[0], b.Min[1], b.Max[0], b.Max[1]
}

func (g *Geometry) MarshalJSON() ([]byte, error) {
	return geojson.NewGeometry(g.g).MarshalJSON()
}
