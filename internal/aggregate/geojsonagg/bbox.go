package geojsonagg

// BBox is [minx, miny, maxx, maxy].
type BBox [4]float64

// EmptyBBox is the inverted box every fold starts from. Extending it with
// any real box yields that box.
func EmptyBBox() BBox { return BBox{180, 90, -180, -90} }

func FromBounds(minx, miny, maxx, maxy float64) BBox {
	return BBox{minx, miny, maxx, maxy}
}

// Extend returns the smallest box covering b and o.
func (b BBox) Extend(o BBox) BBox {
	return BBox{
		min(b[0], o[0]),
		min(b[1], o[1]),
		max(b[2], o[2]),
		max(b[3], o[3]),
	}
}

// IsEmpty reports whether nothing was folded into b.
func (b BBox) IsEmpty() bool {
	return b[0] > b[2] || b[1] > b[3]
}
