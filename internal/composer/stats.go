package composer

import (
	"math"

	"github.com/mohammed-shakir/city-indicators-api/internal/aggregate/pivot"
)

type MinMax struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Stats computes min and max per indicator across all records. Indicators
// without a single value are left out. Empty ids means every column.
func Stats(res pivot.Result, ids []string) map[string]MinMax {
	if len(ids) == 0 {
		ids = res.Columns
	}
	out := make(map[string]MinMax, len(ids))
	for _, id := range ids {
		mm := MinMax{Min: math.Inf(1), Max: math.Inf(-1)}
		seen := false
		for _, r := range res.Records {
			v := r.Values[id]
			if v == nil || math.IsNaN(*v) {
				continue
			}
			seen = true
			mm.Min = math.Min(mm.Min, *v)
			mm.Max = math.Max(mm.Max, *v)
		}
		if seen {
			out[id] = mm
		}
	}
	return out
}
