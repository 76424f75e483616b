package pivot

import "sort"

// SpecialKind is an indicator whose warehouse table stores one row per
// geography and year instead of a single value.
type SpecialKind int

const (
	AirPollution SpecialKind = iota + 1
	ExceedanceDays
	GHGEmissions
)

var specialByID = map[string]SpecialKind{
	AirPollution.IndicatorID():   AirPollution,
	ExceedanceDays.IndicatorID(): ExceedanceDays,
	GHGEmissions.IndicatorID():   GHGEmissions,
}

// LookupSpecial reports whether indicatorID needs a dedicated aggregation.
func LookupSpecial(indicatorID string) (SpecialKind, bool) {
	k, ok := specialByID[indicatorID]
	return k, ok
}

func (k SpecialKind) IndicatorID() string {
	switch k {
	case AirPollution:
		return "AQ_1_airPollution"
	case ExceedanceDays:
		return "AQ_2_exceedancedays_atleastone"
	case GHGEmissions:
		return "GHG_1_ghg_emissions"
	}
	return ""
}

// Table is the warehouse table holding the per-year rows.
func (k SpecialKind) Table() string {
	switch k {
	case AirPollution:
		return "indicators_aq_1"
	case ExceedanceDays:
		return "indicators_aq_2"
	case GHGEmissions:
		return "indicators_ghg_1"
	}
	return ""
}

// YearRow is one per-year fact of a special indicator table.
type YearRow struct {
	GeoID         string
	GeoName       string
	GeoLevel      string
	GeoParentName string
	Year          int
	Value         *float64
}

// SumByYear adds up the values of each year, ignoring missing values.
func SumByYear(rows []YearRow) map[int]float64 {
	out := make(map[int]float64)
	for _, r := range rows {
		if v := Clean(r.Value); v != nil {
			out[r.Year] += *v
		}
	}
	return out
}

func yearRange(sums map[int]float64) (int, int, bool) {
	if len(sums) == 0 {
		return 0, 0, false
	}
	years := make([]int, 0, len(sums))
	for y := range sums {
		years = append(years, y)
	}
	sort.Ints(years)
	return years[0], years[len(years)-1], true
}

// ReductionPercent is the relative drop from the earliest to the latest
// year. No data or a zero earliest total yields 0.
func ReductionPercent(sums map[int]float64) float64 {
	first, last, ok := yearRange(sums)
	if !ok || sums[first] == 0 {
		return 0
	}
	return (sums[first] - sums[last]) / sums[first] * 100
}

// LatestTotal is the summed value of the most recent year.
func LatestTotal(sums map[int]float64) (float64, bool) {
	_, last, ok := yearRange(sums)
	if !ok {
		return 0, false
	}
	return sums[last], true
}

// Aggregate reduces per-year rows to one long-format row per geography, in
// order of first appearance. Geographies without any data get a nil value.
func (k SpecialKind) Aggregate(rows []YearRow) []ValueRow {
	type group struct {
		first YearRow
		rows  []YearRow
	}
	var order []string
	groups := make(map[string]*group)
	for _, r := range rows {
		g, ok := groups[r.GeoID]
		if !ok {
			g = &group{first: r}
			groups[r.GeoID] = g
			order = append(order, r.GeoID)
		}
		g.rows = append(g.rows, r)
	}

	out := make([]ValueRow, 0, len(order))
	for _, id := range order {
		g := groups[id]
		sums := SumByYear(g.rows)

		var v *float64
		if len(sums) > 0 {
			var x float64
			switch k {
			case ExceedanceDays:
				x, _ = LatestTotal(sums)
			default:
				x = ReductionPercent(sums)
			}
			v = &x
		}
		out = append(out, ValueRow{
			Identity: Identity{
				GeoID:         g.first.GeoID,
				GeoName:       g.first.GeoName,
				GeoLevel:      g.first.GeoLevel,
				GeoParentName: g.first.GeoParentName,
			},
			Indicator: k.IndicatorID(),
			Value:     v,
		})
	}
	return out
}
