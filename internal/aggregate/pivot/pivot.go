// Package pivot turns long-format indicator rows (one row per geography and
// indicator) into wide records (one row per geography, one column per
// indicator).
package pivot

import (
	"sort"

	json "github.com/goccy/go-json"
)

// Sentinel marks a value that could not be computed. It is never a
// measurement and never leaves this package.
const Sentinel = -9999.0

// Identity is the set of columns a wide record is grouped by.
type Identity struct {
	GeoID            string `json:"geo_id"`
	GeoName          string `json:"geo_name"`
	GeoLevel         string `json:"geo_level"`
	GeoParentName    string `json:"geo_parent_name"`
	IndicatorVersion int64  `json:"indicator_version"`
}

// ValueRow is one long-format fact.
type ValueRow struct {
	Identity
	Indicator string
	Value     *float64
}

// Clean maps the sentinel to nil.
func Clean(v *float64) *float64 {
	if v != nil && *v == Sentinel {
		return nil
	}
	return v
}

// Record is one wide row. Values has an entry for every column of the
// Result it belongs to; cells without data are nil.
type Record struct {
	Identity
	Values map[string]*float64
}

// Value returns the cell for indicator and whether it holds data.
func (r Record) Value(indicator string) (float64, bool) {
	v := r.Values[indicator]
	if v == nil {
		return 0, false
	}
	return *v, true
}

func (r Record) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(r.Values)+5)
	for k, v := range r.Values {
		m[k] = v
	}
	m["geo_id"] = r.GeoID
	m["geo_name"] = r.GeoName
	m["geo_level"] = r.GeoLevel
	m["geo_parent_name"] = r.GeoParentName
	m["indicator_version"] = r.IndicatorVersion
	return json.Marshal(m)
}

// Duplicate describes a value dropped because an earlier row already set
// the same (geography, indicator, version) cell.
type Duplicate struct {
	GeoID            string
	Indicator        string
	IndicatorVersion int64
	Kept             *float64
	Dropped          *float64
}

type Result struct {
	// Columns lists the distinct indicators present, sorted.
	Columns    []string
	Records    []Record
	Duplicates []Duplicate
}

func (r Result) Empty() bool { return len(r.Records) == 0 }

type cellKey struct {
	id        Identity
	indicator string
}

// Pivot groups rows by identity, in order of first appearance. The first
// value seen for a cell wins; later ones are reported in Duplicates.
// Sentinel values become nil before grouping.
func Pivot(rows []ValueRow) Result {
	var res Result

	recIdx := make(map[Identity]int)
	seen := make(map[cellKey]struct{})
	cols := make(map[string]struct{})

	for _, row := range rows {
		i, ok := recIdx[row.Identity]
		if !ok {
			i = len(res.Records)
			recIdx[row.Identity] = i
			res.Records = append(res.Records, Record{Identity: row.Identity, Values: map[string]*float64{}})
		}
		cols[row.Indicator] = struct{}{}

		k := cellKey{id: row.Identity, indicator: row.Indicator}
		v := Clean(row.Value)
		if _, dup := seen[k]; dup {
			res.Duplicates = append(res.Duplicates, Duplicate{
				GeoID:            row.GeoID,
				Indicator:        row.Indicator,
				IndicatorVersion: row.IndicatorVersion,
				Kept:             res.Records[i].Values[row.Indicator],
				Dropped:          v,
			})
			continue
		}
		seen[k] = struct{}{}
		res.Records[i].Values[row.Indicator] = v
	}

	res.Columns = make([]string, 0, len(cols))
	for c := range cols {
		res.Columns = append(res.Columns, c)
	}
	sort.Strings(res.Columns)

	for i := range res.Records {
		for _, c := range res.Columns {
			if _, ok := res.Records[i].Values[c]; !ok {
				res.Records[i].Values[c] = nil
			}
		}
	}
	return res
}

// Unpivot is the inverse of Pivot for cells holding data.
func Unpivot(res Result) []ValueRow {
	var out []ValueRow
	for _, r := range res.Records {
		for _, c := range res.Columns {
			if v := r.Values[c]; v != nil {
				val := *v
				out = append(out, ValueRow{Identity: r.Identity, Indicator: c, Value: &val})
			}
		}
	}
	return out
}

// Index maps geo ids to their record. With several indicator versions per
// geography the first record wins.
func (r Result) Index() map[string]Record {
	out := make(map[string]Record, len(r.Records))
	for _, rec := range r.Records {
		if _, ok := out[rec.GeoID]; !ok {
			out[rec.GeoID] = rec
		}
	}
	return out
}
