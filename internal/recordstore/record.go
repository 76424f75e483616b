package recordstore

import (
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// Table names one record store collection.
type Table string

const (
	Cities     Table = "Cities"
	Indicators Table = "Indicators"
	Datasets   Table = "Datasets"
	Layers     Table = "Layers"
	Projects   Table = "Projects"

	Interventions   Table = "Interventions"
	Scenarios       Table = "Scenarios"
	IndicatorValues Table = "Indicator Values"
)

// Record is one row of a collection. ID is the store's own record id, which
// is what link fields on other records refer to.
type Record struct {
	ID          string `json:"id"`
	CreatedTime string `json:"createdTime,omitempty"`
	Fields      Fields `json:"fields"`
}

type Fields map[string]any

func (f Fields) Has(k string) bool {
	_, ok := f[k]
	return ok
}

// String returns a text field. Numbers are formatted; lookup fields (lists)
// yield their first element.
func (f Fields) String(k string) string {
	switch v := f[k].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case []any:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				return s
			}
		}
	}
	return ""
}

// Strings returns a multi-value field. A plain string is split on commas.
func (f Fields) Strings(k string) []string {
	switch v := f[k].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	case string:
		var out []string
		for p := range strings.SplitSeq(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return nil
}

func (f Fields) Float(k string) (float64, bool) {
	switch v := f[k].(type) {
	case float64:
		return v, true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return n, err == nil
	}
	return 0, false
}

// JSON decodes a structure serialized into a text field. Missing or
// malformed content yields an empty object.
func (f Fields) JSON(k string) any {
	s, ok := f[k].(string)
	if !ok || strings.TrimSpace(s) == "" {
		if v, isObj := f[k].(map[string]any); isObj {
			return v
		}
		return map[string]any{}
	}
	var out any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return map[string]any{}
	}
	return out
}

// Raw returns the field as decoded from the store.
func (f Fields) Raw(k string) any { return f[k] }

// Index maps record ids to a value derived from each record.
func Index[V any](recs []Record, fn func(Record) V) map[string]V {
	out := make(map[string]V, len(recs))
	for _, r := range recs {
		out[r.ID] = fn(r)
	}
	return out
}
