// Package composer turns joined pipeline results into response payloads:
// GeoJSON, JSON, CSV and XLSX.
package composer

import (
	"strconv"
	"strings"
)

type Format int

const (
	FormatGeoJSON Format = iota
	FormatJSON
	FormatCSV
	FormatXLSX
)

const (
	ContentTypeGeoJSON = "application/geo+json"
	ContentTypeJSON    = "application/json"
	ContentTypeCSV     = "text/csv; charset=utf-8"
	ContentTypeXLSX    = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatCSV:
		return "csv"
	case FormatXLSX:
		return "xlsx"
	default:
		return "geojson"
	}
}

// Extension is the file extension used in Content-Disposition.
func (f Format) Extension() string { return f.String() }

type NegotiationInput struct {
	AcceptHeader  string
	OutputFormat  string
	DefaultFormat Format
}

type Negotiation struct {
	Format      Format
	ContentType string
}

func negotiation(f Format) Negotiation {
	switch f {
	case FormatJSON:
		return Negotiation{Format: f, ContentType: ContentTypeJSON}
	case FormatCSV:
		return Negotiation{Format: f, ContentType: ContentTypeCSV}
	case FormatXLSX:
		return Negotiation{Format: f, ContentType: ContentTypeXLSX}
	default:
		return Negotiation{Format: FormatGeoJSON, ContentType: ContentTypeGeoJSON}
	}
}

// explicit maps a format query value or a media type onto a Format.
func explicit(v string) (Format, bool) {
	switch {
	case v == "geojson", strings.Contains(v, "geo+json"):
		return FormatGeoJSON, true
	case v == "json", strings.HasPrefix(v, "application/json"):
		return FormatJSON, true
	case v == "csv", strings.HasPrefix(v, "text/csv"):
		return FormatCSV, true
	case v == "xlsx", v == "excel", strings.Contains(v, "spreadsheetml"):
		return FormatXLSX, true
	}
	return 0, false
}

// NegotiateFormat picks the output format. An explicit format parameter wins
// over Accept; within Accept the highest q value wins.
func NegotiateFormat(in NegotiationInput) Negotiation {
	of := strings.ToLower(strings.TrimSpace(in.OutputFormat))
	if f, ok := explicit(of); ok {
		return negotiation(f)
	}

	ah := strings.ToLower(in.AcceptHeader)
	bestQ := -1.0
	best := Negotiation{}
	for part := range strings.SplitSeq(ah, ",") {
		token := strings.TrimSpace(part)
		if token == "" {
			continue
		}
		mt := token
		params := ""
		if i := strings.Index(token, ";"); i >= 0 {
			mt = strings.TrimSpace(token[:i])
			params = token[i+1:]
		}
		q := 1.0
		for p := range strings.SplitSeq(params, ";") {
			p = strings.TrimSpace(p)
			if after, ok := strings.CutPrefix(p, "q="); ok {
				if v, err := strconv.ParseFloat(after, 64); err == nil {
					q = v
				}
			}
		}
		var f Format
		switch {
		case mt == "*/*":
			f = in.DefaultFormat
		default:
			var ok bool
			if f, ok = explicit(mt); !ok {
				continue
			}
		}
		if q > bestQ {
			bestQ = q
			best = negotiation(f)
		}
	}
	if bestQ >= 0 {
		return best
	}
	return negotiation(in.DefaultFormat)
}
