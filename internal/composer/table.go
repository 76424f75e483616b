package composer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/mohammed-shakir/city-indicators-api/internal/aggregate/pivot"
)

// IdentityColumns lead every tabular export.
var IdentityColumns = []string{"geo_id", "geo_name", "geo_level", "geo_parent_name", "indicator_version"}

// UnitFormatter renders a value for text export: "12.5%" for percentages,
// "12.5 ha" otherwise and "" for a missing value.
func UnitFormatter(v *float64, unit string) string {
	if v == nil {
		return ""
	}
	s := strconv.FormatFloat(*v, 'f', -1, 64)
	if unit == "%" {
		return s + "%"
	}
	if unit == "" {
		return s
	}
	return s + " " + unit
}

type TabularResult struct {
	Headers []string
	Rows    [][]string
}

// Table flattens pivoted records into string rows. columns selects and
// orders the indicator columns; empty means every column of res. units maps
// indicator id to its unit.
func Table(res pivot.Result, columns []string, units map[string]string) TabularResult {
	if len(columns) == 0 {
		columns = res.Columns
	}
	headers := make([]string, 0, len(IdentityColumns)+len(columns))
	headers = append(headers, IdentityColumns...)
	headers = append(headers, columns...)

	out := TabularResult{Headers: headers, Rows: make([][]string, 0, len(res.Records))}
	for _, r := range res.Records {
		row := make([]string, 0, len(headers))
		row = append(row,
			r.GeoID,
			r.GeoName,
			r.GeoLevel,
			r.GeoParentName,
			strconv.FormatInt(r.IndicatorVersion, 10),
		)
		for _, c := range columns {
			row = append(row, UnitFormatter(r.Values[c], units[c]))
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}

func WriteCSV(w io.Writer, t TabularResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Headers); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("write csv rows: %w", err)
	}
	return nil
}

const sheetName = "indicators"

func WriteXLSX(w io.Writer, t TabularResult) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("xlsx sheet: %w", err)
	}
	write := func(n int, cells []string) error {
		cell, err := excelize.CoordinatesToCellName(1, n)
		if err != nil {
			return err
		}
		row := make([]any, len(cells))
		for i, c := range cells {
			row[i] = c
		}
		return f.SetSheetRow(sheetName, cell, &row)
	}
	if err := write(1, t.Headers); err != nil {
		return fmt.Errorf("xlsx header: %w", err)
	}
	for i, r := range t.Rows {
		if err := write(i+2, r); err != nil {
			return fmt.Errorf("xlsx row %d: %w", i, err)
		}
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}
