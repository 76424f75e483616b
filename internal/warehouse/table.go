package warehouse

import (
	"math"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// Row maps column names to normalized scalars: string, int64, float64,
// bool, time.Time, *Geometry or nil.
type Row map[string]any

type Table struct {
	Columns []string
	Rows    []Row
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

func (r Row) String(k string) string {
	switch v := r[k].(type) {
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

func (r Row) Int(k string) (int64, bool) {
	switch v := r[k].(type) {
	case int64:
		return v, true
	case float64:
		if v == math.Trunc(v) {
			return int64(v), true
		}
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	}
	return 0, false
}

// Float returns nil for NULL or non-numeric cells.
func (r Row) Float(k string) *float64 {
	switch v := r[k].(type) {
	case float64:
		if math.IsNaN(v) {
			return nil
		}
		return &v
	case int64:
		f := float64(v)
		return &f
	}
	return nil
}

func (r Row) Geometry(k string) *Geometry {
	g, _ := r[k].(*Geometry)
	return g
}

// normalize maps pgx driver values onto the Row scalar set.
func normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case int:
		return int64(x)
	case float32:
		return float64(x)
	case pgtype.Numeric:
		if !x.Valid || x.NaN {
			return nil
		}
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case []byte:
		return string(x)
	case time.Time:
		return x.UTC()
	case pgtype.Date:
		if !x.Valid {
			return nil
		}
		return x.Time.UTC()
	}
	return v
}
