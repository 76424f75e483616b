package warehouse

import (
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Query is SQL text with its bound arguments. Name labels logs and metrics.
type Query struct {
	Name string
	SQL  string
	Args []any
}

const valueColumns = "geo_id, geo_name, geo_level, geo_parent_name"

// BoundariesQuery selects the current boundary polygons of one city level.
func BoundariesQuery(cityID, adminLevel string) Query {
	return Query{
		Name: "boundaries",
		SQL: `SELECT ` + valueColumns + `, geo_version, ST_AsGeoJSON(the_geom) AS the_geom
FROM boundaries
WHERE geo_parent_name = $1 AND geo_level = $2 AND geo_version = 0
ORDER BY geo_id`,
		Args: []any{cityID, adminLevel},
	}
}

// IndicatorValuesQuery selects current long-format values of one city level,
// optionally restricted to one indicator.
func IndicatorValuesQuery(cityID, adminLevel, indicatorID string) Query {
	q := Query{
		Name: "indicator_values",
		SQL: `SELECT ` + valueColumns + `, indicator, value, indicator_version
FROM indicators
WHERE geo_parent_name = $1 AND geo_level = $2 AND indicator_version = 0`,
		Args: []any{cityID, adminLevel},
	}
	if indicatorID != "" {
		q.SQL += ` AND indicator = $3`
		q.Args = append(q.Args, indicatorID)
	}
	return q
}

// SpecialValuesQuery selects the per-year rows of a time-series indicator
// table. table must come from the closed set of special indicator tables.
func SpecialValuesQuery(table, cityID, adminLevel string) Query {
	return Query{
		Name: "special_values",
		SQL: fmt.Sprintf(`SELECT %s, year, value
FROM %s
WHERE geo_parent_name = $1 AND geo_level = $2`, valueColumns, pgx.Identifier{table}.Sanitize()),
		Args: []any{cityID, adminLevel},
	}
}

// CityLevelValuesQuery selects the whole-city value of one indicator
// (rows whose geography is the city itself), optionally for one city.
func CityLevelValuesQuery(indicatorID, cityID string) Query {
	q := Query{
		Name: "city_level_values",
		SQL: `SELECT ` + valueColumns + `, indicator, value, indicator_version
FROM indicators
WHERE indicator = $1 AND geo_name = geo_parent_name AND indicator_version = 0`,
		Args: []any{indicatorID},
	}
	if cityID != "" {
		q.SQL += ` AND geo_parent_name = $2`
		q.Args = append(q.Args, cityID)
	}
	return q
}
