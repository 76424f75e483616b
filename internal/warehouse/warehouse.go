// Package warehouse runs read-only parameterized queries against the
// PostGIS indicator warehouse.
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mohammed-shakir/city-indicators-api/internal/core/model"
	"github.com/mohammed-shakir/city-indicators-api/internal/core/resilience"
)

const upstreamName = "warehouse"

// GeometryColumn is decoded from GeoJSON text into *Geometry.
const GeometryColumn = "the_geom"

// Gateway is the query contract the services depend on.
type Gateway interface {
	Query(ctx context.Context, q Query) (*Table, error)
}

type Config struct {
	DSN      string
	MaxConns int
}

type Pool struct {
	pool   *pgxpool.Pool
	guard  *resilience.Guard
	logger *slog.Logger
}

func Open(ctx context.Context, cfg Config, guard *resilience.Guard, logger *slog.Logger) (*Pool, error) {
	if cfg.DSN == "" {
		return nil, errors.New("warehouse dsn is required")
	}
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse warehouse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = int32(cfg.MaxConns)
	}
	// every statement is a read
	pc.ConnConfig.RuntimeParams["default_transaction_read_only"] = "on"

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("connect warehouse: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if guard == nil {
		guard = resilience.NewGuard(upstreamName, resilience.Config{}, nil, logger)
	}
	return &Pool{pool: pool, guard: guard, logger: logger}, nil
}

func (p *Pool) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("warehouse ping: %w", err)
	}
	return nil
}

func (p *Pool) Close() { p.pool.Close() }

func (p *Pool) Query(ctx context.Context, q Query) (*Table, error) {
	t, err := resilience.Do(ctx, p.guard, q.Name, func(ctx context.Context) (*Table, error) {
		rows, err := p.pool.Query(ctx, q.SQL, q.Args...)
		if err != nil {
			return nil, classify(ctx, err)
		}
		defer rows.Close()

		fds := rows.FieldDescriptions()
		cols := make([]string, len(fds))
		for i, fd := range fds {
			cols[i] = fd.Name
		}
		out := &Table{Columns: cols}
		for rows.Next() {
			vals, err := rows.Values()
			if err != nil {
				return nil, fmt.Errorf("scan row: %w", err)
			}
			row, err := buildRow(cols, vals)
			if err != nil {
				return nil, err
			}
			out.Rows = append(out.Rows, row)
		}
		if err := rows.Err(); err != nil {
			return nil, classify(ctx, err)
		}
		return out, nil
	})
	if err != nil {
		return nil, model.Upstream(upstreamName, q.Name, err)
	}
	p.logger.DebugContext(ctx, "warehouse query", "query", q.Name, "rows", t.Len())
	return t, nil
}

func buildRow(cols []string, vals []any) (Row, error) {
	row := make(Row, len(cols))
	for i, c := range cols {
		v := normalize(vals[i])
		if c == GeometryColumn {
			if s, ok := v.(string); ok && s != "" {
				g, err := DecodeGeometry([]byte(s))
				if err != nil {
					return nil, fmt.Errorf("column %s: %w", c, err)
				}
				v = g
			}
		}
		row[c] = v
	}
	return row, nil
}

// classify marks connection trouble, timeouts and server resource errors
// as transient.
func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return err
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return resilience.Retryable(err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "08"), // connection exception
			strings.HasPrefix(pgErr.Code, "53"), // insufficient resources
			pgErr.Code == "57P01",               // admin shutdown
			pgErr.Code == "40001":               // serialization failure
			return resilience.Retryable(err)
		}
		return err
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return resilience.Retryable(err)
	}
	return err
}
