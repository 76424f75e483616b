// Package service implements the read-only API operations: it fans out to
// the record store and the warehouse, then joins, pivots and enriches the
// results in memory.
package service

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/mohammed-shakir/city-indicators-api/internal/core/executor"
	"github.com/mohammed-shakir/city-indicators-api/internal/recordstore"
	"github.com/mohammed-shakir/city-indicators-api/internal/warehouse"
)

const (
	defaultBoundariesBaseURL = "https://wri-cities-data-api.s3.us-east-1.amazonaws.com/data/prd/boundaries"
	defaultLayersBaseURL     = "https://cities-indicators.s3.amazonaws.com/"
	layersBucketPrefix       = "s3://cities-indicators/"
)

type Config struct {
	// BoundariesBaseURL prefixes the pre-rendered boundary files of a city.
	BoundariesBaseURL string
	// LayersBaseURL replaces the s3:// bucket prefix of layer paths.
	LayersBaseURL string
}

type Service struct {
	records recordstore.Gateway
	wh      warehouse.Gateway
	cfg     Config
	logger  *slog.Logger
}

func New(records recordstore.Gateway, wh warehouse.Gateway, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.BoundariesBaseURL == "" {
		cfg.BoundariesBaseURL = defaultBoundariesBaseURL
	}
	cfg.BoundariesBaseURL = strings.TrimRight(cfg.BoundariesBaseURL, "/")
	if cfg.LayersBaseURL == "" {
		cfg.LayersBaseURL = defaultLayersBaseURL
	}
	if !strings.HasSuffix(cfg.LayersBaseURL, "/") {
		cfg.LayersBaseURL += "/"
	}
	return &Service{records: records, wh: wh, cfg: cfg, logger: logger}
}

func (s *Service) group(ctx context.Context) *executor.Group {
	return executor.New(ctx, s.logger)
}

// fetch schedules a FetchMany on g.
func (s *Service) fetch(g *executor.Group, table recordstore.Table, formula string) *executor.Future[[]recordstore.Record] {
	return executor.Go(g, "fetch_"+strings.ToLower(string(table)), func(ctx context.Context) ([]recordstore.Record, error) {
		return s.records.FetchMany(ctx, table, formula)
	})
}

func (s *Service) fetchFirst(g *executor.Group, table recordstore.Table, formula string) *executor.Future[*recordstore.Record] {
	return executor.Go(g, "fetch_first_"+strings.ToLower(string(table)), func(ctx context.Context) (*recordstore.Record, error) {
		return s.records.FetchFirst(ctx, table, formula)
	})
}

func (s *Service) query(g *executor.Group, q warehouse.Query) *executor.Future[*warehouse.Table] {
	return executor.Go(g, "query_"+q.Name, func(ctx context.Context) (*warehouse.Table, error) {
		return s.wh.Query(ctx, q)
	})
}

// byField maps record ids to one field of each record.
func byField(recs []recordstore.Record, field string) map[string]string {
	return recordstore.Index(recs, func(r recordstore.Record) string { return r.Fields.String(field) })
}

// resolve replaces each record id in ids with its mapped value, dropping
// ids that do not resolve.
func resolve(ids []string, m map[string]string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if v, ok := m[id]; ok {
			out = append(out, v)
		}
	}
	return out
}

func values(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// pick copies the listed keys present in f.
func pick(f recordstore.Fields, keys []string) map[string]any {
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := f[k]; ok {
			out[k] = v
		}
	}
	return out
}
