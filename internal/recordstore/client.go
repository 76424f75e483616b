// Package recordstore reads entity collections from the Airtable REST API.
package recordstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/mohammed-shakir/city-indicators-api/internal/core/model"
	"github.com/mohammed-shakir/city-indicators-api/internal/core/resilience"
)

const upstreamName = "recordstore"

// Gateway is the read contract the services depend on.
type Gateway interface {
	FetchMany(ctx context.Context, table Table, formula string) ([]Record, error)
	FetchFirst(ctx context.Context, table Table, formula string) (*Record, error)
}

type Config struct {
	URL    string
	APIKey string
	BaseID string
	View   string
	// PageSize is capped at 100 by the API.
	PageSize int
}

type Client struct {
	base     *url.URL
	apiKey   string
	view     string
	pageSize int
	http     *http.Client
	guard    *resilience.Guard
	logger   *slog.Logger
}

func New(cfg Config, hc *http.Client, guard *resilience.Guard, logger *slog.Logger) (*Client, error) {
	if cfg.BaseID == "" {
		return nil, errors.New("record store base id is required")
	}
	u, err := url.Parse(strings.TrimSuffix(cfg.URL, "/") + "/" + url.PathEscape(cfg.BaseID))
	if err != nil {
		return nil, fmt.Errorf("parse record store url: %w", err)
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if guard == nil {
		guard = resilience.NewGuard(upstreamName, resilience.Config{}, nil, logger)
	}
	ps := cfg.PageSize
	if ps <= 0 || ps > 100 {
		ps = 100
	}
	return &Client{
		base:     u,
		apiKey:   cfg.APIKey,
		view:     cfg.View,
		pageSize: ps,
		http:     hc,
		guard:    guard,
		logger:   logger,
	}, nil
}

type listResponse struct {
	Records []Record `json:"records"`
	Offset  string   `json:"offset"`
}

// FetchMany returns every record of table matching formula, following the
// pagination cursor until it is exhausted.
func (c *Client) FetchMany(ctx context.Context, table Table, formula string) ([]Record, error) {
	q := c.baseQuery(formula)
	q.Set("pageSize", strconv.Itoa(c.pageSize))

	var out []Record
	for page := 0; ; page++ {
		res, err := c.page(ctx, "fetch_many", table, q)
		if err != nil {
			return nil, model.Upstream(upstreamName, "fetch_many "+string(table), err)
		}
		out = append(out, res.Records...)
		if res.Offset == "" {
			c.logger.DebugContext(ctx, "record store fetch", "table", table, "records", len(out), "pages", page+1)
			return out, nil
		}
		q.Set("offset", res.Offset)
	}
}

// FetchFirst returns the first matching record, or nil when none matches.
func (c *Client) FetchFirst(ctx context.Context, table Table, formula string) (*Record, error) {
	q := c.baseQuery(formula)
	q.Set("maxRecords", "1")

	res, err := c.page(ctx, "fetch_first", table, q)
	if err != nil {
		return nil, model.Upstream(upstreamName, "fetch_first "+string(table), err)
	}
	if len(res.Records) == 0 {
		return nil, nil
	}
	r := res.Records[0]
	return &r, nil
}

// Ping reads one project record.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.FetchFirst(ctx, Projects, "")
	return err
}

func (c *Client) baseQuery(formula string) url.Values {
	q := url.Values{}
	if c.view != "" {
		q.Set("view", c.view)
	}
	if formula != "" {
		q.Set("filterByFormula", formula)
	}
	return q
}

func (c *Client) page(ctx context.Context, op string, table Table, q url.Values) (listResponse, error) {
	u := *c.base
	u.Path = c.base.Path + "/" + url.PathEscape(string(table))
	u.RawPath = ""
	u.RawQuery = q.Encode()

	return resilience.Do(ctx, c.guard, op, func(ctx context.Context) (listResponse, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return listResponse{}, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return listResponse{}, fmt.Errorf("do request: %w", err)
			}
			return listResponse{}, resilience.Retryable(fmt.Errorf("do request: %w", err))
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
			err := fmt.Errorf("upstream status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return listResponse{}, resilience.Retryable(err)
			}
			return listResponse{}, err
		}

		var out listResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return listResponse{}, fmt.Errorf("decode %s page: %w", table, err)
		}
		return out, nil
	})
}
