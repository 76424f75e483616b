package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	maintnotifications "github.com/redis/go-redis/v9/maintnotifications"

	"github.com/mohammed-shakir/city-indicators-api/internal/core/observability"
)

type Option func(*redis.Options)

func WithPoolSize(n int) Option {
	return func(o *redis.Options) { o.PoolSize = n }
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.DialTimeout = d }
}

func WithReadTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.ReadTimeout = d }
}

// Client owns the Redis connection shared by every Redis limiter.
type Client struct {
	rdb *redis.Client
}

func Dial(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}

	ro := &redis.Options{
		Addr:         addr,
		PoolSize:     16,
		MinIdleConns: 2,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	}
	for _, f := range opts {
		f(ro)
	}

	rdb := redis.NewClient(ro)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (c *Client) Close() error { return c.rdb.Close() }

// Redis is a fixed-window counter: at most calls per period across all
// processes sharing the same name. Counter keys are quota:<name>:<window>.
type Redis struct {
	c        *Client
	name     string
	calls    int64
	period   time.Duration
	fallback Limiter
	logger   *slog.Logger
	now      func() time.Time
}

// NewRedis builds a shared limiter. When Redis fails, Wait degrades to
// fallback (which may be nil to fail open).
func (c *Client) NewRedis(name string, calls int, period time.Duration, fallback Limiter, logger *slog.Logger) *Redis {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Redis{
		c:        c,
		name:     name,
		calls:    int64(calls),
		period:   period,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

func (r *Redis) Wait(ctx context.Context) error {
	if r.calls <= 0 || r.period <= 0 {
		return nil
	}
	start := time.Now()
	defer func() { observability.ObserveQuotaWait(r.name, time.Since(start).Seconds()) }()

	for {
		window := r.now().UnixNano() / int64(r.period)
		n, err := r.take(ctx, r.key(window))
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("quota %s: %w", r.name, ctx.Err())
			}
			r.logger.WarnContext(ctx, "shared quota unavailable, using local limiter", "quota", r.name, "err", err)
			if r.fallback == nil {
				return nil
			}
			return r.fallback.Wait(ctx)
		}
		if n <= r.calls {
			return nil
		}

		next := time.Unix(0, (window+1)*int64(r.period))
		t := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("quota %s: %w", r.name, ctx.Err())
		case <-t.C:
		}
	}
}

func (r *Redis) key(window int64) string {
	return fmt.Sprintf("quota:%s:%d", r.name, window)
}

func (r *Redis) take(ctx context.Context, key string) (int64, error) {
	var incr *redis.IntCmd
	_, err := r.c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, key)
		p.PExpire(ctx, key, 2*r.period)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis INCR %s: %w", key, err)
	}
	return incr.Val(), nil
}
