// Package resilience wraps upstream calls with pacing, retries and a circuit
// breaker. Callers decide which failures are transient by wrapping them with
// Retryable.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker/v2"

	"github.com/mohammed-shakir/city-indicators-api/internal/core/observability"
	"github.com/mohammed-shakir/city-indicators-api/internal/quota"
)

type Config struct {
	MaxRetries       int
	BackoffInitial   time.Duration
	BackoffMax       time.Duration
	BreakerFailures  int
	BreakerOpenAfter time.Duration
}

// RetryableError marks a transient failure (429, 5xx, transport).
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return e.Err.Error() }

func (e *RetryableError) Unwrap() error { return e.Err }

func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

type Guard struct {
	name    string
	cfg     Config
	limiter quota.Limiter
	cb      *gobreaker.CircuitBreaker[any]
	logger  *slog.Logger
}

func NewGuard(name string, cfg Config, limiter quota.Limiter, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if limiter == nil {
		limiter = quota.NewLocal(name, 0, 0)
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = time.Second
	}
	if cfg.BackoffMax < cfg.BackoffInitial {
		cfg.BackoffMax = cfg.BackoffInitial
	}
	failures := uint32(max(cfg.BreakerFailures, 1))

	g := &Guard{name: name, cfg: cfg, limiter: limiter, logger: logger}
	g.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:    name,
		Timeout: cfg.BreakerOpenAfter,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= failures
		},
		// client errors say nothing about upstream health
		IsSuccessful: func(err error) bool {
			return err == nil || !IsRetryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			observability.SetBreakerState(name, int(to))
			logger.Warn("circuit breaker state change", "upstream", name, "from", from.String(), "to", to.String())
		},
	})
	observability.SetBreakerState(name, int(gobreaker.StateClosed))
	return g
}

func (g *Guard) Name() string { return g.name }

// Do runs fn under the guard. Each attempt first waits for a quota slot.
// Only RetryableError failures are retried; everything else returns at once.
func Do[T any](ctx context.Context, g *Guard, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	start := time.Now()

	attempt := 0
	operation := func() (T, error) {
		var zero T
		attempt++
		if attempt > 1 {
			observability.IncUpstreamRetry(g.name)
		}
		if err := g.limiter.Wait(ctx); err != nil {
			return zero, backoff.Permanent(err)
		}
		res, err := g.cb.Execute(func() (any, error) { return fn(ctx) })
		if err != nil {
			if IsRetryable(err) {
				return zero, err
			}
			return zero, backoff.Permanent(err)
		}
		v, _ := res.(T)
		return v, nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = g.cfg.BackoffInitial
	eb.MaxInterval = g.cfg.BackoffMax
	eb.Multiplier = 2

	v, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(uint(g.cfg.MaxRetries)),
		backoff.WithNotify(func(err error, d time.Duration) {
			g.logger.WarnContext(ctx, "upstream call failed, retrying",
				"upstream", g.name, "op", op, "attempt", attempt, "retry_in", d, "err", err)
		}),
	)
	observability.ObserveUpstream(g.name, op, err, time.Since(start).Seconds())
	if err != nil {
		var zero T
		return zero, fmt.Errorf("%s %s: %w", g.name, op, err)
	}
	return v, nil
}
