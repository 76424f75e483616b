// Package quota paces calls to rate-limited upstreams. A Redis-backed
// limiter shares one budget across every replica; the local limiter covers
// single-process deployments and Redis outages.
package quota

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/mohammed-shakir/city-indicators-api/internal/core/observability"
)

type Limiter interface {
	Wait(ctx context.Context) error
}

// Local is a token bucket allowing calls per period with a burst of calls.
type Local struct {
	name string
	lim  *rate.Limiter
}

func NewLocal(name string, calls int, period time.Duration) *Local {
	if calls <= 0 || period <= 0 {
		return &Local{name: name, lim: rate.NewLimiter(rate.Inf, 0)}
	}
	every := rate.Every(period / time.Duration(calls))
	return &Local{name: name, lim: rate.NewLimiter(every, calls)}
}

func (l *Local) Wait(ctx context.Context) error {
	start := time.Now()
	err := l.lim.Wait(ctx)
	observability.ObserveQuotaWait(l.name, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("quota %s: %w", l.name, err)
	}
	return nil
}
