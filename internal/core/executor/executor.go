// Package executor runs the independent upstream fetches of one request in
// parallel and joins them before the results are combined.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mohammed-shakir/city-indicators-api/internal/core/observability"
)

// TaskError names the task that failed the group.
type TaskError struct {
	Task string
	Err  error
}

func (e *TaskError) Error() string { return fmt.Sprintf("%s: %v", e.Task, e.Err) }

func (e *TaskError) Unwrap() error { return e.Err }

// Group is a fixed set of named tasks joined by Wait. The first failing task
// cancels the context handed to the others and becomes the group's error.
type Group struct {
	eg     *errgroup.Group
	ctx    context.Context
	logger *slog.Logger
	now    func() time.Time
}

func New(ctx context.Context, logger *slog.Logger) *Group {
	eg, gctx := errgroup.WithContext(ctx)
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Group{eg: eg, ctx: gctx, logger: logger, now: time.Now}
}

// Future holds the result of one task. Get is only meaningful after the
// owning group's Wait returned nil.
type Future[T any] struct {
	name string
	val  T
}

func (f *Future[T]) Name() string { return f.name }

func (f *Future[T]) Get() T { return f.val }

// Go runs fn on g and returns a future readable after Wait.
func Go[T any](g *Group, name string, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := &Future[T]{name: name}
	g.eg.Go(func() error {
		start := g.now()
		v, err := fn(g.ctx)
		dur := time.Since(start)
		observability.ObserveFanoutTask(name, err, dur.Seconds())
		if err != nil {
			g.logger.DebugContext(g.ctx, "fanout task failed", "task", name, "duration", dur, "err", err)
			return &TaskError{Task: name, Err: err}
		}
		f.val = v
		return nil
	})
	return f
}

// Wait blocks until every task finished and returns the first error.
func (g *Group) Wait() error {
	return g.eg.Wait()
}
