package executor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mohammed-shakir/city-indicators-api/internal/core/model"
)

func TestGroup_JoinsAllResults(t *testing.T) {
	g := New(context.Background(), nil)

	a := Go(g, "cities", func(context.Context) ([]string, error) {
		time.Sleep(10 * time.Millisecond)
		return []string{"city1", "city2"}, nil
	})
	b := Go(g, "count", func(context.Context) (int, error) { return 7, nil })

	if err := g.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if got := a.Get(); len(got) != 2 || got[1] != "city2" {
		t.Fatalf("cities=%v", got)
	}
	if got := b.Get(); got != 7 {
		t.Fatalf("count=%d want 7", got)
	}
	if a.Name() != "cities" {
		t.Fatalf("name=%q", a.Name())
	}
}

func TestGroup_FirstErrorNamesTaskAndCancelsOthers(t *testing.T) {
	g := New(context.Background(), nil)
	var cancelled atomic.Bool

	Go(g, "boundaries", func(context.Context) (int, error) {
		return 0, model.ErrNoGeometry
	})
	Go(g, "values", func(ctx context.Context) (int, error) {
		select {
		case <-ctx.Done():
			cancelled.Store(true)
			return 0, ctx.Err()
		case <-time.After(2 * time.Second):
			return 1, nil
		}
	})

	err := g.Wait()
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("err=%v should wrap ErrNotFound", err)
	}
	var te *TaskError
	if !errors.As(err, &te) || te.Task != "boundaries" {
		t.Fatalf("err=%v want TaskError for boundaries", err)
	}
	if !cancelled.Load() {
		t.Fatal("sibling task was not cancelled")
	}
}
