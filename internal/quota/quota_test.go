package quota

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

// creates new client connected to miniredis for testing
func newMini(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	c, err := Dial(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestRedis_AllowsBudgetThenBlocksUntilWindowEnds(t *testing.T) {
	c, mr := newMini(t)
	lim := c.NewRedis("airtable", 2, time.Hour, nil, nil)

	ctx := context.Background()
	for i := range 2 {
		if err := lim.Wait(ctx); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := lim.Wait(short)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("third call err=%v want deadline exceeded", err)
	}

	keys := mr.Keys()
	if len(keys) != 1 || !strings.HasPrefix(keys[0], "quota:airtable:") {
		t.Fatalf("keys=%v", keys)
	}
	if ttl := mr.TTL(keys[0]); ttl <= 0 {
		t.Fatalf("ttl=%v want >0", ttl)
	}
}

func TestRedis_SharedAcrossLimitersWithSameName(t *testing.T) {
	c, _ := newMini(t)
	a := c.NewRedis("carto", 1, time.Hour, nil, nil)
	b := c.NewRedis("carto", 1, time.Hour, nil, nil)

	if err := a.Wait(context.Background()); err != nil {
		t.Fatalf("a: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := b.Wait(ctx); err == nil {
		t.Fatal("second replica should share the exhausted budget")
	}
}

func TestRedis_FallsBackWhenRedisIsDown(t *testing.T) {
	c, mr := newMini(t)
	fb := &countingLimiter{}
	lim := c.NewRedis("airtable", 1, time.Second, fb, nil)

	mr.Close()
	if err := lim.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if fb.n != 1 {
		t.Fatalf("fallback calls=%d want 1", fb.n)
	}
}

func TestLocal_UnlimitedWhenUnconfigured(t *testing.T) {
	l := NewLocal("none", 0, 0)
	for range 100 {
		if err := l.Wait(context.Background()); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	}
}

func TestLocal_BurstThenPaced(t *testing.T) {
	l := NewLocal("warehouse", 2, time.Hour)
	ctx := context.Background()
	if err := l.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if err := l.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(short); err == nil {
		t.Fatal("expected the third call to exceed the deadline")
	}
}

type countingLimiter struct{ n int }

func (c *countingLimiter) Wait(context.Context) error {
	c.n++
	return nil
}
