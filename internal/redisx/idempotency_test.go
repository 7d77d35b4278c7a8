package redisx

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestMarkOnce(t *testing.T) {
	rdb := newTestRedis(t)
	s := NewIdempotencyStore(rdb, "order-saga")
	ctx := context.Background()

	fresh, err := s.MarkOnce(ctx, "evt-1")
	if err != nil || !fresh {
		t.Fatalf("first MarkOnce = %v, %v", fresh, err)
	}
	fresh, err = s.MarkOnce(ctx, "evt-1")
	if err != nil || fresh {
		t.Fatalf("second MarkOnce = %v, %v; want false", fresh, err)
	}

	// A different service namespace does not collide.
	other := NewIdempotencyStore(rdb, "notifier")
	fresh, err = other.MarkOnce(ctx, "evt-1")
	if err != nil || !fresh {
		t.Fatalf("cross-service MarkOnce = %v, %v; want true", fresh, err)
	}
}

func TestSeen(t *testing.T) {
	rdb := newTestRedis(t)
	s := NewIdempotencyStore(rdb, "order-saga")
	ctx := context.Background()

	seen, err := s.Seen(ctx, "evt-1")
	if err != nil || seen {
		t.Fatalf("Seen before mark = %v, %v", seen, err)
	}
	if _, err := s.MarkOnce(ctx, "evt-1"); err != nil {
		t.Fatal(err)
	}
	seen, err = s.Seen(ctx, "evt-1")
	if err != nil || !seen {
		t.Fatalf("Seen after mark = %v, %v", seen, err)
	}
}

func TestStatusCache(t *testing.T) {
	rdb := newTestRedis(t)
	c := NewStatusCache(rdb)
	ctx := context.Background()

	// Miss reads as empty, not an error.
	v, err := c.Get(ctx, "o1")
	if err != nil || v != "" {
		t.Fatalf("miss = %q, %v", v, err)
	}

	if err := c.Set(ctx, "o1", "CONFIRMED"); err != nil {
		t.Fatal(err)
	}
	v, err = c.Get(ctx, "o1")
	if err != nil || v != "CONFIRMED" {
		t.Fatalf("hit = %q, %v", v, err)
	}

	if err := c.Invalidate(ctx, "o1"); err != nil {
		t.Fatal(err)
	}
	if v, _ = c.Get(ctx, "o1"); v != "" {
		t.Fatalf("after invalidate = %q", v)
	}
}
