package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) *IdempotencyCache {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewIdempotencyCache(client, time.Minute)
}

func TestSeenAndMarkFirstDeliveryNotSeen(t *testing.T) {
	cache := newTestCache(t)
	seen, err := cache.SeenAndMark(context.Background(), "trace-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen {
		t.Error("expected first delivery to report not seen")
	}
}

func TestSeenAndMarkRedeliveryIsSeen(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	if _, err := cache.SeenAndMark(ctx, "trace-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	seen, err := cache.SeenAndMark(ctx, "trace-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !seen {
		t.Error("expected redelivery of the same trace id to report seen")
	}
}

func TestSeenAndMarkDistinctTraceIDsIndependent(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	if _, err := cache.SeenAndMark(ctx, "trace-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	seen, err := cache.SeenAndMark(ctx, "trace-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen {
		t.Error("expected a distinct trace id to be unseen")
	}
}
