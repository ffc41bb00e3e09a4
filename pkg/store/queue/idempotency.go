package queue

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/destiny-evidence/reference-repository/pkg/sharederr"
)

// IdempotencyCache records which task trace IDs have already been handled,
// so a redelivered message (at-least-once, §5) can be skipped by a
// handler instead of reapplying its effect twice. Keys expire after ttl,
// bounding the cache to the window a broker might plausibly redeliver in.
type IdempotencyCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewIdempotencyCache wraps an existing redis client.
func NewIdempotencyCache(client *redis.Client, ttl time.Duration) *IdempotencyCache {
	return &IdempotencyCache{client: client, ttl: ttl}
}

// SeenAndMark reports whether traceID was already marked, atomically
// marking it as seen if not (SETNX semantics).
func (c *IdempotencyCache) SeenAndMark(ctx context.Context, traceID string) (bool, error) {
	ok, err := c.client.SetNX(ctx, idempotencyKey(traceID), 1, c.ttl).Result()
	if err != nil {
		return false, sharederr.NetworkError("check idempotency key", traceID, err)
	}
	return !ok, nil
}

func idempotencyKey(traceID string) string {
	return "reference_repository:task_seen:" + traceID
}
