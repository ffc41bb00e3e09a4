package blob

import (
	"context"
	"strconv"
	"testing"
)

func TestObjectKey(t *testing.T) {
	if got := objectKey("enhancement_result", "batch-1.jsonl"); got != "enhancement_result/batch-1.jsonl" {
		t.Errorf("got %q", got)
	}
	if got := objectKey("", "batch-1.jsonl"); got != "batch-1.jsonl" {
		t.Errorf("got %q", got)
	}
}

func TestClientCacheEvictsOldestBeyondCapacity(t *testing.T) {
	cache := newClientCache()
	cache.clients["us-east-1"] = nil // avoid a real AWS config load in clientFor

	for i := 0; i < clientCacheCapacity+10; i++ {
		key := cacheKey{storageLocation: "us-east-1", container: "c", path: "p", filename: strconv.Itoa(i)}
		if _, err := cache.get(context.Background(), key); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if cache.order.Len() != clientCacheCapacity {
		t.Errorf("expected cache capped at %d entries, got %d", clientCacheCapacity, cache.order.Len())
	}
}
