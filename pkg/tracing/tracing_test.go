package tracing

import (
	"context"
	"testing"
)

func TestStartReturnsNonNilSpan(t *testing.T) {
	ctx, span := Start(context.Background(), "test-span")
	defer span.End()
	if ctx == nil {
		t.Fatal("expected a non-nil context")
	}
	if span == nil {
		t.Fatal("expected a non-nil span")
	}
}
