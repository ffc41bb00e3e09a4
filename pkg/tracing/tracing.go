// Package tracing names the span boundaries Design Notes §9 calls for:
// ingestion, deduplication, and enhancement dispatch each open a span
// around their outermost service call so a trace backend can show where
// time went across a batch, even though no exporter is wired here (the
// global otel TracerProvider defaults to a no-op, so Start is a zero-cost
// call until a deployment registers a real one).
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/destiny-evidence/reference-repository"

var tracer = otel.Tracer(instrumentationName)

// Start opens a span named after the service method it wraps. Callers
// defer span.End().
func Start(ctx context.Context, spanName string) (context.Context, trace.Span) {
	return tracer.Start(ctx, spanName)
}
