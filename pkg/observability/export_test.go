package observability

import (
	"context"

	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// NewResource exposes newResource for tests.
func NewResource(cfg Config) *resource.Resource {
	return newResource(cfg)
}

// SampledRoots starts n root spans under the sampler chosen for ratio and
// returns how many were recorded.
func SampledRoots(ratio float64, n int) int {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithSampler(sampler(ratio)),
	)

	for range n {
		_, span := tp.Tracer("test").Start(context.Background(), spanSort)
		span.End()
	}

	return len(exporter.GetSpans())
}
