package observability

import (
	"slices"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// exportedSpanKeys are the span attributes TraceObserver sets. Nothing else
// set on an exported span leaves the process.
var exportedSpanKeys = map[attribute.Key]bool{
	attrInputCount:  true,
	attrOutputCount: true,
	attrRunsCreated: true,
	attrRunsMerged:  true,
	attrRunsLive:    true,
	attrSession:     true,
}

// attributeFilter strips span attributes outside exportedSpanKeys before the
// delegate sees the span. Callers sharing the tracer may tag spans with file
// names or item values; those stay local.
type attributeFilter struct {
	sdktrace.SpanProcessor
}

// NewAttributeFilter wraps delegate so that ended spans only carry runsort's
// own attributes. Events and status are left alone.
func NewAttributeFilter(delegate sdktrace.SpanProcessor) sdktrace.SpanProcessor {
	return attributeFilter{SpanProcessor: delegate}
}

// OnEnd implements sdktrace.SpanProcessor.
func (f attributeFilter) OnEnd(s sdktrace.ReadOnlySpan) {
	f.SpanProcessor.OnEnd(sortSpan{ReadOnlySpan: s})
}

type sortSpan struct {
	sdktrace.ReadOnlySpan
}

func (s sortSpan) Attributes() []attribute.KeyValue {
	return slices.DeleteFunc(slices.Clone(s.ReadOnlySpan.Attributes()), func(kv attribute.KeyValue) bool {
		return !exportedSpanKeys[kv.Key]
	})
}
