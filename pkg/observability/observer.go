package observability

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/runsort/pkg/run"
	"github.com/Sumatoshi-tech/runsort/pkg/sorter"
)

const (
	spanSort        = "runsort.sort"
	eventRunsMerged = "runsort.runs_merged"

	attrInputCount  = "runsort.input.count"
	attrOutputCount = "runsort.output.count"
	attrRunsCreated = "runsort.runs.created"
	attrRunsMerged  = "runsort.runs.merged"
	attrRunsLive    = "runsort.runs.live"
	attrAbsorbed    = "runsort.runs.absorbed"
	attrRunLen      = "runsort.run.len"
	attrSession     = "session.id"
)

// TraceObserver wraps every Sort call in a runsort.sort span.
// Items placed with Add outside of Sort are not traced.
type TraceObserver[T any] struct {
	sorter.NopObserver[T]

	tracer  trace.Tracer
	parent  context.Context
	ctx     context.Context
	span    trace.Span
	created int
	merged  int
}

// NewTraceObserver creates a TraceObserver whose spans are children of parent.
func NewTraceObserver[T any](parent context.Context, tracer trace.Tracer) *TraceObserver[T] {
	return &TraceObserver[T]{tracer: tracer, parent: parent, ctx: parent}
}

// Context returns the context of the active sort span, or the parent context
// when no sort is running.
func (o *TraceObserver[T]) Context() context.Context {
	return o.ctx
}

// SortStarted implements sorter.Observer.
func (o *TraceObserver[T]) SortStarted(n int) {
	if o.span != nil {
		o.Abort(context.Canceled)
	}

	attrs := []attribute.KeyValue{attribute.Int(attrInputCount, n)}
	if sessionID, ok := SessionFromContext(o.parent); ok {
		attrs = append(attrs, attribute.String(attrSession, sessionID))
	}

	o.created, o.merged = 0, 0
	o.ctx, o.span = o.tracer.Start(o.parent, spanSort, trace.WithAttributes(attrs...))
}

// RunCreated implements sorter.Observer.
func (o *TraceObserver[T]) RunCreated(*run.Run[T]) {
	o.created++
}

// RunsMerged implements sorter.Observer.
func (o *TraceObserver[T]) RunsMerged(into *run.Run[T], absorbed int) {
	o.merged += absorbed

	if o.span != nil {
		o.span.AddEvent(eventRunsMerged, trace.WithAttributes(
			attribute.Int(attrAbsorbed, absorbed),
			attribute.Int(attrRunLen, into.Len()),
		))
	}
}

// SortFinished implements sorter.Observer.
func (o *TraceObserver[T]) SortFinished(out []T) {
	if o.span == nil {
		return
	}

	o.span.SetAttributes(
		attribute.Int(attrOutputCount, len(out)),
		attribute.Int(attrRunsCreated, o.created),
		attribute.Int(attrRunsMerged, o.merged),
		attribute.Int(attrRunsLive, o.created-o.merged),
	)
	o.end()
}

// Abort ends an active sort span with an error status. A failed Sort never
// reports SortFinished, so callers abort the span themselves.
func (o *TraceObserver[T]) Abort(err error) {
	if o.span == nil {
		return
	}

	o.span.RecordError(err)
	o.span.SetStatus(codes.Error, err.Error())
	o.end()
}

func (o *TraceObserver[T]) end() {
	o.span.End()
	o.span = nil
	o.ctx = o.parent
}

// LogObserver logs sort sessions. Lifecycle events go out at info level and
// per-item events at debug level.
type LogObserver[T any] struct {
	logger  *slog.Logger
	ctx     func() context.Context
	started time.Time
}

// NewLogObserver creates a LogObserver. ctx supplies the context for each
// record so that trace and session ids follow the active sort.
func NewLogObserver[T any](logger *slog.Logger, ctx func() context.Context) *LogObserver[T] {
	return &LogObserver[T]{logger: logger, ctx: ctx}
}

// SortStarted implements sorter.Observer.
func (o *LogObserver[T]) SortStarted(n int) {
	o.started = time.Now()
	o.logger.InfoContext(o.ctx(), "sort started", "items", n)
}

// ItemPlaced implements sorter.Observer.
func (o *LogObserver[T]) ItemPlaced(item T, decision sorter.Decision) {
	ctx := o.ctx()
	if !o.logger.Enabled(ctx, slog.LevelDebug) {
		return
	}

	o.logger.DebugContext(ctx, "item placed", "item", item, "decision", decision.String())
}

// RunCreated implements sorter.Observer.
func (o *LogObserver[T]) RunCreated(r *run.Run[T]) {
	ctx := o.ctx()
	if !o.logger.Enabled(ctx, slog.LevelDebug) {
		return
	}

	o.logger.DebugContext(ctx, "run created", "start", r.Start())
}

// RunsMerged implements sorter.Observer.
func (o *LogObserver[T]) RunsMerged(into *run.Run[T], absorbed int) {
	ctx := o.ctx()
	if !o.logger.Enabled(ctx, slog.LevelDebug) {
		return
	}

	o.logger.DebugContext(ctx, "runs merged", "absorbed", absorbed, "len", into.Len(), "blocks", into.Blocks())
}

// SortFinished implements sorter.Observer.
func (o *LogObserver[T]) SortFinished(out []T) {
	o.logger.InfoContext(o.ctx(), "sort finished", "items", len(out), "duration", time.Since(o.started))
}

// MetricsObserver feeds sorter events into SortMetrics.
type MetricsObserver[T any] struct {
	metrics *SortMetrics
	ctx     func() context.Context
	started time.Time
	runs    int
}

// NewMetricsObserver creates a MetricsObserver.
func NewMetricsObserver[T any](metrics *SortMetrics, ctx func() context.Context) *MetricsObserver[T] {
	return &MetricsObserver[T]{metrics: metrics, ctx: ctx}
}

// SortStarted implements sorter.Observer.
func (o *MetricsObserver[T]) SortStarted(int) {
	o.started = time.Now()
	o.runs = 0
}

// ItemPlaced implements sorter.Observer.
func (o *MetricsObserver[T]) ItemPlaced(_ T, decision sorter.Decision) {
	o.metrics.RecordItem(o.ctx(), decision.String())
}

// RunCreated implements sorter.Observer.
func (o *MetricsObserver[T]) RunCreated(*run.Run[T]) {
	o.runs++
	o.metrics.RecordRunsCreated(o.ctx(), 1)
}

// RunsMerged implements sorter.Observer.
func (o *MetricsObserver[T]) RunsMerged(_ *run.Run[T], absorbed int) {
	o.runs -= absorbed
	o.metrics.RecordRunsMerged(o.ctx(), absorbed)
}

// SortFinished implements sorter.Observer.
func (o *MetricsObserver[T]) SortFinished(out []T) {
	o.metrics.RecordSort(o.ctx(), SortStats{
		Items:    len(out),
		Runs:     o.runs,
		Duration: time.Since(o.started),
	})
}

// Instrumentation reports sorter events through traces, logs and metrics.
// The sort span is opened before and closed after the other observers see an
// event, so their records carry the span context.
type Instrumentation[T any] struct {
	trace *TraceObserver[T]
	rest  sorter.Observers[T]
}

// Instrument builds the observer set for one sort session. Spans are parented
// on ctx; a session id stored with ContextWithSession is attached to spans and
// log records. metrics may be nil.
func Instrument[T any](ctx context.Context, providers Providers, metrics *SortMetrics) *Instrumentation[T] {
	traceObs := NewTraceObserver[T](ctx, providers.Tracer)

	rest := sorter.Observers[T]{NewLogObserver[T](providers.Logger, traceObs.Context)}
	if metrics != nil {
		rest = append(rest, NewMetricsObserver[T](metrics, traceObs.Context))
	}

	return &Instrumentation[T]{trace: traceObs, rest: rest}
}

// SortStarted implements sorter.Observer.
func (in *Instrumentation[T]) SortStarted(n int) {
	in.trace.SortStarted(n)
	in.rest.SortStarted(n)
}

// ItemPlaced implements sorter.Observer.
func (in *Instrumentation[T]) ItemPlaced(item T, decision sorter.Decision) {
	in.rest.ItemPlaced(item, decision)
}

// RunCreated implements sorter.Observer.
func (in *Instrumentation[T]) RunCreated(r *run.Run[T]) {
	in.trace.RunCreated(r)
	in.rest.RunCreated(r)
}

// RunsMerged implements sorter.Observer.
func (in *Instrumentation[T]) RunsMerged(into *run.Run[T], absorbed int) {
	in.trace.RunsMerged(into, absorbed)
	in.rest.RunsMerged(into, absorbed)
}

// SortFinished implements sorter.Observer.
func (in *Instrumentation[T]) SortFinished(out []T) {
	in.rest.SortFinished(out)
	in.trace.SortFinished(out)
}

// Context returns the context of the active sort span.
func (in *Instrumentation[T]) Context() context.Context {
	return in.trace.Context()
}

// Abort ends the active sort span with err.
func (in *Instrumentation[T]) Abort(err error) {
	in.trace.Abort(err)
}
