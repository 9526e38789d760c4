package observability

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

const (
	attrTraceID   = "trace_id"
	attrSpanID    = "span_id"
	attrSessionID = "session_id"
	attrService   = "service"
	attrEnv       = "env"
	attrMode      = "mode"
)

type sessionKey struct{}

// ContextWithSession returns a copy of ctx carrying a sort session id.
// Records logged through a TracingHandler with that context get a session_id attribute.
func ContextWithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionKey{}, sessionID)
}

// SessionFromContext returns the sort session id stored in ctx, if any.
func SessionFromContext(ctx context.Context) (string, bool) {
	sessionID, ok := ctx.Value(sessionKey{}).(string)

	return sessionID, ok && sessionID != ""
}

// TracingHandler is an [slog.Handler] that injects OpenTelemetry trace context
// (trace_id, span_id), the sort session id and service metadata into every
// log record. Service attributes (service, env, mode) are pre-attached at
// construction so they remain at the top level even when groups are used.
type TracingHandler struct {
	inner slog.Handler
}

// NewTracingHandler wraps an [slog.Handler], injecting trace context and service metadata.
func NewTracingHandler(inner slog.Handler, service, env string, appMode AppMode) *TracingHandler {
	attrs := []slog.Attr{
		slog.String(attrService, service),
		slog.String(attrMode, string(appMode)),
	}

	if env != "" {
		attrs = append(attrs, slog.String(attrEnv, env))
	}

	return &TracingHandler{
		inner: inner.WithAttrs(attrs),
	}
}

// Enabled delegates to the inner handler.
func (th *TracingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return th.inner.Enabled(ctx, level)
}

// Handle adds trace and session attributes from ctx, then delegates.
func (th *TracingHandler) Handle(ctx context.Context, record slog.Record) error {
	sc := trace.SpanContextFromContext(ctx)
	if sc.IsValid() {
		record.AddAttrs(
			slog.String(attrTraceID, sc.TraceID().String()),
			slog.String(attrSpanID, sc.SpanID().String()),
		)
	}

	if sessionID, ok := SessionFromContext(ctx); ok {
		record.AddAttrs(slog.String(attrSessionID, sessionID))
	}

	err := th.inner.Handle(ctx, record)
	if err != nil {
		return fmt.Errorf("tracing handler: %w", err)
	}

	return nil
}

// WithAttrs returns a new TracingHandler with additional attributes on the inner handler.
func (th *TracingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TracingHandler{
		inner: th.inner.WithAttrs(attrs),
	}
}

// WithGroup returns a new TracingHandler with a group prefix on the inner handler.
func (th *TracingHandler) WithGroup(name string) slog.Handler {
	return &TracingHandler{
		inner: th.inner.WithGroup(name),
	}
}
