package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

const (
	instrumentationName = "runsort"

	// attrResourceMode records the AppMode on exported resources.
	attrResourceMode = "runsort.mode"
)

// Providers holds the initialized observability providers.
type Providers struct {
	// Tracer opens runsort.sort spans.
	Tracer trace.Tracer

	// Meter backs SortMetrics.
	Meter metric.Meter

	// Logger stamps each record with the active sort span and session.
	Logger *slog.Logger

	// Shutdown flushes pending telemetry and writes the metrics textfile.
	// Later calls return the result of the first one.
	Shutdown func(ctx context.Context) error
}

// Init builds the providers for one runsort process. Sort spans and metrics
// go to an OTLP gRPC collector when OTLPEndpoint is set. Metrics are also
// written to MetricsTextfile on Shutdown when that path is set. With neither,
// tracing and metrics are no-ops and only the logger does work.
func Init(cfg Config) (Providers, error) {
	ctx := context.Background()
	res := newResource(cfg)
	collector := otlpTarget{endpoint: cfg.OTLPEndpoint, insecure: cfg.OTLPInsecure, headers: cfg.OTLPHeaders}

	var closers []func(context.Context) error

	tracerProvider := trace.TracerProvider(nooptrace.NewTracerProvider())
	meterProvider := metric.MeterProvider(noopmetric.NewMeterProvider())

	if collector.enabled() {
		tp, err := collector.tracerProvider(ctx, res, cfg.SampleRatio)
		if err != nil {
			return Providers{}, err
		}

		tracerProvider = tp
		closers = append(closers, tp.Shutdown)
	}

	readers, textfileCloser, err := metricReaders(ctx, collector, cfg.MetricsTextfile)
	if err != nil {
		return Providers{}, errors.Join(err, runClosers(ctx, closers))
	}

	if len(readers) > 0 {
		opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
		for _, reader := range readers {
			opts = append(opts, sdkmetric.WithReader(reader))
		}

		mp := sdkmetric.NewMeterProvider(opts...)
		meterProvider = mp

		// The textfile is gathered from the live provider, so it goes first.
		if textfileCloser != nil {
			closers = append(closers, textfileCloser)
		}

		closers = append(closers, mp.Shutdown)
	}

	otel.SetTracerProvider(tracerProvider)
	otel.SetMeterProvider(meterProvider)

	timeout := time.Duration(cfg.ShutdownTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = defaultShutdownTimeoutSec * time.Second
	}

	var (
		once        sync.Once
		shutdownErr error
	)

	shutdown := func(shutdownCtx context.Context) error {
		once.Do(func() {
			deadlineCtx, cancel := context.WithTimeout(shutdownCtx, timeout)
			defer cancel()

			shutdownErr = runClosers(deadlineCtx, closers)
		})

		return shutdownErr
	}

	return Providers{
		Tracer:   tracerProvider.Tracer(instrumentationName),
		Meter:    meterProvider.Meter(instrumentationName),
		Logger:   newLogger(cfg),
		Shutdown: shutdown,
	}, nil
}

func runClosers(ctx context.Context, closers []func(context.Context) error) error {
	var errs []error

	for _, closeFn := range closers {
		errs = append(errs, closeFn(ctx))
	}

	return errors.Join(errs...)
}

func newResource(cfg Config) *resource.Resource {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		attribute.String(attrResourceMode, string(cfg.Mode)),
	}

	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.ServiceVersion))
	}

	if cfg.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(cfg.Environment))
	}

	return resource.NewSchemaless(attrs...)
}

// otlpTarget is the collector shared by the trace and metric exporters.
type otlpTarget struct {
	endpoint string
	insecure bool
	headers  map[string]string
}

func (o otlpTarget) enabled() bool {
	return o.endpoint != ""
}

func (o otlpTarget) tracerProvider(ctx context.Context, res *resource.Resource, ratio float64) (*sdktrace.TracerProvider, error) {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(o.endpoint)}
	if o.insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	if len(o.headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(o.headers))
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(NewAttributeFilter(sdktrace.NewBatchSpanProcessor(exporter))),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(ratio)),
	), nil
}

func (o otlpTarget) metricReader(ctx context.Context) (sdkmetric.Reader, error) {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(o.endpoint)}
	if o.insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	if len(o.headers) > 0 {
		opts = append(opts, otlpmetricgrpc.WithHeaders(o.headers))
	}

	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}

	return sdkmetric.NewPeriodicReader(exporter), nil
}

// metricReaders returns the readers a meter provider needs, and the closer
// that writes the textfile when one was requested.
func metricReaders(
	ctx context.Context, collector otlpTarget, textfile string,
) ([]sdkmetric.Reader, func(context.Context) error, error) {
	var readers []sdkmetric.Reader

	if collector.enabled() {
		reader, err := collector.metricReader(ctx)
		if err != nil {
			return nil, nil, err
		}

		readers = append(readers, reader)
	}

	if textfile == "" {
		return readers, nil, nil
	}

	reader, registry, err := NewPrometheusReader()
	if err != nil {
		return nil, nil, err
	}

	writeTextfile := func(context.Context) error {
		return WriteTextfile(textfile, registry)
	}

	return append(readers, reader), writeTextfile, nil
}

// sampler keeps every sort span unless ratio asks for fewer. Zero means unset.
func sampler(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}

	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

func newLogger(cfg Config) *slog.Logger {
	out := cfg.LogWriter
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: cfg.LogLevel}

	var inner slog.Handler = slog.NewTextHandler(out, opts)
	if cfg.LogJSON {
		inner = slog.NewJSONHandler(out, opts)
	}

	return slog.New(NewTracingHandler(inner, cfg.ServiceName, cfg.Environment, cfg.Mode))
}

// ParseOTLPHeaders parses the telemetry.otlp_headers setting, a
// "key=value,key=value" list. Pairs without "=" are skipped; nil means none.
func ParseOTLPHeaders(raw string) map[string]string {
	var headers map[string]string

	for pair := range strings.SplitSeq(raw, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}

		if headers == nil {
			headers = make(map[string]string)
		}

		headers[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}

	return headers
}
