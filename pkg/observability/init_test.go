package observability_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/runsort/pkg/observability"
	"github.com/Sumatoshi-tech/runsort/pkg/sorter"
)

func TestInit_NoExportIsNoop(t *testing.T) {
	t.Parallel()

	providers, err := observability.Init(observability.DefaultConfig())
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, providers.Shutdown(context.Background())) })

	_, span := providers.Tracer.Start(context.Background(), "runsort.sort")
	defer span.End()

	assert.False(t, span.SpanContext().IsValid())
	assert.False(t, span.IsRecording())
}

func TestInit_CollectorEndpointRecordsSpans(t *testing.T) {
	t.Parallel()

	cfg := observability.DefaultConfig()
	cfg.OTLPEndpoint = "127.0.0.1:4317"
	cfg.OTLPInsecure = true
	cfg.OTLPHeaders = map[string]string{"x-tenant": "runsort"}
	cfg.ShutdownTimeoutSec = 1

	providers, err := observability.Init(cfg)
	require.NoError(t, err)

	// Nothing listens on the endpoint; only the flush result depends on it.
	t.Cleanup(func() { _ = providers.Shutdown(context.Background()) })

	_, span := providers.Tracer.Start(context.Background(), "runsort.sort")
	span.End()

	assert.True(t, span.SpanContext().IsValid())
}

func TestInit_LogWriter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	cfg := observability.DefaultConfig()
	cfg.LogWriter = &buf
	cfg.Environment = "ci"

	providers, err := observability.Init(cfg)
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, providers.Shutdown(context.Background())) })

	ctx := observability.ContextWithSession(context.Background(), "abc")
	providers.Logger.InfoContext(ctx, "hello")

	out := buf.String()
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, "service=runsort")
	assert.Contains(t, out, "env=ci")
	assert.Contains(t, out, "session_id=abc")
}

func TestInit_LogJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	cfg := observability.DefaultConfig()
	cfg.LogJSON = true
	cfg.LogWriter = &buf

	providers, err := observability.Init(cfg)
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, providers.Shutdown(context.Background())) })

	providers.Logger.Info("hello")

	assert.Contains(t, buf.String(), `"msg":"hello"`)
	assert.Contains(t, buf.String(), `"mode":"cli"`)
}

func TestInit_MetricsTextfileWrittenOnce(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "runsort.prom")

	cfg := observability.DefaultConfig()
	cfg.MetricsTextfile = path

	providers, err := observability.Init(cfg)
	require.NoError(t, err)

	metrics, err := observability.NewSortMetrics(providers.Meter)
	require.NoError(t, err)

	inst := observability.Instrument[int](context.Background(), providers, metrics)

	_, err = sorter.New[int](sorter.WithObserver[int](inst)).Sort([]int{2, 1, 3})
	require.NoError(t, err)

	require.NoError(t, providers.Shutdown(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Contains(t, string(data), "runsort_items")
	assert.Contains(t, string(data), "runsort_decisions")
	assert.Contains(t, string(data), "target_info")

	require.NoError(t, os.Remove(path))
	require.NoError(t, providers.Shutdown(context.Background()))
	assert.NoFileExists(t, path)
}

func TestInit_TextfileErrorSurfacesOnShutdown(t *testing.T) {
	t.Parallel()

	cfg := observability.DefaultConfig()
	cfg.MetricsTextfile = filepath.Join(t.TempDir(), "missing", "runsort.prom")

	providers, err := observability.Init(cfg)
	require.NoError(t, err)

	err = providers.Shutdown(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write metrics textfile")
}

func TestNewResource(t *testing.T) {
	t.Parallel()

	cfg := observability.DefaultConfig()
	cfg.ServiceVersion = "1.2.3"
	cfg.Environment = "test"
	cfg.Mode = observability.ModeLibrary

	got := map[string]string{}
	for _, kv := range observability.NewResource(cfg).Attributes() {
		got[string(kv.Key)] = kv.Value.Emit()
	}

	assert.Equal(t, "runsort", got["service.name"])
	assert.Equal(t, "1.2.3", got["service.version"])
	assert.Equal(t, "test", got["deployment.environment"])
	assert.Equal(t, "lib", got["runsort.mode"])
}

func TestSampler(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 50, observability.SampledRoots(0, 50))
	assert.Equal(t, 50, observability.SampledRoots(1, 50))

	partial := observability.SampledRoots(0.5, 400)
	assert.Greater(t, partial, 100)
	assert.Less(t, partial, 300)
}

func TestParseOTLPHeaders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  map[string]string
	}{
		{"empty", "", nil},
		{"single", "key=value", map[string]string{"key": "value"}},
		{"multiple", "k1=v1,k2=v2", map[string]string{"k1": "v1", "k2": "v2"}},
		{"spaces", " k1 = v1 , k2 = v2 ", map[string]string{"k1": "v1", "k2": "v2"}},
		{"skips bare keys", "invalid,k=v", map[string]string{"k": "v"}},
		{"no_equals", "invalid", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, observability.ParseOTLPHeaders(tt.input))
		})
	}
}
