package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Sumatoshi-tech/runsort/pkg/observability"
)

func setupTestMeter(t *testing.T) (*observability.SortMetrics, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	sm, err := observability.NewSortMetrics(mp.Meter("test"))
	require.NoError(t, err)

	return sm, reader
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()

	var rm metricdata.ResourceMetrics

	err := reader.Collect(context.Background(), &rm)
	require.NoError(t, err)

	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for idx := range rm.ScopeMetrics {
		for midx := range rm.ScopeMetrics[idx].Metrics {
			if rm.ScopeMetrics[idx].Metrics[midx].Name == name {
				return &rm.ScopeMetrics[idx].Metrics[midx]
			}
		}
	}

	return nil
}

func sumValue(t *testing.T, m *metricdata.Metrics) int64 {
	t.Helper()

	require.NotNil(t, m)

	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "%s is not an int64 sum", m.Name)

	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}

	return total
}

func TestSortMetrics_RecordItem(t *testing.T) {
	t.Parallel()

	sm, reader := setupTestMeter(t)
	ctx := context.Background()

	sm.RecordItem(ctx, "new_run")
	sm.RecordItem(ctx, "extend_right")
	sm.RecordItem(ctx, "extend_right")

	rm := collectMetrics(t, reader)

	assert.Equal(t, int64(3), sumValue(t, findMetric(rm, "runsort.items.total")))

	decisions := findMetric(rm, "runsort.decisions.total")
	require.NotNil(t, decisions)

	sum, ok := decisions.Data.(metricdata.Sum[int64])
	require.True(t, ok)

	byDecision := make(map[string]int64)

	for _, dp := range sum.DataPoints {
		v, found := dp.Attributes.Value("decision")
		require.True(t, found)

		byDecision[v.AsString()] = dp.Value
	}

	assert.Equal(t, map[string]int64{"new_run": 1, "extend_right": 2}, byDecision)
}

func TestSortMetrics_RunCounters(t *testing.T) {
	t.Parallel()

	sm, reader := setupTestMeter(t)
	ctx := context.Background()

	sm.RecordRunsCreated(ctx, 3)
	sm.RecordRunsMerged(ctx, 2)

	rm := collectMetrics(t, reader)

	assert.Equal(t, int64(3), sumValue(t, findMetric(rm, "runsort.runs.created.total")))
	assert.Equal(t, int64(2), sumValue(t, findMetric(rm, "runsort.runs.merged.total")))
}

func TestSortMetrics_RecordSort(t *testing.T) {
	t.Parallel()

	sm, reader := setupTestMeter(t)

	sm.RecordSort(context.Background(), observability.SortStats{Items: 10, Runs: 1, Duration: 20 * time.Millisecond})

	rm := collectMetrics(t, reader)

	duration := findMetric(rm, "runsort.sort.duration.seconds")
	require.NotNil(t, duration)

	hist, ok := duration.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)

	runs := findMetric(rm, "runsort.sort.runs")
	require.NotNil(t, runs)
}

func TestNewSortMetrics_WithNoopMeter(t *testing.T) {
	t.Parallel()

	providers, err := observability.Init(observability.DefaultConfig())
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, providers.Shutdown(context.Background())) })

	sm, err := observability.NewSortMetrics(providers.Meter)
	require.NoError(t, err)
	assert.NotNil(t, sm)

	sm.RecordItem(context.Background(), "contain")
	sm.RecordSort(context.Background(), observability.SortStats{})
}
