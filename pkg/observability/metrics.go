package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricItemsTotal       = "runsort.items.total"
	metricDecisionsTotal   = "runsort.decisions.total"
	metricRunsCreatedTotal = "runsort.runs.created.total"
	metricRunsMergedTotal  = "runsort.runs.merged.total"
	metricSortDuration     = "runsort.sort.duration.seconds"
	metricSortRuns         = "runsort.sort.runs"

	attrDecision = "decision"
)

// durationBucketBoundaries covers 100µs to 60s, from small interactive
// inputs to multi-million item files.
var durationBucketBoundaries = []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// runBucketBoundaries covers the run count left at the end of a sort.
var runBucketBoundaries = []float64{1, 2, 5, 10, 100, 1000, 10000, 100000}

// SortStats summarizes one finished sort.
type SortStats struct {
	Items    int
	Runs     int
	Duration time.Duration
}

// SortMetrics holds the OTel instruments describing sorter activity.
type SortMetrics struct {
	itemsTotal     metric.Int64Counter
	decisionsTotal metric.Int64Counter
	runsCreated    metric.Int64Counter
	runsMerged     metric.Int64Counter
	sortDuration   metric.Float64Histogram
	sortRuns       metric.Int64Histogram
}

// NewSortMetrics creates sort metric instruments from the given meter.
func NewSortMetrics(mt metric.Meter) (*SortMetrics, error) {
	items, err := mt.Int64Counter(metricItemsTotal,
		metric.WithDescription("Total number of items placed"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricItemsTotal, err)
	}

	decisions, err := mt.Int64Counter(metricDecisionsTotal,
		metric.WithDescription("Placement decisions by branch"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricDecisionsTotal, err)
	}

	created, err := mt.Int64Counter(metricRunsCreatedTotal,
		metric.WithDescription("Total number of runs opened"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricRunsCreatedTotal, err)
	}

	merged, err := mt.Int64Counter(metricRunsMergedTotal,
		metric.WithDescription("Total number of runs absorbed by merges"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricRunsMergedTotal, err)
	}

	duration, err := mt.Float64Histogram(metricSortDuration,
		metric.WithDescription("Sort duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricSortDuration, err)
	}

	runs, err := mt.Int64Histogram(metricSortRuns,
		metric.WithDescription("Runs left when a sort finishes"),
		metric.WithUnit("{run}"),
		metric.WithExplicitBucketBoundaries(runBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricSortRuns, err)
	}

	return &SortMetrics{
		itemsTotal:     items,
		decisionsTotal: decisions,
		runsCreated:    created,
		runsMerged:     merged,
		sortDuration:   duration,
		sortRuns:       runs,
	}, nil
}

// RecordItem counts one placed item under its decision.
func (sm *SortMetrics) RecordItem(ctx context.Context, decision string) {
	sm.itemsTotal.Add(ctx, 1)
	sm.decisionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrDecision, decision)))
}

// RecordRunsCreated counts opened runs.
func (sm *SortMetrics) RecordRunsCreated(ctx context.Context, n int) {
	sm.runsCreated.Add(ctx, int64(n))
}

// RecordRunsMerged counts runs absorbed by merges.
func (sm *SortMetrics) RecordRunsMerged(ctx context.Context, n int) {
	sm.runsMerged.Add(ctx, int64(n))
}

// RecordSort records the duration and final run count of a finished sort.
func (sm *SortMetrics) RecordSort(ctx context.Context, stats SortStats) {
	sm.sortDuration.Record(ctx, stats.Duration.Seconds())
	sm.sortRuns.Record(ctx, int64(stats.Runs))
}
