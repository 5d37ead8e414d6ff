package backfill

import (
	"context"

	"go.opentelemetry.io/otel/metric"
)

// OrchestrationMetrics defines the metrics operations recorded by the
// backfill orchestrator.
type OrchestrationMetrics interface {
	// Job lifecycle metrics
	IncJobsStarted(ctx context.Context)
	IncJobsCompleted(ctx context.Context)
	IncJobsFailed(ctx context.Context)
	IncJobsCancelled(ctx context.Context)

	// Target outcome metrics
	IncTargetsSucceeded(ctx context.Context)
	IncTargetsFailed(ctx context.Context)
	IncTargetsSkipped(ctx context.Context)
	IncBlacklistActivations(ctx context.Context)

	// Fallback cache metrics
	IncFallbackCacheHits(ctx context.Context)
	IncFallbackDiscoveries(ctx context.Context)

	// Snapshot metrics
	IncPartialSnapshots(ctx context.Context)
}

// orchestrationMetrics implements OrchestrationMetrics.
type orchestrationMetrics struct {
	jobsStarted   metric.Int64Counter
	jobsCompleted metric.Int64Counter
	jobsFailed    metric.Int64Counter
	jobsCancelled metric.Int64Counter

	targetsSucceeded     metric.Int64Counter
	targetsFailed        metric.Int64Counter
	targetsSkipped       metric.Int64Counter
	blacklistActivations metric.Int64Counter

	fallbackCacheHits   metric.Int64Counter
	fallbackDiscoveries metric.Int64Counter

	partialSnapshots metric.Int64Counter
}

const namespace = "backfill"

// NewOrchestrationMetrics creates a new orchestration metrics instance.
func NewOrchestrationMetrics(mp metric.MeterProvider) (OrchestrationMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(orchestrationMetrics)
	var err error

	if m.jobsStarted, err = meter.Int64Counter(
		"jobs_started_total",
		metric.WithDescription("Total number of backfill jobs started"),
	); err != nil {
		return nil, err
	}

	if m.jobsCompleted, err = meter.Int64Counter(
		"jobs_completed_total",
		metric.WithDescription("Total number of backfill jobs completed"),
	); err != nil {
		return nil, err
	}

	if m.jobsFailed, err = meter.Int64Counter(
		"jobs_failed_total",
		metric.WithDescription("Total number of backfill jobs failed"),
	); err != nil {
		return nil, err
	}

	if m.jobsCancelled, err = meter.Int64Counter(
		"jobs_cancelled_total",
		metric.WithDescription("Total number of backfill jobs cancelled"),
	); err != nil {
		return nil, err
	}

	if m.targetsSucceeded, err = meter.Int64Counter(
		"targets_succeeded_total",
		metric.WithDescription("Total number of districts collected successfully"),
	); err != nil {
		return nil, err
	}

	if m.targetsFailed, err = meter.Int64Counter(
		"targets_failed_total",
		metric.WithDescription("Total number of districts that failed collection"),
	); err != nil {
		return nil, err
	}

	if m.targetsSkipped, err = meter.Int64Counter(
		"targets_skipped_total",
		metric.WithDescription("Total number of districts skipped due to blacklisting"),
	); err != nil {
		return nil, err
	}

	if m.blacklistActivations, err = meter.Int64Counter(
		"blacklist_activations_total",
		metric.WithDescription("Total number of district blacklist activations"),
	); err != nil {
		return nil, err
	}

	if m.fallbackCacheHits, err = meter.Int64Counter(
		"fallback_cache_hits_total",
		metric.WithDescription("Total number of fallback cache hits"),
	); err != nil {
		return nil, err
	}

	if m.fallbackDiscoveries, err = meter.Int64Counter(
		"fallback_discoveries_total",
		metric.WithDescription("Total number of fallback dates discovered"),
	); err != nil {
		return nil, err
	}

	if m.partialSnapshots, err = meter.Int64Counter(
		"partial_snapshots_total",
		metric.WithDescription("Total number of partial snapshots emitted"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *orchestrationMetrics) IncJobsStarted(ctx context.Context) {
	m.jobsStarted.Add(ctx, 1)
}

func (m *orchestrationMetrics) IncJobsCompleted(ctx context.Context) {
	m.jobsCompleted.Add(ctx, 1)
}

func (m *orchestrationMetrics) IncJobsFailed(ctx context.Context) {
	m.jobsFailed.Add(ctx, 1)
}

func (m *orchestrationMetrics) IncJobsCancelled(ctx context.Context) {
	m.jobsCancelled.Add(ctx, 1)
}

func (m *orchestrationMetrics) IncTargetsSucceeded(ctx context.Context) {
	m.targetsSucceeded.Add(ctx, 1)
}

func (m *orchestrationMetrics) IncTargetsFailed(ctx context.Context) {
	m.targetsFailed.Add(ctx, 1)
}

func (m *orchestrationMetrics) IncTargetsSkipped(ctx context.Context) {
	m.targetsSkipped.Add(ctx, 1)
}

func (m *orchestrationMetrics) IncBlacklistActivations(ctx context.Context) {
	m.blacklistActivations.Add(ctx, 1)
}

func (m *orchestrationMetrics) IncFallbackCacheHits(ctx context.Context) {
	m.fallbackCacheHits.Add(ctx, 1)
}

func (m *orchestrationMetrics) IncFallbackDiscoveries(ctx context.Context) {
	m.fallbackDiscoveries.Add(ctx, 1)
}

func (m *orchestrationMetrics) IncPartialSnapshots(ctx context.Context) {
	m.partialSnapshots.Add(ctx, 1)
}
