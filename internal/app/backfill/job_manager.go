package backfill

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/districtdata/harvester/internal/domain/backfill"
	"github.com/districtdata/harvester/internal/domain/reportdate"
	"github.com/districtdata/harvester/pkg/common/logger"
	"github.com/districtdata/harvester/pkg/common/timeutil"
)

// ErrJobNotFound is returned when an operation references a job the registry
// does not hold.
var ErrJobNotFound = errors.New("backfill job not found")

// BackfillJobManager is the in-memory registry of backfill jobs and the
// owner of the per-job error tracker and the shared fallback cache. All
// mutation of a job's progress and lifecycle flows through it so that the
// HTTP surface and the coordinator observe one consistent view.
type BackfillJobManager struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*domain.Job

	errorTracker  *TargetErrorTracker
	fallbackCache *FallbackResolutionCache

	clock   timeutil.Provider
	logger  *logger.Logger
	tracer  trace.Tracer
	metrics OrchestrationMetrics
}

// NewBackfillJobManager creates an empty registry with its own error tracker
// and fallback cache.
func NewBackfillJobManager(
	clock timeutil.Provider,
	log *logger.Logger,
	tracer trace.Tracer,
	metrics OrchestrationMetrics,
) *BackfillJobManager {
	log = log.With("component", "backfill_job_manager")
	return &BackfillJobManager{
		jobs:          make(map[uuid.UUID]*domain.Job),
		errorTracker:  NewTargetErrorTracker(clock, log),
		fallbackCache: NewFallbackResolutionCache(clock),
		clock:         clock,
		logger:        log,
		tracer:        tracer,
		metrics:       metrics,
	}
}

// FallbackCache exposes the shared fallback resolution cache. The cache
// outlives individual jobs; discovered dates benefit every later run.
func (m *BackfillJobManager) FallbackCache() *FallbackResolutionCache { return m.fallbackCache }

// CreateJob registers a new backfill job in PROCESSING state and returns it.
func (m *BackfillJobManager) CreateJob(
	ctx context.Context,
	scope domain.Scope,
	dates []reportdate.Date,
	retry domain.RetryOptions,
) *domain.Job {
	ctx, span := m.tracer.Start(ctx, "job_manager.create_job",
		trace.WithAttributes(
			attribute.String("scope_type", string(scope.Type())),
			attribute.Int("district_count", len(scope.Districts())),
			attribute.Int("date_count", len(dates)),
		))
	defer span.End()

	job := domain.NewJob(uuid.New(), scope, dates, retry, m.clock)

	m.mu.Lock()
	m.jobs[job.ID()] = job
	m.mu.Unlock()

	m.metrics.IncJobsStarted(ctx)
	span.SetAttributes(attribute.String("job_id", job.ID().String()))
	span.SetStatus(codes.Ok, "job created")

	m.logger.Info(ctx, "Backfill job created",
		"job_id", job.ID(),
		"scope_type", scope.Type(),
		"districts", len(scope.Districts()),
		"dates", len(dates),
	)
	return job
}

// GetJob returns the job for the given ID, or nil when the registry holds no
// such job.
func (m *BackfillJobManager) GetJob(jobID uuid.UUID) *domain.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[jobID]
}

// JobStatus reads the job's status under the registry lock. Concurrent
// readers (the run loop's cancellation poll, the HTTP surface) must not
// touch the aggregate while a lifecycle call mutates it.
func (m *BackfillJobManager) JobStatus(jobID uuid.UUID) (domain.JobStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return "", false
	}
	return job.Status(), true
}

// WithJob runs fn with the job while holding the registry lock, serializing
// the read against concurrent mutation. Returns false when the job is
// unknown.
func (m *BackfillJobManager) WithJob(jobID uuid.UUID, fn func(*domain.Job)) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return false
	}
	fn(job)
	return true
}

// UpdateProgress applies a shallow-merge patch to the job's progress.
func (m *BackfillJobManager) UpdateProgress(ctx context.Context, jobID uuid.UUID, patch domain.ProgressPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return fmt.Errorf("update progress for job %s: %w", jobID, ErrJobNotFound)
	}
	job.ApplyProgress(patch)
	return nil
}

// TrackTargetError records a failed collection attempt against a district:
// the tracker accumulates the failure history, the job's error counters and
// per-district progress are updated in the same step. The returned record
// tells the caller whether the error is worth retrying.
func (m *BackfillJobManager) TrackTargetError(
	ctx context.Context,
	jobID uuid.UUID,
	districtID string,
	err error,
	kind domain.ErrorKind,
	errCtx map[string]string,
) (domain.TargetError, error) {
	record := m.errorTracker.TrackError(ctx, jobID, districtID, err, kind, errCtx)

	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return record, fmt.Errorf("track error for job %s: %w", jobID, ErrJobNotFound)
	}

	patch := domain.ProgressPatch{
		TotalErrors: domain.IntPtr(job.Progress().TotalErrors + 1),
	}
	if record.IsRetryable() {
		patch.RetryableErrors = domain.IntPtr(job.Progress().RetryableErrors + 1)
	} else {
		patch.PermanentErrors = domain.IntPtr(job.Progress().PermanentErrors + 1)
	}
	job.ApplyProgress(patch)

	tp := domain.TargetProgress{
		Status:           domain.TargetStatusFailed,
		LastErrorMessage: record.Message(),
		RetryCount:       record.RetryCount(),
	}
	if state, ok := m.errorTracker.State(jobID, districtID); ok && state.IsBlacklisted(m.clock.Now()) {
		until := state.BlacklistUntil()
		tp.Status = domain.TargetStatusBlacklisted
		tp.BlacklistedUntil = &until
		m.metrics.IncBlacklistActivations(ctx)
	}
	job.SetTargetProgress(districtID, tp)

	m.metrics.IncTargetsFailed(ctx)
	return record, nil
}

// TrackTargetSuccess resets the district's failure history and marks it
// completed in the job's progress.
func (m *BackfillJobManager) TrackTargetSuccess(ctx context.Context, jobID uuid.UUID, districtID string) error {
	m.errorTracker.TrackSuccess(ctx, jobID, districtID)

	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return fmt.Errorf("track success for job %s: %w", jobID, ErrJobNotFound)
	}
	job.SetTargetProgress(districtID, domain.TargetProgress{Status: domain.TargetStatusCompleted})

	m.metrics.IncTargetsSucceeded(ctx)
	return nil
}

// IsTargetBlacklisted reports whether the district is currently suspended
// for the job. Expired suspensions clear on this query.
func (m *BackfillJobManager) IsTargetBlacklisted(jobID uuid.UUID, districtID string) bool {
	return m.errorTracker.IsBlacklisted(jobID, districtID)
}

// RecordSnapshot attaches a fully successful snapshot to the job.
func (m *BackfillJobManager) RecordSnapshot(ctx context.Context, jobID uuid.UUID, snapshotID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return fmt.Errorf("record snapshot for job %s: %w", jobID, ErrJobNotFound)
	}
	job.AddSnapshotID(snapshotID)

	m.logger.Info(ctx, "Snapshot recorded", "job_id", jobID, "snapshot_id", snapshotID)
	return nil
}

// RecordPartialSnapshot attaches a partial snapshot outcome to the job.
func (m *BackfillJobManager) RecordPartialSnapshot(ctx context.Context, jobID uuid.UUID, result domain.PartialSnapshotResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return fmt.Errorf("record partial snapshot for job %s: %w", jobID, ErrJobNotFound)
	}
	job.AddSnapshotID(result.SnapshotID())
	job.AddPartialSnapshot(result)

	m.metrics.IncPartialSnapshots(ctx)
	m.logger.Info(ctx, "Partial snapshot recorded",
		"job_id", jobID,
		"snapshot_id", result.SnapshotID(),
		"success_rate", result.SuccessRate(),
	)
	return nil
}

// CompleteJob transitions the job to COMPLETED.
func (m *BackfillJobManager) CompleteJob(ctx context.Context, jobID uuid.UUID) error {
	ctx, span := m.tracer.Start(ctx, "job_manager.complete_job",
		trace.WithAttributes(attribute.String("job_id", jobID.String())))
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return fmt.Errorf("complete job %s: %w", jobID, ErrJobNotFound)
	}
	if err := job.UpdateStatus(domain.JobStatusCompleted); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid status transition")
		return err
	}

	m.metrics.IncJobsCompleted(ctx)
	span.SetStatus(codes.Ok, "job completed")
	m.logger.Info(ctx, "Backfill job completed", "job_id", jobID)
	return nil
}

// FailJob transitions the job to FAILED with the given reason.
func (m *BackfillJobManager) FailJob(ctx context.Context, jobID uuid.UUID, reason string) error {
	ctx, span := m.tracer.Start(ctx, "job_manager.fail_job",
		trace.WithAttributes(attribute.String("job_id", jobID.String())))
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return fmt.Errorf("fail job %s: %w", jobID, ErrJobNotFound)
	}
	if err := job.Fail(reason); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid status transition")
		return err
	}

	m.metrics.IncJobsFailed(ctx)
	span.SetStatus(codes.Ok, "job failed")
	m.logger.Warn(ctx, "Backfill job failed", "job_id", jobID, "reason", reason)
	return nil
}

// CancelJob requests cooperative cancellation. Only a PROCESSING job can be
// cancelled; the returned bool reports whether the request took effect. The
// coordinator observes the status flip at its next poll point and stops
// issuing new fetches.
func (m *BackfillJobManager) CancelJob(ctx context.Context, jobID uuid.UUID, message string) (bool, error) {
	ctx, span := m.tracer.Start(ctx, "job_manager.cancel_job",
		trace.WithAttributes(attribute.String("job_id", jobID.String())))
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return false, fmt.Errorf("cancel job %s: %w", jobID, ErrJobNotFound)
	}

	cancelled := job.Cancel(message)
	if !cancelled {
		span.AddEvent("cancel ignored for non-processing job")
		span.SetStatus(codes.Ok, "cancel ignored")
		return false, nil
	}

	m.metrics.IncJobsCancelled(ctx)
	span.SetStatus(codes.Ok, "job cancelled")
	m.logger.Info(ctx, "Backfill job cancelled", "job_id", jobID, "message", message)
	return true, nil
}

// CleanupCompletedJobs removes terminal jobs created more than maxAge ago,
// together with their error-tracker state. Age is measured from creation so a
// long-running job is swept on the same schedule as one that finished
// immediately. The fallback cache is deliberately left alone. Returns the
// number of jobs removed.
func (m *BackfillJobManager) CleanupCompletedJobs(ctx context.Context, maxAge time.Duration) int {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, job := range m.jobs {
		if !job.Status().IsTerminal() {
			continue
		}
		if now.Sub(job.CreatedAt()) < maxAge {
			continue
		}
		delete(m.jobs, id)
		m.errorTracker.RemoveJob(id)
		removed++
	}

	if removed > 0 {
		m.logger.Info(ctx, "Cleaned up completed jobs", "removed", removed, "max_age", maxAge)
	}
	return removed
}
