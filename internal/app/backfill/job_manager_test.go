package backfill

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	domain "github.com/districtdata/harvester/internal/domain/backfill"
	"github.com/districtdata/harvester/internal/domain/reportdate"
	"github.com/districtdata/harvester/pkg/common/logger"
)

func newTestManager(t *testing.T) (*BackfillJobManager, *fakeClock, *stubMetrics) {
	t.Helper()
	clock := newFakeClock()
	metrics := new(stubMetrics)
	mgr := NewBackfillJobManager(clock, logger.Noop(), noop.NewTracerProvider().Tracer("test"), metrics)
	return mgr, clock, metrics
}

func newTestJob(t *testing.T, mgr *BackfillJobManager, districts ...string) *domain.Job {
	t.Helper()
	scope := domain.NewTargetedScope(districts, districts)
	dates := []reportdate.Date{reportdate.MustParse("2024-07-01")}
	return mgr.CreateJob(context.Background(), scope, dates, domain.NewRetryOptions(true))
}

func TestCreateAndGetJob(t *testing.T) {
	mgr, _, metrics := newTestManager(t)

	job := newTestJob(t, mgr, "42", "61")
	require.NotNil(t, job)
	assert.Equal(t, domain.JobStatusProcessing, job.Status())
	assert.Equal(t, 1, metrics.jobsStarted)

	assert.Same(t, job, mgr.GetJob(job.ID()))
	assert.Nil(t, mgr.GetJob(uuid.New()), "unknown job id resolves to nil")
}

func TestUpdateProgress(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	job := newTestJob(t, mgr, "42", "61")

	err := mgr.UpdateProgress(context.Background(), job.ID(), domain.ProgressPatch{
		Total:     domain.IntPtr(2),
		Completed: domain.IntPtr(1),
		Current:   domain.StringPtr("61"),
	})
	require.NoError(t, err)

	progress := job.Progress()
	assert.Equal(t, 2, progress.Total)
	assert.Equal(t, 1, progress.Completed)
	assert.Equal(t, "61", progress.Current)

	err = mgr.UpdateProgress(context.Background(), uuid.New(), domain.ProgressPatch{})
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestTrackTargetErrorUpdatesCounters(t *testing.T) {
	mgr, _, metrics := newTestManager(t)
	job := newTestJob(t, mgr, "42", "61")
	ctx := context.Background()

	record, err := mgr.TrackTargetError(ctx, job.ID(), "61", errors.New("connect: timeout"), domain.KindUnknown, nil)
	require.NoError(t, err)
	assert.True(t, record.IsRetryable())

	_, err = mgr.TrackTargetError(ctx, job.ID(), "61", errors.New("district not enrolled"), domain.KindUnknown, nil)
	require.NoError(t, err)

	progress := job.Progress()
	assert.Equal(t, 2, progress.TotalErrors)
	assert.Equal(t, 1, progress.RetryableErrors)
	assert.Equal(t, 1, progress.PermanentErrors)
	assert.Equal(t, 2, metrics.targetsFailed)

	tp, ok := progress.Target("61")
	require.True(t, ok)
	assert.Equal(t, domain.TargetStatusFailed, tp.Status)
	assert.Equal(t, "district not enrolled", tp.LastErrorMessage)
}

func TestTrackTargetErrorBlacklists(t *testing.T) {
	mgr, clock, metrics := newTestManager(t)
	job := newTestJob(t, mgr, "42", "61")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := mgr.TrackTargetError(ctx, job.ID(), "61", errors.New("read: ECONNRESET"), domain.KindTransient, nil)
		require.NoError(t, err)
	}

	require.True(t, mgr.IsTargetBlacklisted(job.ID(), "61"))
	assert.False(t, mgr.IsTargetBlacklisted(job.ID(), "42"))

	tp, ok := job.Progress().Target("61")
	require.True(t, ok)
	assert.Equal(t, domain.TargetStatusBlacklisted, tp.Status)
	require.NotNil(t, tp.BlacklistedUntil)
	assert.Equal(t, clock.Now().Add(32*time.Minute), *tp.BlacklistedUntil)
	assert.Equal(t, 1, metrics.blacklistActivations)
}

func TestTrackTargetSuccess(t *testing.T) {
	mgr, _, metrics := newTestManager(t)
	job := newTestJob(t, mgr, "42")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := mgr.TrackTargetError(ctx, job.ID(), "42", errors.New("timeout"), domain.KindTransient, nil)
		require.NoError(t, err)
	}
	require.True(t, mgr.IsTargetBlacklisted(job.ID(), "42"))

	require.NoError(t, mgr.TrackTargetSuccess(ctx, job.ID(), "42"))
	assert.False(t, mgr.IsTargetBlacklisted(job.ID(), "42"))

	tp, ok := job.Progress().Target("42")
	require.True(t, ok)
	assert.Equal(t, domain.TargetStatusCompleted, tp.Status)
	assert.Equal(t, 1, metrics.targetsSucceeded)
}

func TestRecordPartialSnapshot(t *testing.T) {
	mgr, _, metrics := newTestManager(t)
	job := newTestJob(t, mgr, "1", "2", "3")

	result := domain.NewPartialSnapshotResult("snap-1", []string{"1", "2"}, []string{"3"})
	require.NoError(t, mgr.RecordPartialSnapshot(context.Background(), job.ID(), result))

	assert.Equal(t, []string{"snap-1"}, job.SnapshotIDs())
	require.Len(t, job.PartialSnapshots(), 1)
	assert.InDelta(t, 2.0/3.0, job.PartialSnapshots()[0].SuccessRate(), 1e-9)
	assert.Equal(t, 1, job.Progress().PartialSnapshots)
	assert.Equal(t, 1, metrics.partialSnapshots)
}

func TestCompleteAndFailJob(t *testing.T) {
	mgr, _, metrics := newTestManager(t)
	ctx := context.Background()

	completed := newTestJob(t, mgr, "42")
	require.NoError(t, mgr.CompleteJob(ctx, completed.ID()))
	assert.Equal(t, domain.JobStatusCompleted, completed.Status())
	assert.Equal(t, 1, metrics.jobsCompleted)

	failed := newTestJob(t, mgr, "61")
	require.NoError(t, mgr.FailJob(ctx, failed.ID(), "no districts succeeded"))
	assert.Equal(t, domain.JobStatusFailed, failed.Status())
	assert.Equal(t, "no districts succeeded", failed.FailureReason())
	assert.Equal(t, 1, metrics.jobsFailed)

	// Terminal jobs reject further transitions.
	assert.Error(t, mgr.CompleteJob(ctx, failed.ID()))
}

func TestCancelJob(t *testing.T) {
	mgr, _, metrics := newTestManager(t)
	ctx := context.Background()

	job := newTestJob(t, mgr, "42")
	cancelled, err := mgr.CancelJob(ctx, job.ID(), "operator request")
	require.NoError(t, err)
	assert.True(t, cancelled)
	assert.Equal(t, domain.JobStatusCancelled, job.Status())
	assert.Equal(t, 1, metrics.jobsCancelled)

	// A second cancel is a no-op, not an error.
	cancelled, err = mgr.CancelJob(ctx, job.ID(), "again")
	require.NoError(t, err)
	assert.False(t, cancelled)

	_, err = mgr.CancelJob(ctx, uuid.New(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestCleanupCompletedJobs(t *testing.T) {
	mgr, clock, _ := newTestManager(t)
	ctx := context.Background()

	old := newTestJob(t, mgr, "42")

	clock.Advance(2 * time.Hour)

	// Completed just now, but created two hours ago: age is measured from
	// creation, so the sweep still removes it.
	require.NoError(t, mgr.CompleteJob(ctx, old.ID()))

	fresh := newTestJob(t, mgr, "61")
	require.NoError(t, mgr.CompleteJob(ctx, fresh.ID()))

	running := newTestJob(t, mgr, "77")
	_, err := mgr.TrackTargetError(ctx, old.ID(), "42", errors.New("timeout"), domain.KindTransient, nil)
	require.NoError(t, err)

	removed := mgr.CleanupCompletedJobs(ctx, time.Hour)
	assert.Equal(t, 1, removed)

	assert.Nil(t, mgr.GetJob(old.ID()), "aged-out job is gone")
	assert.NotNil(t, mgr.GetJob(fresh.ID()), "recently completed job survives")
	assert.NotNil(t, mgr.GetJob(running.ID()), "processing job survives")

	// Tracker state went with the job.
	assert.False(t, mgr.IsTargetBlacklisted(old.ID(), "42"))
}
