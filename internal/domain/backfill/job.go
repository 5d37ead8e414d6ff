package backfill

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/districtdata/harvester/internal/domain/reportdate"
	"github.com/districtdata/harvester/pkg/common/timeutil"
)

// Job coordinates and tracks a bulk historical collection run across a scope
// of districts. It is owned exclusively by the job manager: created once,
// mutated in place by lifecycle and progress calls, never deleted while
// processing.
type Job struct {
	id               uuid.UUID
	status           JobStatus
	scope            Scope
	dates            []reportdate.Date
	progress         Progress
	strategy         CollectionStrategy
	retry            RetryOptions
	timeline         *Timeline
	failureReason    string
	snapshotIDs      []string
	partialSnapshots []PartialSnapshotResult
}

// NewJob creates a processing job over the given scope and collection dates.
// The initial strategy is the coarse scope heuristic; the run loop may refine
// it. Progress counters start at zero with the scope's first district as the
// starting point.
func NewJob(id uuid.UUID, scope Scope, dates []reportdate.Date, retry RetryOptions, clock timeutil.Provider) *Job {
	var current string
	if districts := scope.Districts(); len(districts) > 0 {
		current = districts[0]
	}

	datesCopy := make([]reportdate.Date, len(dates))
	copy(datesCopy, dates)

	return &Job{
		id:       id,
		status:   JobStatusProcessing,
		scope:    scope,
		dates:    datesCopy,
		progress: NewProgress(current),
		strategy: StrategyForScope(scope.Type()),
		retry:    retry,
		timeline: NewTimeline(clock),
	}
}

// ID returns the unique identifier for this job.
func (j *Job) ID() uuid.UUID { return j.id }

// Status returns the current lifecycle status.
func (j *Job) Status() JobStatus { return j.status }

// Scope returns the immutable scope the job was created with.
func (j *Job) Scope() Scope { return j.scope }

// Dates returns the report dates the job collects.
func (j *Job) Dates() []reportdate.Date {
	out := make([]reportdate.Date, len(j.dates))
	copy(out, j.dates)
	return out
}

// Strategy returns the current collection strategy.
func (j *Job) Strategy() CollectionStrategy { return j.strategy }

// RefineStrategy replaces the strategy decided at creation. The run loop
// calls this once it knows more than the scope type alone.
func (j *Job) RefineStrategy(s CollectionStrategy) {
	j.strategy = s
	j.timeline.UpdateLastUpdate()
}

// RetryOptions returns the retry envelope for the fetch collaborator.
func (j *Job) RetryOptions() RetryOptions { return j.retry }

// Progress returns an independent snapshot of the job's progress.
func (j *Job) Progress() Progress { return j.progress.Clone() }

// FailureReason returns the recorded failure or cancellation message.
func (j *Job) FailureReason() string { return j.failureReason }

// CreatedAt returns when the job was registered.
func (j *Job) CreatedAt() time.Time { return j.timeline.CreatedAt() }

// CompletedAt returns when the job reached a terminal state, if it has.
func (j *Job) CompletedAt() (time.Time, bool) {
	if j.status.IsTerminal() {
		return j.timeline.CompletedAt(), true
	}
	return time.Time{}, false
}

// SnapshotIDs returns the snapshots produced by this job.
func (j *Job) SnapshotIDs() []string { return copyStrings(j.snapshotIDs) }

// PartialSnapshots returns the partial-result descriptors recorded so far.
func (j *Job) PartialSnapshots() []PartialSnapshotResult {
	out := make([]PartialSnapshotResult, len(j.partialSnapshots))
	copy(out, j.partialSnapshots)
	return out
}

// ApplyProgress shallow-merges the patch into the job's progress.
func (j *Job) ApplyProgress(patch ProgressPatch) {
	j.progress.Apply(patch)
	j.timeline.UpdateLastUpdate()
}

// SetTargetProgress records the per-district state in the progress map.
func (j *Job) SetTargetProgress(districtID string, tp TargetProgress) {
	j.progress.SetTarget(districtID, tp)
	j.timeline.UpdateLastUpdate()
}

// AddSnapshotID appends a produced snapshot id.
func (j *Job) AddSnapshotID(snapshotID string) {
	j.snapshotIDs = append(j.snapshotIDs, snapshotID)
	j.timeline.UpdateLastUpdate()
}

// AddPartialSnapshot appends a partial-result descriptor and bumps the
// partial-snapshot counter.
func (j *Job) AddPartialSnapshot(result PartialSnapshotResult) {
	j.partialSnapshots = append(j.partialSnapshots, result)
	j.progress.PartialSnapshots = len(j.partialSnapshots)
	j.timeline.UpdateLastUpdate()
}

// UpdateStatus changes the job's status after validating the transition and
// stamps the terminal timestamp when one is reached.
func (j *Job) UpdateStatus(newStatus JobStatus) error {
	if err := j.status.ValidateTransition(newStatus); err != nil {
		return err
	}

	if newStatus.IsTerminal() {
		j.timeline.MarkCompleted()
	}

	j.status = newStatus
	return nil
}

// Fail transitions the job to failed with the given reason.
func (j *Job) Fail(reason string) error {
	if err := j.UpdateStatus(JobStatusFailed); err != nil {
		return err
	}
	j.failureReason = reason
	return nil
}

// Cancel transitions a processing job to cancelled and records the
// cancellation message. Any other state is a no-op returning false: terminal
// states are immutable.
func (j *Job) Cancel(message string) bool {
	if j.status != JobStatusProcessing {
		return false
	}
	if err := j.UpdateStatus(JobStatusCancelled); err != nil {
		return false
	}
	j.failureReason = message
	return true
}

// String implements fmt.Stringer for log output.
func (j *Job) String() string {
	return fmt.Sprintf("backfill job %s (%s, %d districts)", j.id, j.status, len(j.scope.Districts()))
}
