package backfill

import (
	"context"
	"sync"

	"github.com/google/uuid"

	domain "github.com/districtdata/harvester/internal/domain/backfill"
	"github.com/districtdata/harvester/pkg/common/logger"
	"github.com/districtdata/harvester/pkg/common/timeutil"
)

// TargetErrorTracker classifies and accumulates per-district failure history
// and decides temporary suspension. State is keyed per job, per district;
// failures on one district never affect another. Blacklist expiry is lazy:
// it is evaluated only when queried, there is no background sweep.
type TargetErrorTracker struct {
	mu     sync.Mutex
	states map[uuid.UUID]map[string]*domain.TargetErrorState

	clock  timeutil.Provider
	logger *logger.Logger
}

// NewTargetErrorTracker creates an empty tracker.
func NewTargetErrorTracker(clock timeutil.Provider, logger *logger.Logger) *TargetErrorTracker {
	logger = logger.With("component", "target_error_tracker")
	return &TargetErrorTracker{
		states: make(map[uuid.UUID]map[string]*domain.TargetErrorState),
		clock:  clock,
		logger: logger,
	}
}

// TrackError records a failure against a district. The error's structured
// kind wins over the message heuristic; unmatched errors are permanent. The
// returned record is the immutable entry appended to the district's history.
func (t *TargetErrorTracker) TrackError(
	ctx context.Context,
	jobID uuid.UUID,
	targetID string,
	err error,
	kind domain.ErrorKind,
	errCtx map[string]string,
) domain.TargetError {
	t.mu.Lock()
	defer t.mu.Unlock()

	state := t.stateLocked(jobID, targetID)

	// An untagged error takes the caller's classification; the message
	// heuristic is the last resort.
	retryable := domain.IsRetryable(err)
	if domain.KindOf(err) == domain.KindUnknown && kind != domain.KindUnknown {
		retryable = kind.Retryable()
	}

	record := domain.NewTargetError(
		targetID,
		err.Error(),
		kind,
		t.clock.Now(),
		state.TotalRetries()+1,
		retryable,
		errCtx,
	)
	state.RecordFailure(record, t.clock)

	if state.IsBlacklisted(t.clock.Now()) {
		t.logger.Warn(ctx, "District blacklisted after repeated failures",
			"job_id", jobID,
			"district_id", targetID,
			"consecutive_failures", state.ConsecutiveFailures(),
			"blacklist_until", state.BlacklistUntil(),
		)
	}

	return record
}

// TrackSuccess resets the district's consecutive-failure count and clears any
// blacklist.
func (t *TargetErrorTracker) TrackSuccess(ctx context.Context, jobID uuid.UUID, targetID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stateLocked(jobID, targetID).RecordSuccess(t.clock)
}

// IsBlacklisted evaluates the district's suspension with lazy expiry. A
// district with no tracked history is never blacklisted.
func (t *TargetErrorTracker) IsBlacklisted(jobID uuid.UUID, targetID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	targets, ok := t.states[jobID]
	if !ok {
		return false
	}
	state, ok := targets[targetID]
	if !ok {
		return false
	}
	return state.IsBlacklisted(t.clock.Now())
}

// State returns a snapshot of the district's failure history for status
// queries.
func (t *TargetErrorTracker) State(jobID uuid.UUID, targetID string) (*domain.TargetErrorState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	targets, ok := t.states[jobID]
	if !ok {
		return nil, false
	}
	state, ok := targets[targetID]
	return state, ok
}

// RemoveJob discards all tracked state for a job. Called when the job is
// removed from the registry.
func (t *TargetErrorTracker) RemoveJob(jobID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.states, jobID)
}

// stateLocked returns the district's state, creating it lazily on first use.
// Callers must hold the mutex.
func (t *TargetErrorTracker) stateLocked(jobID uuid.UUID, targetID string) *domain.TargetErrorState {
	targets, ok := t.states[jobID]
	if !ok {
		targets = make(map[string]*domain.TargetErrorState)
		t.states[jobID] = targets
	}
	state, ok := targets[targetID]
	if !ok {
		state = domain.NewTargetErrorState(targetID)
		targets[targetID] = state
	}
	return state
}
