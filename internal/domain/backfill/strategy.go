package backfill

import "time"

// CollectionStrategy is the coarse plan for driving a run. It is chosen from
// the scope type at creation and may be refined by the coordinator later in
// the run.
type CollectionStrategy string

const (
	// StrategyFullSweep walks every configured district sequentially.
	StrategyFullSweep CollectionStrategy = "FULL_SWEEP"

	// StrategyDirectFetch goes straight at an explicit district list.
	StrategyDirectFetch CollectionStrategy = "DIRECT_FETCH"
)

// StrategyForScope derives the initial collection strategy from the scope.
func StrategyForScope(t ScopeType) CollectionStrategy {
	if t == ScopeTargeted {
		return StrategyDirectFetch
	}
	return StrategyFullSweep
}

// Default retry envelope applied to the fetch collaborator.
const (
	defaultBaseDelay         = 2 * time.Second
	defaultMaxDelay          = 30 * time.Second
	defaultBackoffMultiplier = 2.0
	retriesEnabledAttempts   = 3
	retriesDisabledAttempts  = 1
)

// RetryOptions bounds the fetch collaborator's per-operation retries. The
// exponential backoff envelope applies to the fetch collaborator, not to the
// orchestration core itself.
type RetryOptions struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	IsRetryable       func(error) bool
}

// NewRetryOptions builds the retry envelope from request preferences: three
// attempts when retries are enabled, a single attempt otherwise.
func NewRetryOptions(retriesEnabled bool) RetryOptions {
	attempts := retriesDisabledAttempts
	if retriesEnabled {
		attempts = retriesEnabledAttempts
	}
	return RetryOptions{
		MaxAttempts:       attempts,
		BaseDelay:         defaultBaseDelay,
		MaxDelay:          defaultMaxDelay,
		BackoffMultiplier: defaultBackoffMultiplier,
		IsRetryable:       IsRetryable,
	}
}
