package backfill

import (
	"errors"
	"strings"
	"time"

	"github.com/districtdata/harvester/pkg/common/timeutil"
)

// ErrorKind is the structured classification carried by the fetch
// collaborator. Untagged errors fall back to message-substring matching.
type ErrorKind string

const (
	// KindDateUnavailable means the source does not serve the requested date
	// directly and a fallback discovery walk is warranted.
	KindDateUnavailable ErrorKind = "DATE_UNAVAILABLE"

	// KindRateLimited means the source pushed back on request volume.
	KindRateLimited ErrorKind = "RATE_LIMITED"

	// KindTransient covers network faults and 5xx responses.
	KindTransient ErrorKind = "TRANSIENT"

	// KindPermanent covers everything that will not succeed on retry.
	KindPermanent ErrorKind = "PERMANENT"

	// KindUnknown marks errors with no structured classification.
	KindUnknown ErrorKind = "UNKNOWN"
)

// Retryable reports whether the kind warrants another attempt against the
// same date. An unavailable date is handled by the fallback walk, not by
// retrying, so it counts as non-retryable here.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindRateLimited, KindTransient:
		return true
	default:
		return false
	}
}

// Kinder is implemented by errors that carry a structured kind.
type Kinder interface {
	ErrorKind() ErrorKind
}

// retryableFragments are matched case-insensitively against untagged error
// messages. Anything unmatched is permanent.
var retryableFragments = []string{
	"network",
	"timeout",
	"econnreset",
	"enotfound",
	"econnrefused",
	"500",
	"502",
	"503",
	"504",
	"rate limit",
	"temporary",
}

// IsRetryable classifies an error as retry-worthy. A structured kind on the
// error wins; otherwise the message-substring heuristic applies. The default
// bias is permanent: unknown errors are not retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var kinder Kinder
	if errors.As(err, &kinder) {
		if k := kinder.ErrorKind(); k != KindUnknown {
			return k.Retryable()
		}
	}

	return messageIsRetryable(err.Error())
}

func messageIsRetryable(msg string) bool {
	lower := strings.ToLower(msg)
	for _, fragment := range retryableFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

// KindOf extracts the structured kind from an error, or KindUnknown.
func KindOf(err error) ErrorKind {
	var kinder Kinder
	if errors.As(err, &kinder) {
		return kinder.ErrorKind()
	}
	return KindUnknown
}

// TargetError is an immutable record of a single failure against a district.
type TargetError struct {
	targetID   string
	message    string
	kind       ErrorKind
	timestamp  time.Time
	retryCount int
	retryable  bool
	context    map[string]string
}

// NewTargetError builds a failure record. retryCount is the target's retry
// total at the time the error was recorded.
func NewTargetError(
	targetID, message string,
	kind ErrorKind,
	timestamp time.Time,
	retryCount int,
	retryable bool,
	context map[string]string,
) TargetError {
	var ctx map[string]string
	if len(context) > 0 {
		ctx = make(map[string]string, len(context))
		for k, v := range context {
			ctx[k] = v
		}
	}
	return TargetError{
		targetID:   targetID,
		message:    message,
		kind:       kind,
		timestamp:  timestamp,
		retryCount: retryCount,
		retryable:  retryable,
		context:    ctx,
	}
}

func (e TargetError) TargetID() string     { return e.targetID }
func (e TargetError) Message() string      { return e.message }
func (e TargetError) Kind() ErrorKind      { return e.kind }
func (e TargetError) Timestamp() time.Time { return e.timestamp }
func (e TargetError) RetryCount() int      { return e.retryCount }
func (e TargetError) IsRetryable() bool    { return e.retryable }

// Context returns a copy of the error's contextual metadata.
func (e TargetError) Context() map[string]string {
	if e.context == nil {
		return nil
	}
	out := make(map[string]string, len(e.context))
	for k, v := range e.context {
		out[k] = v
	}
	return out
}

// Blacklist tuning. The window doubles with each consecutive failure but is
// capped: an uncapped 2^n grows into multi-year suspensions no operator can
// use.
const (
	blacklistThreshold = 5
	maxBlacklistWindow = 24 * time.Hour
)

// BlacklistWindow returns how long a target stays suspended after the given
// number of consecutive failures: 2^n minutes, capped at maxBlacklistWindow.
func BlacklistWindow(consecutiveFailures int) time.Duration {
	if consecutiveFailures <= 0 {
		return 0
	}
	// Shifting past 31 would overflow long before the cap applies.
	if consecutiveFailures > 31 {
		return maxBlacklistWindow
	}
	window := time.Duration(1<<uint(consecutiveFailures)) * time.Minute
	if window > maxBlacklistWindow {
		return maxBlacklistWindow
	}
	return window
}

// TargetErrorState accumulates the failure history for a single district
// within a single job. It is created lazily on first error and reset, not
// deleted, on success.
type TargetErrorState struct {
	targetID            string
	errors              []TargetError
	consecutiveFailures int
	totalRetries        int
	lastFailureAt       time.Time
	lastSuccessAt       time.Time
	blacklisted         bool
	blacklistUntil      time.Time
}

// NewTargetErrorState creates an empty failure history for a district.
func NewTargetErrorState(targetID string) *TargetErrorState {
	return &TargetErrorState{targetID: targetID}
}

func (s *TargetErrorState) TargetID() string          { return s.targetID }
func (s *TargetErrorState) ConsecutiveFailures() int  { return s.consecutiveFailures }
func (s *TargetErrorState) TotalRetries() int         { return s.totalRetries }
func (s *TargetErrorState) LastFailureAt() time.Time  { return s.lastFailureAt }
func (s *TargetErrorState) LastSuccessAt() time.Time  { return s.lastSuccessAt }
func (s *TargetErrorState) BlacklistUntil() time.Time { return s.blacklistUntil }

// Errors returns a copy of the ordered, append-only failure records.
func (s *TargetErrorState) Errors() []TargetError {
	out := make([]TargetError, len(s.errors))
	copy(out, s.errors)
	return out
}

// LastError returns the most recent failure record, if any.
func (s *TargetErrorState) LastError() (TargetError, bool) {
	if len(s.errors) == 0 {
		return TargetError{}, false
	}
	return s.errors[len(s.errors)-1], true
}

// RecordFailure appends the error, advances the failure counters, and applies
// the blacklist once the consecutive-failure threshold is reached.
func (s *TargetErrorState) RecordFailure(err TargetError, clock timeutil.Provider) {
	s.errors = append(s.errors, err)
	s.consecutiveFailures++
	s.totalRetries++
	s.lastFailureAt = clock.Now()

	if s.consecutiveFailures >= blacklistThreshold {
		s.blacklisted = true
		s.blacklistUntil = clock.Now().Add(BlacklistWindow(s.consecutiveFailures))
	}
}

// RecordSuccess resets the consecutive-failure count and clears any
// blacklist. The accumulated error history is kept.
func (s *TargetErrorState) RecordSuccess(clock timeutil.Provider) {
	s.consecutiveFailures = 0
	s.lastSuccessAt = clock.Now()
	s.blacklisted = false
	s.blacklistUntil = time.Time{}
}

// IsBlacklisted evaluates the suspension with lazy expiry: once the window
// has passed, the flag is cleared as a side effect of the query. No
// background timer exists.
func (s *TargetErrorState) IsBlacklisted(now time.Time) bool {
	if !s.blacklisted {
		return false
	}
	if !s.blacklistUntil.IsZero() && now.After(s.blacklistUntil) {
		s.blacklisted = false
		s.blacklistUntil = time.Time{}
		return false
	}
	return true
}
