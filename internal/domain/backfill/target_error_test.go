package backfill

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type kindedError struct {
	msg  string
	kind ErrorKind
}

func (e kindedError) Error() string        { return e.msg }
func (e kindedError) ErrorKind() ErrorKind { return e.kind }

func TestIsRetryable_MessageHeuristic(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		want bool
	}{
		{name: "connection reset", msg: "read tcp: ECONNRESET", want: true},
		{name: "timeout", msg: "request timeout exceeded", want: true},
		{name: "dns failure", msg: "lookup portal: ENOTFOUND", want: true},
		{name: "bad gateway", msg: "portal returned 502", want: true},
		{name: "rate limited", msg: "Rate limit exceeded, slow down", want: true},
		{name: "temporary failure", msg: "temporary failure in name resolution", want: true},
		{name: "case insensitive", msg: "NETWORK unreachable", want: true},
		{name: "unknown is permanent", msg: "district not enrolled", want: false},
		{name: "auth failure is permanent", msg: "invalid credentials", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(errors.New(tt.msg)))
		})
	}
}

func TestIsRetryable_StructuredKindWins(t *testing.T) {
	// A structured permanent kind overrides a message that would otherwise
	// match the retryable heuristic.
	err := kindedError{msg: "network timeout", kind: KindPermanent}
	assert.False(t, IsRetryable(err))

	// And a transient kind makes an otherwise-unmatched message retryable.
	assert.True(t, IsRetryable(kindedError{msg: "mystery", kind: KindTransient}))
	assert.True(t, IsRetryable(kindedError{msg: "mystery", kind: KindRateLimited}))

	// An unavailable date is resolved by the fallback walk; retrying the
	// same date would just repeat the miss.
	assert.False(t, IsRetryable(kindedError{msg: "network timeout", kind: KindDateUnavailable}))

	// Wrapped kinds are still found.
	wrapped := fmt.Errorf("fetching report: %w", kindedError{msg: "mystery", kind: KindTransient})
	assert.True(t, IsRetryable(wrapped))
}

func TestErrorKindRetryable(t *testing.T) {
	assert.True(t, KindTransient.Retryable())
	assert.True(t, KindRateLimited.Retryable())
	assert.False(t, KindDateUnavailable.Retryable())
	assert.False(t, KindPermanent.Retryable())
	assert.False(t, KindUnknown.Retryable())
}

func TestIsRetryable_Nil(t *testing.T) {
	assert.False(t, IsRetryable(nil))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindTransient, KindOf(kindedError{kind: KindTransient}))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
}

func TestBlacklistWindow(t *testing.T) {
	tests := []struct {
		failures int
		want     time.Duration
	}{
		{failures: 0, want: 0},
		{failures: 1, want: 2 * time.Minute},
		{failures: 5, want: 32 * time.Minute},
		{failures: 6, want: 64 * time.Minute},
		{failures: 10, want: 1024 * time.Minute},
		// 2^11 minutes is ~34h; the cap kicks in.
		{failures: 11, want: 24 * time.Hour},
		{failures: 40, want: 24 * time.Hour},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, BlacklistWindow(tt.failures), "failures=%d", tt.failures)
	}
}

func TestTargetErrorStateBlacklistThreshold(t *testing.T) {
	clock := newFakeClock()
	state := NewTargetErrorState("61")

	for i := 1; i <= 4; i++ {
		state.RecordFailure(
			NewTargetError("61", "ECONNRESET", KindTransient, clock.Now(), i, true, nil),
			clock,
		)
		assert.False(t, state.IsBlacklisted(clock.Now()), "not blacklisted at %d failures", i)
	}

	state.RecordFailure(
		NewTargetError("61", "ECONNRESET", KindTransient, clock.Now(), 5, true, nil),
		clock,
	)
	require.True(t, state.IsBlacklisted(clock.Now()))
	assert.Equal(t, clock.Now().Add(32*time.Minute), state.BlacklistUntil())
	assert.Equal(t, 5, state.ConsecutiveFailures())
	assert.Equal(t, 5, state.TotalRetries())
}

func TestTargetErrorStateSuccessResets(t *testing.T) {
	clock := newFakeClock()
	state := NewTargetErrorState("61")

	for i := 0; i < 5; i++ {
		state.RecordFailure(
			NewTargetError("61", "timeout", KindTransient, clock.Now(), i, true, nil),
			clock,
		)
	}
	require.True(t, state.IsBlacklisted(clock.Now()))

	state.RecordSuccess(clock)
	assert.Equal(t, 0, state.ConsecutiveFailures())
	assert.False(t, state.IsBlacklisted(clock.Now()))
	assert.True(t, state.BlacklistUntil().IsZero())
	assert.Equal(t, clock.Now(), state.LastSuccessAt())
	assert.Len(t, state.Errors(), 5, "history survives a success")
}

func TestTargetErrorStateLazyExpiry(t *testing.T) {
	clock := newFakeClock()
	state := NewTargetErrorState("61")

	for i := 0; i < 5; i++ {
		state.RecordFailure(
			NewTargetError("61", "timeout", KindTransient, clock.Now(), i, true, nil),
			clock,
		)
	}
	require.True(t, state.IsBlacklisted(clock.Now()))

	// Query past the window: the flag clears as a side effect.
	after := clock.Now().Add(33 * time.Minute)
	assert.False(t, state.IsBlacklisted(after))
	assert.True(t, state.BlacklistUntil().IsZero())
	assert.False(t, state.IsBlacklisted(clock.Now()), "stays cleared once expired")
}

func TestTargetErrorImmutable(t *testing.T) {
	clock := newFakeClock()
	ctx := map[string]string{"date": "2024-07-01"}
	rec := NewTargetError("61", "boom", KindPermanent, clock.Now(), 2, false, ctx)

	// Mutating the caller's map or the returned copy must not touch the record.
	ctx["date"] = "changed"
	got := rec.Context()
	got["extra"] = "nope"

	assert.Equal(t, map[string]string{"date": "2024-07-01"}, rec.Context())
	assert.Equal(t, "61", rec.TargetID())
	assert.False(t, rec.IsRetryable())
	assert.Equal(t, 2, rec.RetryCount())
}

func TestTargetErrorStateNoHistoryNeverBlacklisted(t *testing.T) {
	clock := newFakeClock()
	state := NewTargetErrorState("99")
	assert.False(t, state.IsBlacklisted(clock.Now()))

	_, ok := state.LastError()
	assert.False(t, ok)
}
