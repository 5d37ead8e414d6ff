package backfill

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateTransition_ValidTransitions(t *testing.T) {
	tests := []struct {
		name    string
		current JobStatus
		target  JobStatus
	}{
		{
			name:    "Processing to Completed is valid",
			current: JobStatusProcessing,
			target:  JobStatusCompleted,
		},
		{
			name:    "Processing to Failed is valid",
			current: JobStatusProcessing,
			target:  JobStatusFailed,
		},
		{
			name:    "Processing to Cancelled is valid",
			current: JobStatusProcessing,
			target:  JobStatusCancelled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.current.ValidateTransition(tt.target)
			assert.NoError(t, err, "expected valid transition from %s to %s", tt.current, tt.target)
		})
	}
}

func TestValidateTransition_InvalidTransitions(t *testing.T) {
	terminal := []JobStatus{JobStatusCompleted, JobStatusFailed, JobStatusCancelled}
	targets := []JobStatus{JobStatusProcessing, JobStatusCompleted, JobStatusFailed, JobStatusCancelled}

	for _, current := range terminal {
		for _, target := range targets {
			err := current.ValidateTransition(target)
			assert.Error(t, err, "terminal state %s must not transition to %s", current, target)
		}
	}

	assert.Error(t, JobStatusProcessing.ValidateTransition(JobStatusProcessing))
}

func TestParseJobStatus(t *testing.T) {
	tests := []struct {
		in   string
		want JobStatus
	}{
		{"PROCESSING", JobStatusProcessing},
		{"COMPLETED", JobStatusCompleted},
		{"FAILED", JobStatusFailed},
		{"CANCELLED", JobStatusCancelled},
		{"bogus", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseJobStatus(tt.in))
	}
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, JobStatusProcessing.IsTerminal())
	assert.True(t, JobStatusCompleted.IsTerminal())
	assert.True(t, JobStatusFailed.IsTerminal())
	assert.True(t, JobStatusCancelled.IsTerminal())
}
