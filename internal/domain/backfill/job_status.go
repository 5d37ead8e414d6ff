package backfill

import "fmt"

// JobStatus represents the current state of a backfill job. It enables
// tracking of the job lifecycle from creation through completion,
// failure, or cancellation.
type JobStatus string

const (
	// JobStatusProcessing indicates a job is actively collecting reports.
	JobStatusProcessing JobStatus = "PROCESSING"

	// JobStatusCompleted indicates every target in the job's scope succeeded.
	JobStatusCompleted JobStatus = "COMPLETED"

	// JobStatusFailed indicates the run ended without a single success.
	JobStatusFailed JobStatus = "FAILED"

	// JobStatusCancelled indicates the job was cancelled by a caller.
	JobStatusCancelled JobStatus = "CANCELLED"
)

func (s JobStatus) String() string { return string(s) }

// IsTerminal reports whether the status permits no further transitions.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// ParseJobStatus converts a string to a JobStatus.
func ParseJobStatus(s string) JobStatus {
	switch s {
	case "PROCESSING":
		return JobStatusProcessing
	case "COMPLETED":
		return JobStatusCompleted
	case "FAILED":
		return JobStatusFailed
	case "CANCELLED":
		return JobStatusCancelled
	default:
		return "" // represents unspecified
	}
}

// ValidateTransition checks if a status transition is valid and returns an
// error if not.
func (s JobStatus) ValidateTransition(target JobStatus) error {
	if !s.isValidTransition(target) {
		return fmt.Errorf("invalid job status transition from %s to %s", s, target)
	}
	return nil
}

// isValidTransition checks if the current status can transition to the target
// status. Processing is the only non-terminal state.
func (s JobStatus) isValidTransition(target JobStatus) bool {
	switch s {
	case JobStatusProcessing:
		return target == JobStatusCompleted || target == JobStatusFailed || target == JobStatusCancelled
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		// Terminal states - no further transitions allowed.
		return false
	default:
		return false
	}
}
