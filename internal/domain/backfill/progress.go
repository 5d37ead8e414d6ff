package backfill

import "time"

// TargetStatus is the per-district state surfaced through job progress.
type TargetStatus string

const (
	TargetStatusPending     TargetStatus = "PENDING"
	TargetStatusCompleted   TargetStatus = "COMPLETED"
	TargetStatusFailed      TargetStatus = "FAILED"
	TargetStatusBlacklisted TargetStatus = "BLACKLISTED"
)

// TargetProgress captures the last recorded outcome for a single district.
type TargetProgress struct {
	Status           TargetStatus
	LastErrorMessage string
	RetryCount       int
	BlacklistedUntil *time.Time
}

// Progress holds the counters a caller polls to follow a backfill run.
// Counters are monotonically non-decreasing by convention; mutation happens
// via shallow merge of a ProgressPatch and is not validated.
type Progress struct {
	Total            int
	Completed        int
	Skipped          int
	Unavailable      int
	Failed           int
	Current          string
	PartialSnapshots int
	TotalErrors      int
	RetryableErrors  int
	PermanentErrors  int

	targets map[string]TargetProgress
}

// NewProgress builds a zeroed progress with the given starting point.
func NewProgress(current string) Progress {
	return Progress{Current: current, targets: make(map[string]TargetProgress)}
}

// ProgressPatch is a shallow-merge patch for Progress. Nil fields are left
// untouched; non-nil fields overwrite, last writer wins.
type ProgressPatch struct {
	Total            *int
	Completed        *int
	Skipped          *int
	Unavailable      *int
	Failed           *int
	Current          *string
	PartialSnapshots *int
	TotalErrors      *int
	RetryableErrors  *int
	PermanentErrors  *int
}

// Apply shallow-merges the patch into the progress.
func (p *Progress) Apply(patch ProgressPatch) {
	if patch.Total != nil {
		p.Total = *patch.Total
	}
	if patch.Completed != nil {
		p.Completed = *patch.Completed
	}
	if patch.Skipped != nil {
		p.Skipped = *patch.Skipped
	}
	if patch.Unavailable != nil {
		p.Unavailable = *patch.Unavailable
	}
	if patch.Failed != nil {
		p.Failed = *patch.Failed
	}
	if patch.Current != nil {
		p.Current = *patch.Current
	}
	if patch.PartialSnapshots != nil {
		p.PartialSnapshots = *patch.PartialSnapshots
	}
	if patch.TotalErrors != nil {
		p.TotalErrors = *patch.TotalErrors
	}
	if patch.RetryableErrors != nil {
		p.RetryableErrors = *patch.RetryableErrors
	}
	if patch.PermanentErrors != nil {
		p.PermanentErrors = *patch.PermanentErrors
	}
}

// SetTarget records the per-district state.
func (p *Progress) SetTarget(districtID string, tp TargetProgress) {
	if p.targets == nil {
		p.targets = make(map[string]TargetProgress)
	}
	p.targets[districtID] = tp
}

// Target returns the recorded state for a district, if any.
func (p Progress) Target(districtID string) (TargetProgress, bool) {
	tp, ok := p.targets[districtID]
	return tp, ok
}

// Targets returns a copy of the per-district progress map.
func (p Progress) Targets() map[string]TargetProgress {
	out := make(map[string]TargetProgress, len(p.targets))
	for k, v := range p.targets {
		out[k] = v
	}
	return out
}

// Clone returns an independent copy of the progress, including the
// per-district map, so callers can hold a snapshot without racing the next
// update.
func (p Progress) Clone() Progress {
	clone := p
	clone.targets = make(map[string]TargetProgress, len(p.targets))
	for k, v := range p.targets {
		clone.targets[k] = v
	}
	return clone
}

// IntPtr is a convenience for building ProgressPatch values.
func IntPtr(v int) *int { return &v }

// StringPtr is a convenience for building ProgressPatch values.
func StringPtr(v string) *string { return &v }
