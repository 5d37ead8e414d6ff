package backfill

import (
	"time"

	"github.com/districtdata/harvester/pkg/common/timeutil"
)

// Timeline tracks temporal aspects of backfill jobs.
type Timeline struct {
	createdAt   time.Time
	completedAt time.Time
	lastUpdate  time.Time
	clock       timeutil.Provider
}

// NewTimeline creates a new Timeline instance.
func NewTimeline(clock timeutil.Provider) *Timeline {
	now := clock.Now()
	return &Timeline{
		createdAt:  now,
		lastUpdate: now,
		clock:      clock,
	}
}

// CreatedAt returns the time the job was created.
func (t *Timeline) CreatedAt() time.Time { return t.createdAt }

// CompletedAt returns the time the job reached a terminal state.
func (t *Timeline) CompletedAt() time.Time { return t.completedAt }

// LastUpdate returns the time the job was last updated.
func (t *Timeline) LastUpdate() time.Time { return t.lastUpdate }

// MarkCompleted records the terminal timestamp.
func (t *Timeline) MarkCompleted() {
	t.completedAt = t.clock.Now()
	t.UpdateLastUpdate()
}

// UpdateLastUpdate updates the last update timestamp.
func (t *Timeline) UpdateLastUpdate() {
	t.lastUpdate = t.clock.Now()
}

// IsCompleted checks if the timeline has been marked as completed.
func (t *Timeline) IsCompleted() bool { return !t.completedAt.IsZero() }
