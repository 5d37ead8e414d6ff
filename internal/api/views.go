package api

import (
	"time"

	domain "github.com/districtdata/harvester/internal/domain/backfill"
)

// jobView is the API representation of a backfill job.
type jobView struct {
	ID               string            `json:"id"`
	Status           string            `json:"status"`
	ScopeType        string            `json:"scopeType"`
	Districts        []string          `json:"districts"`
	Dates            []string          `json:"dates"`
	Strategy         string            `json:"strategy"`
	Progress         progressView      `json:"progress"`
	SnapshotIDs      []string          `json:"snapshotIds"`
	PartialSnapshots []partialSnapView `json:"partialSnapshots,omitempty"`
	FailureReason    string            `json:"failureReason,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	CompletedAt      *time.Time        `json:"completedAt,omitempty"`
}

type progressView struct {
	Total            int                   `json:"total"`
	Completed        int                   `json:"completed"`
	Skipped          int                   `json:"skipped"`
	Unavailable      int                   `json:"unavailable"`
	Failed           int                   `json:"failed"`
	Current          string                `json:"current"`
	PartialSnapshots int                   `json:"partialSnapshots"`
	TotalErrors      int                   `json:"totalErrors"`
	RetryableErrors  int                   `json:"retryableErrors"`
	PermanentErrors  int                   `json:"permanentErrors"`
	Targets          map[string]targetView `json:"targets,omitempty"`
}

type targetView struct {
	Status           string     `json:"status"`
	LastErrorMessage string     `json:"lastErrorMessage,omitempty"`
	RetryCount       int        `json:"retryCount"`
	BlacklistedUntil *time.Time `json:"blacklistedUntil,omitempty"`
}

type partialSnapView struct {
	SnapshotID        string   `json:"snapshotId"`
	SuccessfulTargets []string `json:"successfulTargets"`
	FailedTargets     []string `json:"failedTargets"`
	SuccessRate       float64  `json:"successRate"`
}

func jobToView(job *domain.Job) jobView {
	progress := job.Progress()

	targets := make(map[string]targetView)
	for id, tp := range progress.Targets() {
		targets[id] = targetView{
			Status:           string(tp.Status),
			LastErrorMessage: tp.LastErrorMessage,
			RetryCount:       tp.RetryCount,
			BlacklistedUntil: tp.BlacklistedUntil,
		}
	}

	dates := make([]string, 0, len(job.Dates()))
	for _, d := range job.Dates() {
		dates = append(dates, d.String())
	}

	partials := make([]partialSnapView, 0, len(job.PartialSnapshots()))
	for _, p := range job.PartialSnapshots() {
		partials = append(partials, partialSnapView{
			SnapshotID:        p.SnapshotID(),
			SuccessfulTargets: p.SuccessfulTargets(),
			FailedTargets:     p.FailedTargets(),
			SuccessRate:       p.SuccessRate(),
		})
	}

	view := jobView{
		ID:        job.ID().String(),
		Status:    job.Status().String(),
		ScopeType: string(job.Scope().Type()),
		Districts: job.Scope().Districts(),
		Dates:     dates,
		Strategy:  string(job.Strategy()),
		Progress: progressView{
			Total:            progress.Total,
			Completed:        progress.Completed,
			Skipped:          progress.Skipped,
			Unavailable:      progress.Unavailable,
			Failed:           progress.Failed,
			Current:          progress.Current,
			PartialSnapshots: progress.PartialSnapshots,
			TotalErrors:      progress.TotalErrors,
			RetryableErrors:  progress.RetryableErrors,
			PermanentErrors:  progress.PermanentErrors,
			Targets:          targets,
		},
		SnapshotIDs:      job.SnapshotIDs(),
		PartialSnapshots: partials,
		FailureReason:    job.FailureReason(),
		CreatedAt:        job.CreatedAt(),
	}

	if completedAt, ok := job.CompletedAt(); ok {
		view.CompletedAt = &completedAt
	}
	return view
}
