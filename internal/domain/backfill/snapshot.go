package backfill

import "time"

// PartialSnapshotResult describes a collection round whose output covers less
// than the full scope. It is append-only on the job.
type PartialSnapshotResult struct {
	snapshotID        string
	successfulTargets []string
	failedTargets     []string
	successRate       float64
}

// NewPartialSnapshotResult computes the success rate from the target split.
func NewPartialSnapshotResult(snapshotID string, successfulTargets, failedTargets []string) PartialSnapshotResult {
	total := len(successfulTargets) + len(failedTargets)
	var rate float64
	if total > 0 {
		rate = float64(len(successfulTargets)) / float64(total)
	}
	return PartialSnapshotResult{
		snapshotID:        snapshotID,
		successfulTargets: copyStrings(successfulTargets),
		failedTargets:     copyStrings(failedTargets),
		successRate:       rate,
	}
}

func (r PartialSnapshotResult) SnapshotID() string          { return r.snapshotID }
func (r PartialSnapshotResult) SuccessfulTargets() []string { return copyStrings(r.successfulTargets) }
func (r PartialSnapshotResult) FailedTargets() []string     { return copyStrings(r.failedTargets) }
func (r PartialSnapshotResult) SuccessRate() float64        { return r.successRate }

// Manifest is the contract handed to the downstream manifest writer. The
// JSON shape is consumed by external tooling and must not change.
type Manifest struct {
	SnapshotID          string             `json:"snapshotId"`
	CreatedAt           time.Time          `json:"createdAt"`
	Districts           []ManifestDistrict `json:"districts"`
	TotalDistricts      int                `json:"totalDistricts"`
	SuccessfulDistricts int                `json:"successfulDistricts"`
	FailedDistricts     int                `json:"failedDistricts"`
}

// ManifestDistrict describes one district's outcome within a snapshot.
type ManifestDistrict struct {
	DistrictID   string    `json:"districtId"`
	FileName     string    `json:"fileName"`
	Status       string    `json:"status"`
	FileSize     int64     `json:"fileSize"`
	LastModified time.Time `json:"lastModified"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
}

// Manifest district statuses.
const (
	ManifestStatusSuccess = "success"
	ManifestStatusFailed  = "failed"
)
