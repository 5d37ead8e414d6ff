package backfill

import (
	"context"
	"time"

	"github.com/districtdata/harvester/internal/domain/reportdate"
)

// Report is the payload returned by the fetch collaborator for a single
// district and date.
type Report struct {
	DistrictID string
	Date       reportdate.Date
	Payload    []byte
}

// ReportFetcher is the fetch collaborator consumed by the run loop. A
// fallback-aware caller engages discovery when the returned error carries
// KindDateUnavailable; the fetcher itself never walks fallback candidates.
type ReportFetcher interface {
	// Fetch retrieves one report. The retry envelope bounds attempts inside
	// a single Fetch call; errors carry a structured ErrorKind when the
	// fetcher can classify them.
	Fetch(ctx context.Context, date reportdate.Date, districtID string, opts RetryOptions) (*Report, error)
}

// ReportFileInfo describes a persisted report file for the manifest.
type ReportFileInfo struct {
	FileName     string
	Size         int64
	LastModified time.Time
}

// SnapshotStore is the manifest-writer collaborator. It persists report
// payloads and the snapshot manifest for downstream tooling.
type SnapshotStore interface {
	// SaveReport persists one district's payload under the snapshot and
	// returns the file details recorded in the manifest.
	SaveReport(ctx context.Context, snapshotID string, report *Report) (ReportFileInfo, error)

	// SaveManifest persists the manifest contract bit-exactly.
	SaveManifest(ctx context.Context, manifest Manifest) error
}
