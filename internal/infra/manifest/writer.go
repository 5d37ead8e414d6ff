// Package manifest persists snapshot payloads and manifests to the local
// filesystem.
package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	domain "github.com/districtdata/harvester/internal/domain/backfill"
	"github.com/districtdata/harvester/pkg/common/logger"
	"github.com/districtdata/harvester/pkg/common/timeutil"
)

// manifestFileName is the fixed name downstream tooling reads.
const manifestFileName = "manifest.json"

// Writer stores each snapshot as a directory under the configured root:
// report payloads as one file per district and date, plus a manifest.json
// describing the snapshot's contents and outcomes.
type Writer struct {
	root   string
	clock  timeutil.Provider
	logger *logger.Logger
}

var _ domain.SnapshotStore = (*Writer)(nil)

// NewWriter creates a writer rooted at dir, creating it if needed.
func NewWriter(dir string, clock timeutil.Provider, log *logger.Logger) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating snapshot root %s: %w", dir, err)
	}
	return &Writer{
		root:   dir,
		clock:  clock,
		logger: log.With("component", "manifest_writer"),
	}, nil
}

// SaveReport persists one report payload under the snapshot's directory and
// returns the file details for the manifest entry.
func (w *Writer) SaveReport(ctx context.Context, snapshotID string, report *domain.Report) (domain.ReportFileInfo, error) {
	dir := filepath.Join(w.root, snapshotID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return domain.ReportFileInfo{}, fmt.Errorf("creating snapshot dir %s: %w", dir, err)
	}

	fileName := fmt.Sprintf("%s_%s.json", report.DistrictID, report.Date)
	if err := os.WriteFile(filepath.Join(dir, fileName), report.Payload, 0o644); err != nil {
		return domain.ReportFileInfo{}, fmt.Errorf("writing report %s: %w", fileName, err)
	}

	w.logger.Debug(ctx, "Report persisted",
		"snapshot_id", snapshotID,
		"file", fileName,
		"bytes", len(report.Payload),
	)

	return domain.ReportFileInfo{
		FileName:     fileName,
		Size:         int64(len(report.Payload)),
		LastModified: w.clock.Now(),
	}, nil
}

// SaveManifest writes the snapshot manifest. The JSON key set is a contract
// with downstream tooling; only the domain struct tags define it.
func (w *Writer) SaveManifest(ctx context.Context, manifest domain.Manifest) error {
	dir := filepath.Join(w.root, manifest.SnapshotID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating snapshot dir %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest for snapshot %s: %w", manifest.SnapshotID, err)
	}
	if err := os.WriteFile(filepath.Join(dir, manifestFileName), data, 0o644); err != nil {
		return fmt.Errorf("writing manifest for snapshot %s: %w", manifest.SnapshotID, err)
	}

	w.logger.Info(ctx, "Manifest persisted",
		"snapshot_id", manifest.SnapshotID,
		"total_districts", manifest.TotalDistricts,
		"successful_districts", manifest.SuccessfulDistricts,
		"failed_districts", manifest.FailedDistricts,
	)
	return nil
}
