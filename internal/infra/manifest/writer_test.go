package manifest

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/districtdata/harvester/internal/domain/backfill"
	"github.com/districtdata/harvester/internal/domain/reportdate"
	"github.com/districtdata/harvester/pkg/common/logger"
	"github.com/districtdata/harvester/pkg/common/timeutil"
)

func TestSaveReport(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, timeutil.Default(), logger.Noop())
	require.NoError(t, err)

	report := &domain.Report{
		DistrictID: "42",
		Date:       reportdate.MustParse("2024-05-31"),
		Payload:    []byte(`{"meals":120}`),
	}
	info, err := w.SaveReport(context.Background(), "snap-1", report)
	require.NoError(t, err)

	assert.Equal(t, "42_2024-05-31.json", info.FileName)
	assert.Equal(t, int64(len(report.Payload)), info.Size)
	assert.False(t, info.LastModified.IsZero())

	data, err := os.ReadFile(filepath.Join(dir, "snap-1", info.FileName))
	require.NoError(t, err)
	assert.JSONEq(t, `{"meals":120}`, string(data))
}

func TestSaveManifestKeyContract(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, timeutil.Default(), logger.Noop())
	require.NoError(t, err)

	created := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	manifest := domain.Manifest{
		SnapshotID: "snap-1",
		CreatedAt:  created,
		Districts: []domain.ManifestDistrict{
			{
				DistrictID:   "42",
				FileName:     "42_2024-05-31.json",
				Status:       domain.ManifestStatusSuccess,
				FileSize:     13,
				LastModified: created,
			},
			{
				DistrictID:   "61",
				Status:       domain.ManifestStatusFailed,
				ErrorMessage: "district not enrolled",
			},
		},
		TotalDistricts:      2,
		SuccessfulDistricts: 1,
		FailedDistricts:     1,
	}
	require.NoError(t, w.SaveManifest(context.Background(), manifest))

	data, err := os.ReadFile(filepath.Join(dir, "snap-1", "manifest.json"))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))

	// Downstream tooling keys on these exact names.
	for _, key := range []string{"snapshotId", "createdAt", "districts", "totalDistricts", "successfulDistricts", "failedDistricts"} {
		assert.Contains(t, decoded, key)
	}

	districts, ok := decoded["districts"].([]any)
	require.True(t, ok)
	require.Len(t, districts, 2)

	success := districts[0].(map[string]any)
	assert.Equal(t, "42", success["districtId"])
	assert.Equal(t, "success", success["status"])
	assert.Equal(t, float64(13), success["fileSize"])
	assert.NotContains(t, success, "errorMessage", "errorMessage is omitted on success")

	failed := districts[1].(map[string]any)
	assert.Equal(t, "61", failed["districtId"])
	assert.Equal(t, "failed", failed["status"])
	assert.Equal(t, "district not enrolled", failed["errorMessage"])
}

func TestNewWriterCreatesRoot(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "snapshots")
	_, err := NewWriter(dir, timeutil.Default(), logger.Noop())
	require.NoError(t, err)

	stat, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, stat.IsDir())
}
