package fileloader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
api:
  host: 0.0.0.0
  port: "8080"
portal:
  base_url: https://reports.example.gov
  timeout_seconds: 15
  requests_per_second: 2.5
  burst: 5
districts: ["61", "42"]
retry:
  enabled: true
snapshots:
  dir: /var/lib/harvester/snapshots
retention:
  max_age_hours: 48
  sweep_interval_minutes: 30
`)

	cfg, err := NewFileLoader(path).Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "https://reports.example.gov", cfg.Portal.BaseURL)
	assert.Equal(t, []string{"61", "42"}, cfg.Districts)
	assert.True(t, cfg.Retry.Enabled)
	assert.Equal(t, 2.5, cfg.Portal.RequestsPerSecond)
	assert.Equal(t, 48, cfg.Retention.MaxAgeHours)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := NewFileLoader(filepath.Join(t.TempDir(), "nope.yaml")).Load(context.Background())
	require.Error(t, err)
}

func TestLoadInvalidConfig(t *testing.T) {
	tests := []struct {
		name     string
		contents string
	}{
		{
			name: "missing portal base url",
			contents: `
districts: ["61"]
snapshots:
  dir: /tmp/snaps
`,
		},
		{
			name: "no districts",
			contents: `
portal:
  base_url: https://reports.example.gov
snapshots:
  dir: /tmp/snaps
`,
		},
		{
			name: "missing snapshot dir",
			contents: `
portal:
  base_url: https://reports.example.gov
districts: ["61"]
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.contents)
			_, err := NewFileLoader(path).Load(context.Background())
			assert.Error(t, err)
		})
	}
}
