package config

import (
	"fmt"
	"time"
)

// Config represents the top-level configuration for the harvester service.
type Config struct {
	API       APIConfig       `yaml:"api"`
	Portal    PortalConfig    `yaml:"portal"`
	Districts []string        `yaml:"districts"`
	Retry     RetryConfig     `yaml:"retry"`
	Snapshots SnapshotConfig  `yaml:"snapshots"`
	Retention RetentionConfig `yaml:"retention"`
}

// APIConfig defines the HTTP API binding.
type APIConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
}

// PortalConfig defines how to reach the upstream report portal.
type PortalConfig struct {
	BaseURL           string  `yaml:"base_url"`
	TimeoutSeconds    int     `yaml:"timeout_seconds"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Timeout returns the per-request timeout for portal fetches.
func (p PortalConfig) Timeout() time.Duration {
	if p.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// RetryConfig holds the caller-facing retry preferences applied when a
// backfill request does not specify its own.
type RetryConfig struct {
	Enabled bool `yaml:"enabled"`
}

// SnapshotConfig defines where snapshot payloads and manifests are written.
type SnapshotConfig struct {
	Dir string `yaml:"dir"`
}

// RetentionConfig controls the retention sweep for terminal jobs.
type RetentionConfig struct {
	MaxAgeHours          int `yaml:"max_age_hours"`
	SweepIntervalMinutes int `yaml:"sweep_interval_minutes"`
}

// MaxAge returns how long terminal jobs are retained before the sweeper
// removes them.
func (r RetentionConfig) MaxAge() time.Duration {
	if r.MaxAgeHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(r.MaxAgeHours) * time.Hour
}

// SweepInterval returns the period between retention sweeps.
func (r RetentionConfig) SweepInterval() time.Duration {
	if r.SweepIntervalMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(r.SweepIntervalMinutes) * time.Minute
}

// Validate ensures the configuration is usable before the service starts.
func (c *Config) Validate() error {
	if c.Portal.BaseURL == "" {
		return fmt.Errorf("portal.base_url is required")
	}
	if len(c.Districts) == 0 {
		return fmt.Errorf("at least one district must be configured")
	}
	if c.Snapshots.Dir == "" {
		return fmt.Errorf("snapshots.dir is required")
	}
	return nil
}
