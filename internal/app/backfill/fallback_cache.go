package backfill

import (
	"sync"

	domain "github.com/districtdata/harvester/internal/domain/backfill"
	"github.com/districtdata/harvester/internal/domain/reportdate"
	"github.com/districtdata/harvester/pkg/common/timeutil"
)

// FallbackResolutionCache remembers, per requested date, the parameters that
// made a fallback fetch succeed, so later requests for the same date skip
// both the doomed standard attempt and the discovery walk. The cache is
// memory-only; each process instance owns exactly one and nothing is shared
// across instances.
type FallbackResolutionCache struct {
	mu      sync.Mutex
	entries map[string]domain.FallbackInfo
	metrics domain.FallbackMetrics
	clock   timeutil.Provider
}

// NewFallbackResolutionCache creates an empty cache.
func NewFallbackResolutionCache(clock timeutil.Provider) *FallbackResolutionCache {
	return &FallbackResolutionCache{
		entries: make(map[string]domain.FallbackInfo),
		clock:   clock,
	}
}

// HasCachedFallback reports whether a fallback is known for the date.
// It has no side effects.
func (c *FallbackResolutionCache) HasCachedFallback(date reportdate.Date) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[date.String()]
	return ok
}

// GetCachedFallbackInfo returns the stored fallback for the date. A found
// entry counts as a cache hit: the caller goes straight to the fallback
// fetch without re-running discovery.
func (c *FallbackResolutionCache) GetCachedFallbackInfo(date reportdate.Date) (domain.FallbackInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	info, ok := c.entries[date.String()]
	if ok {
		c.metrics.CacheHits++
	}
	return info, ok
}

// CacheFallbackKnowledge stores a discovered fallback. The first writer for a
// date wins; re-inserting an already-known date is a no-op, so the miss and
// discovery counters only advance for genuinely new knowledge.
func (c *FallbackResolutionCache) CacheFallbackKnowledge(info domain.FallbackInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := info.RequestedDate()
	if _, exists := c.entries[key]; exists {
		return
	}

	c.entries[key] = info
	c.metrics.CacheMisses++
	c.metrics.FallbackDatesDiscovered++
}

// NewFallbackInfo builds a memo stamped with the cache's clock.
func (c *FallbackResolutionCache) NewFallbackInfo(
	requested reportdate.Date,
	candidate reportdate.Candidate,
) domain.FallbackInfo {
	return domain.NewFallbackInfo(
		requested,
		candidate.Month,
		candidate.Year,
		candidate.CrossedProgramYearBoundary,
		candidate.Date,
		c.clock.Now(),
	)
}

// GetFallbackMetrics returns an independent copy of the counters. Mutating
// the returned value never affects the cache.
func (c *FallbackResolutionCache) GetFallbackMetrics() domain.FallbackMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metrics
}

// ResetMetrics clears the counters only; cached entries survive.
func (c *FallbackResolutionCache) ResetMetrics() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = domain.FallbackMetrics{}
}

// Len returns the number of cached fallback dates.
func (c *FallbackResolutionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
