package backfill

import (
	"context"
	"sync"
)

// stubMetrics counts metric emissions for assertions without a real meter.
type stubMetrics struct {
	mu sync.Mutex

	jobsStarted   int
	jobsCompleted int
	jobsFailed    int
	jobsCancelled int

	targetsSucceeded     int
	targetsFailed        int
	targetsSkipped       int
	blacklistActivations int

	fallbackCacheHits   int
	fallbackDiscoveries int

	partialSnapshots int
}

var _ OrchestrationMetrics = (*stubMetrics)(nil)

func (s *stubMetrics) inc(field *int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	*field++
}

func (s *stubMetrics) IncJobsStarted(context.Context)          { s.inc(&s.jobsStarted) }
func (s *stubMetrics) IncJobsCompleted(context.Context)        { s.inc(&s.jobsCompleted) }
func (s *stubMetrics) IncJobsFailed(context.Context)           { s.inc(&s.jobsFailed) }
func (s *stubMetrics) IncJobsCancelled(context.Context)        { s.inc(&s.jobsCancelled) }
func (s *stubMetrics) IncTargetsSucceeded(context.Context)     { s.inc(&s.targetsSucceeded) }
func (s *stubMetrics) IncTargetsFailed(context.Context)        { s.inc(&s.targetsFailed) }
func (s *stubMetrics) IncTargetsSkipped(context.Context)       { s.inc(&s.targetsSkipped) }
func (s *stubMetrics) IncBlacklistActivations(context.Context) { s.inc(&s.blacklistActivations) }
func (s *stubMetrics) IncFallbackCacheHits(context.Context)    { s.inc(&s.fallbackCacheHits) }
func (s *stubMetrics) IncFallbackDiscoveries(context.Context)  { s.inc(&s.fallbackDiscoveries) }
func (s *stubMetrics) IncPartialSnapshots(context.Context)     { s.inc(&s.partialSnapshots) }
