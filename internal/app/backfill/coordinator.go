package backfill

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/districtdata/harvester/internal/domain/backfill"
	"github.com/districtdata/harvester/internal/domain/reportdate"
	"github.com/districtdata/harvester/pkg/common/logger"
	"github.com/districtdata/harvester/pkg/common/timeutil"
)

// maxFallbackMonths bounds the discovery walk to one program year of
// month-end candidates.
const maxFallbackMonths = 12

// Coordinator drives a backfill job end to end: it iterates the job's
// districts and dates, consults the fallback cache before fetching, walks
// fallback candidates when the source cannot serve a date, and persists
// collected reports plus a snapshot manifest. Cancellation is cooperative;
// the coordinator polls the job's status between targets and never
// interrupts an in-flight fetch.
type Coordinator struct {
	manager *BackfillJobManager
	fetcher domain.ReportFetcher
	store   domain.SnapshotStore

	clock   timeutil.Provider
	logger  *logger.Logger
	tracer  trace.Tracer
	metrics OrchestrationMetrics
}

// NewCoordinator wires a coordinator over the shared job manager and the
// fetch and storage collaborators.
func NewCoordinator(
	manager *BackfillJobManager,
	fetcher domain.ReportFetcher,
	store domain.SnapshotStore,
	clock timeutil.Provider,
	log *logger.Logger,
	tracer trace.Tracer,
	metrics OrchestrationMetrics,
) *Coordinator {
	return &Coordinator{
		manager: manager,
		fetcher: fetcher,
		store:   store,
		clock:   clock,
		logger:  log.With("component", "backfill_coordinator"),
		tracer:  tracer,
		metrics: metrics,
	}
}

// targetOutcome is the per-district rollup used for the partial snapshot
// decision at the end of a run.
type targetOutcome int

const (
	outcomeSucceeded targetOutcome = iota
	outcomeFailed
)

// Run executes the job to a terminal state. It returns an error only for
// infrastructure faults (unknown job, manifest persistence); collection
// failures are absorbed into the job's progress and final status.
func (c *Coordinator) Run(ctx context.Context, jobID uuid.UUID) error {
	ctx, span := c.tracer.Start(ctx, "coordinator.run",
		trace.WithAttributes(attribute.String("job_id", jobID.String())))
	defer span.End()

	job := c.manager.GetJob(jobID)
	if job == nil {
		span.SetStatus(codes.Error, "job not found")
		return fmt.Errorf("run job %s: %w", jobID, ErrJobNotFound)
	}

	districts := job.Scope().Districts()
	dates := job.Dates()
	retry := job.RetryOptions()
	snapshotID := uuid.New().String()

	total := len(districts) * len(dates)
	if err := c.manager.UpdateProgress(ctx, jobID, domain.ProgressPatch{Total: domain.IntPtr(total)}); err != nil {
		return err
	}

	c.logger.Info(ctx, "Backfill run starting",
		"job_id", jobID,
		"snapshot_id", snapshotID,
		"districts", len(districts),
		"dates", len(dates),
	)

	var (
		completed, failed, skipped, unavailable int

		entries  []domain.ManifestDistrict
		outcomes = make(map[string]targetOutcome, len(districts))
	)

	markFailed := func(districtID string) {
		outcomes[districtID] = outcomeFailed
	}
	markSucceeded := func(districtID string) {
		if _, seen := outcomes[districtID]; !seen {
			outcomes[districtID] = outcomeSucceeded
		}
	}

collection:
	for _, districtID := range districts {
		for _, date := range dates {
			// Cancellation poll point. An in-flight fetch always finishes;
			// the flip is observed here, between targets.
			if status, ok := c.manager.JobStatus(jobID); ok && status == domain.JobStatusCancelled {
				c.logger.Info(ctx, "Backfill run observed cancellation", "job_id", jobID)
				span.AddEvent("cancellation observed")
				break collection
			}

			patch := domain.ProgressPatch{Current: domain.StringPtr(districtID)}

			if c.manager.IsTargetBlacklisted(jobID, districtID) {
				skipped++
				patch.Skipped = domain.IntPtr(skipped)
				c.metrics.IncTargetsSkipped(ctx)
				markFailed(districtID)
				entries = append(entries, domain.ManifestDistrict{
					DistrictID:   districtID,
					Status:       domain.ManifestStatusFailed,
					ErrorMessage: "district temporarily blacklisted",
				})
				if err := c.manager.UpdateProgress(ctx, jobID, patch); err != nil {
					return err
				}
				continue
			}

			report, fetchErr := c.fetchWithFallback(ctx, jobID, districtID, date, retry)
			switch {
			case fetchErr == nil:
				info, err := c.store.SaveReport(ctx, snapshotID, report)
				if err != nil {
					// Storage faults count against the district like any
					// other failure; the run keeps going.
					fetchErr = fmt.Errorf("save report for district %s: %w", districtID, err)
					if _, terr := c.manager.TrackTargetError(ctx, jobID, districtID, fetchErr, domain.KindTransient, nil); terr != nil {
						return terr
					}
					failed++
					patch.Failed = domain.IntPtr(failed)
					markFailed(districtID)
					entries = append(entries, domain.ManifestDistrict{
						DistrictID:   districtID,
						Status:       domain.ManifestStatusFailed,
						ErrorMessage: fetchErr.Error(),
					})
					break
				}

				if err := c.manager.TrackTargetSuccess(ctx, jobID, districtID); err != nil {
					return err
				}
				completed++
				patch.Completed = domain.IntPtr(completed)
				markSucceeded(districtID)
				entries = append(entries, domain.ManifestDistrict{
					DistrictID:   districtID,
					FileName:     info.FileName,
					Status:       domain.ManifestStatusSuccess,
					FileSize:     info.Size,
					LastModified: info.LastModified,
				})

			case domain.KindOf(fetchErr) == domain.KindDateUnavailable:
				// The discovery walk came up empty for every candidate
				// month. The date simply does not exist at the source.
				unavailable++
				patch.Unavailable = domain.IntPtr(unavailable)
				if _, terr := c.manager.TrackTargetError(ctx, jobID, districtID, fetchErr, domain.KindDateUnavailable, map[string]string{
					"requested_date": date.String(),
				}); terr != nil {
					return terr
				}
				markFailed(districtID)
				entries = append(entries, domain.ManifestDistrict{
					DistrictID:   districtID,
					Status:       domain.ManifestStatusFailed,
					ErrorMessage: fetchErr.Error(),
				})

			default:
				failed++
				patch.Failed = domain.IntPtr(failed)
				if _, terr := c.manager.TrackTargetError(ctx, jobID, districtID, fetchErr, domain.KindOf(fetchErr), map[string]string{
					"requested_date": date.String(),
				}); terr != nil {
					return terr
				}
				markFailed(districtID)
				entries = append(entries, domain.ManifestDistrict{
					DistrictID:   districtID,
					Status:       domain.ManifestStatusFailed,
					ErrorMessage: fetchErr.Error(),
				})
			}

			if err := c.manager.UpdateProgress(ctx, jobID, patch); err != nil {
				return err
			}
		}
	}

	if err := c.finish(ctx, jobID, snapshotID, entries, outcomes, len(districts)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "finishing run failed")
		return err
	}

	span.SetAttributes(
		attribute.Int("completed", completed),
		attribute.Int("failed", failed),
		attribute.Int("skipped", skipped),
		attribute.Int("unavailable", unavailable),
	)
	span.SetStatus(codes.Ok, "run finished")
	return nil
}

// fetchWithFallback resolves the serving date for one district and date:
// cached fallback knowledge short-circuits straight to the known date, a
// direct miss with DATE_UNAVAILABLE starts the backward month-end walk, and
// a walk that succeeds publishes its discovery to the cache.
func (c *Coordinator) fetchWithFallback(
	ctx context.Context,
	jobID uuid.UUID,
	districtID string,
	date reportdate.Date,
	retry domain.RetryOptions,
) (*domain.Report, error) {
	cache := c.manager.FallbackCache()

	if info, ok := cache.GetCachedFallbackInfo(date); ok {
		c.metrics.IncFallbackCacheHits(ctx)
		actual, err := info.ActualDate()
		if err != nil {
			return nil, fmt.Errorf("cached fallback for %s is corrupt: %w", date, err)
		}
		c.logger.Debug(ctx, "Using cached fallback date",
			"job_id", jobID,
			"district_id", districtID,
			"requested_date", date,
			"actual_date", actual,
		)
		return c.fetcher.Fetch(ctx, actual, districtID, retry)
	}

	report, err := c.fetcher.Fetch(ctx, date, districtID, retry)
	if err == nil || domain.KindOf(err) != domain.KindDateUnavailable {
		return report, err
	}

	for _, candidate := range reportdate.FallbackCandidates(date, maxFallbackMonths) {
		report, err = c.fetcher.Fetch(ctx, candidate.Date, districtID, retry)
		if err == nil {
			cache.CacheFallbackKnowledge(cache.NewFallbackInfo(date, candidate))
			c.metrics.IncFallbackDiscoveries(ctx)
			c.logger.Info(ctx, "Fallback date discovered",
				"job_id", jobID,
				"district_id", districtID,
				"requested_date", date,
				"actual_date", candidate.Date,
				"crossed_program_year", candidate.CrossedProgramYearBoundary,
			)
			return report, nil
		}
		if domain.KindOf(err) != domain.KindDateUnavailable {
			return nil, err
		}
	}

	return nil, fmt.Errorf("no report available for %s within %d fallback months: %w", date, maxFallbackMonths, err)
}

// finish writes the manifest, attaches the snapshot to the job, and settles
// the final status. A cancelled job stays cancelled; zero successes over a
// non-empty scope fails the job; anything else completes it.
func (c *Coordinator) finish(
	ctx context.Context,
	jobID uuid.UUID,
	snapshotID string,
	entries []domain.ManifestDistrict,
	outcomes map[string]targetOutcome,
	scopeSize int,
) error {
	var successful, failed []string
	for districtID, outcome := range outcomes {
		if outcome == outcomeSucceeded {
			successful = append(successful, districtID)
		} else {
			failed = append(failed, districtID)
		}
	}

	if len(entries) > 0 {
		successEntries := 0
		for _, e := range entries {
			if e.Status == domain.ManifestStatusSuccess {
				successEntries++
			}
		}
		manifest := domain.Manifest{
			SnapshotID:          snapshotID,
			CreatedAt:           c.clock.Now(),
			Districts:           entries,
			TotalDistricts:      len(entries),
			SuccessfulDistricts: successEntries,
			FailedDistricts:     len(entries) - successEntries,
		}
		if err := c.store.SaveManifest(ctx, manifest); err != nil {
			return fmt.Errorf("save manifest for snapshot %s: %w", snapshotID, err)
		}

		if len(successful) > 0 && len(failed) > 0 {
			result := domain.NewPartialSnapshotResult(snapshotID, successful, failed)
			if err := c.manager.RecordPartialSnapshot(ctx, jobID, result); err != nil {
				return err
			}
		} else if len(successful) > 0 {
			if err := c.manager.RecordSnapshot(ctx, jobID, snapshotID); err != nil {
				return err
			}
		}
	}

	status, ok := c.manager.JobStatus(jobID)
	if !ok {
		return fmt.Errorf("finish job %s: %w", jobID, ErrJobNotFound)
	}
	if status == domain.JobStatusCancelled {
		return nil
	}

	if len(successful) == 0 && scopeSize > 0 {
		return c.manager.FailJob(ctx, jobID, "no districts yielded a report")
	}
	return c.manager.CompleteJob(ctx, jobID)
}
