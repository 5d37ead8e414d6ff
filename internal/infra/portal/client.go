// Package portal implements the report fetcher against the upstream report
// portal's HTTP surface.
package portal

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/cenkalti/backoff"

	"github.com/districtdata/harvester/internal/config"
	domain "github.com/districtdata/harvester/internal/domain/backfill"
	"github.com/districtdata/harvester/internal/domain/reportdate"
	"github.com/districtdata/harvester/pkg/common"
	"github.com/districtdata/harvester/pkg/common/logger"
)

// maxResponseBytes caps how much of a report payload is read into memory.
const maxResponseBytes = 32 << 20 // 32 MiB

// FetchError is a portal failure with a structured classification derived
// from the HTTP status. It satisfies the error-kind contract the run loop
// keys its fallback and retry decisions on.
type FetchError struct {
	StatusCode int
	Kind       domain.ErrorKind
	DistrictID string
	Date       string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("portal returned %d for district %s date %s", e.StatusCode, e.DistrictID, e.Date)
}

// ErrorKind returns the structured classification.
func (e *FetchError) ErrorKind() domain.ErrorKind { return e.Kind }

var _ domain.Kinder = (*FetchError)(nil)

// Client fetches district reports from the portal. It rate-limits outbound
// requests and retries inside a single Fetch call according to the job's
// retry envelope; classification of what is retryable lives with the caller.
type Client struct {
	baseURL string
	httpc   *http.Client
	limiter *common.RateLimiter
	logger  *logger.Logger
}

var _ domain.ReportFetcher = (*Client)(nil)

// NewClient builds a portal client from configuration.
func NewClient(cfg config.PortalConfig, log *logger.Logger) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		httpc:   &http.Client{Timeout: cfg.Timeout()},
		limiter: common.NewRateLimiter(cfg.RequestsPerSecond, cfg.Burst),
		logger:  log.With("component", "portal_client"),
	}
}

// Fetch retrieves one district's report for the given date. Transient
// failures are retried with exponential backoff up to the envelope's attempt
// budget; non-retryable failures stop immediately.
func (c *Client) Fetch(
	ctx context.Context,
	date reportdate.Date,
	districtID string,
	opts domain.RetryOptions,
) (*domain.Report, error) {
	attempts := opts.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var report *domain.Report
	tries := 0

	// The attempt budget is counted here rather than handed to
	// backoff.WithMaxRetries: that helper treats a zero retry count as
	// unlimited, which would turn a single-attempt envelope into an
	// open-ended retry loop.
	operation := func() error {
		tries++
		r, err := c.fetchOnce(ctx, date, districtID)
		if err != nil {
			if opts.IsRetryable != nil && !opts.IsRetryable(err) {
				return backoff.Permanent(err)
			}
			if tries >= attempts {
				return backoff.Permanent(err)
			}
			return err
		}
		report = r
		return nil
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = opts.BaseDelay
	expBackoff.MaxInterval = opts.MaxDelay
	expBackoff.Multiplier = opts.BackoffMultiplier
	expBackoff.MaxElapsedTime = 0

	if err := backoff.Retry(operation, backoff.WithContext(expBackoff, ctx)); err != nil {
		return nil, err
	}
	return report, nil
}

// fetchOnce performs a single rate-limited request.
func (c *Client) fetchOnce(ctx context.Context, date reportdate.Date, districtID string) (*domain.Report, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	endpoint := fmt.Sprintf("%s/districts/%s/reports/%s",
		c.baseURL, url.PathEscape(districtID), date)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building portal request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching report for district %s: %w", districtID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, c.classify(ctx, resp.StatusCode, districtID, date)
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading report payload for district %s: %w", districtID, err)
	}

	return &domain.Report{DistrictID: districtID, Date: date, Payload: payload}, nil
}

// classify maps an HTTP status to a structured error kind. A 429 also
// throttles the shared limiter so the whole run backs off, not just this
// request.
func (c *Client) classify(ctx context.Context, status int, districtID string, date reportdate.Date) error {
	fetchErr := &FetchError{
		StatusCode: status,
		DistrictID: districtID,
		Date:       date.String(),
	}

	switch {
	case status == http.StatusNotFound:
		fetchErr.Kind = domain.KindDateUnavailable
	case status == http.StatusTooManyRequests:
		fetchErr.Kind = domain.KindRateLimited
		c.limiter.Throttle()
		c.logger.Warn(ctx, "Portal rate limit hit, throttling",
			"district_id", districtID,
			"requests_per_second", c.limiter.Limit(),
		)
	case status >= 500:
		fetchErr.Kind = domain.KindTransient
	default:
		fetchErr.Kind = domain.KindPermanent
	}

	return fetchErr
}
