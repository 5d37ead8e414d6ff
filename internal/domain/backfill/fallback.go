package backfill

import (
	"time"

	"github.com/districtdata/harvester/internal/domain/reportdate"
)

// FallbackInfo remembers, for a date the source does not serve directly, the
// parameters that made a fallback fetch succeed. Written once per date; read
// many times.
type FallbackInfo struct {
	requestedDate              string
	fallbackMonth              time.Month
	fallbackYear               int
	crossedProgramYearBoundary bool
	actualDate                 string
	cachedAt                   time.Time
}

// NewFallbackInfo builds the memo for a discovered fallback.
func NewFallbackInfo(
	requestedDate reportdate.Date,
	fallbackMonth time.Month,
	fallbackYear int,
	crossedProgramYearBoundary bool,
	actualDate reportdate.Date,
	cachedAt time.Time,
) FallbackInfo {
	return FallbackInfo{
		requestedDate:              requestedDate.String(),
		fallbackMonth:              fallbackMonth,
		fallbackYear:               fallbackYear,
		crossedProgramYearBoundary: crossedProgramYearBoundary,
		actualDate:                 actualDate.String(),
		cachedAt:                   cachedAt,
	}
}

func (f FallbackInfo) RequestedDate() string            { return f.requestedDate }
func (f FallbackInfo) FallbackMonth() time.Month        { return f.fallbackMonth }
func (f FallbackInfo) FallbackYear() int                { return f.fallbackYear }
func (f FallbackInfo) CrossedProgramYearBoundary() bool { return f.crossedProgramYearBoundary }
func (f FallbackInfo) ActualDateString() string         { return f.actualDate }
func (f FallbackInfo) CachedAt() time.Time              { return f.cachedAt }

// ActualDate parses the serving date the fallback resolved to.
func (f FallbackInfo) ActualDate() (reportdate.Date, error) {
	return reportdate.Parse(f.actualDate)
}

// FallbackMetrics counts cache effectiveness. Values are plain ints so every
// read hands the caller an independent copy.
type FallbackMetrics struct {
	CacheHits               int
	CacheMisses             int
	FallbackDatesDiscovered int
}
