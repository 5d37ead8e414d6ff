// Package reportdate provides the date arithmetic the collection core relies
// on: report-date parsing, program-year boundaries, and the backward
// candidate-month walk used by fallback discovery.
package reportdate

import (
	"fmt"
	"time"
)

// Layout is the wire format for report dates.
const Layout = "2006-01-02"

// ProgramYearStartMonth is the annual cutover. Dates in or after this month
// belong to the program year that begins in that calendar year; earlier dates
// belong to the program year that began the previous calendar year.
const ProgramYearStartMonth = time.July

// Date is a calendar date without a time-of-day component.
type Date struct {
	t time.Time
}

// New constructs a Date from its components.
func New(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// Parse converts a string in Layout form into a Date.
func Parse(s string) (Date, error) {
	t, err := time.Parse(Layout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid report date %q: %w", s, err)
	}
	return Date{t: t}, nil
}

// MustParse is Parse for values known to be valid, such as test fixtures.
func MustParse(s string) Date {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Date) String() string    { return d.t.Format(Layout) }
func (d Date) Year() int         { return d.t.Year() }
func (d Date) Month() time.Month { return d.t.Month() }
func (d Date) Day() int          { return d.t.Day() }
func (d Date) Time() time.Time   { return d.t }
func (d Date) IsZero() bool      { return d.t.IsZero() }

// Equal reports whether two dates name the same calendar day.
func (d Date) Equal(other Date) bool { return d.t.Equal(other.t) }

// ProgramYear returns the calendar year in which the program year containing
// d began. A date in June 2024 belongs to program year 2023; a date in July
// 2024 belongs to program year 2024.
func ProgramYear(d Date) int {
	if d.Month() >= ProgramYearStartMonth {
		return d.Year()
	}
	return d.Year() - 1
}

// PreviousMonth steps one month backward from the given year/month pair,
// wrapping across the calendar-year boundary.
func PreviousMonth(year int, month time.Month) (int, time.Month) {
	if month == time.January {
		return year - 1, time.December
	}
	return year, month - 1
}

// MonthEnd returns the last day of the given month.
func MonthEnd(year int, month time.Month) Date {
	firstOfNext := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return Date{t: firstOfNext.AddDate(0, 0, -1)}
}

// Candidate is one step of the fallback discovery walk: the month to probe,
// the serving date to try within it, and whether reaching it crossed the
// program-year cutover relative to the originally requested date.
type Candidate struct {
	Year                       int
	Month                      time.Month
	Date                       Date
	CrossedProgramYearBoundary bool
}

// FallbackCandidates returns the candidate months to probe, most recent
// first, when the source cannot serve the requested date directly. Each
// candidate's serving date is the end of its month. The walk covers at most
// maxMonths steps.
func FallbackCandidates(requested Date, maxMonths int) []Candidate {
	candidates := make([]Candidate, 0, maxMonths)

	year, month := requested.Year(), requested.Month()
	for i := 0; i < maxMonths; i++ {
		year, month = PreviousMonth(year, month)
		end := MonthEnd(year, month)
		candidates = append(candidates, Candidate{
			Year:                       year,
			Month:                      month,
			Date:                       end,
			CrossedProgramYearBoundary: ProgramYear(end) != ProgramYear(requested),
		})
	}

	return candidates
}
