package reportdate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	d, err := Parse("2024-07-01")
	require.NoError(t, err)
	assert.Equal(t, 2024, d.Year())
	assert.Equal(t, time.July, d.Month())
	assert.Equal(t, 1, d.Day())
	assert.Equal(t, "2024-07-01", d.String())

	_, err = Parse("07/01/2024")
	assert.Error(t, err)
}

func TestProgramYear(t *testing.T) {
	tests := []struct {
		name string
		date string
		want int
	}{
		{name: "start of program year", date: "2024-07-01", want: 2024},
		{name: "last day of program year", date: "2024-06-30", want: 2023},
		{name: "mid program year", date: "2025-01-15", want: 2024},
		{name: "june belongs to prior program year", date: "2024-06-01", want: 2023},
		{name: "december belongs to current program year", date: "2024-12-31", want: 2024},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ProgramYear(MustParse(tt.date)))
		})
	}
}

func TestPreviousMonth(t *testing.T) {
	y, m := PreviousMonth(2024, time.July)
	assert.Equal(t, 2024, y)
	assert.Equal(t, time.June, m)

	y, m = PreviousMonth(2024, time.January)
	assert.Equal(t, 2023, y)
	assert.Equal(t, time.December, m)
}

func TestMonthEnd(t *testing.T) {
	tests := []struct {
		year  int
		month time.Month
		want  string
	}{
		{2024, time.June, "2024-06-30"},
		{2024, time.February, "2024-02-29"},
		{2023, time.February, "2023-02-28"},
		{2024, time.December, "2024-12-31"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, MonthEnd(tt.year, tt.month).String())
	}
}

func TestFallbackCandidates(t *testing.T) {
	requested := MustParse("2024-07-01")
	candidates := FallbackCandidates(requested, 3)
	require.Len(t, candidates, 3)

	// The first candidate steps from July into June, which belongs to the
	// prior program year.
	first := candidates[0]
	assert.Equal(t, 2024, first.Year)
	assert.Equal(t, time.June, first.Month)
	assert.Equal(t, "2024-06-30", first.Date.String())
	assert.True(t, first.CrossedProgramYearBoundary)

	second := candidates[1]
	assert.Equal(t, time.May, second.Month)
	assert.True(t, second.CrossedProgramYearBoundary)
}

func TestFallbackCandidatesWithinProgramYear(t *testing.T) {
	// Walking back from October stays inside the same program year.
	candidates := FallbackCandidates(MustParse("2024-10-15"), 2)
	require.Len(t, candidates, 2)
	assert.Equal(t, "2024-09-30", candidates[0].Date.String())
	assert.False(t, candidates[0].CrossedProgramYearBoundary)
	assert.False(t, candidates[1].CrossedProgramYearBoundary)
}

func TestFallbackCandidatesCrossCalendarYear(t *testing.T) {
	candidates := FallbackCandidates(MustParse("2025-01-10"), 1)
	require.Len(t, candidates, 1)
	assert.Equal(t, 2024, candidates[0].Year)
	assert.Equal(t, time.December, candidates[0].Month)
	assert.False(t, candidates[0].CrossedProgramYearBoundary)
}
