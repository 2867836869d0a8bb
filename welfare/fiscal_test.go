package welfare_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/warp/welfare-engine/welfare"
)

func TestFiscalYearOf_Boundaries(t *testing.T) {
	// GIVEN: Dates straddling the July 1 fiscal boundary
	// THEN: June 30 closes the fiscal year, July 1 opens the next

	cases := []struct {
		date string
		want int
	}{
		{"2024-06-30", 2024},
		{"2024-07-01", 2025},
		{"2024-01-15", 2024},
		{"2024-12-31", 2025},
		{"2023-07-01", 2024},
	}

	for _, tc := range cases {
		d, err := time.Parse("2006-01-02", tc.date)
		assert.NoError(t, err)
		assert.Equal(t, tc.want, welfare.FiscalYearOf(d), "date %s", tc.date)
	}
}

func TestFiscalYearOf_LastInstantOfYear(t *testing.T) {
	// GIVEN: The very last nanosecond of June 30
	// THEN: It still belongs to the closing fiscal year
	end := time.Date(2024, time.June, 30, 23, 59, 59, int(time.Second-time.Nanosecond), time.UTC)
	assert.Equal(t, 2024, welfare.FiscalYearOf(end))

	// One nanosecond later it is FY2025
	assert.Equal(t, 2025, welfare.FiscalYearOf(end.Add(time.Nanosecond)))
}

func TestFiscalYearRange_RoundTrip(t *testing.T) {
	// GIVEN: A fiscal year's computed range
	// THEN: Both endpoints map back to that fiscal year
	start, end := welfare.FiscalYearRange(2025)

	assert.Equal(t, time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, 2025, welfare.FiscalYearOf(start))
	assert.Equal(t, 2025, welfare.FiscalYearOf(end))
	assert.True(t, end.After(start))
}

func TestCurrentFiscalYear_UsesInjectedClock(t *testing.T) {
	clock := func() time.Time {
		return time.Date(2025, time.August, 10, 12, 0, 0, 0, time.UTC)
	}
	assert.Equal(t, 2026, welfare.CurrentFiscalYear(clock))
}
