package welfare

import "time"

// =============================================================================
// FISCAL CALENDAR - Thai fiscal year: July 1 (Y-1) through June 30 (Y)
// =============================================================================
//
// A fiscal year is identified by its ENDING calendar year: June 30 2024 falls
// in FY2024, July 1 2024 opens FY2025. All quota partitioning keys off this
// integer. Pure functions; the current year is always recomputed from an
// injected clock, never cached across requests.

// Clock supplies wall-clock time. Inject time.Now in production and a fixed
// function in tests.
type Clock func() time.Time

// FiscalYearOf maps an arbitrary date to its fiscal-year integer.
func FiscalYearOf(t time.Time) int {
	if t.Month() >= time.July {
		return t.Year() + 1
	}
	return t.Year()
}

// CurrentFiscalYear returns the fiscal year containing now().
func CurrentFiscalYear(now Clock) int {
	return FiscalYearOf(now())
}

// FiscalYearRange returns the inclusive date range of a fiscal year:
// July 1 of fy-1 at midnight through June 30 of fy at the last nanosecond.
func FiscalYearRange(fy int) (start, end time.Time) {
	start = time.Date(fy-1, time.July, 1, 0, 0, 0, 0, time.UTC)
	end = time.Date(fy, time.June, 30, 23, 59, 59, int(time.Second-time.Nanosecond), time.UTC)
	return start, end
}
