package util

import "time"

// DateLayout is the calendar date format used by forecast series.
const DateLayout = "2006-01-02"

// NowUTC exposes time.Now for deterministic testing.
func NowUTC() time.Time {
	return time.Now().UTC()
}

// AddDays formats the date n days after ts.
func AddDays(ts time.Time, n int) string {
	return ts.AddDate(0, 0, n).Format(DateLayout)
}
