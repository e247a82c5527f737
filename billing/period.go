package billing

import "time"

// PeriodStart returns the start of the billing period containing now: the
// most recent occurrence of billingDay on or before now. When today's day
// precedes the configured day, the period started one calendar month earlier.
func PeriodStart(now time.Time, billingDay int) time.Time {
	year, month, day := now.Date()
	if day >= billingDay {
		return time.Date(year, month, billingDay, 0, 0, 0, 0, now.Location())
	}
	return time.Date(year, month-1, billingDay, 0, 0, 0, 0, now.Location())
}

// PeriodBounds returns the half-open [start, end) bounds of the billing
// period `back` periods before the current one. back=0 is the current
// period, back=1 the previous.
func PeriodBounds(now time.Time, billingDay, back int) (time.Time, time.Time) {
	end := PeriodStart(now, billingDay).AddDate(0, -back+1, 0)
	start := end.AddDate(0, -1, 0)
	return start, end
}
