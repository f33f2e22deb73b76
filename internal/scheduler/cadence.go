package scheduler

import "time"

const day = 24 * time.Hour

// cadenceDays maps the time since a gallery's announcement to its refresh
// cadence. Freshly announced galleries still collect votes and metadata edits
// daily; old ones settle down to a biweekly integrity check.
func cadenceDays(age time.Duration) int {
	switch {
	case age < 2*day:
		return 1
	case age < 7*day:
		return 3
	case age < 14*day:
		return 7
	default:
		return 14
	}
}

// due reports whether a gallery announced at the given time should be
// refreshed today. The day-of-month modulus keeps the decision stable for a
// whole day without any per-gallery scheduling state.
func due(published, now time.Time) bool {
	return now.Day()%cadenceDays(now.Sub(published)) == 0
}
