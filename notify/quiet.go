package notify

import "time"

// MinuteOfDay converts a clock time to minutes since local midnight.
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// InQuietHours reports whether now falls inside the half-open window
// [start, end) expressed as minute-of-day. A window with start > end wraps
// around midnight (e.g. 22:00-07:00). start == end means no window.
func InQuietHours(start, end int, now time.Time) bool {
	if start == end {
		return false
	}
	m := MinuteOfDay(now)
	if start < end {
		return m >= start && m < end
	}
	// wrap-around window
	return m >= start || m < end
}
