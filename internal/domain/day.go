package domain

import "time"

// DayKeyLayout formats the canonical per-day key.
const DayKeyLayout = "2006-01-02"

// StartOfDay truncates t to local midnight in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// DayKey returns the YYYY-MM-DD key of t in its own location.
func DayKey(t time.Time) string {
	return t.Format(DayKeyLayout)
}

// ParseDay parses a YYYY-MM-DD key as local midnight in loc.
func ParseDay(key string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(DayKeyLayout, key, loc)
}
