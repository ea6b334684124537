package util

import (
	"strconv"
	"time"
)

// ParseTime tries RFC3339, RFC3339Nano, and unix seconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0).UTC(), true
	}
	return time.Time{}, false
}

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

// RoundUpTo rounds t up to the next multiple of step and adds extra.
// A t already on the boundary still moves forward one step.
func RoundUpTo(t time.Time, step, extra time.Duration) time.Time {
	return t.Truncate(step).Add(step).Add(extra)
}

// DaysToDuration converts fractional days.
func DaysToDuration(days float64) time.Duration {
	return time.Duration(days * float64(24*time.Hour))
}
