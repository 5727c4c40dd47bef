package util

import (
	"strconv"
	"strings"
	"time"
)

// ParseTime accepts RFC3339 (with or without fractional seconds), a bare
// 2006-01-02 date, unix seconds or unix milliseconds. Results are UTC.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
		// 1e12 ms is 2001-09-09; anything larger is milliseconds
		if n >= 1e12 {
			return time.UnixMilli(n).UTC(), true
		}
		return time.Unix(n, 0).UTC(), true
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

// AlignRange floors from and to onto period boundaries (UTC epoch aligned).
func AlignRange(from, to time.Time, period time.Duration) (time.Time, time.Time) {
	if period <= 0 {
		return from, to
	}
	return from.UTC().Truncate(period), to.UTC().Truncate(period)
}
