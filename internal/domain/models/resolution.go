package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Resolution is an aggregation period expressed in whole minutes.
type Resolution int

const (
	Res1m  Resolution = 1
	Res5m  Resolution = 5
	Res15m Resolution = 15
	Res1h  Resolution = 60
	Res4h  Resolution = 240
	Res1d  Resolution = 1440
)

// Minutes returns the period length in minutes.
func (r Resolution) Minutes() int { return int(r) }

// Duration returns the period length.
func (r Resolution) Duration() time.Duration { return time.Duration(r) * time.Minute }

// String renders the resolution as 15m, 1h, 1d and so on.
func (r Resolution) String() string {
	switch {
	case r <= 0:
		return "invalid"
	case r%1440 == 0:
		return strconv.Itoa(int(r)/1440) + "d"
	case r%60 == 0:
		return strconv.Itoa(int(r)/60) + "h"
	default:
		return strconv.Itoa(int(r)) + "m"
	}
}

// MarshalText implements encoding.TextMarshaler so resolutions key JSON maps readably.
func (r Resolution) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Resolution) UnmarshalText(b []byte) error {
	v, err := ParseResolution(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// ParseResolution accepts 1m, 15m, 1h, 4h, 1d or a bare number of minutes.
func ParseResolution(s string) (Resolution, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("empty resolution")
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("resolution must be positive: %q", s)
		}
		return Resolution(n), nil
	}
	if strings.HasSuffix(s, "d") {
		n, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid resolution %q", s)
		}
		return Resolution(n * 1440), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid resolution %q: %w", s, err)
	}
	if d < time.Minute || d%time.Minute != 0 {
		return 0, fmt.Errorf("resolution %q must be a whole number of minutes", s)
	}
	return Resolution(d / time.Minute), nil
}
