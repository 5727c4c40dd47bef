package aggregation

import (
	"fmt"
	"time"
)

// Bucket arithmetic works on epoch minutes, so it never drifts and is not
// affected by local-calendar or DST transitions.

func epochMinutes(ts time.Time) int64 {
	s := ts.Unix()
	m := s / 60
	if s%60 < 0 {
		m--
	}
	return m
}

func mustPositive(periodMinutes int) {
	if periodMinutes <= 0 {
		panic(fmt.Sprintf("aggregation: bucket period must be positive, got %d", periodMinutes))
	}
}

// BucketID returns floor(epoch_minutes(ts) / period).
func BucketID(ts time.Time, periodMinutes int) int64 {
	mustPositive(periodMinutes)
	m := epochMinutes(ts)
	p := int64(periodMinutes)
	id := m / p
	if m%p < 0 {
		id--
	}
	return id
}

// BucketStartOf returns the start instant of bucket id.
func BucketStartOf(id int64, periodMinutes int) time.Time {
	mustPositive(periodMinutes)
	return time.Unix(id*int64(periodMinutes)*60, 0).UTC()
}

// BucketStart returns the start instant of the bucket containing ts.
func BucketStart(ts time.Time, periodMinutes int) time.Time {
	return BucketStartOf(BucketID(ts, periodMinutes), periodMinutes)
}
