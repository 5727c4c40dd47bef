package models

import "time"

// PoolEventKind names a pool lifecycle transition.
type PoolEventKind string

const (
	PoolCreated PoolEventKind = "created"
	PoolTouch   PoolEventKind = "touched"
	PoolExpire  PoolEventKind = "expired"
	PoolRemoved PoolEventKind = "removed"
	PoolPurged  PoolEventKind = "purged"
)

// PoolEvent is emitted by the registry side of the pipeline and consumed by
// the overlap engine and the event sinks.
type PoolEvent struct {
	Kind       PoolEventKind `json:"kind"`
	At         time.Time     `json:"at"`
	PoolID     string        `json:"pool_id"`
	Resolution Resolution    `json:"resolution"`
	Side       Side          `json:"side"`
	Top        float64       `json:"top"`
	Bottom     float64       `json:"bottom"`
	Strength   float64       `json:"strength"`
}

// PoolEventFrom snapshots a pool into an event.
func PoolEventFrom(kind PoolEventKind, p Pool, at time.Time) PoolEvent {
	return PoolEvent{
		Kind:       kind,
		At:         at,
		PoolID:     p.ID,
		Resolution: p.Resolution,
		Side:       p.Side,
		Top:        p.Top,
		Bottom:     p.Bottom,
		Strength:   p.Strength,
	}
}

// ZoneEventKind names a zone lifecycle transition.
type ZoneEventKind string

const (
	ZoneCreated ZoneEventKind = "created"
	ZoneUpdated ZoneEventKind = "updated"
	ZoneExpired ZoneEventKind = "expired"
)

// ZoneEvent carries a copy of the zone at the time of the transition.
type ZoneEvent struct {
	Kind ZoneEventKind `json:"kind"`
	At   time.Time     `json:"at"`
	Zone Zone          `json:"zone"`
}
