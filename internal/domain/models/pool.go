package models

import (
	"fmt"
	"time"
)

// PoolState is the lifecycle state of a pool.
type PoolState string

const (
	PoolActive  PoolState = "active"
	PoolTouched PoolState = "touched"
	PoolExpired PoolState = "expired"
	PoolGrace   PoolState = "grace"
)

// Live reports whether the pool still counts toward active queries.
func (s PoolState) Live() bool { return s == PoolActive || s == PoolTouched }

// Pool is an immutable price zone with a bounded lifetime. State changes go
// through the With* transitions, which return a new value.
type Pool struct {
	ID            string      `json:"pool_id"`
	Resolution    Resolution  `json:"resolution"`
	Side          Side        `json:"side"`
	Kind          PatternKind `json:"kind,omitempty"`
	Tier          string      `json:"tier,omitempty"`
	Top           float64     `json:"top"`
	Bottom        float64     `json:"bottom"`
	Strength      float64     `json:"strength"`
	State         PoolState   `json:"state"`
	CreatedAt     time.Time   `json:"created_at"`
	LastTouchedAt *time.Time  `json:"last_touched_at,omitempty"`
	ExpiresAt     time.Time   `json:"expires_at"`
	ExpiredAt     *time.Time  `json:"expired_at,omitempty"`
	HitTolerance  float64     `json:"hit_tolerance"`
}

// PoolSpec holds the inputs for a new pool.
type PoolSpec struct {
	Resolution   Resolution
	Side         Side
	Kind         PatternKind
	Tier         string
	Top          float64
	Bottom       float64
	Strength     float64
	TTL          time.Duration
	HitTolerance float64
	CreatedAt    time.Time
}

// Validate fails fast on malformed specs; values are never clamped.
func (s PoolSpec) Validate() error {
	if s.Resolution <= 0 {
		return NewValidationError("resolution", "must be positive")
	}
	if s.Top < s.Bottom {
		return NewValidationError("top", fmt.Sprintf("top %v below bottom %v", s.Top, s.Bottom))
	}
	if s.Strength < 0 || s.Strength > 1 {
		return NewValidationError("strength", fmt.Sprintf("strength %v outside [0,1]", s.Strength))
	}
	if s.TTL <= 0 {
		return NewValidationError("ttl", "must be positive")
	}
	if s.HitTolerance < 0 {
		return NewValidationError("hit_tolerance", "must not be negative")
	}
	if s.CreatedAt.IsZero() {
		return NewValidationError("created_at", "is zero")
	}
	return nil
}

// NewPool builds an Active pool from a validated spec.
func NewPool(id string, s PoolSpec) (Pool, error) {
	if err := s.Validate(); err != nil {
		return Pool{}, err
	}
	side := s.Side
	if side == "" {
		side = SideBullish
	}
	return Pool{
		ID:           id,
		Resolution:   s.Resolution,
		Side:         side.Bias(),
		Kind:         s.Kind,
		Tier:         s.Tier,
		Top:          s.Top,
		Bottom:       s.Bottom,
		Strength:     s.Strength,
		State:        PoolActive,
		CreatedAt:    s.CreatedAt,
		ExpiresAt:    s.CreatedAt.Add(s.TTL),
		HitTolerance: s.HitTolerance,
	}, nil
}

// Contains reports whether price falls within [bottom-tol, top+tol].
func (p Pool) Contains(price float64) bool {
	return price >= p.Bottom-p.HitTolerance && price <= p.Top+p.HitTolerance
}

// WithTouched returns a Touched copy.
func (p Pool) WithTouched(at time.Time) Pool {
	out := p
	out.State = PoolTouched
	t := at
	out.LastTouchedAt = &t
	return out
}

// WithExpired returns an Expired copy.
func (p Pool) WithExpired(at time.Time) Pool {
	out := p
	out.State = PoolExpired
	t := at
	out.ExpiredAt = &t
	return out
}

// WithState returns a copy in the given state.
func (p Pool) WithState(s PoolState) Pool {
	out := p
	out.State = s
	return out
}
