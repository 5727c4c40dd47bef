package models

import (
	"fmt"
	"time"
)

// Side is the directional bias of a pattern, pool or zone.
type Side string

const (
	SideBullish Side = "bullish"
	SideBearish Side = "bearish"
	SideHigh    Side = "high"
	SideLow     Side = "low"
)

// Bias folds swing sides onto bullish/bearish: swing lows act as support and
// swing highs as resistance.
func (s Side) Bias() Side {
	switch s {
	case SideLow:
		return SideBullish
	case SideHigh:
		return SideBearish
	default:
		return s
	}
}

func (s Side) valid() bool {
	switch s {
	case SideBullish, SideBearish, SideHigh, SideLow:
		return true
	}
	return false
}

// PatternKind tags the PatternEvent union.
type PatternKind string

const (
	PatternGap   PatternKind = "gap"
	PatternSwing PatternKind = "swing"
)

// Swing strength tiers.
const (
	TierRegular     = "regular"
	TierSignificant = "significant"
	TierMajor       = "major"
)

// PatternEvent is emitted by a detector for one closed bar. Gap-only and
// swing-only fields are zero for the other kind.
type PatternEvent struct {
	Kind       PatternKind `json:"kind"`
	Ts         time.Time   `json:"ts"`
	PoolIDSeed string      `json:"pool_id_seed"`
	Side       Side        `json:"side"`
	Top        float64     `json:"top"`
	Bottom     float64     `json:"bottom"`
	Resolution Resolution  `json:"resolution"`
	Strength   float64     `json:"strength"`

	// gap
	GapSigma  float64 `json:"gap_sigma,omitempty"`
	GapPct    float64 `json:"gap_pct,omitempty"`
	RelVolume float64 `json:"rel_volume,omitempty"`
	// swing
	PivotTs   time.Time `json:"pivot_ts,omitempty"`
	SigmaDist float64   `json:"sigma_dist,omitempty"`
	Tier      string    `json:"tier,omitempty"`
}

// NewPatternEvent validates the common fields: top >= bottom, strength in [0,1].
func NewPatternEvent(kind PatternKind, ts time.Time, side Side, top, bottom float64, res Resolution, strength float64) (PatternEvent, error) {
	ev := PatternEvent{
		Kind:       kind,
		Ts:         ts,
		Side:       side,
		Top:        top,
		Bottom:     bottom,
		Resolution: res,
		Strength:   strength,
	}
	if err := ev.Validate(); err != nil {
		return PatternEvent{}, err
	}
	ev.PoolIDSeed = fmt.Sprintf("%s:%s:%s:%d", kind, res, side, ts.Unix())
	return ev, nil
}

// Validate checks the PatternEvent invariants.
func (e PatternEvent) Validate() error {
	if e.Kind != PatternGap && e.Kind != PatternSwing {
		return NewValidationError("kind", fmt.Sprintf("unknown pattern kind %q", e.Kind))
	}
	if !e.Side.valid() {
		return NewValidationError("side", fmt.Sprintf("unknown side %q", e.Side))
	}
	if e.Top < e.Bottom {
		return NewValidationError("top", fmt.Sprintf("top %v below bottom %v", e.Top, e.Bottom))
	}
	if e.Strength < 0 || e.Strength > 1 {
		return NewValidationError("strength", fmt.Sprintf("strength %v outside [0,1]", e.Strength))
	}
	if e.Resolution <= 0 {
		return NewValidationError("resolution", "must be positive")
	}
	return nil
}
