package detector

import (
	"fmt"
	"time"

	"LiqPool/internal/domain/models"
	"LiqPool/internal/services/features"
)

const (
	MinLookback = 2
	MaxLookback = 10
)

// SwingConfig configures the swing-point detector.
type SwingConfig struct {
	Lookback int     `yaml:"lookback" default:"3" validate:"gte=2,lte=10"`
	MinSigma float64 `yaml:"min_sigma" default:"0.25" validate:"gte=0"`
	// Strength assigned per tier.
	RegularStrength     float64 `yaml:"regular_strength" default:"0.4" validate:"gte=0,lte=1"`
	SignificantStrength float64 `yaml:"significant_strength" default:"0.7" validate:"gte=0,lte=1"`
	MajorStrength       float64 `yaml:"major_strength" default:"1" validate:"gte=0,lte=1"`
}

func DefaultSwingConfig() SwingConfig {
	return SwingConfig{Lookback: 3, MinSigma: 0.25, RegularStrength: 0.4, SignificantStrength: 0.7, MajorStrength: 1}
}

// SwingDetector confirms a local extreme once N bars on each side of it have
// closed.
type SwingDetector struct {
	res models.Resolution
	cfg SwingConfig
	win window
}

// NewSwingDetector panics when the lookback is outside [2, 10].
func NewSwingDetector(res models.Resolution, cfg SwingConfig) *SwingDetector {
	if cfg.Lookback < MinLookback || cfg.Lookback > MaxLookback {
		panic(fmt.Sprintf("detector: swing lookback %d outside [%d, %d]", cfg.Lookback, MinLookback, MaxLookback))
	}
	return &SwingDetector{res: res, cfg: cfg, win: newWindow(2*cfg.Lookback + 1)}
}

func (d *SwingDetector) Kind() models.PatternKind { return models.PatternSwing }

func (d *SwingDetector) Reset() { d.win.reset() }

// Update pushes bar and checks whether the center of the window is a swing
// high and/or a swing low.
func (d *SwingDetector) Update(bar models.Bar, ind features.Values) []models.PatternEvent {
	d.win.push(bar)
	if !d.win.full() || ind.Volatility <= 0 {
		return nil
	}
	n := d.cfg.Lookback
	center := d.win.bars[n]
	confirmedAt := closeTime(bar, d.res)

	maxHigh, minLow := d.win.bars[0].High, d.win.bars[0].Low
	for i, b := range d.win.bars {
		if i == n {
			continue
		}
		maxHigh = max(maxHigh, b.High)
		minLow = min(minLow, b.Low)
	}

	var out []models.PatternEvent
	if center.High > maxHigh {
		dist := (center.High - maxHigh) / ind.Volatility
		if ev, ok := d.event(models.SideHigh, center.High, max(center.Open, center.Close), dist, center, confirmedAt); ok {
			out = append(out, ev)
		}
	}
	if center.Low < minLow {
		dist := (minLow - center.Low) / ind.Volatility
		if ev, ok := d.event(models.SideLow, min(center.Open, center.Close), center.Low, dist, center, confirmedAt); ok {
			out = append(out, ev)
		}
	}
	return out
}

func (d *SwingDetector) event(side models.Side, top, bottom, dist float64, center models.Bar, at time.Time) (models.PatternEvent, bool) {
	if dist < d.cfg.MinSigma {
		return models.PatternEvent{}, false
	}
	tier, strength := d.tier(dist)
	ev, err := models.NewPatternEvent(models.PatternSwing, at, side, top, bottom, d.res, strength)
	if err != nil {
		return models.PatternEvent{}, false
	}
	ev.PivotTs = center.Ts
	ev.SigmaDist = dist
	ev.Tier = tier
	return ev, true
}

// tier classifies a normalized distance: below 0.5 regular, below 1.0
// significant, otherwise major.
func (d *SwingDetector) tier(dist float64) (string, float64) {
	switch {
	case dist >= 1:
		return models.TierMajor, d.cfg.MajorStrength
	case dist >= 0.5:
		return models.TierSignificant, d.cfg.SignificantStrength
	default:
		return models.TierRegular, d.cfg.RegularStrength
	}
}

var _ Detector = (*SwingDetector)(nil)
