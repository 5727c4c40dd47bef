package detector

import (
	"math"
	"time"

	"LiqPool/internal/domain/models"
	"LiqPool/internal/services/features"
)

// GapConfig holds the gap strength gate. Gaps pass when either normalized
// size clears its floor and relative volume clears MinRelVolume.
type GapConfig struct {
	MinSigma     float64 `yaml:"min_sigma" default:"0.5" validate:"gte=0"`
	MinPct       float64 `yaml:"min_pct" default:"0.1" validate:"gte=0"`
	MinRelVolume float64 `yaml:"min_rel_volume" default:"0.8" validate:"gte=0"`
	// SigmaRef and PctRef are the sizes that map to full strength.
	SigmaRef float64 `yaml:"sigma_ref" default:"2" validate:"gt=0"`
	PctRef   float64 `yaml:"pct_ref" default:"1" validate:"gt=0"`
}

// DefaultGapConfig mirrors the struct-tag defaults.
func DefaultGapConfig() GapConfig {
	return GapConfig{MinSigma: 0.5, MinPct: 0.1, MinRelVolume: 0.8, SigmaRef: 2, PctRef: 1}
}

// GapDetector finds three-bar price gaps: the wick ranges of the first and
// third bar do not overlap.
type GapDetector struct {
	res models.Resolution
	cfg GapConfig
	win window
}

func NewGapDetector(res models.Resolution, cfg GapConfig) *GapDetector {
	if cfg.SigmaRef <= 0 {
		cfg.SigmaRef = 2
	}
	if cfg.PctRef <= 0 {
		cfg.PctRef = 1
	}
	return &GapDetector{res: res, cfg: cfg, win: newWindow(3)}
}

func (d *GapDetector) Kind() models.PatternKind { return models.PatternGap }

func (d *GapDetector) Reset() { d.win.reset() }

// Update pushes bar as the newest of the triple and evaluates both sides.
func (d *GapDetector) Update(bar models.Bar, ind features.Values) []models.PatternEvent {
	d.win.push(bar)
	if !d.win.full() {
		return nil
	}
	prev, curr, next := d.win.bars[0], d.win.bars[1], d.win.bars[2]

	var out []models.PatternEvent
	if prev.High < next.Low {
		if ev, ok := d.candidate(models.SideBullish, next.Low, prev.High, curr, next, ind); ok {
			out = append(out, ev)
		}
	}
	if prev.Low > next.High {
		if ev, ok := d.candidate(models.SideBearish, prev.Low, next.High, curr, next, ind); ok {
			out = append(out, ev)
		}
	}
	return out
}

func (d *GapDetector) candidate(side models.Side, top, bottom float64, curr, next models.Bar, ind features.Values) (models.PatternEvent, bool) {
	size := top - bottom
	var sigma, pct, relVol float64
	if ind.Volatility > 0 {
		sigma = size / ind.Volatility
	}
	if curr.Close > 0 {
		pct = size / curr.Close * 100
	}
	if ind.VolumeBaseline > 0 {
		relVol = curr.Volume / ind.VolumeBaseline
	} else if d.cfg.MinRelVolume > 0 {
		return models.PatternEvent{}, false
	}

	if sigma < d.cfg.MinSigma && pct < d.cfg.MinPct {
		return models.PatternEvent{}, false
	}
	if relVol < d.cfg.MinRelVolume {
		return models.PatternEvent{}, false
	}

	strength := math.Min(1, 0.5*sigma/d.cfg.SigmaRef+0.5*pct/d.cfg.PctRef)
	ev, err := models.NewPatternEvent(models.PatternGap, closeTime(next, d.res), side, top, bottom, d.res, strength)
	if err != nil {
		return models.PatternEvent{}, false
	}
	ev.GapSigma = sigma
	ev.GapPct = pct
	ev.RelVolume = relVol
	return ev, true
}

// closeTime is when a bar of res opened at b.Ts is complete.
func closeTime(b models.Bar, res models.Resolution) time.Time {
	return b.Ts.Add(res.Duration())
}

var _ Detector = (*GapDetector)(nil)
