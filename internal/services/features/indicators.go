// Package features computes the per-resolution indicator inputs the pattern
// detectors consume: a volatility estimate in price units and a rolling
// volume baseline.
package features

import (
	"fmt"
	"math"

	"LiqPool/internal/domain/models"
)

// Indicator is updated once per closed bar.
type Indicator interface {
	Update(bar models.Bar) float64
	Value() float64
	Ready() bool
	Reset()
}

// ATR is the simple moving average of true range over a window.
type ATR struct {
	tr        *rolling
	prevClose float64
	hasPrev   bool
}

func NewATR(window int) *ATR { return &ATR{tr: newRolling(window)} }

func (a *ATR) Update(bar models.Bar) float64 {
	tr := bar.High - bar.Low
	if a.hasPrev {
		tr = math.Max(tr, math.Abs(bar.High-a.prevClose))
		tr = math.Max(tr, math.Abs(bar.Low-a.prevClose))
	}
	a.prevClose = bar.Close
	a.hasPrev = true
	a.tr.push(tr)
	return a.tr.mean()
}

func (a *ATR) Value() float64 { return a.tr.mean() }
func (a *ATR) Ready() bool    { return a.tr.full() }

func (a *ATR) Reset() {
	a.tr.reset()
	a.hasPrev = false
	a.prevClose = 0
}

// RealizedVol is the rolling standard deviation of log returns scaled by the
// latest close, so it is expressed in price units like ATR.
type RealizedVol struct {
	returns   *rolling
	lastClose float64
}

func NewRealizedVol(window int) *RealizedVol { return &RealizedVol{returns: newRolling(window)} }

func (v *RealizedVol) Update(bar models.Bar) float64 {
	if v.lastClose > 0 {
		v.returns.push(LogReturn(v.lastClose, bar.Close))
	}
	v.lastClose = bar.Close
	return v.Value()
}

func (v *RealizedVol) Value() float64 { return v.returns.stddev() * v.lastClose }
func (v *RealizedVol) Ready() bool    { return v.returns.full() }

func (v *RealizedVol) Reset() {
	v.returns.reset()
	v.lastClose = 0
}

// VolumeSMA is the simple moving average of bar volume.
type VolumeSMA struct {
	vol *rolling
}

func NewVolumeSMA(window int) *VolumeSMA { return &VolumeSMA{vol: newRolling(window)} }

func (s *VolumeSMA) Update(bar models.Bar) float64 {
	s.vol.push(bar.Volume)
	return s.vol.mean()
}

func (s *VolumeSMA) Value() float64 { return s.vol.mean() }
func (s *VolumeSMA) Ready() bool    { return s.vol.full() }
func (s *VolumeSMA) Reset()         { s.vol.reset() }

// LogReturn returns ln(cur/prev), or 0 when either price is non-positive.
func LogReturn(prev, cur float64) float64 {
	if prev <= 0 || cur <= 0 {
		return 0
	}
	return math.Log(cur / prev)
}

// Volatility estimator names accepted by NewVolatility.
const (
	EstimatorATR      = "atr"
	EstimatorRealized = "realized"
)

// NewVolatility builds a volatility estimator by name.
func NewVolatility(name string, window int) (Indicator, error) {
	switch name {
	case EstimatorATR, "":
		return NewATR(window), nil
	case EstimatorRealized:
		return NewRealizedVol(window), nil
	}
	return nil, fmt.Errorf("unknown volatility estimator %q", name)
}

// Values is the indicator snapshot handed to detectors for one bar.
type Values struct {
	Volatility     float64
	VolumeBaseline float64
}

// Set pairs the two indicators of one resolution.
type Set struct {
	Volatility Indicator
	Volume     Indicator
}

// Update advances both indicators with bar and returns their values.
func (s *Set) Update(bar models.Bar) Values {
	return Values{
		Volatility:     s.Volatility.Update(bar),
		VolumeBaseline: s.Volume.Update(bar),
	}
}

func (s *Set) Reset() {
	s.Volatility.Reset()
	s.Volume.Reset()
}

var (
	_ Indicator = (*ATR)(nil)
	_ Indicator = (*RealizedVol)(nil)
	_ Indicator = (*VolumeSMA)(nil)
)
