package models

import (
	"fmt"
	"time"
)

// Bar is an immutable OHLCV record. Ts is the bar's open time.
type Bar struct {
	Symbol string    `json:"symbol,omitempty"`
	Ts     time.Time `json:"ts"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// NewBar builds a bar and checks low <= {open, close} <= high.
func NewBar(ts time.Time, open, high, low, close, volume float64) (Bar, error) {
	b := Bar{Ts: ts, Open: open, High: high, Low: low, Close: close, Volume: volume}
	if err := b.Validate(); err != nil {
		return Bar{}, err
	}
	return b, nil
}

// Validate checks the OHLC invariant and basic sanity.
func (b Bar) Validate() error {
	if b.Ts.IsZero() {
		return NewValidationError("ts", "timestamp is zero")
	}
	if b.Volume < 0 {
		return NewValidationError("volume", fmt.Sprintf("negative volume %v", b.Volume))
	}
	if b.Low > b.High {
		return NewValidationError("low", fmt.Sprintf("low %v above high %v", b.Low, b.High))
	}
	if b.Open < b.Low || b.Open > b.High {
		return NewValidationError("open", fmt.Sprintf("open %v outside [%v, %v]", b.Open, b.Low, b.High))
	}
	if b.Close < b.Low || b.Close > b.High {
		return NewValidationError("close", fmt.Sprintf("close %v outside [%v, %v]", b.Close, b.Low, b.High))
	}
	return nil
}

// Range returns high - low.
func (b Bar) Range() float64 { return b.High - b.Low }
