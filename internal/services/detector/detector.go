// Package detector holds the incremental pattern detectors that run over
// closed bars of one resolution. Detectors never look ahead and never compute
// their own indicators; the caller supplies them per update.
package detector

import (
	"LiqPool/internal/domain/models"
	"LiqPool/internal/services/features"
)

// Detector is a per-resolution incremental state machine.
type Detector interface {
	Kind() models.PatternKind
	Update(bar models.Bar, ind features.Values) []models.PatternEvent
	Reset()
}

// window is a fixed-size sliding window of the most recent closed bars.
type window struct {
	bars []models.Bar
	size int
}

func newWindow(size int) window {
	return window{bars: make([]models.Bar, 0, size), size: size}
}

func (w *window) push(b models.Bar) {
	if len(w.bars) == w.size {
		copy(w.bars, w.bars[1:])
		w.bars = w.bars[:w.size-1]
	}
	w.bars = append(w.bars, b)
}

func (w *window) full() bool { return len(w.bars) == w.size }
func (w *window) reset()     { w.bars = w.bars[:0] }
