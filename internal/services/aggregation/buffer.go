package aggregation

import (
	"time"

	"LiqPool/internal/domain/models"
)

// BarBuffer is a fixed-capacity FIFO of bars. When full, Push overwrites the
// oldest entry.
type BarBuffer struct {
	items []models.Bar
	head  int
	size  int
}

// NewBarBuffer allocates a buffer; capacity below 1 is raised to 1.
func NewBarBuffer(capacity int) *BarBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &BarBuffer{items: make([]models.Bar, capacity)}
}

// Cap returns the fixed capacity.
func (b *BarBuffer) Cap() int { return len(b.items) }

// Len returns the number of buffered bars.
func (b *BarBuffer) Len() int { return b.size }

// Push appends a bar and reports whether the oldest bar was overwritten.
func (b *BarBuffer) Push(bar models.Bar) bool {
	idx := (b.head + b.size) % len(b.items)
	if b.size == len(b.items) {
		b.items[b.head] = bar
		b.head = (b.head + 1) % len(b.items)
		return true
	}
	b.items[idx] = bar
	b.size++
	return false
}

// At returns the i-th oldest bar.
func (b *BarBuffer) At(i int) models.Bar {
	return b.items[(b.head+i)%len(b.items)]
}

// First returns the oldest bar.
func (b *BarBuffer) First() (models.Bar, bool) {
	if b.size == 0 {
		return models.Bar{}, false
	}
	return b.At(0), true
}

// Last returns the newest bar.
func (b *BarBuffer) Last() (models.Bar, bool) {
	if b.size == 0 {
		return models.Bar{}, false
	}
	return b.At(b.size - 1), true
}

// Reset empties the buffer without releasing its storage.
func (b *BarBuffer) Reset() {
	b.head = 0
	b.size = 0
}

// Rollup folds the buffered bars into one OHLCV bar stamped ts: open of the
// first, close of the last, extremes of high/low and summed volume.
func (b *BarBuffer) Rollup(ts time.Time) (models.Bar, bool) {
	if b.size == 0 {
		return models.Bar{}, false
	}
	first := b.At(0)
	out := models.Bar{
		Symbol: first.Symbol,
		Ts:     ts,
		Open:   first.Open,
		High:   first.High,
		Low:    first.Low,
	}
	for i := 0; i < b.size; i++ {
		bar := b.At(i)
		if bar.High > out.High {
			out.High = bar.High
		}
		if bar.Low < out.Low {
			out.Low = bar.Low
		}
		out.Volume += bar.Volume
		out.Close = bar.Close
	}
	return out, true
}
