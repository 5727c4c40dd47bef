package aggregation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LiqPool/internal/domain/models"
	"LiqPool/pkg/clock"
)

var t0 = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

func minuteBars(start time.Time, n int) []models.Bar {
	out := make([]models.Bar, n)
	for i := 0; i < n; i++ {
		p := 100 + float64(i%17)
		out[i] = models.Bar{
			Ts:     start.Add(time.Duration(i) * time.Minute),
			Open:   p,
			High:   p + 2,
			Low:    p - 1,
			Close:  p + 1,
			Volume: float64(i + 1),
		}
	}
	return out
}

func feed(t *testing.T, a *Aggregator, bars []models.Bar) []models.Bar {
	t.Helper()
	var out []models.Bar
	for _, b := range bars {
		done, ok, err := a.Update(b)
		require.NoError(t, err)
		if ok {
			out = append(out, done)
		}
	}
	return out
}

func TestBucketID(t *testing.T) {
	assert.Equal(t, BucketID(t0, 60), BucketID(t0.Add(59*time.Minute+59*time.Second), 60))
	assert.Equal(t, BucketID(t0, 60)+1, BucketID(t0.Add(time.Hour), 60))
	assert.Equal(t, t0, BucketStart(t0.Add(37*time.Minute), 60))
	assert.Equal(t, time.Date(1969, 12, 31, 23, 0, 0, 0, time.UTC), BucketStart(time.Unix(-1, 0), 60))
	assert.Panics(t, func() { BucketID(t0, 0) })
}

func TestBucketIgnoresLocation(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata not available")
	}
	// 2024-03-10 02:00 local is the DST jump; epoch buckets stay contiguous.
	a := time.Date(2024, 3, 10, 1, 30, 0, 0, ny)
	b := a.Add(time.Hour)
	assert.Equal(t, BucketID(a, 60)+1, BucketID(b, 60))
}

func TestBarBufferOverwritesOldest(t *testing.T) {
	b := NewBarBuffer(2)
	bars := minuteBars(t0, 3)
	assert.False(t, b.Push(bars[0]))
	assert.False(t, b.Push(bars[1]))
	assert.True(t, b.Push(bars[2]))
	first, _ := b.First()
	assert.Equal(t, bars[1].Ts, first.Ts)
	assert.Equal(t, 2, b.Len())
}

func TestAggregator121Bars(t *testing.T) {
	a := New(models.Res1h)
	out := feed(t, a, minuteBars(t0, 121))
	require.Len(t, out, 2)
	assert.Equal(t, t0, out[0].Ts)
	assert.Equal(t, t0.Add(time.Hour), out[1].Ts)
}

func TestAggregatorCompletedBarCount(t *testing.T) {
	for _, n := range []int{0, 1, 59, 60, 61, 119, 120, 121, 185, 300} {
		bars := minuteBars(t0, n)
		a := New(models.Res1h)
		out := feed(t, a, bars)
		if last, ok := a.Flush(); ok {
			out = append(out, last)
		}
		require.Len(t, out, n/60, "n=%d", n)
		for i, got := range out {
			window := bars[i*60 : (i+1)*60]
			assert.Equal(t, window[0].Open, got.Open)
			assert.Equal(t, window[59].Close, got.Close)
			hi, lo, vol := window[0].High, window[0].Low, 0.0
			for _, b := range window {
				hi = max(hi, b.High)
				lo = min(lo, b.Low)
				vol += b.Volume
			}
			assert.Equal(t, hi, got.High)
			assert.Equal(t, lo, got.Low)
			assert.InDelta(t, vol, got.Volume, 1e-9)
		}
	}
}

func TestAggregatorDropsOutOfOrder(t *testing.T) {
	a := New(models.Res1h)
	bars := minuteBars(t0, 70)
	feed(t, a, bars)
	before := a.Buffered()

	done, ok, err := a.Update(bars[5])
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, models.Bar{}, done)
	assert.Equal(t, before, a.Buffered())

	_, ok, err = a.Update(bars[69])
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, before, a.Buffered())
	assert.EqualValues(t, 1, a.Stats().OutOfOrder)
	assert.EqualValues(t, 1, a.Stats().Duplicate)
}

func TestAggregatorRaisePolicy(t *testing.T) {
	a := New(models.Res5m, WithPolicy(PolicyRaise))
	bars := minuteBars(t0, 3)
	feed(t, a, bars)

	_, _, err := a.Update(bars[0])
	require.Error(t, err)
	assert.True(t, models.IsOrderingError(err))
	assert.False(t, models.IsValidationError(err))

	var oe *models.OrderingError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, models.OrderOutOfOrder, oe.Kind)
	assert.Equal(t, bars[2].Ts, oe.LastSeen)
}

func TestAggregatorFutureSkew(t *testing.T) {
	sim := clock.NewSim(t0)
	a := New(models.Res5m, WithClock(sim), WithPolicy(PolicyRaise), WithMaxSkew(time.Minute))

	_, _, err := a.Update(minuteBars(t0.Add(2*time.Minute), 1)[0])
	var oe *models.OrderingError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, models.OrderFutureSkew, oe.Kind)
	assert.Equal(t, 0, a.Buffered())

	_, _, err = a.Update(minuteBars(t0.Add(time.Minute), 1)[0])
	require.NoError(t, err)
	assert.Equal(t, 1, a.Buffered())
}

func TestFlushDiscardsPartialPeriod(t *testing.T) {
	a := New(models.Res1h)
	feed(t, a, minuteBars(t0, 59))
	_, ok := a.Flush()
	assert.False(t, ok)
	assert.EqualValues(t, 1, a.Stats().Discarded)

	b := New(models.Res1h)
	feed(t, b, minuteBars(t0, 60))
	bar, ok := b.Flush()
	require.True(t, ok)
	assert.Equal(t, t0, bar.Ts)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("raise")
	require.NoError(t, err)
	assert.Equal(t, PolicyRaise, p)

	_, err = ParsePolicy("recalc")
	assert.True(t, models.IsValidationError(err))
}

func TestMultiFansOut(t *testing.T) {
	m := NewMulti([]models.Resolution{models.Res1h, models.Res15m, models.Res15m})
	assert.Equal(t, []models.Resolution{models.Res15m, models.Res1h}, m.Resolutions())

	counts := map[models.Resolution]int{}
	for _, b := range minuteBars(t0, 121) {
		out, err := m.Update(b)
		require.NoError(t, err)
		for r, bars := range out {
			counts[r] += len(bars)
		}
	}
	assert.Equal(t, 8, counts[models.Res15m])
	assert.Equal(t, 2, counts[models.Res1h])
}
