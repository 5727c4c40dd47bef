package usecase

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LiqPool/internal/domain/models"
	mid "LiqPool/internal/middleware"
	"LiqPool/internal/services/aggregation"
	"LiqPool/internal/services/detector"
	"LiqPool/internal/services/overlap"
	"LiqPool/internal/services/pool"
	"LiqPool/pkg/cache"
	"LiqPool/pkg/clock"
	"LiqPool/pkg/metrics"
)

// gapBars opens a bullish gap between bars 0 and 2, confirmed when bar 3
// arrives, and touches it with bar 4.
func gapBars() []models.Bar {
	return []models.Bar{
		mbar(0, 100, 101, 99, 100),
		mbar(1, 100, 104, 100, 103),
		mbar(2, 104, 106, 103, 105),
		mbar(3, 105, 106, 103.5, 105),
		mbar(4, 103, 104, 102, 103),
	}
}

type memStore struct{ bars []models.Bar }

func (s memStore) GetBars(_ context.Context, symbol string, from, to time.Time) ([]models.Bar, error) {
	var out []models.Bar
	for _, b := range s.bars {
		if b.Symbol == symbol && !b.Ts.Before(from) && b.Ts.Before(to) {
			out = append(out, b)
		}
	}
	return out, nil
}

type fakePublisher struct {
	mu    sync.Mutex
	fails int
	pools []models.PoolEvent
	zones []models.ZoneEvent
}

func (f *fakePublisher) PublishPoolEvents(_ context.Context, _ string, evs []models.PoolEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return errors.New("broker unavailable")
	}
	f.pools = append(f.pools, evs...)
	return nil
}

func (f *fakePublisher) PublishZoneEvents(_ context.Context, _ string, evs []models.ZoneEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.zones = append(f.zones, evs...)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func (f *fakePublisher) poolKinds() []models.PoolEventKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.PoolEventKind
	for _, ev := range f.pools {
		out = append(out, ev.Kind)
	}
	return out
}

func newBacktester(t *testing.T, bars []models.Bar, proc *EventProcessor) *Backtester {
	t.Helper()
	res := []models.Resolution{models.Res1m}
	clk := clock.NewSim(t0)
	det, err := detector.NewManager(res, detector.WithGap(detector.GapConfig{SigmaRef: 2, PctRef: 1}), detector.WithoutSwing())
	require.NoError(t, err)
	pm := pool.NewManager(pool.NewRegistry(t0), pool.WithDefaultPolicy(pool.ResolutionPolicy{TTL: 10 * time.Minute}))
	agg := aggregation.NewMulti(res, aggregation.WithBasePeriod(time.Minute), aggregation.WithClock(clk))
	pipe := NewPipeline("BTCUSDT", time.Minute, clk, agg, det, pm, overlap.NewEngine(overlap.WithMinMembers(1)), metrics.Nop{}, nil)
	return NewBacktester(memStore{bars: bars}, pipe, clk, time.Minute, proc, nil)
}

func TestBacktestIsDeterministic(t *testing.T) {
	run := func() *BacktestSummary {
		sum, err := newBacktester(t, gapBars(), nil).Run(context.Background(), t0, t0.Add(time.Hour))
		require.NoError(t, err)
		return sum
	}
	a, b := run(), run()

	assert.NotEqual(t, a.RunID, b.RunID)
	assert.Equal(t, 5, a.Bars)
	assert.Equal(t, 1, a.Patterns[models.PatternGap])
	assert.Equal(t, 1, a.PoolEvents[models.PoolCreated])
	assert.Equal(t, 1, a.PoolEvents[models.PoolTouch])
	// the open period is complete at flush since one base bar fills it
	assert.Equal(t, 5, a.Completed[models.Res1m])

	a.RunID, b.RunID = "", ""
	a.Elapsed, b.Elapsed = 0, 0
	assert.Equal(t, a, b)
}

func TestBacktestSkipsInvalidBars(t *testing.T) {
	bars := gapBars()
	bad := mbar(5, 1, 0, 2, 1)
	bars = append(bars, bad)

	sum, err := newBacktester(t, bars, nil).Run(context.Background(), t0, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 6, sum.Bars)
	assert.Equal(t, 1, sum.Dropped[DropInvalid])
}

func TestBacktestRender(t *testing.T) {
	sum, err := newBacktester(t, gapBars(), nil).Run(context.Background(), t0, t0.Add(time.Hour))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, sum.Render(&buf))
	out := buf.String()
	assert.Contains(t, out, sum.RunID)
	assert.Contains(t, out, "pools created")
	assert.Contains(t, out, "BTCUSDT")
	require.Len(t, sum.Zones, 1)
	assert.Contains(t, out, sum.Zones[0].ID)
}

func TestEventProcessorRetries(t *testing.T) {
	pub := &fakePublisher{fails: 2}
	proc := NewEventProcessor(pub, nil, metrics.Nop{}, nil, SinkKafka, 3, time.Millisecond)

	r := Result{Pools: []models.PoolEvent{{Kind: models.PoolCreated, PoolID: "a"}}}
	require.NoError(t, proc.Process(context.Background(), "BTCUSDT", r))
	assert.Equal(t, []models.PoolEventKind{models.PoolCreated}, pub.poolKinds())
}

func TestEventProcessorGivesUp(t *testing.T) {
	pub := &fakePublisher{fails: 10}
	proc := NewEventProcessor(pub, nil, metrics.Nop{}, nil, SinkBoth, 2, time.Millisecond)

	r := Result{Pools: []models.PoolEvent{{Kind: models.PoolCreated, PoolID: "a"}}}
	err := proc.Process(context.Background(), "BTCUSDT", r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kafka sink")
	assert.Equal(t, 7, pub.fails)
}

func TestEventProcessorSkipsUnchanged(t *testing.T) {
	pub := &fakePublisher{fails: 10}
	proc := NewEventProcessor(pub, nil, metrics.Nop{}, nil, SinkKafka, 0, time.Millisecond)
	assert.NoError(t, proc.Process(context.Background(), "BTCUSDT", Result{Dropped: "duplicate"}))
	assert.Equal(t, 10, pub.fails)
}

func TestBacktestPublishesInOrder(t *testing.T) {
	pub := &fakePublisher{}
	proc := NewEventProcessor(pub, nil, metrics.Nop{}, nil, SinkKafka, 0, time.Millisecond)

	_, err := newBacktester(t, gapBars(), proc).Run(context.Background(), t0, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []models.PoolEventKind{models.PoolCreated, models.PoolTouch}, pub.poolKinds())
	require.Len(t, pub.zones, 1)
	assert.Equal(t, models.ZoneCreated, pub.zones[0].Kind)
}

func TestSnapshotQueries(t *testing.T) {
	ctx := context.Background()
	mc := cache.NewMemoryCache()
	defer mc.Close()

	q := NewQueryUseCase(mc, "BTCUSDT")
	_, _, err := q.Pools(ctx, 0, "live", 10)
	assert.ErrorIs(t, err, ErrNoSnapshot)

	tp := newTestPipeline(t, aggregation.PolicyDrop)
	for _, b := range gapBars() {
		tp.feed(t, b)
	}
	w := NewSnapshotWriter(mc, time.Minute, nil)
	require.NoError(t, w.Write(ctx, tp.Snapshot()))

	pools, total, err := q.Pools(ctx, 0, "live", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, models.PoolTouched, pools[0].State)

	_, total, err = q.Pools(ctx, models.Res1h, "live", 10)
	require.NoError(t, err)
	assert.Zero(t, total)

	_, total, err = q.Pools(ctx, 0, "expired", 10)
	require.NoError(t, err)
	assert.Zero(t, total)

	p, err := q.Pool(ctx, pools[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 103.0, p.Top)
	_, err = q.Pool(ctx, "nope")
	assert.ErrorIs(t, err, ErrPoolNotFound)

	zones, total, err := q.Zones(ctx, "bullish", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, []string{pools[0].ID}, zones[0].MemberPoolIDs)
	_, total, err = q.Zones(ctx, "bearish", 10)
	require.NoError(t, err)
	assert.Zero(t, total)

	m, at, err := q.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.Created)
	assert.Equal(t, 1, m.ByResolution[models.Res1m].Active)
	assert.Equal(t, t0.Add(5*time.Minute), at)
}

func newGate(fn mid.BarHandlerFunc) *mid.BarGate {
	return mid.NewBarGate(fn, metrics.Nop{})
}

func TestKafkaBarsHandler(t *testing.T) {
	var (
		mu  sync.Mutex
		got []models.Bar
	)
	gate := newGate(func(_ context.Context, b models.Bar) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, b)
		return nil
	})
	ctx := context.Background()
	gate.Start(ctx)
	h := NewKafkaBarsHandler("liqpool.bars", gate, metrics.Nop{})
	assert.Equal(t, "liqpool.bars", h.Topic())

	require.NoError(t, h.Handle(ctx, []byte(`{"symbol":"btcusdt","t":1714953600000,"o":1,"h":2,"l":0.5,"c":1.5,"v":3}`)))
	require.NoError(t, h.Handle(ctx, []byte(`{"symbol":"BTCUSDT","t":1714953660,"o":1,"h":2,"l":0.5,"c":1.5,"v":3}`)))
	assert.Error(t, h.Handle(ctx, []byte(`{`)))
	assert.Error(t, h.Handle(ctx, []byte(`{"symbol":"BTCUSDT","t":1714953720,"o":5,"h":2,"l":0.5,"c":1.5}`)))
	require.NoError(t, gate.Stop(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.Equal(t, "BTCUSDT", got[0].Symbol)
	assert.Equal(t, time.UnixMilli(1714953600000).UTC(), got[0].Ts)
	assert.Equal(t, got[0].Ts.Add(time.Minute), got[1].Ts)
}
