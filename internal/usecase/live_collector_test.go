package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	bclock "github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LiqPool/internal/domain/models"
	"LiqPool/internal/services/aggregation"
	"LiqPool/pkg/cache"
	"LiqPool/pkg/metrics"
)

// sliceStream plays its bars once, then reports a read error and refuses to
// reconnect.
type sliceStream struct {
	bars []models.Bar

	mu         sync.Mutex
	connected  bool
	reconnects int
	closed     bool
}

func (s *sliceStream) Connect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	return nil
}

func (s *sliceStream) Read(ctx context.Context) (<-chan models.Bar, <-chan error) {
	bars := make(chan models.Bar)
	errs := make(chan error, 1)
	go func() {
		defer close(bars)
		for _, b := range s.bars {
			select {
			case bars <- b:
			case <-ctx.Done():
				return
			}
		}
		errs <- errors.New("eof")
	}()
	return bars, errs
}

func (s *sliceStream) Reconnect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnects++
	s.connected = false
	return errors.New("no more data")
}

func (s *sliceStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *sliceStream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// downCache fails every write, like an unreachable Redis.
type downCache struct{ cache.Service }

func (downCache) MSet(context.Context, map[string]interface{}, time.Duration) error {
	return errors.New("connection refused")
}

type errorCounter struct {
	metrics.Nop
	mu     sync.Mutex
	counts map[string]int
}

func (e *errorCounter) RecordError(kind string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.counts == nil {
		e.counts = map[string]int{}
	}
	e.counts[kind]++
}

func (e *errorCounter) count(kind string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.counts[kind]
}

func TestLiveCollectorStreamToSinks(t *testing.T) {
	ctx := context.Background()
	tp := newTestPipeline(t, aggregation.PolicyDrop)
	pub := &fakePublisher{}
	proc := NewEventProcessor(pub, nil, metrics.Nop{}, nil, SinkKafka, 0, time.Millisecond)
	mc := cache.NewMemoryCache(cache.WithMemoryCleanup(0))
	defer mc.Close()

	stream := &sliceStream{bars: gapBars()}
	c := NewLiveCollector(tp.Pipeline, proc, metrics.Nop{}, nil,
		WithStream(stream),
		WithSnapshots(NewSnapshotWriter(mc, time.Minute, nil)),
		WithTickInterval(0),
	)
	require.NoError(t, c.Start(ctx))

	require.Eventually(t, func() bool {
		return len(pub.poolKinds()) == 2
	}, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, c.Stop(ctx))

	assert.Equal(t, []models.PoolEventKind{models.PoolCreated, models.PoolTouch}, pub.poolKinds())
	assert.Equal(t, 1, stream.reconnects)
	assert.True(t, stream.closed)
	assert.False(t, c.IsConnected())

	q := NewQueryUseCase(mc, "BTCUSDT")
	pools, total, err := q.Pools(ctx, 0, "live", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, models.PoolTouched, pools[0].State)
}

func TestLiveCollectorWithoutSinks(t *testing.T) {
	ctx := context.Background()
	tp := newTestPipeline(t, aggregation.PolicyDrop)
	c := NewLiveCollector(tp.Pipeline, nil, metrics.Nop{}, nil, WithTickInterval(0))
	assert.True(t, c.IsConnected())

	require.NoError(t, c.Start(ctx))
	for _, b := range gapBars() {
		require.NoError(t, c.Gate().Submit(ctx, b))
	}
	require.NoError(t, c.Stop(ctx))

	assert.Equal(t, int64(1), tp.Snapshot().Metrics.Created)
}

func TestLiveCollectorCountsSnapshotFailures(t *testing.T) {
	ctx := context.Background()
	tp := newTestPipeline(t, aggregation.PolicyDrop)
	m := &errorCounter{}
	c := NewLiveCollector(tp.Pipeline, nil, m, nil,
		WithSnapshots(NewSnapshotWriter(downCache{}, time.Minute, nil)),
		WithTickInterval(0),
	)
	require.NoError(t, c.Start(ctx))
	for _, b := range gapBars() {
		require.NoError(t, c.Gate().Submit(ctx, b))
	}
	require.NoError(t, c.Stop(ctx))

	// created, then touched
	assert.Equal(t, 2, m.count("snapshot"))
	assert.Equal(t, int64(1), tp.Snapshot().Metrics.Created, "pipeline state survives a failed publish")
}

func TestLiveCollectorTickerExpiresPools(t *testing.T) {
	ctx := context.Background()
	tp := newTestPipeline(t, aggregation.PolicyDrop)
	pub := &fakePublisher{}
	proc := NewEventProcessor(pub, nil, metrics.Nop{}, nil, SinkKafka, 0, time.Millisecond)
	ticks := bclock.NewMock()
	c := NewLiveCollector(tp.Pipeline, proc, metrics.Nop{}, nil,
		WithTickInterval(time.Second),
		WithTickClock(ticks),
	)
	require.NoError(t, c.Start(ctx))
	for _, b := range gapBars() {
		require.NoError(t, c.Gate().Submit(ctx, b))
	}
	require.Eventually(t, func() bool {
		return len(pub.poolKinds()) == 2
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, tp.clk.Set(t0.Add(13*time.Minute)))
	require.Eventually(t, func() bool {
		ticks.Add(time.Second)
		return len(pub.poolKinds()) == 3
	}, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, c.Stop(ctx))

	assert.Equal(t, models.PoolExpire, pub.poolKinds()[2])
}
