package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"LiqPool/internal/domain/models"
	drepo "LiqPool/internal/domain/repository"
	mid "LiqPool/internal/middleware"
	"LiqPool/pkg/clock"
	"LiqPool/pkg/logger"
)

var errStreamClosed = errors.New("stream closed")

// LiveCollector runs the pipeline on live bars. Bars arrive either from a
// BarStream it reads itself or from outside (the Kafka consumer) through the
// gate; in both cases the gate's single worker calls HandleBar.
type LiveCollector struct {
	stream  drepo.BarStream
	gate    *mid.BarGate
	pipe    *Pipeline
	proc    *EventProcessor
	snap    *SnapshotWriter
	metrics drepo.Metrics
	log     *logger.Logger
	tick    time.Duration
	ticks   clock.Ticking

	// serializes pipeline steps with their sink writes so events leave in
	// the order the pipeline produced them
	stepMu sync.Mutex
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// CollectorOption configures LiveCollector.
type CollectorOption func(*LiveCollector)

// WithStream makes the collector read bars from s.
func WithStream(s drepo.BarStream) CollectorOption {
	return func(c *LiveCollector) { c.stream = s }
}

// WithSnapshots publishes a snapshot after every step that changed state.
func WithSnapshots(w *SnapshotWriter) CollectorOption {
	return func(c *LiveCollector) { c.snap = w }
}

// WithTickInterval sets how often expiries are applied without bars.
func WithTickInterval(d time.Duration) CollectorOption {
	return func(c *LiveCollector) { c.tick = d }
}

// WithTickClock replaces the wall clock that drives the expiry ticker.
func WithTickClock(tc clock.Ticking) CollectorOption {
	return func(c *LiveCollector) { c.ticks = tc }
}

// WithGateOptions configures the gate the collector builds.
func WithGateOptions(opts ...mid.GateOption) CollectorOption {
	return func(c *LiveCollector) {
		c.gate = mid.NewBarGate(mid.BarHandlerFunc(c.HandleBar), c.metrics, opts...)
	}
}

func NewLiveCollector(pipe *Pipeline, proc *EventProcessor, metrics drepo.Metrics, log *logger.Logger, opts ...CollectorOption) *LiveCollector {
	if log == nil {
		log = logger.Nop()
	}
	c := &LiveCollector{
		pipe:    pipe,
		proc:    proc,
		metrics: metrics,
		log:     log.Component("live_collector"),
		tick:    time.Second,
		ticks:   clock.NewReal(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.gate == nil {
		c.gate = mid.NewBarGate(mid.BarHandlerFunc(c.HandleBar), metrics, mid.WithLogger(log))
	}
	return c
}

// Gate returns the gate bars are submitted to.
func (c *LiveCollector) Gate() *mid.BarGate { return c.gate }

// IsConnected reports the stream state; without a stream it is always true.
func (c *LiveCollector) IsConnected() bool {
	if c.stream == nil {
		return true
	}
	return c.stream.IsConnected()
}

// Start launches the gate worker, the expiry ticker and, when configured,
// the stream reader. The gate keeps ctx; the reader and ticker stop on Stop.
func (c *LiveCollector) Start(ctx context.Context) error {
	c.gate.Start(ctx)
	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	if c.stream != nil {
		if err := c.stream.Connect(loopCtx); err != nil {
			cancel()
			return err
		}
		c.wg.Add(1)
		go c.consume(loopCtx)
	}
	if c.tick > 0 {
		c.wg.Add(1)
		go c.ticker(loopCtx)
	}
	return nil
}

// Stop ends the reader and ticker, closes the stream and drains the gate.
func (c *LiveCollector) Stop(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	if c.stream != nil {
		_ = c.stream.Close()
	}
	return c.gate.Stop(ctx)
}

// HandleBar runs one bar through the pipeline and forwards what changed.
func (c *LiveCollector) HandleBar(ctx context.Context, bar models.Bar) error {
	return c.step(ctx, func() (Result, error) { return c.pipe.OnBar(bar) })
}

func (c *LiveCollector) step(ctx context.Context, run func() (Result, error)) error {
	c.stepMu.Lock()
	defer c.stepMu.Unlock()

	r, err := run()
	if err != nil {
		return err
	}
	if !r.Changed() {
		return nil
	}
	if c.proc != nil {
		if err := c.proc.Process(ctx, c.pipe.Symbol(), r); err != nil {
			c.log.Error("sink write failed", logger.Int("pool_events", len(r.Pools)), logger.Int("zone_events", len(r.Zones)), logger.Error(err))
		}
	}
	if c.snap != nil {
		// the writer logs the failure; readers keep the previous snapshot
		if err := c.snap.Write(ctx, c.pipe.Snapshot()); err != nil {
			c.metrics.RecordError("snapshot")
		}
	}
	return nil
}

func (c *LiveCollector) consume(ctx context.Context) {
	defer c.wg.Done()
	for {
		bars, errs := c.stream.Read(ctx)
		if err := c.forward(ctx, bars, errs); err == nil {
			return
		}
		c.metrics.RecordError("stream")
		if err := c.stream.Reconnect(ctx); err != nil {
			if ctx.Err() == nil {
				c.log.Error("feed gave up reconnecting", logger.Error(err))
			}
			return
		}
	}
}

// forward copies bars into the gate until the stream fails (non-nil error)
// or ctx ends (nil).
func (c *LiveCollector) forward(ctx context.Context, bars <-chan models.Bar, errs <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-errs:
			if ok && err != nil {
				c.log.Warn("feed read failed", logger.Error(err))
				return err
			}
			errs = nil
		case bar, ok := <-bars:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				// drain a pending error before deciding the stream ended
				if errs != nil {
					if err, ok := <-errs; ok && err != nil {
						return err
					}
				}
				return errStreamClosed
			}
			if err := c.gate.Submit(ctx, bar); err != nil && ctx.Err() == nil {
				c.log.Debug("bar rejected at gate", logger.Time("ts", bar.Ts), logger.Error(err))
			}
		}
	}
}

func (c *LiveCollector) ticker(ctx context.Context) {
	defer c.wg.Done()
	t := c.ticks.Ticker(c.tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := c.step(ctx, c.pipe.Tick); err != nil {
				c.log.Warn("expiry tick failed", logger.Error(err))
			}
		}
	}
}
