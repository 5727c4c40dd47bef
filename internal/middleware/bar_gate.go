package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"LiqPool/internal/domain/models"
	domrepo "LiqPool/internal/domain/repository"
	"LiqPool/pkg/logger"
	"LiqPool/pkg/ratelimit"
)

// ErrGateStopped is returned by Submit once the gate is stopped.
var ErrGateStopped = errors.New("bar gate stopped")

// Drop reasons recorded by the gate.
const (
	DropInvalid   = "invalid"
	DropThrottled = "throttled"
)

// BarHandler is the downstream the gate feeds, one bar at a time.
type BarHandler interface {
	HandleBar(ctx context.Context, bar models.Bar) error
}

// BarHandlerFunc adapts a function to BarHandler.
type BarHandlerFunc func(ctx context.Context, bar models.Bar) error

func (f BarHandlerFunc) HandleBar(ctx context.Context, bar models.Bar) error { return f(ctx, bar) }

// BarGate sits between live feeds and the pipeline. It validates, throttles
// per symbol on bar time, and queues bars for a single worker so that bars
// from several feeds reach the handler in submission order.
type BarGate struct {
	next     BarHandler
	metrics  domrepo.Metrics
	log      *logger.Logger
	throttle *ratelimit.Keyed
	bufSize  int
	bufCh    chan models.Bar
	stopCh   chan struct{}
	done     chan struct{}
	started  bool
	stopped  bool
	mu       sync.Mutex
}

type GateOption func(*BarGate)

// WithThrottle keeps at most one bar per symbol per interval of bar time.
// Zero disables throttling.
func WithThrottle(every time.Duration) GateOption {
	return func(g *BarGate) {
		if every > 0 {
			g.throttle = ratelimit.NewInterval(every, time.Hour)
		}
	}
}

// WithBufferSize sets how many bars may wait for the worker.
func WithBufferSize(n int) GateOption {
	return func(g *BarGate) {
		if n > 0 {
			g.bufSize = n
		}
	}
}

// WithLogger sets the gate logger.
func WithLogger(l *logger.Logger) GateOption {
	return func(g *BarGate) {
		if l != nil {
			g.log = l
		}
	}
}

// NewBarGate creates a gate in front of next.
func NewBarGate(next BarHandler, metrics domrepo.Metrics, opts ...GateOption) *BarGate {
	g := &BarGate{
		next:    next,
		metrics: metrics,
		log:     logger.Nop(),
		bufSize: 1024,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.bufCh = make(chan models.Bar, g.bufSize)
	g.log = g.log.Component("bar_gate")
	return g
}

// Start launches the worker. Bars still queued when ctx ends are dropped.
func (g *BarGate) Start(ctx context.Context) {
	g.mu.Lock()
	if g.started {
		g.mu.Unlock()
		return
	}
	g.started = true
	g.mu.Unlock()

	go g.run(ctx)
}

// Stop closes the gate and waits for the worker to drain the queue.
func (g *BarGate) Stop(ctx context.Context) error {
	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		return nil
	}
	g.stopped = true
	started := g.started
	g.mu.Unlock()

	close(g.stopCh)
	if !started {
		return nil
	}
	select {
	case <-g.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("bar gate drain: %w", ctx.Err())
	}
}

// Submit validates and throttles bar, then queues it. It blocks while the
// queue is full. Rejected bars are recorded and return nil, except invalid
// ones which return their ValidationError.
func (g *BarGate) Submit(ctx context.Context, bar models.Bar) error {
	if err := bar.Validate(); err != nil {
		g.metrics.RecordBar(bar.Symbol, false, DropInvalid)
		return err
	}
	if g.throttle != nil && !g.throttle.AllowAt(bar.Symbol, bar.Ts) {
		g.metrics.RecordBar(bar.Symbol, false, DropThrottled)
		return nil
	}

	select {
	case <-g.stopCh:
		return ErrGateStopped
	default:
	}
	select {
	case g.bufCh <- bar:
		return nil
	case <-g.stopCh:
		return ErrGateStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Depth returns the number of queued bars.
func (g *BarGate) Depth() int { return len(g.bufCh) }

func (g *BarGate) run(ctx context.Context) {
	defer close(g.done)
	for {
		select {
		case <-ctx.Done():
			return
		case bar := <-g.bufCh:
			g.handle(ctx, bar)
		case <-g.stopCh:
			for {
				select {
				case bar := <-g.bufCh:
					g.handle(ctx, bar)
				default:
					return
				}
			}
		}
	}
}

func (g *BarGate) handle(ctx context.Context, bar models.Bar) {
	start := time.Now()
	if err := g.next.HandleBar(ctx, bar); err != nil {
		g.metrics.RecordError("gate_handle")
		g.log.Warn("bar handling failed",
			logger.String("symbol", bar.Symbol),
			logger.Time("ts", bar.Ts),
			logger.Error(err),
		)
		return
	}
	g.metrics.RecordLatency("gate_handle", time.Since(start).Seconds())
}
