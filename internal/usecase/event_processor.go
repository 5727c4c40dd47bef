package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	drepo "LiqPool/internal/domain/repository"
	"LiqPool/pkg/logger"
)

// Sink targets.
const (
	SinkNone       = "none"
	SinkKafka      = "kafka"
	SinkClickHouse = "clickhouse"
	SinkBoth       = "both"
)

// EventProcessor routes lifecycle events to the configured sinks. Each write
// is retried with bounded exponential backoff.
type EventProcessor struct {
	pub        drepo.EventPublisher
	store      drepo.EventStorage
	metrics    drepo.Metrics
	log        *logger.Logger
	target     string
	maxRetries uint64
	initial    time.Duration
}

// NewEventProcessor creates a processor. pub and store may be nil when the
// target does not use them.
func NewEventProcessor(
	pub drepo.EventPublisher,
	store drepo.EventStorage,
	metrics drepo.Metrics,
	log *logger.Logger,
	target string,
	maxRetries uint64,
	initial time.Duration,
) *EventProcessor {
	if log == nil {
		log = logger.Nop()
	}
	if initial <= 0 {
		initial = 200 * time.Millisecond
	}
	return &EventProcessor{
		pub:        pub,
		store:      store,
		metrics:    metrics,
		log:        log.Component("event_processor"),
		target:     target,
		maxRetries: maxRetries,
		initial:    initial,
	}
}

// Process writes the pool and zone events of r to every configured sink.
// Every sink is attempted; the first error is returned.
func (p *EventProcessor) Process(ctx context.Context, symbol string, r Result) error {
	if !r.Changed() || p.target == SinkNone {
		return nil
	}
	start := time.Now()

	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	if p.toKafka() {
		keep(p.retry(ctx, "kafka", func() error {
			if err := p.pub.PublishPoolEvents(ctx, symbol, r.Pools); err != nil {
				return err
			}
			return p.pub.PublishZoneEvents(ctx, symbol, r.Zones)
		}))
	}
	if p.toClickHouse() {
		keep(p.retry(ctx, "clickhouse", func() error {
			if err := p.store.StorePoolEvents(ctx, symbol, r.Pools); err != nil {
				return err
			}
			return p.store.StoreZoneEvents(ctx, symbol, r.Zones)
		}))
	}

	if first != nil {
		return first
	}
	p.metrics.RecordLatency("sink_"+p.target, time.Since(start).Seconds())
	return nil
}

func (p *EventProcessor) retry(ctx context.Context, sink string, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.initial
	bo.MaxElapsedTime = 0

	attempt := 0
	err := backoff.RetryNotify(op,
		backoff.WithContext(backoff.WithMaxRetries(bo, p.maxRetries), ctx),
		func(err error, wait time.Duration) {
			attempt++
			p.log.Warn("sink write failed, retrying",
				logger.String("sink", sink),
				logger.Int("attempt", attempt),
				logger.Duration("wait", wait),
				logger.Error(err),
			)
		},
	)
	if err != nil {
		p.metrics.RecordError("sink_" + sink)
		return fmt.Errorf("%s sink: %w", sink, err)
	}
	return nil
}

func (p *EventProcessor) toKafka() bool {
	return p.pub != nil && (p.target == SinkKafka || p.target == SinkBoth)
}

func (p *EventProcessor) toClickHouse() bool {
	return p.store != nil && (p.target == SinkClickHouse || p.target == SinkBoth)
}

// Close releases the sinks.
func (p *EventProcessor) Close() {
	if p.pub != nil {
		_ = p.pub.Close()
	}
	if p.store != nil {
		_ = p.store.Close()
	}
}

