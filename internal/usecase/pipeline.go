package usecase

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"LiqPool/internal/domain/models"
	drepo "LiqPool/internal/domain/repository"
	"LiqPool/internal/services/aggregation"
	"LiqPool/internal/services/detector"
	"LiqPool/internal/services/overlap"
	"LiqPool/internal/services/pool"
	"LiqPool/pkg/clock"
	"LiqPool/pkg/logger"
)

// Drop reasons reported for base bars that never reach the aggregators.
const (
	DropInvalid = "invalid"
	DropSymbol  = "symbol"
)

// Result is everything one pipeline step produced, in emission order.
type Result struct {
	Bars     map[models.Resolution][]models.Bar
	Patterns []models.PatternEvent
	Pools    []models.PoolEvent
	Zones    []models.ZoneEvent
	// Dropped is set when the input bar was rejected under the drop policy.
	Dropped string
}

// Changed reports whether the step altered pool or zone state.
func (r Result) Changed() bool { return len(r.Pools) > 0 || len(r.Zones) > 0 }

func (r *Result) merge(o Result) {
	for res, bars := range o.Bars {
		if r.Bars == nil {
			r.Bars = make(map[models.Resolution][]models.Bar)
		}
		r.Bars[res] = append(r.Bars[res], bars...)
	}
	r.Patterns = append(r.Patterns, o.Patterns...)
	r.Pools = append(r.Pools, o.Pools...)
	r.Zones = append(r.Zones, o.Zones...)
}

// Snapshot is a read-only copy of the pipeline state.
type Snapshot struct {
	Symbol  string        `json:"symbol"`
	At      time.Time     `json:"at"`
	Pools   []models.Pool `json:"pools"`
	Zones   []models.Zone `json:"zones"`
	Metrics pool.Metrics  `json:"metrics"`
}

// Pipeline runs raw base bars through aggregation, detection, the pool
// registry and the overlap engine. Every entry point takes the same lock, so
// any number of feeds may call it but only one step runs at a time.
type Pipeline struct {
	mu         sync.Mutex
	symbol     string
	basePeriod time.Duration
	clock      clock.Clock
	agg        *aggregation.Multi
	detectors  *detector.Manager
	pools      *pool.Manager
	zones      *overlap.Engine
	metrics    drepo.Metrics
	log        *logger.Logger
}

// NewPipeline wires the core services for one symbol.
func NewPipeline(
	symbol string,
	basePeriod time.Duration,
	clk clock.Clock,
	agg *aggregation.Multi,
	detectors *detector.Manager,
	pools *pool.Manager,
	zones *overlap.Engine,
	metrics drepo.Metrics,
	log *logger.Logger,
) *Pipeline {
	if log == nil {
		log = logger.Nop()
	}
	return &Pipeline{
		symbol:     symbol,
		basePeriod: basePeriod,
		clock:      clk,
		agg:        agg,
		detectors:  detectors,
		pools:      pools,
		zones:      zones,
		metrics:    metrics,
		log:        log.Component("pipeline").With(logger.String("symbol", symbol)),
	}
}

// Symbol returns the instrument the pipeline tracks.
func (p *Pipeline) Symbol() string { return p.symbol }

// OnBar feeds one base bar. Expiries due at the clock's current time are
// applied first, then touches from the bar, then pools from any patterns the
// completed higher-resolution bars confirm. Zone events follow the pool
// events that caused them.
func (p *Pipeline) OnBar(bar models.Bar) (Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	if err := bar.Validate(); err != nil {
		p.metrics.RecordBar(p.symbol, false, DropInvalid)
		return Result{Dropped: DropInvalid}, err
	}
	if bar.Symbol != "" && bar.Symbol != p.symbol {
		p.metrics.RecordBar(p.symbol, false, DropSymbol)
		return Result{Dropped: DropSymbol}, nil
	}

	before := rejections(p.agg.Stats())
	done, err := p.agg.Update(bar)
	if err != nil {
		reason := models.OrderOutOfOrder
		var oe *models.OrderingError
		if errors.As(err, &oe) {
			reason = oe.Kind
		}
		p.metrics.RecordBar(p.symbol, false, reason)
		return Result{Dropped: reason}, err
	}
	if reason := rejectedKind(before, rejections(p.agg.Stats())); reason != "" {
		p.metrics.RecordBar(p.symbol, false, reason)
		p.log.Debug("bar dropped", logger.Time("ts", bar.Ts), logger.String("reason", reason))
		return Result{Dropped: reason}, nil
	}
	p.metrics.RecordBar(p.symbol, true, "")

	out, err := p.expire()
	if err != nil {
		return out, err
	}

	touches := p.pools.ScanTouches(bar, bar.Ts.Add(p.basePeriod))
	out.Pools = append(out.Pools, touches...)

	step, err := p.detect(done)
	if err != nil {
		return out, err
	}
	out.merge(step)
	out.Zones = append(out.Zones, p.overlap(out.Pools)...)

	p.record(out)
	p.metrics.RecordLatency("pipeline_bar", time.Since(start).Seconds())
	return out, nil
}

// Tick applies expiries due at the clock's current time without a bar. Live
// runs call it on a timer so pools lapse while the feed is quiet.
func (p *Pipeline) Tick() (Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out, err := p.expire()
	if err != nil {
		return out, err
	}
	out.Zones = p.overlap(out.Pools)
	p.record(out)
	return out, nil
}

// Flush closes the stream: complete open periods are emitted and detected,
// partial ones are discarded.
func (p *Pipeline) Flush() (Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out, err := p.detect(p.agg.Flush())
	if err != nil {
		return out, err
	}
	out.Zones = p.overlap(out.Pools)
	p.record(out)
	return out, nil
}

// Snapshot copies the retained pools, live zones and registry metrics.
func (p *Pipeline) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	reg := p.pools.Registry()
	var pools []models.Pool
	for _, st := range []models.PoolState{models.PoolActive, models.PoolTouched, models.PoolExpired} {
		pools = append(pools, reg.QueryByState(st, 0)...)
	}
	return Snapshot{
		Symbol:  p.symbol,
		At:      p.clock.Now(),
		Pools:   pools,
		Zones:   p.zones.Zones(),
		Metrics: reg.GetMetrics(),
	}
}

func (p *Pipeline) expire() (Result, error) {
	events, err := p.pools.Registry().ExpireDue(p.clock.Now())
	if err != nil {
		p.metrics.RecordError("pipeline_expire")
		return Result{}, fmt.Errorf("expire pools: %w", err)
	}
	return Result{Pools: events}, nil
}

// detect runs the detectors over completed bars, finest resolution first.
func (p *Pipeline) detect(done map[models.Resolution][]models.Bar) (Result, error) {
	out := Result{Bars: done}
	for _, res := range p.agg.Resolutions() {
		for _, b := range done[res] {
			patterns, err := p.detectors.Update(res, b)
			if err != nil {
				p.metrics.RecordError("pipeline_detect")
				return out, fmt.Errorf("detect %s: %w", res, err)
			}
			for _, ev := range patterns {
				out.Patterns = append(out.Patterns, ev)
				p.metrics.RecordPattern(res.String(), string(ev.Kind))

				pr, err := p.pools.ProcessDetectorEvent(ev)
				if err != nil {
					p.metrics.RecordError("pipeline_pool")
					p.log.Warn("pattern rejected", logger.String("kind", string(ev.Kind)), logger.Error(err))
					continue
				}
				switch {
				case pr.Created:
					out.Pools = append(out.Pools, models.PoolEventFrom(models.PoolCreated, pr.Pool, ev.Ts))
				case pr.Touched:
					out.Pools = append(out.Pools, models.PoolEventFrom(models.PoolTouch, pr.Pool, ev.Ts))
				default:
					p.metrics.RecordPoolRejected(res.String(), pr.Reason)
				}
			}
		}
	}
	return out, nil
}

func (p *Pipeline) overlap(events []models.PoolEvent) []models.ZoneEvent {
	var out []models.ZoneEvent
	for _, ev := range events {
		out = append(out, p.zones.OnPoolEvent(ev)...)
	}
	return out
}

func (p *Pipeline) record(r Result) {
	for _, ev := range r.Pools {
		p.metrics.RecordPoolEvent(ev.Resolution.String(), string(ev.Kind))
		if ev.Kind == models.PoolCreated || ev.Kind == models.PoolExpire {
			p.log.Debug("pool "+string(ev.Kind),
				logger.String("pool_id", ev.PoolID),
				logger.Stringer("resolution", ev.Resolution),
				logger.Float64("top", ev.Top),
				logger.Float64("bottom", ev.Bottom),
			)
		}
	}
	for _, ev := range r.Zones {
		p.metrics.RecordZoneEvent(string(ev.Kind))
		if ev.Kind != models.ZoneUpdated {
			p.log.Debug("zone "+string(ev.Kind),
				logger.String("zone_id", ev.Zone.ID),
				logger.Int("members", ev.Zone.MemberCount()),
				logger.Float64("strength", ev.Zone.Strength),
			)
		}
	}
	if !r.Changed() {
		return
	}
	m := p.pools.Registry().GetMetrics()
	for _, res := range p.agg.Resolutions() {
		p.metrics.SetActivePools(res.String(), m.ByResolution[res].Active)
	}
	p.metrics.SetActiveZones(p.zones.Len())
}

type rejectCounts struct {
	outOfOrder, duplicate, futureSkew int64
}

func rejections(stats map[models.Resolution]aggregation.Stats) rejectCounts {
	var c rejectCounts
	for _, s := range stats {
		c.outOfOrder += s.OutOfOrder
		c.duplicate += s.Duplicate
		c.futureSkew += s.FutureSkew
	}
	return c
}

func rejectedKind(before, after rejectCounts) string {
	switch {
	case after.duplicate > before.duplicate:
		return models.OrderDuplicate
	case after.futureSkew > before.futureSkew:
		return models.OrderFutureSkew
	case after.outOfOrder > before.outOfOrder:
		return models.OrderOutOfOrder
	}
	return ""
}
