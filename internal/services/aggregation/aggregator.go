// Package aggregation rolls base-resolution bars up into closed bars of
// coarser, epoch-aligned resolutions.
package aggregation

import (
	"fmt"
	"time"

	"LiqPool/internal/domain/models"
	"LiqPool/pkg/clock"
)

// Policy decides what happens to a bar that violates ordering or clock skew.
type Policy string

const (
	// PolicyDrop silently discards the offending bar.
	PolicyDrop Policy = "drop"
	// PolicyRaise fails the call with a *models.OrderingError.
	PolicyRaise Policy = "raise"
)

// ParsePolicy accepts "drop" and "raise". "recalc" is not supported.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyDrop, PolicyRaise:
		return Policy(s), nil
	case "":
		return PolicyDrop, nil
	}
	return "", models.NewValidationError("ordering_policy", fmt.Sprintf("unsupported policy %q (want drop or raise)", s))
}

const DefaultMaxSkew = 300 * time.Second

// Option configures Aggregator.
type Option func(*Config)

// Config holds aggregator configuration.
type Config struct {
	BasePeriod time.Duration
	Policy     Policy
	MaxSkew    time.Duration
	Capacity   int
	Clock      clock.Clock
}

// WithBasePeriod sets the period of the incoming source bars.
func WithBasePeriod(d time.Duration) Option {
	return func(c *Config) {
		c.BasePeriod = d
	}
}

// WithPolicy sets the ordering policy.
func WithPolicy(p Policy) Option {
	return func(c *Config) {
		c.Policy = p
	}
}

// WithMaxSkew sets how far into the future a bar may be stamped.
func WithMaxSkew(d time.Duration) Option {
	return func(c *Config) {
		c.MaxSkew = d
	}
}

// WithCapacity overrides the buffer capacity (defaults to one period of source bars).
func WithCapacity(n int) Option {
	return func(c *Config) {
		c.Capacity = n
	}
}

// WithClock sets the clock used for the future-skew check. Without a clock
// the check is skipped.
func WithClock(c clock.Clock) Option {
	return func(cfg *Config) {
		cfg.Clock = c
	}
}

// Stats counts rejected and emitted bars.
type Stats struct {
	Accepted   int64
	Emitted    int64
	Discarded  int64
	OutOfOrder int64
	Duplicate  int64
	FutureSkew int64
}

// Aggregator emits exactly one completed bar per closed bucket of its
// resolution. It is not safe for concurrent use.
type Aggregator struct {
	res     models.Resolution
	cfg     Config
	need    int
	buf     *BarBuffer
	cur     int64
	started bool
	last    time.Time
	stats   Stats
}

// New builds an aggregator for res. It panics on a non-positive resolution.
func New(res models.Resolution, opts ...Option) *Aggregator {
	mustPositive(res.Minutes())
	cfg := Config{
		BasePeriod: time.Minute,
		Policy:     PolicyDrop,
		MaxSkew:    DefaultMaxSkew,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BasePeriod <= 0 {
		cfg.BasePeriod = time.Minute
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyDrop
	}
	need := int(res.Duration() / cfg.BasePeriod)
	if need < 1 {
		need = 1
	}
	capacity := cfg.Capacity
	if capacity < need {
		capacity = need
	}
	return &Aggregator{
		res:  res,
		cfg:  cfg,
		need: need,
		buf:  NewBarBuffer(capacity),
	}
}

// Resolution returns the target resolution.
func (a *Aggregator) Resolution() models.Resolution { return a.res }

// Stats returns a copy of the counters.
func (a *Aggregator) Stats() Stats { return a.stats }

// Buffered returns the number of source bars in the open period.
func (a *Aggregator) Buffered() int { return a.buf.Len() }

// Update feeds one source bar. It returns the completed bar of the previous
// bucket when bar opens a new one. Rejected bars never touch the open period.
func (a *Aggregator) Update(bar models.Bar) (models.Bar, bool, error) {
	if kind := a.check(bar); kind != "" {
		return models.Bar{}, false, a.reject(kind, bar)
	}

	id := BucketID(bar.Ts, a.res.Minutes())
	if !a.started {
		a.accept(id, bar)
		return models.Bar{}, false, nil
	}
	if id < a.cur {
		return models.Bar{}, false, a.reject(models.OrderOutOfOrder, bar)
	}
	if id == a.cur {
		a.accept(id, bar)
		return models.Bar{}, false, nil
	}

	out, ok := a.buf.Rollup(BucketStartOf(a.cur, a.res.Minutes()))
	a.buf.Reset()
	a.accept(id, bar)
	if ok {
		a.stats.Emitted++
	}
	return out, ok, nil
}

// Flush emits the open period only if it holds a complete period of source
// bars; a partial period is discarded. The aggregator is reset either way.
func (a *Aggregator) Flush() (models.Bar, bool) {
	defer a.reset()
	if !a.started || a.buf.Len() < a.need {
		if a.buf.Len() > 0 {
			a.stats.Discarded++
		}
		return models.Bar{}, false
	}
	out, ok := a.buf.Rollup(BucketStartOf(a.cur, a.res.Minutes()))
	if ok {
		a.stats.Emitted++
	}
	return out, ok
}

func (a *Aggregator) check(bar models.Bar) string {
	if !a.last.IsZero() {
		if bar.Ts.Equal(a.last) {
			return models.OrderDuplicate
		}
		if bar.Ts.Before(a.last) {
			return models.OrderOutOfOrder
		}
	}
	if a.cfg.Clock != nil && bar.Ts.After(a.cfg.Clock.Now().Add(a.cfg.MaxSkew)) {
		return models.OrderFutureSkew
	}
	return ""
}

func (a *Aggregator) reject(kind string, bar models.Bar) error {
	switch kind {
	case models.OrderDuplicate:
		a.stats.Duplicate++
	case models.OrderFutureSkew:
		a.stats.FutureSkew++
	default:
		a.stats.OutOfOrder++
	}
	if a.cfg.Policy == PolicyRaise {
		return &models.OrderingError{Kind: kind, BarTs: bar.Ts, LastSeen: a.last}
	}
	return nil
}

func (a *Aggregator) accept(id int64, bar models.Bar) {
	a.cur = id
	a.started = true
	a.last = bar.Ts
	a.stats.Accepted++
	a.buf.Push(bar)
}

func (a *Aggregator) reset() {
	a.buf.Reset()
	a.started = false
	a.cur = 0
}
