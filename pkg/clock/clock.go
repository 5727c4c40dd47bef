// Package clock provides the time source threaded through the pipeline: a
// wall clock for live runs and a simulated clock for replayable backtests.
package clock

import (
	"errors"
	"sync"
	"time"

	bclock "github.com/benbjohnson/clock"
)

// ErrBackward is returned when a simulated clock is asked to move back.
var ErrBackward = errors.New("clock: time cannot move backward")

// Clock is the only way pipeline components read the current time.
type Clock interface {
	Now() time.Time
}

// Ticking is a clock that can also drive tickers. Live loops take one so
// tests can step them with a bclock.Mock.
type Ticking interface {
	Clock
	Ticker(d time.Duration) *bclock.Ticker
}

// Real wraps the wall clock.
type Real struct {
	c bclock.Clock
}

// NewReal returns a wall clock.
func NewReal() *Real { return &Real{c: bclock.New()} }

func (r *Real) Now() time.Time { return r.c.Now().UTC() }

func (r *Real) Ticker(d time.Duration) *bclock.Ticker { return r.c.Ticker(d) }

// Sim is a simulated clock that only moves when told to and never backward.
// Moving it never blocks or yields, so a replay runs as fast as the bars load.
type Sim struct {
	mu  sync.Mutex
	now time.Time
}

// NewSim returns a simulated clock positioned at start.
func NewSim(start time.Time) *Sim {
	return &Sim{now: start.UTC()}
}

func (s *Sim) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Set moves the clock to t. Moving backward returns ErrBackward and
// leaves the clock unchanged; setting the current time is a no-op.
func (s *Sim) Set(t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.Before(s.now) {
		return ErrBackward
	}
	s.now = t.UTC()
	return nil
}

// Advance moves the clock forward by d.
func (s *Sim) Advance(d time.Duration) error {
	if d < 0 {
		return ErrBackward
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = s.now.Add(d)
	return nil
}

var (
	_ Clock   = (*Real)(nil)
	_ Clock   = (*Sim)(nil)
	_ Ticking = (*Real)(nil)
	_ Ticking = (*bclock.Mock)(nil)
)
