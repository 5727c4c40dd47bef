// Package pool tracks liquidity pools from creation to purge. The registry
// owns every pool and keeps a hierarchical timing wheel in lockstep with it;
// the manager adapts detector output into registry calls.
package pool

import (
	"fmt"
	"sort"
	"time"

	"LiqPool/internal/domain/models"
)

// Result is the outcome of a registry or manager mutation. Rejections are
// routine and come back as a Reason, never as an error.
type Result struct {
	OK     bool
	PoolID string
	Reason string
}

type idSet map[string]struct{}

func (s idSet) sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

type counters struct {
	created int64
	touched int64
	expired int64
	purged  int64
	removed int64
}

// Registry is not safe for concurrent use; callers serialize access.
type Registry struct {
	cfg   RegistryConfig
	wheel *TimingWheel

	pools   map[string]models.Pool
	byRes   map[models.Resolution]idSet
	byState map[models.PoolState]idSet
	live    map[models.Resolution]int
	purgeAt map[string]time.Time

	lastSweep time.Time
	total     counters
	perRes    map[models.Resolution]*counters
	rejected  map[string]int64
}

// NewRegistry builds an empty registry whose wheel starts at start.
func NewRegistry(start time.Time, opts ...RegistryOption) *Registry {
	cfg := RegistryConfig{
		DefaultCap:    1000,
		GracePeriod:   time.Hour,
		SweepInterval: time.Minute,
		Wheel:         DefaultWheelConfig(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Registry{
		cfg:       cfg,
		wheel:     NewTimingWheel(start, cfg.Wheel),
		pools:     make(map[string]models.Pool),
		byRes:     make(map[models.Resolution]idSet),
		byState:   make(map[models.PoolState]idSet),
		live:      make(map[models.Resolution]int),
		purgeAt:   make(map[string]time.Time),
		lastSweep: start,
		perRes:    make(map[models.Resolution]*counters),
		rejected:  make(map[string]int64),
	}
}

// Add creates a pool. Malformed specs return a validation error; capacity,
// duplicate and scheduling rejections come back in the Result. The pool is
// indexed only after the wheel accepted its expiry.
func (r *Registry) Add(spec models.PoolSpec) (Result, error) {
	if err := spec.Validate(); err != nil {
		r.rejected[ReasonInvalid]++
		return Result{Reason: ReasonInvalid}, err
	}
	if limit := r.cfg.capacity(spec.Resolution); limit > 0 && r.live[spec.Resolution] >= limit {
		return r.reject(ReasonCapacity, ""), nil
	}
	id := PoolID(spec.Resolution, spec.CreatedAt, spec.Top, spec.Bottom)
	if _, ok := r.pools[id]; ok {
		return r.reject(ReasonDuplicate, id), nil
	}
	p, err := models.NewPool(id, spec)
	if err != nil {
		r.rejected[ReasonInvalid]++
		return Result{Reason: ReasonInvalid, PoolID: id}, err
	}
	if !r.wheel.Schedule(id, p.ExpiresAt, p.CreatedAt) {
		return r.reject(ReasonScheduleFailed, id), nil
	}
	r.insert(p)
	r.total.created++
	r.resCounters(p.Resolution).created++
	return Result{OK: true, PoolID: id}, nil
}

// Touch marks an Active pool as Touched when price falls inside its
// tolerance band.
func (r *Registry) Touch(id string, price float64, at time.Time) Result {
	p, ok := r.pools[id]
	if !ok {
		return r.reject(ReasonNotFound, id)
	}
	if p.State != models.PoolActive {
		return r.reject(ReasonNotActive, id)
	}
	if at.Before(p.CreatedAt) {
		return r.reject(ReasonInvalid, id)
	}
	if !p.Contains(price) {
		return r.reject(ReasonOutOfRange, id)
	}
	r.replace(p, p.WithTouched(at))
	r.total.touched++
	r.resCounters(p.Resolution).touched++
	return Result{OK: true, PoolID: id}
}

// ExpireDue advances the wheel to now, expires every pool it returns and
// runs the purge sweep once SweepInterval has passed since the last one.
// The returned events are the expiries followed by any purges.
func (r *Registry) ExpireDue(now time.Time) ([]models.PoolEvent, error) {
	fired, err := r.wheel.Tick(now)
	if err != nil {
		return nil, fmt.Errorf("advance wheel: %w", err)
	}
	var events []models.PoolEvent
	for _, e := range fired {
		p, ok := r.pools[e.ID]
		if !ok || !p.State.Live() {
			continue
		}
		expired := p.WithExpired(e.ExpiresAt)
		r.replace(p, expired)
		r.purgeAt[e.ID] = e.ExpiresAt.Add(r.cfg.GracePeriod)
		r.total.expired++
		r.resCounters(p.Resolution).expired++
		events = append(events, models.PoolEventFrom(models.PoolExpire, expired, e.ExpiresAt))
	}
	if now.Sub(r.lastSweep) >= r.cfg.SweepInterval {
		events = append(events, r.Sweep(now)...)
	}
	return events, nil
}

// Sweep purges expired pools whose grace window has elapsed at now.
func (r *Registry) Sweep(now time.Time) []models.PoolEvent {
	r.lastSweep = now
	var due []string
	for id, at := range r.purgeAt {
		if !now.Before(at) {
			due = append(due, id)
		}
	}
	sort.Strings(due)
	events := make([]models.PoolEvent, 0, len(due))
	for _, id := range due {
		p := r.pools[id]
		r.delete(p)
		r.total.purged++
		r.resCounters(p.Resolution).purged++
		events = append(events, models.PoolEventFrom(models.PoolPurged, p, now))
	}
	return events
}

// Remove deletes a pool in any state and cancels its wheel entry.
func (r *Registry) Remove(id string) (models.Pool, bool) {
	p, ok := r.pools[id]
	if !ok {
		return models.Pool{}, false
	}
	r.wheel.Cancel(id)
	r.delete(p)
	r.total.removed++
	r.resCounters(p.Resolution).removed++
	return p, true
}

// Get returns a pool by id.
func (r *Registry) Get(id string) (models.Pool, bool) {
	p, ok := r.pools[id]
	return p, ok
}

// Len returns the number of retained pools, expired ones included.
func (r *Registry) Len() int { return len(r.pools) }

// Now returns the time the registry's wheel has advanced to.
func (r *Registry) Now() time.Time { return r.wheel.Now() }

// PendingExpiries lists pools due at or before now without advancing time.
func (r *Registry) PendingExpiries(now time.Time) []Entry { return r.wheel.ExpireDue(now) }

// QueryActive returns live (Active or Touched) pools sorted by id. A zero
// resolution matches all resolutions.
func (r *Registry) QueryActive(res models.Resolution) []models.Pool {
	out := r.QueryByState(models.PoolActive, res)
	out = append(out, r.QueryByState(models.PoolTouched, res)...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// QueryByState returns pools in state sorted by id. A zero resolution
// matches all resolutions.
func (r *Registry) QueryByState(state models.PoolState, res models.Resolution) []models.Pool {
	ids := r.byState[state]
	if res != 0 {
		// walk the smaller of the two index sets
		if rs := r.byRes[res]; len(rs) < len(ids) {
			var out []models.Pool
			for _, id := range rs.sorted() {
				if p := r.pools[id]; p.State == state {
					out = append(out, p)
				}
			}
			return out
		}
	}
	var out []models.Pool
	for _, id := range ids.sorted() {
		p := r.pools[id]
		if res == 0 || p.Resolution == res {
			out = append(out, p)
		}
	}
	return out
}

func (r *Registry) reject(reason, id string) Result {
	r.rejected[reason]++
	return Result{PoolID: id, Reason: reason}
}

func (r *Registry) resCounters(res models.Resolution) *counters {
	c, ok := r.perRes[res]
	if !ok {
		c = &counters{}
		r.perRes[res] = c
	}
	return c
}

func (r *Registry) insert(p models.Pool) {
	r.pools[p.ID] = p
	r.index(r.byRes, p.Resolution, p.ID)
	r.indexState(p.State, p.ID)
	if p.State.Live() {
		r.live[p.Resolution]++
	}
}

func (r *Registry) replace(old, next models.Pool) {
	r.pools[next.ID] = next
	if old.State == next.State {
		return
	}
	delete(r.byState[old.State], old.ID)
	r.indexState(next.State, next.ID)
	if old.State.Live() && !next.State.Live() {
		r.live[old.Resolution]--
	}
}

func (r *Registry) delete(p models.Pool) {
	delete(r.pools, p.ID)
	delete(r.byRes[p.Resolution], p.ID)
	delete(r.byState[p.State], p.ID)
	delete(r.purgeAt, p.ID)
	if p.State.Live() {
		r.live[p.Resolution]--
	}
}

func (r *Registry) index(m map[models.Resolution]idSet, res models.Resolution, id string) {
	s, ok := m[res]
	if !ok {
		s = make(idSet)
		m[res] = s
	}
	s[id] = struct{}{}
}

func (r *Registry) indexState(state models.PoolState, id string) {
	s, ok := r.byState[state]
	if !ok {
		s = make(idSet)
		r.byState[state] = s
	}
	s[id] = struct{}{}
}

// ResolutionMetrics is the per-resolution slice of Metrics. Active counts
// live pools, Touched ones included.
type ResolutionMetrics struct {
	Created int64 `json:"created"`
	Touched int64 `json:"touched"`
	Expired int64 `json:"expired"`
	Purged  int64 `json:"purged"`
	Removed int64 `json:"removed"`
	Active  int   `json:"active"`
}

// Metrics is a counter/gauge snapshot of the registry.
type Metrics struct {
	Created      int64                                   `json:"created"`
	Touched      int64                                   `json:"touched"`
	Expired      int64                                   `json:"expired"`
	Purged       int64                                   `json:"purged"`
	Removed      int64                                   `json:"removed"`
	Rejected     map[string]int64                        `json:"rejected"`
	ActiveCount  int                                     `json:"active_count"`
	Retained     int                                     `json:"retained"`
	Scheduled    int                                     `json:"scheduled"`
	ByResolution map[models.Resolution]ResolutionMetrics `json:"by_resolution"`
}

// GetMetrics returns the current counters and gauges.
func (r *Registry) GetMetrics() Metrics {
	m := Metrics{
		Created:      r.total.created,
		Touched:      r.total.touched,
		Expired:      r.total.expired,
		Purged:       r.total.purged,
		Removed:      r.total.removed,
		Rejected:     make(map[string]int64, len(r.rejected)),
		Retained:     len(r.pools),
		Scheduled:    r.wheel.Len(),
		ByResolution: make(map[models.Resolution]ResolutionMetrics, len(r.perRes)),
	}
	for k, v := range r.rejected {
		m.Rejected[k] = v
	}
	for res, c := range r.perRes {
		m.ByResolution[res] = ResolutionMetrics{
			Created: c.created,
			Touched: c.touched,
			Expired: c.expired,
			Purged:  c.purged,
			Removed: c.removed,
			Active:  r.live[res],
		}
		m.ActiveCount += r.live[res]
	}
	return m
}
