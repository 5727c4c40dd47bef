package pool

import (
	"time"

	"LiqPool/internal/domain/models"
)

// ProcessResult is the outcome of ProcessDetectorEvent.
type ProcessResult struct {
	Success bool
	PoolID  string
	Created bool
	Touched bool
	Reason  string
	// Pool is the pool after the operation, zero when nothing happened.
	Pool models.Pool
}

// ManagerOption configures Manager.
type ManagerOption func(*ManagerConfig)

// ManagerConfig holds manager configuration.
type ManagerConfig struct {
	Policies    map[models.Resolution]ResolutionPolicy
	Default     ResolutionPolicy
	MinStrength float64
}

// WithPolicy sets the TTL and hit tolerance for one resolution.
func WithPolicy(res models.Resolution, p ResolutionPolicy) ManagerOption {
	return func(c *ManagerConfig) {
		if c.Policies == nil {
			c.Policies = make(map[models.Resolution]ResolutionPolicy)
		}
		c.Policies[res] = p
	}
}

// WithDefaultPolicy sets the policy for resolutions without one.
func WithDefaultPolicy(p ResolutionPolicy) ManagerOption {
	return func(c *ManagerConfig) {
		c.Default = p
	}
}

// WithMinStrength drops pattern events weaker than s before they reach the
// registry.
func WithMinStrength(s float64) ManagerOption {
	return func(c *ManagerConfig) {
		c.MinStrength = s
	}
}

// Manager turns pattern events into registry calls.
type Manager struct {
	reg *Registry
	cfg ManagerConfig
}

func NewManager(reg *Registry, opts ...ManagerOption) *Manager {
	cfg := ManagerConfig{
		Default: ResolutionPolicy{TTL: 24 * time.Hour},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Manager{reg: reg, cfg: cfg}
}

// Registry returns the underlying registry.
func (m *Manager) Registry() *Registry { return m.reg }

// Policy returns the effective policy for res.
func (m *Manager) Policy(res models.Resolution) ResolutionPolicy {
	if p, ok := m.cfg.Policies[res]; ok {
		return p
	}
	return m.cfg.Default
}

// ProcessDetectorEvent creates a pool from ev. When the pool already exists,
// the repeat detection counts as a touch at the middle of the band.
func (m *Manager) ProcessDetectorEvent(ev models.PatternEvent) (ProcessResult, error) {
	if err := ev.Validate(); err != nil {
		return ProcessResult{Reason: ReasonInvalid}, err
	}
	if ev.Strength < m.cfg.MinStrength {
		return ProcessResult{Reason: ReasonBelowMinStrength}, nil
	}
	pol := m.Policy(ev.Resolution)
	res, err := m.reg.Add(models.PoolSpec{
		Resolution:   ev.Resolution,
		Side:         ev.Side,
		Kind:         ev.Kind,
		Tier:         ev.Tier,
		Top:          ev.Top,
		Bottom:       ev.Bottom,
		Strength:     ev.Strength,
		TTL:          pol.TTL,
		HitTolerance: pol.HitTolerance,
		CreatedAt:    ev.Ts,
	})
	if err != nil {
		return ProcessResult{PoolID: res.PoolID, Reason: res.Reason}, err
	}
	if res.OK {
		p, _ := m.reg.Get(res.PoolID)
		return ProcessResult{Success: true, PoolID: res.PoolID, Created: true, Pool: p}, nil
	}
	if res.Reason == ReasonDuplicate {
		t := m.reg.Touch(res.PoolID, (ev.Top+ev.Bottom)/2, ev.Ts)
		if t.OK {
			p, _ := m.reg.Get(res.PoolID)
			return ProcessResult{Success: true, PoolID: res.PoolID, Touched: true, Pool: p}, nil
		}
	}
	return ProcessResult{PoolID: res.PoolID, Reason: res.Reason}, nil
}

// ScanTouches touches every Active pool whose tolerance band intersects the
// bar's range. The touch price is the middle of the band clamped into the bar.
func (m *Manager) ScanTouches(bar models.Bar, at time.Time) []models.PoolEvent {
	var out []models.PoolEvent
	for _, p := range m.reg.QueryByState(models.PoolActive, 0) {
		lo, hi := p.Bottom-p.HitTolerance, p.Top+p.HitTolerance
		if bar.High < lo || bar.Low > hi {
			continue
		}
		price := min(max((p.Top+p.Bottom)/2, bar.Low), bar.High)
		if !m.reg.Touch(p.ID, price, at).OK {
			continue
		}
		touched, _ := m.reg.Get(p.ID)
		out = append(out, models.PoolEventFrom(models.PoolTouch, touched, at))
	}
	return out
}

// Remove deletes a pool and reports it as a removed event.
func (m *Manager) Remove(id string, at time.Time) (models.PoolEvent, bool) {
	p, ok := m.reg.Remove(id)
	if !ok {
		return models.PoolEvent{}, false
	}
	return models.PoolEventFrom(models.PoolRemoved, p, at), true
}
