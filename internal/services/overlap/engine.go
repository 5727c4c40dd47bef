package overlap

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"

	"LiqPool/internal/domain/models"
)

// Option configures Engine.
type Option func(*Config)

// Config holds overlap-engine configuration.
type Config struct {
	MinMembers      int
	MinStrength     float64
	Epsilon         float64
	AllowSideMixing bool
	// Weights scales member strength by resolution; missing entries weigh 1.
	Weights map[models.Resolution]float64
}

// WithMinMembers sets how many pools a zone needs.
func WithMinMembers(n int) Option {
	return func(c *Config) {
		c.MinMembers = n
	}
}

// WithMinStrength sets the weighted-strength floor for new zones.
func WithMinStrength(s float64) Option {
	return func(c *Config) {
		c.MinStrength = s
	}
}

// WithEpsilon sets the strength change below which updates are suppressed.
func WithEpsilon(eps float64) Option {
	return func(c *Config) {
		c.Epsilon = eps
	}
}

// WithSideMixing lets bullish and bearish pools share a zone.
func WithSideMixing(allow bool) Option {
	return func(c *Config) {
		c.AllowSideMixing = allow
	}
}

// WithWeight sets the strength weight of one resolution.
func WithWeight(res models.Resolution, w float64) Option {
	return func(c *Config) {
		if c.Weights == nil {
			c.Weights = make(map[models.Resolution]float64)
		}
		c.Weights[res] = w
	}
}

type zoneState struct {
	zone    models.Zone
	members map[string]struct{}
	key     string
	emitted float64
}

// Engine reacts to pool lifecycle events and maintains zones. It references
// pools by id only and keeps the last seen snapshot of each indexed pool.
// Not safe for concurrent use.
type Engine struct {
	cfg    Config
	index  *Index
	pools  map[string]models.PoolEvent
	zones  map[string]*zoneState
	byPool map[string]map[string]struct{}
	// byKey maps the hash of a zone's current member set to its id.
	byKey map[string]string
}

func NewEngine(opts ...Option) *Engine {
	cfg := Config{
		MinMembers: 2,
		Epsilon:    1e-9,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.MinMembers < 1 {
		cfg.MinMembers = 1
	}
	return &Engine{
		cfg:    cfg,
		index:  NewIndex(cfg.AllowSideMixing),
		pools:  make(map[string]models.PoolEvent),
		zones:  make(map[string]*zoneState),
		byPool: make(map[string]map[string]struct{}),
		byKey:  make(map[string]string),
	}
}

// OnPoolEvent applies one pool lifecycle event and returns the resulting
// zone transitions.
func (e *Engine) OnPoolEvent(ev models.PoolEvent) []models.ZoneEvent {
	switch ev.Kind {
	case models.PoolCreated:
		return e.onCreated(ev)
	case models.PoolExpire, models.PoolRemoved, models.PoolPurged:
		return e.onGone(ev)
	default:
		// touches do not change zones
		return nil
	}
}

func (e *Engine) onCreated(ev models.PoolEvent) []models.ZoneEvent {
	if _, ok := e.pools[ev.PoolID]; ok {
		return nil
	}
	iv := Interval{ID: ev.PoolID, Side: ev.Side, Start: ev.Bottom, End: ev.Top}
	hits := e.index.Query(iv.Side, iv.Start, iv.End)
	e.index.Insert(iv)
	e.pools[ev.PoolID] = ev

	if len(hits)+1 < e.cfg.MinMembers {
		return nil
	}
	ids := make([]string, 0, len(hits)+1)
	for _, h := range hits {
		ids = append(ids, h.ID)
	}
	ids = append(ids, ev.PoolID)
	sort.Strings(ids)

	zone, ok := e.compose(ids)
	if !ok || zone.Strength < e.cfg.MinStrength {
		return nil
	}
	zone.ID = ZoneID(ids)
	zone.MemberKey = zone.ID
	if _, dup := e.byKey[zone.ID]; dup {
		return nil
	}
	zone.Side = ev.Side
	zone.CreatedAt = ev.At
	zone.UpdatedAt = ev.At

	st := &zoneState{zone: zone, members: make(map[string]struct{}, len(ids)), key: zone.ID, emitted: zone.Strength}
	for _, id := range ids {
		st.members[id] = struct{}{}
		set, ok := e.byPool[id]
		if !ok {
			set = make(map[string]struct{})
			e.byPool[id] = set
		}
		set[zone.ID] = struct{}{}
	}
	e.zones[zone.ID] = st
	e.byKey[st.key] = zone.ID
	return []models.ZoneEvent{{Kind: models.ZoneCreated, At: ev.At, Zone: copyZone(zone)}}
}

func (e *Engine) onGone(ev models.PoolEvent) []models.ZoneEvent {
	if _, ok := e.index.Remove(ev.PoolID); !ok {
		return nil
	}
	delete(e.pools, ev.PoolID)

	zoneIDs := make([]string, 0, len(e.byPool[ev.PoolID]))
	for id := range e.byPool[ev.PoolID] {
		zoneIDs = append(zoneIDs, id)
	}
	delete(e.byPool, ev.PoolID)
	sort.Strings(zoneIDs)

	var out []models.ZoneEvent
	for _, zid := range zoneIDs {
		st := e.zones[zid]
		delete(st.members, ev.PoolID)
		if len(st.members) < e.cfg.MinMembers {
			e.expire(st)
			st.zone.UpdatedAt = ev.At
			out = append(out, models.ZoneEvent{Kind: models.ZoneExpired, At: ev.At, Zone: copyZone(st.zone)})
			continue
		}
		ids := memberIDs(st.members)
		key := ZoneID(ids)
		if other, ok := e.byKey[key]; ok && other != st.zone.ID {
			// another zone already stands for exactly these members
			e.expire(st)
			st.zone.UpdatedAt = ev.At
			out = append(out, models.ZoneEvent{Kind: models.ZoneExpired, At: ev.At, Zone: copyZone(st.zone)})
			continue
		}
		delete(e.byKey, st.key)
		st.key = key
		e.byKey[key] = st.zone.ID
		st.zone.MemberKey = key

		// a subset of members always intersects at least as widely
		next, _ := e.compose(ids)
		st.zone.Top, st.zone.Bottom = next.Top, next.Bottom
		st.zone.Strength = next.Strength
		st.zone.MemberPoolIDs = next.MemberPoolIDs
		st.zone.Resolutions = next.Resolutions
		if math.Abs(next.Strength-st.emitted) > e.cfg.Epsilon {
			st.emitted = next.Strength
			st.zone.UpdatedAt = ev.At
			out = append(out, models.ZoneEvent{Kind: models.ZoneUpdated, At: ev.At, Zone: copyZone(st.zone)})
		}
	}
	return out
}

// Recompute rebuilds a zone's region and strength from its current members
// without emitting anything. Repeated calls give the same result.
func (e *Engine) Recompute(zoneID string) (models.Zone, bool) {
	st, ok := e.zones[zoneID]
	if !ok {
		return models.Zone{}, false
	}
	next, ok := e.compose(memberIDs(st.members))
	if !ok {
		return models.Zone{}, false
	}
	next.ID = st.zone.ID
	next.MemberKey = st.key
	next.Side = st.zone.Side
	next.CreatedAt = st.zone.CreatedAt
	next.UpdatedAt = st.zone.UpdatedAt
	return next, true
}

// compose intersects the members' ranges and sums their weighted strength.
// It fails when the intersection is empty.
func (e *Engine) compose(ids []string) (models.Zone, bool) {
	z := models.Zone{
		Bottom:        math.Inf(-1),
		Top:           math.Inf(1),
		MemberPoolIDs: ids,
	}
	seen := make(map[models.Resolution]struct{})
	for _, id := range ids {
		p := e.pools[id]
		z.Bottom = math.Max(z.Bottom, p.Bottom)
		z.Top = math.Min(z.Top, p.Top)
		z.Strength += e.weight(p.Resolution) * p.Strength
		if _, ok := seen[p.Resolution]; !ok {
			seen[p.Resolution] = struct{}{}
			z.Resolutions = append(z.Resolutions, p.Resolution)
		}
	}
	if z.Bottom > z.Top {
		return models.Zone{}, false
	}
	sort.Slice(z.Resolutions, func(i, j int) bool { return z.Resolutions[i] < z.Resolutions[j] })
	return z, true
}

func (e *Engine) weight(res models.Resolution) float64 {
	if w, ok := e.cfg.Weights[res]; ok {
		return w
	}
	return 1
}

func (e *Engine) expire(st *zoneState) {
	for id := range st.members {
		if set, ok := e.byPool[id]; ok {
			delete(set, st.zone.ID)
			if len(set) == 0 {
				delete(e.byPool, id)
			}
		}
	}
	delete(e.zones, st.zone.ID)
	if e.byKey[st.key] == st.zone.ID {
		delete(e.byKey, st.key)
	}
}

// Zone returns a live zone by id.
func (e *Engine) Zone(id string) (models.Zone, bool) {
	st, ok := e.zones[id]
	if !ok {
		return models.Zone{}, false
	}
	return copyZone(st.zone), true
}

// Zones returns every live zone sorted by id.
func (e *Engine) Zones() []models.Zone {
	out := make([]models.Zone, 0, len(e.zones))
	for _, st := range e.zones {
		out = append(out, copyZone(st.zone))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of live zones.
func (e *Engine) Len() int { return len(e.zones) }

// Indexed returns the number of pools on the interval index.
func (e *Engine) Indexed() int { return e.index.Len() }

// ZoneID hashes the sorted member ids, so any ordering of the same set
// yields the same id. It names a zone by its founding members and keys the
// current member set as Zone.MemberKey.
func ZoneID(memberIDs []string) string {
	ids := append([]string(nil), memberIDs...)
	sort.Strings(ids)
	d := xxhash.New()
	var n [8]byte
	for _, id := range ids {
		binary.BigEndian.PutUint64(n[:], uint64(len(id)))
		_, _ = d.Write(n[:])
		_, _ = d.WriteString(id)
	}
	return fmt.Sprintf("zone_%016x", d.Sum64())
}

func memberIDs(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func copyZone(z models.Zone) models.Zone {
	out := z
	out.MemberPoolIDs = append([]string(nil), z.MemberPoolIDs...)
	out.Resolutions = append([]models.Resolution(nil), z.Resolutions...)
	return out
}

// Describe renders a one-line summary for logs.
func Describe(z models.Zone) string {
	return fmt.Sprintf("%s %s [%.5f, %.5f] strength=%.3f members=%s",
		z.ID, z.Side, z.Bottom, z.Top, z.Strength, strings.Join(z.MemberPoolIDs, ","))
}
