package aggregation

import (
	"sort"

	"LiqPool/internal/domain/models"
)

// Multi fans one source stream into one Aggregator per resolution.
type Multi struct {
	resolutions []models.Resolution
	aggs        map[models.Resolution]*Aggregator
}

// NewMulti builds one aggregator per distinct resolution, all sharing opts.
func NewMulti(resolutions []models.Resolution, opts ...Option) *Multi {
	m := &Multi{aggs: make(map[models.Resolution]*Aggregator, len(resolutions))}
	for _, r := range resolutions {
		if _, ok := m.aggs[r]; ok {
			continue
		}
		m.aggs[r] = New(r, opts...)
		m.resolutions = append(m.resolutions, r)
	}
	sort.Slice(m.resolutions, func(i, j int) bool { return m.resolutions[i] < m.resolutions[j] })
	return m
}

// Resolutions returns the configured resolutions, finest first.
func (m *Multi) Resolutions() []models.Resolution {
	out := make([]models.Resolution, len(m.resolutions))
	copy(out, m.resolutions)
	return out
}

// Aggregator returns the aggregator for r, or nil.
func (m *Multi) Aggregator(r models.Resolution) *Aggregator { return m.aggs[r] }

// Update feeds bar to every aggregator and returns the completed bars keyed by
// resolution. Every aggregator applies the same ordering rules, so a rejected
// bar is rejected by all of them.
func (m *Multi) Update(bar models.Bar) (map[models.Resolution][]models.Bar, error) {
	var out map[models.Resolution][]models.Bar
	for _, r := range m.resolutions {
		done, ok, err := m.aggs[r].Update(bar)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if out == nil {
			out = make(map[models.Resolution][]models.Bar)
		}
		out[r] = append(out[r], done)
	}
	return out, nil
}

// Flush flushes every aggregator; partial periods are discarded.
func (m *Multi) Flush() map[models.Resolution][]models.Bar {
	var out map[models.Resolution][]models.Bar
	for _, r := range m.resolutions {
		done, ok := m.aggs[r].Flush()
		if !ok {
			continue
		}
		if out == nil {
			out = make(map[models.Resolution][]models.Bar)
		}
		out[r] = append(out[r], done)
	}
	return out
}

// Stats returns per-resolution counters.
func (m *Multi) Stats() map[models.Resolution]Stats {
	out := make(map[models.Resolution]Stats, len(m.aggs))
	for r, a := range m.aggs {
		out[r] = a.Stats()
	}
	return out
}
