package overlap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LiqPool/internal/domain/models"
)

var t0 = time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

func created(id string, res models.Resolution, side models.Side, top, bottom, strength float64) models.PoolEvent {
	return models.PoolEvent{
		Kind:       models.PoolCreated,
		At:         t0,
		PoolID:     id,
		Resolution: res,
		Side:       side,
		Top:        top,
		Bottom:     bottom,
		Strength:   strength,
	}
}

func gone(kind models.PoolEventKind, id string, at time.Time) models.PoolEvent {
	return models.PoolEvent{Kind: kind, At: at, PoolID: id}
}

func TestIndexQuery(t *testing.T) {
	x := NewIndex(false)
	require.True(t, x.Insert(Interval{ID: "wide", Side: models.SideBullish, Start: 0, End: 100}))
	require.True(t, x.Insert(Interval{ID: "a", Side: models.SideBullish, Start: 10, End: 12}))
	require.True(t, x.Insert(Interval{ID: "b", Side: models.SideBullish, Start: 50, End: 55}))
	require.True(t, x.Insert(Interval{ID: "bear", Side: models.SideBearish, Start: 10, End: 12}))
	assert.False(t, x.Insert(Interval{ID: "a", Side: models.SideBullish, Start: 1, End: 2}))

	ids := func(ivs []Interval) []string {
		var out []string
		for _, iv := range ivs {
			out = append(out, iv.ID)
		}
		return out
	}
	assert.Equal(t, []string{"wide", "b"}, ids(x.Query(models.SideBullish, 53, 60)))
	assert.Equal(t, []string{"wide", "a"}, ids(x.Query(models.SideBullish, 11, 11)))
	assert.Equal(t, []string{"bear"}, ids(x.Query(models.SideBearish, 0, 100)))
	assert.Empty(t, x.Query(models.SideBullish, 101, 200))

	_, ok := x.Remove("wide")
	require.True(t, ok)
	assert.Equal(t, []string{"b"}, ids(x.Query(models.SideBullish, 53, 60)))
	assert.Equal(t, 3, x.Len())
}

func TestIndexScanBoundShrinksAfterRemove(t *testing.T) {
	x := NewIndex(false)
	require.True(t, x.Insert(Interval{ID: "wide", Side: models.SideBullish, Start: 0, End: 1000}))
	require.True(t, x.Insert(Interval{ID: "mid", Side: models.SideBullish, Start: 100, End: 110}))
	require.True(t, x.Insert(Interval{ID: "narrow", Side: models.SideBullish, Start: 500, End: 502}))
	l := x.list(models.SideBullish)
	assert.Equal(t, 1000.0, l.maxLen)

	_, ok := x.Remove("wide")
	require.True(t, ok)
	assert.Equal(t, 10.0, l.maxLen)

	_, ok = x.Remove("narrow")
	require.True(t, ok)
	assert.Equal(t, 10.0, l.maxLen, "removing a narrower interval keeps the bound")

	_, ok = x.Remove("mid")
	require.True(t, ok)
	assert.Zero(t, l.maxLen)
	assert.Empty(t, x.Query(models.SideBullish, 0, 1000))
}

func TestIndexSideMixing(t *testing.T) {
	x := NewIndex(true)
	x.Insert(Interval{ID: "a", Side: models.SideBullish, Start: 1, End: 2})
	x.Insert(Interval{ID: "b", Side: models.SideBearish, Start: 1, End: 2})
	assert.Len(t, x.Query(models.SideBullish, 1, 2), 2)
}

func TestZoneWeightedStrength(t *testing.T) {
	e := NewEngine(WithMinMembers(3), WithWeight(models.Res1h, 1), WithWeight(models.Res4h, 2))

	assert.Empty(t, e.OnPoolEvent(created("p1", models.Res1h, models.SideBullish, 105, 100, 2.5)))
	assert.Empty(t, e.OnPoolEvent(created("p2", models.Res4h, models.SideBullish, 104, 101, 1.8)))
	evs := e.OnPoolEvent(created("p3", models.Res1h, models.SideBullish, 103, 99, 1.2))
	require.Len(t, evs, 1)

	z := evs[0].Zone
	assert.Equal(t, models.ZoneCreated, evs[0].Kind)
	assert.InDelta(t, 7.3, z.Strength, 1e-9)
	assert.Equal(t, 3, z.MemberCount())
	assert.Equal(t, 101.0, z.Bottom)
	assert.Equal(t, 103.0, z.Top)
	assert.Equal(t, []models.Resolution{models.Res1h, models.Res4h}, z.Resolutions)
	assert.Equal(t, ZoneID([]string{"p3", "p1", "p2"}), z.ID)
}

func TestNoZoneWhenIntersectionCrosses(t *testing.T) {
	e := NewEngine(WithMinMembers(3))
	e.OnPoolEvent(created("left", models.Res1h, models.SideBullish, 102, 100, 1))
	e.OnPoolEvent(created("right", models.Res1h, models.SideBullish, 106, 104, 1))
	// bridges both but left and right do not intersect each other
	evs := e.OnPoolEvent(created("bridge", models.Res1h, models.SideBullish, 105, 101, 1))
	assert.Empty(t, evs)
	assert.Zero(t, e.Len())
}

func TestNoZoneAcrossSides(t *testing.T) {
	e := NewEngine()
	e.OnPoolEvent(created("a", models.Res1h, models.SideBullish, 102, 100, 1))
	assert.Empty(t, e.OnPoolEvent(created("b", models.Res1h, models.SideBearish, 102, 100, 1)))

	mixed := NewEngine(WithSideMixing(true))
	mixed.OnPoolEvent(created("a", models.Res1h, models.SideBullish, 102, 100, 1))
	assert.Len(t, mixed.OnPoolEvent(created("b", models.Res1h, models.SideBearish, 102, 100, 1)), 1)
}

func TestMinStrength(t *testing.T) {
	e := NewEngine(WithMinStrength(1.5))
	e.OnPoolEvent(created("a", models.Res1h, models.SideBullish, 102, 100, 0.5))
	assert.Empty(t, e.OnPoolEvent(created("b", models.Res1h, models.SideBullish, 102, 100, 0.5)))
	assert.Len(t, e.OnPoolEvent(created("c", models.Res1h, models.SideBullish, 102, 100, 0.9)), 1)
}

func TestZoneUpdateAndExpiry(t *testing.T) {
	e := NewEngine(WithMinMembers(3))
	e.OnPoolEvent(created("a", models.Res1h, models.SideBullish, 110, 100, 0.5))
	e.OnPoolEvent(created("b", models.Res1h, models.SideBullish, 108, 102, 0.5))
	evs := e.OnPoolEvent(created("c", models.Res1h, models.SideBullish, 106, 104, 0.25))
	require.Len(t, evs, 1)
	zoneABC := evs[0].Zone.ID
	evs = e.OnPoolEvent(created("d", models.Res1h, models.SideBullish, 105.5, 104.5, 0.25))
	require.Len(t, evs, 1)
	zoneABCD := evs[0].Zone.ID
	require.Equal(t, 2, e.Len())

	at := t0.Add(time.Hour)
	evs = e.OnPoolEvent(gone(models.PoolExpire, "a", at))
	require.Len(t, evs, 2)
	byID := map[string]models.ZoneEvent{}
	for _, ev := range evs {
		byID[ev.Zone.ID] = ev
	}
	assert.Equal(t, models.ZoneExpired, byID[zoneABC].Kind)
	upd := byID[zoneABCD]
	assert.Equal(t, models.ZoneUpdated, upd.Kind, "zone keeps its id when membership shrinks")
	assert.InDelta(t, 1.0, upd.Zone.Strength, 1e-12)
	assert.Equal(t, 104.5, upd.Zone.Bottom)
	assert.Equal(t, 105.5, upd.Zone.Top)
	assert.Equal(t, []string{"b", "c", "d"}, upd.Zone.MemberPoolIDs)
	assert.Equal(t, at, upd.At)
	assert.Equal(t, ZoneID([]string{"a", "b", "c", "d"}), upd.Zone.ID)
	assert.Equal(t, ZoneID(upd.Zone.MemberPoolIDs), upd.Zone.MemberKey)
	z, ok := e.Recompute(zoneABCD)
	require.True(t, ok)
	assert.Equal(t, upd.Zone.MemberKey, z.MemberKey)

	evs = e.OnPoolEvent(gone(models.PoolRemoved, "b", at))
	require.Len(t, evs, 1)
	assert.Equal(t, models.ZoneExpired, evs[0].Kind)
	assert.Zero(t, e.Len())
	assert.Equal(t, 2, e.Indexed())

	// later events for pools already gone change nothing
	assert.Empty(t, e.OnPoolEvent(gone(models.PoolPurged, "a", at)))
}

func TestShrunkZoneMatchingAnotherIsExpired(t *testing.T) {
	e := NewEngine(WithMinMembers(2))
	e.OnPoolEvent(created("a", models.Res1h, models.SideBullish, 110, 100, 0.5))
	first := e.OnPoolEvent(created("b", models.Res1h, models.SideBullish, 108, 102, 0.5))
	require.Len(t, first, 1)
	e.OnPoolEvent(created("c", models.Res1h, models.SideBullish, 106, 104, 0.5))
	require.Equal(t, 2, e.Len())

	evs := e.OnPoolEvent(gone(models.PoolExpire, "c", t0))
	require.Len(t, evs, 1)
	assert.Equal(t, models.ZoneExpired, evs[0].Kind)
	assert.Equal(t, []models.Zone{first[0].Zone}, e.Zones())
}

func TestUpdateSuppressedBelowEpsilon(t *testing.T) {
	e := NewEngine(WithMinMembers(3), WithEpsilon(0.01))
	e.OnPoolEvent(created("a", models.Res1h, models.SideBullish, 110, 100, 0.5))
	e.OnPoolEvent(created("b", models.Res1h, models.SideBullish, 108, 102, 0.5))
	e.OnPoolEvent(created("c", models.Res1h, models.SideBullish, 106, 104, 0.005))
	evs := e.OnPoolEvent(created("d", models.Res1h, models.SideBullish, 105, 103, 0.5))
	require.Len(t, evs, 1)
	zoneID := evs[0].Zone.ID

	evs = e.OnPoolEvent(gone(models.PoolExpire, "c", t0))
	// {a,b,c} falls below three members; {a,b,c,d} changes by 0.005 only
	require.Len(t, evs, 1)
	assert.Equal(t, models.ZoneExpired, evs[0].Kind)

	z, ok := e.Zone(zoneID)
	require.True(t, ok)
	assert.InDelta(t, 1.5, z.Strength, 1e-12)
}

func TestRecomputeIdempotent(t *testing.T) {
	e := NewEngine(WithMinMembers(2), WithWeight(models.Res4h, 2))
	e.OnPoolEvent(created("a", models.Res1h, models.SideBearish, 110, 100, 0.3))
	evs := e.OnPoolEvent(created("b", models.Res4h, models.SideBearish, 108, 102, 0.7))
	require.Len(t, evs, 1)
	id := evs[0].Zone.ID

	first, ok := e.Recompute(id)
	require.True(t, ok)
	second, ok := e.Recompute(id)
	require.True(t, ok)
	assert.Equal(t, first, second)
	assert.Equal(t, id, first.ID)
	assert.InDelta(t, 1.7, first.Strength, 1e-12)
}

func TestTouchIsNoop(t *testing.T) {
	e := NewEngine()
	e.OnPoolEvent(created("a", models.Res1h, models.SideBullish, 110, 100, 0.3))
	ev := created("a", models.Res1h, models.SideBullish, 110, 100, 0.3)
	ev.Kind = models.PoolTouch
	assert.Nil(t, e.OnPoolEvent(ev))
	assert.Empty(t, e.OnPoolEvent(created("a", models.Res1h, models.SideBullish, 110, 100, 0.3)))
}
