package pool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LiqPool/internal/domain/models"
	"LiqPool/pkg/clock"
)

func spec(res models.Resolution, top, bottom float64, created time.Time, ttl time.Duration) models.PoolSpec {
	return models.PoolSpec{
		Resolution:   res,
		Side:         models.SideBullish,
		Kind:         models.PatternGap,
		Top:          top,
		Bottom:       bottom,
		Strength:     0.6,
		TTL:          ttl,
		HitTolerance: 0.5,
		CreatedAt:    created,
	}
}

func TestPoolIDDeterministic(t *testing.T) {
	a := PoolID(models.Res1h, t0, 101.5, 100.25)
	assert.Equal(t, a, PoolID(models.Res1h, t0, 101.5, 100.25))
	assert.Equal(t, "1h_20240102T030405Z_", a[:len("1h_20240102T030405Z_")])
	assert.Len(t, a, len("1h_20240102T030405Z_")+idHashWidth)

	variants := []string{
		PoolID(models.Res4h, t0, 101.5, 100.25),
		PoolID(models.Res1h, t0.Add(time.Second), 101.5, 100.25),
		PoolID(models.Res1h, t0, 101.5000001, 100.25),
		PoolID(models.Res1h, t0, 101.5, 100.2500001),
	}
	for _, v := range variants {
		assert.NotEqual(t, a, v)
	}
	// sub-second differences collapse onto the same id
	assert.Equal(t, a, PoolID(models.Res1h, t0.Add(300*time.Millisecond), 101.5, 100.25))
}

func TestRegistryDuplicateAdd(t *testing.T) {
	r := NewRegistry(t0)
	s := spec(models.Res1h, 101, 100, t0, time.Hour)

	first, err := r.Add(s)
	require.NoError(t, err)
	require.True(t, first.OK)

	second, err := r.Add(s)
	require.NoError(t, err)
	assert.False(t, second.OK)
	assert.Equal(t, ReasonDuplicate, second.Reason)
	assert.Equal(t, first.PoolID, second.PoolID)
	assert.Equal(t, 1, r.Len())
	assert.EqualValues(t, 1, r.GetMetrics().Rejected[ReasonDuplicate])
}

func TestRegistryRejectsInvalidSpec(t *testing.T) {
	r := NewRegistry(t0)
	res, err := r.Add(spec(models.Res1h, 99, 100, t0, time.Hour))
	require.Error(t, err)
	assert.True(t, models.IsValidationError(err))
	assert.Equal(t, ReasonInvalid, res.Reason)
	assert.Zero(t, r.Len())
}

func TestRegistryCapacity(t *testing.T) {
	r := NewRegistry(t0, WithCapacity(models.Res1h, 2))
	for i := 0; i < 2; i++ {
		res, err := r.Add(spec(models.Res1h, 101+float64(i), 100, t0, time.Hour))
		require.NoError(t, err)
		require.True(t, res.OK)
	}
	res, err := r.Add(spec(models.Res1h, 110, 100, t0, time.Hour))
	require.NoError(t, err)
	assert.Equal(t, ReasonCapacity, res.Reason)

	// other resolutions are unaffected
	res, err = r.Add(spec(models.Res4h, 110, 100, t0, time.Hour))
	require.NoError(t, err)
	assert.True(t, res.OK)

	// expiry frees a slot
	_, err = r.ExpireDue(t0.Add(time.Hour))
	require.NoError(t, err)
	res, err = r.Add(spec(models.Res1h, 110, 100, t0.Add(time.Hour), time.Hour))
	require.NoError(t, err)
	assert.True(t, res.OK)
}

func TestRegistryScheduleFailureLeavesNoTrace(t *testing.T) {
	r := NewRegistry(t0)
	_, err := r.ExpireDue(t0.Add(time.Hour))
	require.NoError(t, err)

	// expires before the wheel's current time
	res, err := r.Add(spec(models.Res1h, 101, 100, t0, time.Minute))
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, ReasonScheduleFailed, res.Reason)
	assert.Zero(t, r.Len())
	assert.Empty(t, r.QueryActive(0))
	assert.Zero(t, r.GetMetrics().Scheduled)
	_, ok := r.Get(res.PoolID)
	assert.False(t, ok)
}

func TestRegistryTouch(t *testing.T) {
	r := NewRegistry(t0)
	res, err := r.Add(spec(models.Res1h, 101, 100, t0, time.Hour))
	require.NoError(t, err)
	id := res.PoolID

	assert.Equal(t, ReasonNotFound, r.Touch("nope", 100, t0).Reason)
	assert.Equal(t, ReasonOutOfRange, r.Touch(id, 102, t0.Add(time.Minute)).Reason)
	assert.Equal(t, ReasonInvalid, r.Touch(id, 100.5, t0.Add(-time.Minute)).Reason)

	// within tolerance below the bottom
	require.True(t, r.Touch(id, 99.6, t0.Add(time.Minute)).OK)
	p, ok := r.Get(id)
	require.True(t, ok)
	assert.Equal(t, models.PoolTouched, p.State)
	require.NotNil(t, p.LastTouchedAt)
	assert.Equal(t, t0.Add(time.Minute), *p.LastTouchedAt)

	assert.Equal(t, ReasonNotActive, r.Touch(id, 100.5, t0.Add(2*time.Minute)).Reason)
	assert.Empty(t, r.QueryByState(models.PoolActive, 0))
	assert.Len(t, r.QueryActive(models.Res1h), 1)
}

func TestRegistryExpiryAndGracePurge(t *testing.T) {
	r := NewRegistry(t0, WithGracePeriod(10*time.Minute), WithSweepInterval(time.Minute))
	res, err := r.Add(spec(models.Res1h, 101, 100, t0, time.Second))
	require.NoError(t, err)

	events, err := r.ExpireDue(t0.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.PoolExpire, events[0].Kind)
	assert.Equal(t, res.PoolID, events[0].PoolID)
	assert.Equal(t, t0.Add(time.Second), events[0].At)

	events, err = r.ExpireDue(t0.Add(2 * time.Second))
	require.NoError(t, err)
	assert.Empty(t, events, "expiry must not fire twice")

	// still queryable inside the grace window
	events, err = r.ExpireDue(t0.Add(10 * time.Minute))
	require.NoError(t, err)
	assert.Empty(t, events)
	p, ok := r.Get(res.PoolID)
	require.True(t, ok)
	assert.Equal(t, models.PoolExpired, p.State)
	assert.Len(t, r.QueryByState(models.PoolExpired, 0), 1)
	assert.Empty(t, r.QueryActive(0))

	purged := r.Sweep(t0.Add(time.Second + 10*time.Minute))
	require.Len(t, purged, 1)
	assert.Equal(t, models.PoolPurged, purged[0].Kind)
	_, ok = r.Get(res.PoolID)
	assert.False(t, ok)

	m := r.GetMetrics()
	assert.EqualValues(t, 1, m.Created)
	assert.EqualValues(t, 1, m.Expired)
	assert.EqualValues(t, 1, m.Purged)
	assert.Zero(t, m.Retained)
}

func TestRegistryThrottledSweep(t *testing.T) {
	r := NewRegistry(t0, WithGracePeriod(time.Second), WithSweepInterval(time.Hour))
	_, err := r.Add(spec(models.Res1h, 101, 100, t0, time.Second))
	require.NoError(t, err)

	events, err := r.ExpireDue(t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Equal(t, 1, r.Len())

	events, err = r.ExpireDue(t0.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.PoolPurged, events[0].Kind)
	assert.Zero(t, r.Len())
}

func TestRegistryRemoveCancelsExpiry(t *testing.T) {
	r := NewRegistry(t0)
	res, err := r.Add(spec(models.Res1h, 101, 100, t0, time.Minute))
	require.NoError(t, err)

	p, ok := r.Remove(res.PoolID)
	require.True(t, ok)
	assert.Equal(t, res.PoolID, p.ID)
	_, ok = r.Remove(res.PoolID)
	assert.False(t, ok)

	events, err := r.ExpireDue(t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Zero(t, r.GetMetrics().Scheduled)
}

func TestRegistryBackwardTime(t *testing.T) {
	r := NewRegistry(t0)
	_, err := r.ExpireDue(t0.Add(-time.Second))
	assert.ErrorIs(t, err, clock.ErrBackward)
}

func TestRegistryQueriesSorted(t *testing.T) {
	r := NewRegistry(t0)
	for i := 0; i < 5; i++ {
		_, err := r.Add(spec(models.Res1h, 110+float64(i), 100, t0, time.Hour))
		require.NoError(t, err)
	}
	_, err := r.Add(spec(models.Res15m, 110, 100, t0, time.Hour))
	require.NoError(t, err)

	all := r.QueryActive(0)
	require.Len(t, all, 6)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].ID, all[i].ID)
	}
	assert.Len(t, r.QueryActive(models.Res15m), 1)

	m := r.GetMetrics()
	assert.Equal(t, 6, m.ActiveCount)
	assert.Equal(t, 5, m.ByResolution[models.Res1h].Active)
}
