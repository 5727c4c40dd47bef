package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LiqPool/internal/domain/models"
	"LiqPool/internal/services/pool"
	"LiqPool/internal/usecase"
	"LiqPool/pkg/cache"
	xhttp "LiqPool/pkg/http"
)

var at = time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, withSnapshot bool) http.Handler {
	t.Helper()
	mc := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mc.Close() })

	if withSnapshot {
		active, err := models.NewPool("p-1", models.PoolSpec{
			Resolution: models.Res1m, Side: models.SideBullish, Top: 103, Bottom: 101,
			Strength: 0.5, TTL: time.Hour, CreatedAt: at.Add(-time.Minute),
		})
		require.NoError(t, err)
		old, err := models.NewPool("p-2", models.PoolSpec{
			Resolution: models.Res1h, Side: models.SideBearish, Top: 99, Bottom: 98,
			Strength: 0.2, TTL: time.Hour, CreatedAt: at.Add(-2 * time.Hour),
		})
		require.NoError(t, err)
		snap := usecase.Snapshot{
			Symbol: "BTCUSDT",
			At:     at,
			Pools:  []models.Pool{active, old.WithExpired(at.Add(-time.Hour))},
			Zones: []models.Zone{{
				ID: "z-1", Side: models.SideBullish, Top: 103, Bottom: 101, Strength: 0.5,
				MemberPoolIDs: []string{"p-1"}, CreatedAt: at, UpdatedAt: at,
			}},
			Metrics: pool.Metrics{Created: 2, Expired: 1, ActiveCount: 1},
		}
		require.NoError(t, usecase.NewSnapshotWriter(mc, time.Minute, nil).Write(context.Background(), snap))
	}

	h := NewPoolsHandler(nil, usecase.NewQueryUseCase(mc, "BTCUSDT"))
	srv := xhttp.NewServer(xhttp.Config{DisableCORS: true}, nil, []xhttp.Handler{h})
	return srv.Echo()
}

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func get(t *testing.T, h http.Handler, path string) (int, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func TestPoolsEndpoint(t *testing.T) {
	h := newTestServer(t, true)

	tests := []struct {
		name  string
		path  string
		code  int
		total int
	}{
		{"live by default", "/api/pools", http.StatusOK, 1},
		{"expired", "/api/pools?state=expired", http.StatusOK, 1},
		{"resolution filter", "/api/pools?resolution=1h", http.StatusOK, 0},
		{"bad state", "/api/pools?state=gone", http.StatusBadRequest, 0},
		{"bad resolution", "/api/pools?resolution=7s", http.StatusBadRequest, 0},
		{"zero limit uses default", "/api/pools?limit=0", http.StatusOK, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := get(t, h, tt.path)
			assert.Equal(t, tt.code, code)
			if code != http.StatusOK {
				return
			}
			var list struct {
				Rows  []models.Pool `json:"rows"`
				Total int           `json:"total"`
			}
			require.NoError(t, json.Unmarshal(env.Data, &list))
			assert.Equal(t, tt.total, list.Total)
			assert.Len(t, list.Rows, tt.total)
		})
	}
}

func TestPoolByID(t *testing.T) {
	h := newTestServer(t, true)

	code, env := get(t, h, "/api/pools/p-1")
	require.Equal(t, http.StatusOK, code)
	var p models.Pool
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.Equal(t, "p-1", p.ID)
	assert.Equal(t, models.PoolActive, p.State)

	code, _ = get(t, h, "/api/pools/nope")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestZonesEndpoint(t *testing.T) {
	h := newTestServer(t, true)

	code, env := get(t, h, "/api/zones?side=bullish")
	require.Equal(t, http.StatusOK, code)
	var list struct {
		Rows  []models.Zone `json:"rows"`
		Total int           `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Equal(t, 1, list.Total)
	assert.Equal(t, []string{"p-1"}, list.Rows[0].MemberPoolIDs)

	code, _ = get(t, h, "/api/zones?side=sideways")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestRegistryMetricsEndpoint(t *testing.T) {
	h := newTestServer(t, true)

	code, env := get(t, h, "/api/registry/metrics")
	require.Equal(t, http.StatusOK, code)
	var m registryMetrics
	require.NoError(t, json.Unmarshal(env.Data, &m))
	assert.Equal(t, "BTCUSDT", m.Symbol)
	assert.Equal(t, int64(2), m.Pools.Created)
	assert.True(t, at.Equal(m.At))
}

func TestNoSnapshotIsUnavailable(t *testing.T) {
	h := newTestServer(t, false)
	for _, path := range []string{"/api/pools", "/api/zones", "/api/registry/metrics", "/api/pools/p-1"} {
		code, _ := get(t, h, path)
		assert.Equal(t, http.StatusServiceUnavailable, code, path)
	}
}
