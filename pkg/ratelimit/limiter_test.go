package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func TestKeyed_BurstThenRefill(t *testing.T) {
	k := NewKeyed(1, 2, 0)
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.True(t, k.AllowAt("a", t0))
	assert.True(t, k.AllowAt("a", t0))
	assert.False(t, k.AllowAt("a", t0))
	// other keys have their own bucket
	assert.True(t, k.AllowAt("b", t0))

	assert.True(t, k.AllowAt("a", t0.Add(time.Second)))
}

func TestInterval_OnePerPeriod(t *testing.T) {
	k := NewInterval(time.Minute, 0)
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.True(t, k.AllowAt("BTC", t0))
	assert.False(t, k.AllowAt("BTC", t0.Add(30*time.Second)))
	assert.True(t, k.AllowAt("BTC", t0.Add(time.Minute)))
}

func TestKeyed_SweepsIdle(t *testing.T) {
	k := NewKeyed(10, 1, time.Minute)
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	k.AllowAt("a", t0)
	k.AllowAt("b", t0)
	assert.Equal(t, 2, k.Len())

	k.AllowAt("c", t0.Add(2*time.Minute))
	assert.Equal(t, 1, k.Len())
}

func TestMiddleware_429(t *testing.T) {
	e := echo.New()
	e.Use(Middleware(NewKeyed(0.001, 1, 0)))
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	do := func() int {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusOK, do())
	assert.Equal(t, http.StatusTooManyRequests, do())
}
