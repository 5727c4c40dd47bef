package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, s)
}

type fakeComponent struct {
	name     string
	rec      *recorder
	startErr error
}

func (f *fakeComponent) Start(context.Context) error {
	f.rec.add("start " + f.name)
	return f.startErr
}

func (f *fakeComponent) Stop(context.Context) error {
	f.rec.add("stop " + f.name)
	return nil
}

func TestAppStartsAndStopsInOrder(t *testing.T) {
	rec := &recorder{}
	app := New(nil, nil,
		WithComponent("collector", &fakeComponent{name: "collector", rec: rec}),
		WithComponent("consumer", &fakeComponent{name: "consumer", rec: rec}),
		WithCloser("cache", func() error { rec.add("close cache"); return nil }),
		WithShutdownTimeout(time.Second),
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, app.Run(ctx))
	assert.Equal(t, []string{
		"start collector", "start consumer",
		"stop consumer", "stop collector",
		"close cache",
	}, rec.calls)
}

func TestAppStartFailureStopsStarted(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("boom")
	app := New(nil, nil,
		WithComponent("collector", &fakeComponent{name: "collector", rec: rec}),
		WithComponent("consumer", &fakeComponent{name: "consumer", rec: rec, startErr: boom}),
		WithCloser("cache", func() error { rec.add("close cache"); return nil }),
	)

	assert.ErrorIs(t, app.Run(context.Background()), boom)
	assert.Equal(t, []string{"start collector", "start consumer", "stop collector", "close cache"}, rec.calls)
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]Check
		code   int
	}{
		{"all ok", map[string]Check{"cache": func(context.Context) error { return nil }}, http.StatusOK},
		{"one down", map[string]Check{
			"cache":      func(context.Context) error { return nil },
			"clickhouse": func(context.Context) error { return errors.New("dial tcp: refused") },
		}, http.StatusServiceUnavailable},
		{"no checks", nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			NewHealth(tt.checks).RegisterRoutes(e.Group(""))
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}
