package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	xhttp "LiqPool/pkg/http"
	applogger "LiqPool/pkg/logger"
)

// Component is a long-running part of the app started before the HTTP
// server and stopped after it.
type Component interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Check reports whether a dependency is usable.
type Check func(ctx context.Context) error

type namedComponent struct {
	name string
	c    Component
}

type namedCloser struct {
	name string
	fn   func() error
}

// AppOption configures App.
type AppOption func(*App)

// WithComponent appends a component. Components start in the order given
// and stop in reverse.
func WithComponent(name string, c Component) AppOption {
	return func(a *App) {
		if c != nil {
			a.components = append(a.components, namedComponent{name: name, c: c})
		}
	}
}

// WithCloser registers a release step run after every component stopped.
func WithCloser(name string, fn func() error) AppOption {
	return func(a *App) {
		if fn != nil {
			a.closers = append(a.closers, namedCloser{name: name, fn: fn})
		}
	}
}

// WithShutdownTimeout bounds the whole shutdown sequence.
func WithShutdownTimeout(d time.Duration) AppOption {
	return func(a *App) { a.shutdownTimeout = d }
}

// App encapsulates the entire application lifecycle.
type App struct {
	log             *applogger.Logger
	httpServer      *xhttp.Server
	components      []namedComponent
	closers         []namedCloser
	shutdownTimeout time.Duration
}

// New creates a new App around an already configured HTTP server.
func New(l *applogger.Logger, httpServer *xhttp.Server, opts ...AppOption) *App {
	if l == nil {
		l = applogger.Nop()
	}
	a := &App{
		log:             l.Component("app"),
		httpServer:      httpServer,
		shutdownTimeout: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts every component and the HTTP server, then blocks until ctx
// ends or SIGINT/SIGTERM arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	started := 0
	for _, nc := range a.components {
		if err := nc.c.Start(ctx); err != nil {
			a.log.Error("component start failed", applogger.String("component", nc.name), applogger.Error(err))
			a.shutdown(started)
			return err
		}
		a.log.Info("component started", applogger.String("component", nc.name))
		started++
	}

	if a.httpServer != nil {
		if err := a.httpServer.Start(); err != nil {
			a.log.Error("http server start error", applogger.Error(err))
			a.shutdown(started)
			return err
		}
	}

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	a.shutdown(started)
	return nil
}

// shutdown stops the HTTP server, then the first n components in reverse,
// then runs the closers.
func (a *App) shutdown(n int) {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
		}
	}
	for i := n - 1; i >= 0; i-- {
		nc := a.components[i]
		if err := nc.c.Stop(ctx); err != nil {
			a.log.Warn("component stop error", applogger.String("component", nc.name), applogger.Error(err))
		}
	}
	for _, c := range a.closers {
		if err := c.fn(); err != nil {
			a.log.Warn("close error", applogger.String("resource", c.name), applogger.Error(err))
		}
	}
	a.log.Info("shutdown complete")
}

// Health serves GET /healthz from a set of named checks.
type Health struct {
	checks  map[string]Check
	timeout time.Duration
}

func NewHealth(checks map[string]Check) *Health {
	return &Health{checks: checks, timeout: 2 * time.Second}
}

func (h *Health) RegisterRoutes(g *echo.Group) {
	g.GET("/healthz", h.Handle)
}

type checkResult struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func (h *Health) Handle(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	out := make([]checkResult, 0, len(names))
	for _, name := range names {
		r := checkResult{Name: name, OK: true}
		if err := h.checks[name](ctx); err != nil {
			r.OK = false
			r.Error = err.Error()
			status = http.StatusServiceUnavailable
		}
		out = append(out, r)
	}
	return xhttp.DataResponse(c, status, out)
}

var _ xhttp.Handler = (*Health)(nil)
