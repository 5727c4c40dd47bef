package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"LiqPool/pkg/http/middleware"
	"LiqPool/pkg/logger"
	"LiqPool/pkg/ratelimit"
)

// Config is the listener part of the server config block.
type Config struct {
	Host            string        `yaml:"host" default:"0.0.0.0"`
	Port            int           `yaml:"port" default:"8080" validate:"gte=0,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	SlowRequest     time.Duration `yaml:"slow_request" default:"500ms"`
	DisableCORS     bool          `yaml:"disable_cors"`
}

// ServerOption configures Server before routes are registered.
type ServerOption func(*Server)

// WithMetricsPath serves the Prometheus registry at path.
func WithMetricsPath(path string) ServerOption {
	return func(s *Server) { s.metricsPath = path }
}

// WithRateLimit applies the per-IP limiter to handler routes. /metrics is
// not limited.
func WithRateLimit(k *ratelimit.Keyed) ServerOption {
	return func(s *Server) { s.limiter = k }
}

// Server is the read-only API listener.
type Server struct {
	cfg         Config
	log         *logger.Logger
	metricsPath string
	limiter     *ratelimit.Keyed
	echo        *echo.Echo
}

// NewServer builds the Echo instance with the middleware stack and registers
// every handler's routes. Nothing listens until Start.
func NewServer(cfg Config, l *logger.Logger, handlers []Handler, opts ...ServerOption) *Server {
	if l == nil {
		l = logger.Nop()
	}
	s := &Server{cfg: cfg, log: l.Component("http")}
	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout

	e.Use(middleware.Recover(s.log))
	e.Use(middleware.RequestLogging(s.log, cfg.SlowRequest))
	e.Use(middleware.Metrics())
	if !cfg.DisableCORS {
		e.Use(middleware.CORS(middleware.CORSConfig{
			AllowOrigins: []string{"*"},
			AllowMethods: []string{http.MethodGet, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}
	if s.metricsPath != "" {
		e.GET(s.metricsPath, echo.WrapHandler(promhttp.Handler()))
	}

	api := e.Group("")
	if s.limiter != nil {
		api.Use(ratelimit.Middleware(s.limiter))
	}
	for _, h := range handlers {
		if h != nil {
			h.RegisterRoutes(api)
		}
	}
	s.echo = e
	return s
}

// Addr is host:port from the config.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
}

// Start binds the port synchronously, so a busy port fails startup, and
// serves in the background.
func (s *Server) Start() error {
	addr := s.Addr()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.echo.Listener = ln

	go func() {
		s.log.Info("http server listening", logger.String("addr", ln.Addr().String()))
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server error", logger.Error(err))
		}
	}()
	return nil
}

// Stop drains in-flight requests within the shutdown timeout.
func (s *Server) Stop(ctx context.Context) error {
	if s.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
	}
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.log.Info("http server stopped")
	return nil
}

// Echo exposes the router, mainly for httptest.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
