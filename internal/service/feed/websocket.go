// Package feed implements live bar streams.
package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"LiqPool/internal/domain/models"
	drepo "LiqPool/internal/domain/repository"
	"LiqPool/pkg/logger"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrNotConnected is returned when the stream is used before Connect.
var ErrNotConnected = errors.New("feed: not connected")

// Config holds the websocket stream settings.
type Config struct {
	URL          string
	Symbol       string
	Interval     string
	PingInterval time.Duration
	// reconnect backoff
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration
}

// WebsocketStream reads closed base bars from a websocket endpoint. After
// connecting it sends one subscribe frame; the server replies with frames of
// type "bar", and only bars flagged closed are forwarded.
type WebsocketStream struct {
	cfg    Config
	log    *logger.Logger
	dialer *websocket.Dialer

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
}

// NewWebsocketStream creates a stream; nothing is dialed until Connect.
func NewWebsocketStream(cfg Config, log *logger.Logger) *WebsocketStream {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.Interval == "" {
		cfg.Interval = "1m"
	}
	if log == nil {
		log = logger.Nop()
	}
	return &WebsocketStream{
		cfg:    cfg,
		log:    log.Component("ws_feed").With(logger.String("symbol", cfg.Symbol)),
		dialer: websocket.DefaultDialer,
	}
}

type subscribeFrame struct {
	Type     string `json:"type"`
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
}

type barFrame struct {
	Type   string  `json:"type"`
	Symbol string  `json:"symbol"`
	T      int64   `json:"t"` // open time, ms
	O      float64 `json:"o"`
	H      float64 `json:"h"`
	L      float64 `json:"l"`
	C      float64 `json:"c"`
	V      float64 `json:"v"`
	Closed bool    `json:"closed"`
}

// Connect dials the endpoint and subscribes to the configured symbol.
func (s *WebsocketStream) Connect(ctx context.Context) error {
	conn, _, err := s.dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("feed connect: %w", err)
	}
	sub := subscribeFrame{Type: "subscribe", Symbol: s.cfg.Symbol, Interval: s.cfg.Interval}
	if err := conn.WriteJSON(sub); err != nil {
		_ = conn.Close()
		return fmt.Errorf("feed subscribe %s: %w", s.cfg.Symbol, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()
	s.log.Info("feed connected", logger.String("url", s.cfg.URL))
	return nil
}

// Read streams bars until the connection fails or ctx ends. The error
// channel receives at most one error; both channels are closed on exit.
// Call Read again after Reconnect.
func (s *WebsocketStream) Read(ctx context.Context) (<-chan models.Bar, <-chan error) {
	bars := make(chan models.Bar, 256)
	errs := make(chan error, 1)

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		errs <- ErrNotConnected
		close(errs)
		close(bars)
		return bars, errs
	}

	done := make(chan struct{})
	go s.ping(ctx, conn, done)

	go func() {
		defer close(bars)
		defer close(errs)
		defer close(done)
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					s.setDisconnected(conn)
					errs <- fmt.Errorf("feed read: %w", err)
				}
				return
			}
			bar, ok := s.decode(b)
			if !ok {
				continue
			}
			select {
			case bars <- bar:
			case <-ctx.Done():
				return
			}
		}
	}()

	// unblock ReadMessage on cancellation
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	return bars, errs
}

func (s *WebsocketStream) decode(b []byte) (models.Bar, bool) {
	var f barFrame
	if err := json.Unmarshal(b, &f); err != nil {
		s.log.Debug("skip undecodable frame", logger.Error(err))
		return models.Bar{}, false
	}
	if f.Type != "bar" || !f.Closed {
		return models.Bar{}, false
	}
	sym := f.Symbol
	if sym == "" {
		sym = s.cfg.Symbol
	}
	return models.Bar{
		Symbol: strings.ToUpper(sym),
		Ts:     time.UnixMilli(f.T).UTC(),
		Open:   f.O,
		High:   f.H,
		Low:    f.L,
		Close:  f.C,
		Volume: f.V,
	}, true
}

func (s *WebsocketStream) ping(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			s.mu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			s.mu.Unlock()
			if err != nil {
				s.log.Warn("feed ping failed", logger.Error(err))
			}
		}
	}
}

// Reconnect closes the current connection and redials with exponential
// backoff until it succeeds, MaxElapsed passes or ctx ends.
func (s *WebsocketStream) Reconnect(ctx context.Context) error {
	_ = s.Close()

	bo := backoff.NewExponentialBackOff()
	if s.cfg.InitialInterval > 0 {
		bo.InitialInterval = s.cfg.InitialInterval
	}
	if s.cfg.MaxInterval > 0 {
		bo.MaxInterval = s.cfg.MaxInterval
	}
	bo.MaxElapsedTime = s.cfg.MaxElapsed

	return backoff.RetryNotify(
		func() error { return s.Connect(ctx) },
		backoff.WithContext(bo, ctx),
		func(err error, wait time.Duration) {
			s.log.Warn("feed reconnect failed", logger.Duration("wait", wait), logger.Error(err))
		},
	)
}

// Close closes the connection.
func (s *WebsocketStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// IsConnected reports whether the last Connect succeeded and no read failed
// since.
func (s *WebsocketStream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *WebsocketStream) setDisconnected(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == conn {
		s.connected = false
	}
}

var _ drepo.BarStream = (*WebsocketStream)(nil)
