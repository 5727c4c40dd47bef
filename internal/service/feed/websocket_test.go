package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serve upgrades, checks the subscribe frame and writes frames, then keeps
// the connection open until the client goes away.
func serve(frames []string, subs chan<- subscribeFrame) *httptest.Server {
	up := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var sub subscribeFrame
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		subs <- sub
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(s *httptest.Server) string { return "ws" + strings.TrimPrefix(s.URL, "http") }

func TestWebsocketStreamForwardsClosedBars(t *testing.T) {
	frames := []string{
		`{"type":"bar","symbol":"btcusdt","t":1714953600000,"o":1,"h":2,"l":0.5,"c":1.5,"v":10,"closed":false}`,
		`{"type":"bar","symbol":"btcusdt","t":1714953600000,"o":1,"h":2,"l":0.5,"c":1.5,"v":12,"closed":true}`,
		`not json`,
		`{"type":"heartbeat"}`,
		`{"type":"bar","t":1714953660000,"o":1.5,"h":2,"l":1,"c":2,"v":3,"closed":true}`,
	}
	subs := make(chan subscribeFrame, 1)
	srv := serve(frames, subs)
	defer srv.Close()

	s := NewWebsocketStream(Config{URL: wsURL(srv), Symbol: "BTCUSDT"}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, s.Connect(ctx))
	assert.True(t, s.IsConnected())
	sub := <-subs
	assert.Equal(t, "subscribe", sub.Type)
	assert.Equal(t, "BTCUSDT", sub.Symbol)
	assert.Equal(t, "1m", sub.Interval)

	bars, _ := s.Read(ctx)
	first := <-bars
	second := <-bars
	assert.Equal(t, "BTCUSDT", first.Symbol)
	assert.Equal(t, 12.0, first.Volume)
	assert.Equal(t, time.UnixMilli(1714953600000).UTC(), first.Ts)
	assert.Equal(t, "BTCUSDT", second.Symbol)
	assert.Equal(t, first.Ts.Add(time.Minute), second.Ts)

	require.NoError(t, s.Close())
	assert.False(t, s.IsConnected())
}

func TestWebsocketStreamReadBeforeConnect(t *testing.T) {
	s := NewWebsocketStream(Config{URL: "ws://127.0.0.1:1"}, nil)
	_, errs := s.Read(context.Background())
	assert.ErrorIs(t, <-errs, ErrNotConnected)
}

func TestWebsocketStreamReconnectGivesUp(t *testing.T) {
	s := NewWebsocketStream(Config{
		URL:             "ws://127.0.0.1:1",
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		MaxElapsed:      20 * time.Millisecond,
	}, nil)
	err := s.Reconnect(context.Background())
	assert.Error(t, err)
	assert.False(t, s.IsConnected())
}
