package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu      sync.Mutex
	topic   string
	batches [][]DigestEntry
}

func (p *capturePublisher) Publish(_ context.Context, topic string, _ []byte, value interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic = topic
	p.batches = append(p.batches, value.([]DigestEntry))
	return nil
}

func TestFieldsAreWritten(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, zerolog.DebugLevel).Component("registry")
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.Info("pool created",
		String("pool_id", "1h_x"),
		Int("members", 3),
		Float64("strength", 0.75),
		Time("at", at),
		Error(errors.New("boom")),
	)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "registry", entry["component"])
	assert.Equal(t, "1h_x", entry["pool_id"])
	assert.EqualValues(t, 3, entry["members"])
	assert.EqualValues(t, 0.75, entry["strength"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "pool created", entry["message"])
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, zerolog.WarnLevel)
	l.Debug("hidden")
	l.Info("hidden")
	assert.Zero(t, buf.Len())
	assert.False(t, l.Enabled(zerolog.DebugLevel))
	l.Warn("shown")
	assert.NotZero(t, buf.Len())
}

func TestNopDiscards(t *testing.T) {
	l := Nop()
	l.Error("nothing", String("k", "v"))
	l.With(Int("n", 1)).Info("still nothing")
}

func TestDigestDeduplicates(t *testing.T) {
	pub := &capturePublisher{}
	d := NewDigest(DigestConfig{Interval: time.Hour, MaxEntries: 10, Topic: "liqpool.logs", Publisher: pub})

	l := Nop()
	l.AttachDigest(d)
	for i := 0; i < 3; i++ {
		l.Warn("feed reconnect", String("feed", "ws"))
	}
	l.Error("sink failed", String("sink", "kafka"))
	l.Info("not collected")
	assert.Equal(t, 2, d.Pending())

	l.DetachDigest()
	require.Len(t, pub.batches, 1)
	assert.Equal(t, "liqpool.logs", pub.topic)

	counts := map[string]int{}
	for _, e := range pub.batches[0] {
		counts[e.Message] = e.Count
	}
	assert.Equal(t, map[string]int{"feed reconnect": 3, "sink failed": 1}, counts)
}

func TestInvalidLevel(t *testing.T) {
	_, err := New(&Config{Level: "loud", Output: "stdout"})
	assert.Error(t, err)
}
