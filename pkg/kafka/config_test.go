package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompression(t *testing.T) {
	cases := map[string]kafka.Compression{
		"none":   0,
		"":       0,
		"gzip":   kafka.Gzip,
		"LZ4":    kafka.Lz4,
		"zstd":   kafka.Zstd,
		"snappy": kafka.Snappy,
	}
	for in, want := range cases {
		assert.Equal(t, want, compression(in), in)
	}
}

func TestWriterFromConfig(t *testing.T) {
	cfg := Config{
		Brokers:      []string{"a:9092", "b:9092"},
		RequiredAcks: -1,
		Compression:  "zstd",
		Producer: ProducerConfig{
			MaxAttempts: 4,
			Linger:      5 * time.Millisecond,
			BatchSize:   50,
		},
	}
	w := cfg.writer()
	defer w.Close()

	assert.IsType(t, &kafka.Hash{}, w.Balancer)
	assert.Equal(t, kafka.RequireAll, w.RequiredAcks)
	assert.Equal(t, kafka.Zstd, w.Compression)
	assert.Equal(t, 4, w.MaxAttempts)
	assert.Equal(t, 5*time.Millisecond, w.BatchTimeout)
	assert.False(t, w.Async)
}

func TestNewRequiresBrokers(t *testing.T) {
	_, err := NewProducer(Config{})
	assert.Error(t, err)
	_, err = NewConsumer(Config{}, nil)
	assert.Error(t, err)
}

type topicHandler string

func (h topicHandler) Topic() string                            { return string(h) }
func (h topicHandler) Handle(_ context.Context, _ []byte) error { return nil }

func TestConsumerRejectsDuplicateTopic(t *testing.T) {
	c, err := NewConsumer(Config{Brokers: []string{"a:9092"}}, nil)
	require.NoError(t, err)
	require.NoError(t, c.RegisterHandler(topicHandler("bars")))
	assert.Error(t, c.RegisterHandler(topicHandler("bars")))
}
