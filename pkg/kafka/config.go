package kafka

import (
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// Config is the broker part of the kafka config block. Topic names are
// chosen by the callers.
type Config struct {
	Brokers      []string       `yaml:"brokers"`
	RequiredAcks int            `yaml:"required_acks" default:"-1" validate:"oneof=-1 0 1"`
	Compression  string         `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
	Producer     ProducerConfig `yaml:"producer"`
	Consumer     ConsumerConfig `yaml:"consumer"`
}

type ProducerConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" default:"5" validate:"gte=1"`
	Linger       time.Duration `yaml:"linger" default:"10ms"`
	BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
	BatchSize    int           `yaml:"batch_size" default:"100"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
	// Async drops write errors; keep it off when events must not be lost.
	Async bool `yaml:"async"`
}

type ConsumerConfig struct {
	GroupID    string        `yaml:"group_id" default:"liqpool"`
	StartAt    string        `yaml:"start_at" default:"first" validate:"oneof=first last"`
	MinBytes   int           `yaml:"min_bytes" default:"1"`
	MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
	MaxWait    time.Duration `yaml:"max_wait" default:"500ms"`
	RetryMax   uint64        `yaml:"retry_max" default:"3"`
	BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
	BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
	DLQTopic   string        `yaml:"dlq_topic"`
}

// writer builds the producer's writer. Keys are hashed so every event of one
// pool or zone lands on the same partition.
func (c Config) writer() *kafka.Writer {
	p := c.Producer
	return &kafka.Writer{
		Addr:         kafka.TCP(c.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequiredAcks(c.RequiredAcks),
		Compression:  compression(c.Compression),
		MaxAttempts:  p.MaxAttempts,
		WriteTimeout: p.WriteTimeout,
		ReadTimeout:  p.ReadTimeout,
		BatchSize:    p.BatchSize,
		BatchBytes:   int64(p.BatchBytes),
		BatchTimeout: p.Linger,
		Async:        p.Async,
	}
}

func (c Config) reader(topic string) *kafka.Reader {
	cc := c.Consumer
	start := kafka.FirstOffset
	if cc.StartAt == "last" {
		start = kafka.LastOffset
	}
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     c.Brokers,
		Topic:       topic,
		GroupID:     cc.GroupID,
		StartOffset: start,
		MinBytes:    cc.MinBytes,
		MaxBytes:    cc.MaxBytes,
		MaxWait:     cc.MaxWait,
	})
}

func compression(s string) kafka.Compression {
	switch strings.ToLower(s) {
	case "none", "":
		return 0
	case "gzip":
		return kafka.Gzip
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Snappy
	}
}
