package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"

	"LiqPool/pkg/logger"
)

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// Permanent marks a handler error that must not be retried; the message
// goes straight to the DLQ (if any).
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Consumer reads each registered topic with its own group reader and hands
// messages to the topic's handler one at a time, in partition order.
type Consumer struct {
	cfg      Config
	log      *logger.Logger
	readers  map[string]*kafka.Reader
	handlers map[string]MessageHandler
	dlq      *kafka.Writer
	wg       sync.WaitGroup
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// NewConsumer creates a consumer; readers are opened in Start.
func NewConsumer(cfg Config, log *logger.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka consumer: brokers are required")
	}
	if log == nil {
		log = logger.Nop()
	}

	c := &Consumer{
		cfg:      cfg,
		log:      log.Component("kafka_consumer"),
		readers:  make(map[string]*kafka.Reader),
		handlers: make(map[string]MessageHandler),
	}
	if cfg.Consumer.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Balancer: &kafka.LeastBytes{}}
	}

	consumerMetricsOnce.Do(initConsumerMetrics)
	return c, nil
}

// RegisterHandler registers a message handler for its topic. A second
// handler for the same topic is rejected.
func (c *Consumer) RegisterHandler(handler MessageHandler) error {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		return fmt.Errorf("handler already registered for topic %s", topic)
	}
	c.handlers[topic] = handler
	return nil
}

// Start launches one reader loop per registered topic.
func (c *Consumer) Start(ctx context.Context) error {
	if len(c.handlers) == 0 {
		return fmt.Errorf("no handlers registered")
	}
	ctx, c.cancel = context.WithCancel(ctx)

	for topic, handler := range c.handlers {
		reader := c.cfg.reader(topic)
		c.readers[topic] = reader

		c.wg.Add(1)
		go c.consume(ctx, reader, handler)
		c.log.Info("kafka consumer started", logger.String("topic", topic), logger.String("group", c.cfg.Consumer.GroupID))
	}
	return nil
}

// Stop cancels the reader loops, waits for in-flight handlers and closes
// the readers.
func (c *Consumer) Stop(ctx context.Context) error {
	var stopErr error
	c.stopOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}

		done := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(done)
		}()
		select {
		case <-ctx.Done():
			stopErr = fmt.Errorf("timeout waiting for consumer to stop: %w", ctx.Err())
		case <-done:
		}

		for topic, reader := range c.readers {
			if err := reader.Close(); err != nil {
				c.log.Warn("close reader", logger.String("topic", topic), logger.Error(err))
			}
		}
		if c.dlq != nil {
			if err := c.dlq.Close(); err != nil {
				c.log.Warn("close dlq writer", logger.Error(err))
			}
		}
	})
	return stopErr
}

func (c *Consumer) consume(ctx context.Context, reader *kafka.Reader, handler MessageHandler) {
	defer c.wg.Done()
	topic := handler.Topic()

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			c.log.Warn("fetch message", logger.String("topic", topic), logger.Error(err))
			consumerErrors.WithLabelValues(topic, "fetch").Inc()
			continue
		}

		start := time.Now()
		herr := c.handle(ctx, handler, msg)
		consumerHandleLatency.WithLabelValues(topic).Observe(time.Since(start).Seconds())

		if herr != nil {
			if ctx.Err() != nil {
				return
			}
			consumerErrors.WithLabelValues(topic, "handle").Inc()
			c.log.Error("message handling failed",
				logger.String("topic", topic),
				logger.Int("partition", msg.Partition),
				logger.Int64("offset", msg.Offset),
				logger.Error(herr),
			)
			// committed either way so a poison message cannot stall the partition
			c.toDLQ(ctx, topic, msg)
		}

		if err := reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.log.Warn("commit offset", logger.String("topic", topic), logger.Error(err))
		}
	}
}

func (c *Consumer) handle(ctx context.Context, handler MessageHandler, msg kafka.Message) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.Consumer.BackoffMin
	bo.MaxInterval = c.cfg.Consumer.BackoffMax
	bo.MaxElapsedTime = 0

	op := func() (opErr error) {
		defer func() {
			if r := recover(); r != nil {
				opErr = backoff.Permanent(fmt.Errorf("panic in handler: %v", r))
			}
		}()
		return handler.Handle(ctx, msg.Value)
	}
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, c.cfg.Consumer.RetryMax), ctx))
}

func (c *Consumer) toDLQ(ctx context.Context, topic string, msg kafka.Message) {
	if c.dlq == nil {
		return
	}
	err := c.dlq.WriteMessages(ctx, kafka.Message{
		Topic:   c.cfg.Consumer.DLQTopic,
		Key:     msg.Key,
		Value:   msg.Value,
		Time:    time.Now(),
		Headers: []kafka.Header{{Key: "source_topic", Value: []byte(topic)}},
	})
	if err != nil {
		c.log.Error("write to dlq", logger.String("dlq", c.cfg.Consumer.DLQTopic), logger.Error(err))
	}
}

var (
	consumerErrors        *prometheus.CounterVec
	consumerHandleLatency *prometheus.HistogramVec
	consumerMetricsOnce   sync.Once
)

func initConsumerMetrics() {
	consumerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liqpool_kafka_consumer_errors_total",
			Help: "Consumer errors by stage",
		},
		[]string{"topic", "stage"},
	)
	consumerHandleLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "liqpool_kafka_consumer_handle_seconds",
			Help: "Handling time per message",
		},
		[]string{"topic"},
	)
}
