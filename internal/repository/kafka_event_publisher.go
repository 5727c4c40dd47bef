package repository

import (
	"context"

	"LiqPool/internal/domain/models"
	"LiqPool/internal/domain/repository"
	pkgkafka "LiqPool/pkg/kafka"
)

// KafkaEventPublisher publishes lifecycle events keyed by symbol, so one
// symbol's events stay on one partition in emission order.
type KafkaEventPublisher struct {
	producer   *pkgkafka.Producer
	poolsTopic string
	zonesTopic string
}

func NewKafkaEventPublisher(producer *pkgkafka.Producer, poolsTopic, zonesTopic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer, poolsTopic: poolsTopic, zonesTopic: zonesTopic}
}

type poolEventMessage struct {
	Symbol string `json:"symbol"`
	models.PoolEvent
}

type zoneEventMessage struct {
	Symbol string `json:"symbol"`
	models.ZoneEvent
}

func (p *KafkaEventPublisher) PublishPoolEvents(ctx context.Context, symbol string, events []models.PoolEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(events))
	for i, ev := range events {
		msgs[i] = pkgkafka.Message{
			Key:     []byte(symbol),
			Value:   poolEventMessage{Symbol: symbol, PoolEvent: ev},
			Headers: map[string]string{"kind": string(ev.Kind)},
		}
	}
	return p.producer.PublishBatch(ctx, p.poolsTopic, msgs)
}

func (p *KafkaEventPublisher) PublishZoneEvents(ctx context.Context, symbol string, events []models.ZoneEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(events))
	for i, ev := range events {
		msgs[i] = pkgkafka.Message{
			Key:     []byte(symbol),
			Value:   zoneEventMessage{Symbol: symbol, ZoneEvent: ev},
			Headers: map[string]string{"kind": string(ev.Kind)},
		}
	}
	return p.producer.PublishBatch(ctx, p.zonesTopic, msgs)
}

// Close is a no-op; the producer is shared and owned by the caller.
func (p *KafkaEventPublisher) Close() error { return nil }

var _ repository.EventPublisher = (*KafkaEventPublisher)(nil)
