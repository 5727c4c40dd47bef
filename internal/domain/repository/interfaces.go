package repository

import (
	"context"
	"time"

	"LiqPool/internal/domain/models"
)

// BarStream is a live source of base-resolution bars.
type BarStream interface {
	Connect(ctx context.Context) error
	Read(ctx context.Context) (<-chan models.Bar, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// BarStore provides read-only historical bars for backtests.
type BarStore interface {
	GetBars(ctx context.Context, symbol string, from, to time.Time) ([]models.Bar, error)
}

// EventPublisher pushes lifecycle events to a message bus.
type EventPublisher interface {
	PublishPoolEvents(ctx context.Context, symbol string, events []models.PoolEvent) error
	PublishZoneEvents(ctx context.Context, symbol string, events []models.ZoneEvent) error
	Close() error
}

// EventStorage persists lifecycle events for analytics.
type EventStorage interface {
	Init(ctx context.Context) error
	StorePoolEvents(ctx context.Context, symbol string, events []models.PoolEvent) error
	StoreZoneEvents(ctx context.Context, symbol string, events []models.ZoneEvent) error
	Health(ctx context.Context) error
	Close() error
}

// Metrics records pipeline activity.
type Metrics interface {
	RecordBar(symbol string, accepted bool, reason string)
	RecordPattern(resolution string, kind string)
	RecordPoolEvent(resolution string, kind string)
	RecordPoolRejected(resolution string, reason string)
	RecordZoneEvent(kind string)
	SetActivePools(resolution string, n int)
	SetActiveZones(n int)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
