package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"LiqPool/internal/domain/models"
	"LiqPool/internal/domain/repository"
	pkgch "LiqPool/pkg/clickhouse"
	applogger "LiqPool/pkg/logger"
)

// insertChunk caps the rows of one multi-row INSERT.
const insertChunk = 2000

const poolEventsDDL = `
CREATE TABLE IF NOT EXISTS %s (
    at          DateTime64(3, 'UTC'),
    symbol      LowCardinality(String),
    kind        LowCardinality(String),
    pool_id     String,
    resolution  UInt32,
    side        LowCardinality(String),
    top         Float64,
    bottom      Float64,
    strength    Float64
) ENGINE = MergeTree
PARTITION BY toYYYYMM(at)
ORDER BY (symbol, at, pool_id)`

const zoneEventsDDL = `
CREATE TABLE IF NOT EXISTS %s (
    at          DateTime64(3, 'UTC'),
    symbol      LowCardinality(String),
    kind        LowCardinality(String),
    zone_id     String,
    side        LowCardinality(String),
    top         Float64,
    bottom      Float64,
    strength    Float64,
    members     Array(String)
) ENGINE = MergeTree
PARTITION BY toYYYYMM(at)
ORDER BY (symbol, at, zone_id)`

// ClickHouseEventStorage writes pool and zone lifecycle events.
type ClickHouseEventStorage struct {
	ch         *pkgch.Client
	db         *sql.DB
	poolsTable string
	zonesTable string
	l          *applogger.Logger
}

// NewClickHouseEventStorage creates event storage on top of ch.
func NewClickHouseEventStorage(ch *pkgch.Client, poolsTable, zonesTable string, l *applogger.Logger) *ClickHouseEventStorage {
	if l == nil {
		l = applogger.Nop()
	}
	return &ClickHouseEventStorage{
		ch:         ch,
		db:         ch.DB(),
		poolsTable: poolsTable,
		zonesTable: zonesTable,
		l:          l.Component("event_storage"),
	}
}

// Init creates the event tables when missing.
func (s *ClickHouseEventStorage) Init(ctx context.Context) error {
	return s.ch.InitSchema(ctx, []string{
		fmt.Sprintf(poolEventsDDL, s.poolsTable),
		fmt.Sprintf(zoneEventsDDL, s.zonesTable),
	})
}

func (s *ClickHouseEventStorage) StorePoolEvents(ctx context.Context, symbol string, events []models.PoolEvent) error {
	for start := 0; start < len(events); start += insertChunk {
		end := min(start+insertChunk, len(events))

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*9)
		for _, ev := range events[start:end] {
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				ev.At.UTC(),
				symbol,
				string(ev.Kind),
				ev.PoolID,
				uint32(ev.Resolution),
				string(ev.Side),
				ev.Top,
				ev.Bottom,
				ev.Strength,
			)
		}
		q := fmt.Sprintf("INSERT INTO %s (at, symbol, kind, pool_id, resolution, side, top, bottom, strength) VALUES %s",
			s.poolsTable, strings.Join(values, ","))
		if err := s.exec(ctx, q, args, s.poolsTable, end-start); err != nil {
			return fmt.Errorf("store pool events: %w", err)
		}
	}
	return nil
}

func (s *ClickHouseEventStorage) StoreZoneEvents(ctx context.Context, symbol string, events []models.ZoneEvent) error {
	for start := 0; start < len(events); start += insertChunk {
		end := min(start+insertChunk, len(events))

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*9)
		for _, ev := range events[start:end] {
			z := ev.Zone
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				ev.At.UTC(),
				symbol,
				string(ev.Kind),
				z.ID,
				string(z.Side),
				z.Top,
				z.Bottom,
				z.Strength,
				z.MemberPoolIDs,
			)
		}
		q := fmt.Sprintf("INSERT INTO %s (at, symbol, kind, zone_id, side, top, bottom, strength, members) VALUES %s",
			s.zonesTable, strings.Join(values, ","))
		if err := s.exec(ctx, q, args, s.zonesTable, end-start); err != nil {
			return fmt.Errorf("store zone events: %w", err)
		}
	}
	return nil
}

func (s *ClickHouseEventStorage) exec(ctx context.Context, q string, args []interface{}, table string, rows int) error {
	start := time.Now()
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		s.l.Error("clickhouse insert error",
			applogger.String("table", table),
			applogger.Int("rows", rows),
			applogger.Error(err),
		)
		return err
	}
	s.l.Debug("clickhouse insert ok",
		applogger.String("table", table),
		applogger.Int("rows", rows),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return nil
}

func (s *ClickHouseEventStorage) Health(ctx context.Context) error {
	return s.ch.Health(ctx)
}

// Close is a no-op; the client is owned by the caller.
func (s *ClickHouseEventStorage) Close() error {
	return nil
}

var _ repository.EventStorage = (*ClickHouseEventStorage)(nil)
