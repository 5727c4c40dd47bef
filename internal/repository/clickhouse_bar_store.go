package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"LiqPool/internal/domain/models"
	domrepo "LiqPool/internal/domain/repository"
	pkgch "LiqPool/pkg/clickhouse"
	applogger "LiqPool/pkg/logger"
)

// CHBarStore reads base bars for backtests from a ClickHouse table with
// columns (bucket, symbol, open, high, low, close, vol).
type CHBarStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHBarStore(ch *pkgch.Client, table string, l *applogger.Logger) *CHBarStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHBarStore{db: ch.DB(), table: table, l: l.Component("bar_store")}
}

// GetBars returns bars with from <= bucket < to in ascending time order.
func (s *CHBarStore) GetBars(ctx context.Context, symbol string, from, to time.Time) ([]models.Bar, error) {
	start := time.Now()
	const qtpl = `
        SELECT bucket, symbol, open, high, low, close, vol
        FROM %s
        WHERE symbol = ? AND bucket >= ? AND bucket < ?
        ORDER BY bucket ASC
    `
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(qtpl, s.table), symbol, from.UTC(), to.UTC())
	if err != nil {
		s.l.Error("clickhouse get_bars query error",
			applogger.String("table", s.table),
			applogger.String("symbol", symbol),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("get bars: %w", err)
	}
	defer rows.Close()

	out, err := scanBars(rows)
	if err != nil {
		s.l.Error("clickhouse get_bars scan error",
			applogger.String("table", s.table),
			applogger.String("symbol", symbol),
			applogger.Error(err),
		)
		return nil, err
	}
	s.l.Info("clickhouse get_bars ok",
		applogger.String("table", s.table),
		applogger.String("symbol", symbol),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

func scanBars(rows *sql.Rows) ([]models.Bar, error) {
	out := make([]models.Bar, 0, 1024)
	for rows.Next() {
		var b models.Bar
		if err := rows.Scan(&b.Ts, &b.Symbol, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.Ts = b.Ts.UTC()
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

var _ domrepo.BarStore = (*CHBarStore)(nil)
