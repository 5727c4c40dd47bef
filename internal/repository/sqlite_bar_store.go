package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"LiqPool/internal/domain/models"
	domrepo "LiqPool/internal/domain/repository"
	applogger "LiqPool/pkg/logger"
)

const sqliteBarsDDL = `
CREATE TABLE IF NOT EXISTS bars (
    symbol TEXT    NOT NULL,
    ts_ms  INTEGER NOT NULL,
    open   REAL    NOT NULL,
    high   REAL    NOT NULL,
    low    REAL    NOT NULL,
    close  REAL    NOT NULL,
    volume REAL    NOT NULL,
    PRIMARY KEY (symbol, ts_ms)
)`

// SQLiteBarStore keeps base bars in a local SQLite file so backtests can run
// without a ClickHouse server. Timestamps are stored as unix milliseconds.
type SQLiteBarStore struct {
	db *sql.DB
	l  *applogger.Logger
}

// OpenSQLiteBarStore opens (or creates) the database at path. ":memory:"
// gives a private in-memory store.
func OpenSQLiteBarStore(ctx context.Context, path string, l *applogger.Logger) (*SQLiteBarStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	// one connection keeps ":memory:" databases shared and writes serialized
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteBarsDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &SQLiteBarStore{db: db, l: l.Component("sqlite_bar_store")}, nil
}

// InsertBars upserts bars in one transaction.
func (s *SQLiteBarStore) InsertBars(ctx context.Context, bars []models.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for start := 0; start < len(bars); start += 500 {
		end := min(start+500, len(bars))
		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*7)
		for _, b := range bars[start:end] {
			values = append(values, "(?, ?, ?, ?, ?, ?, ?)")
			args = append(args, b.Symbol, b.Ts.UnixMilli(), b.Open, b.High, b.Low, b.Close, b.Volume)
		}
		q := "INSERT OR REPLACE INTO bars (symbol, ts_ms, open, high, low, close, volume) VALUES " + strings.Join(values, ",")
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert bars: %w", err)
		}
	}
	return tx.Commit()
}

// GetBars returns bars with from <= ts < to in ascending time order.
func (s *SQLiteBarStore) GetBars(ctx context.Context, symbol string, from, to time.Time) ([]models.Bar, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT symbol, ts_ms, open, high, low, close, volume
         FROM bars
         WHERE symbol = ? AND ts_ms >= ? AND ts_ms < ?
         ORDER BY ts_ms ASC`,
		symbol, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("get bars: %w", err)
	}
	defer rows.Close()

	var out []models.Bar
	for rows.Next() {
		var (
			b  models.Bar
			ms int64
		)
		if err := rows.Scan(&b.Symbol, &ms, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.Ts = time.UnixMilli(ms).UTC()
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	s.l.Debug("sqlite get_bars ok", applogger.String("symbol", symbol), applogger.Int("rows", len(out)))
	return out, nil
}

func (s *SQLiteBarStore) Close() error {
	return s.db.Close()
}

var _ domrepo.BarStore = (*SQLiteBarStore)(nil)
