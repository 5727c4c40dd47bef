package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
)

// Client wraps the database/sql pool opened on the clickhouse driver.
type Client struct {
	db       *sql.DB
	database string
}

// NewClient opens a pool for cfg and pings it unless WithoutPing is given.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	o := connectOptions{pingTimeout: 5 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	if cfg.Host == "" {
		return nil, errors.New("clickhouse: host is required")
	}

	db, err := sql.Open("clickhouse", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if !o.skipPing {
		ctx, cancel := context.WithTimeout(context.Background(), o.pingTimeout)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("clickhouse ping %s:%d: %w", cfg.Host, cfg.Port, err)
		}
	}
	return &Client{db: db, database: cfg.Database}, nil
}

// NewFromDB wraps an existing pool, e.g. a sqlmock connection in tests.
func NewFromDB(db *sql.DB, database string) *Client {
	return &Client{db: db, database: database}
}

func (c *Client) DB() *sql.DB      { return c.db }
func (c *Client) Database() string { return c.database }

// Health pings the server; used by /healthz.
func (c *Client) Health(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// InitSchema runs idempotent DDL statements in order.
func (c *Client) InitSchema(ctx context.Context, stmts []string) error {
	for i, stmt := range stmts {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema (statement %d): %w", i, err)
		}
	}
	return nil
}
