package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"LiqPool/internal/domain/models"
	"LiqPool/internal/services/pool"
	"LiqPool/pkg/cache"
	"LiqPool/pkg/logger"
)

// ErrNoSnapshot is returned by readers before the first snapshot is written.
var ErrNoSnapshot = errors.New("no snapshot for symbol")

// ErrPoolNotFound is returned when a pool id is not in the snapshot.
var ErrPoolNotFound = errors.New("pool not found")

func poolsKey(symbol string) string   { return cache.Key("liqpool", symbol, "pools") }
func zonesKey(symbol string) string   { return cache.Key("liqpool", symbol, "zones") }
func metricsKey(symbol string) string { return cache.Key("liqpool", symbol, "metrics") }
func stampKey(symbol string) string   { return cache.Key("liqpool", symbol, "at") }

// SnapshotWriter publishes the pipeline's read-side state to the cache.
type SnapshotWriter struct {
	cache cache.Service
	ttl   time.Duration
	log   *logger.Logger
}

func NewSnapshotWriter(c cache.Service, ttl time.Duration, log *logger.Logger) *SnapshotWriter {
	if log == nil {
		log = logger.Nop()
	}
	return &SnapshotWriter{cache: c, ttl: ttl, log: log.Component("snapshot")}
}

// Write stores pools, zones and metrics in one MSet.
func (w *SnapshotWriter) Write(ctx context.Context, s Snapshot) error {
	err := w.cache.MSet(ctx, map[string]interface{}{
		poolsKey(s.Symbol):   s.Pools,
		zonesKey(s.Symbol):   s.Zones,
		metricsKey(s.Symbol): s.Metrics,
		stampKey(s.Symbol):   s.At,
	}, w.ttl)
	if err != nil {
		w.log.Warn("snapshot write failed", logger.String("symbol", s.Symbol), logger.Error(err))
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// QueryUseCase answers read-only API queries from the cached snapshot, so
// API readers never take the pipeline lock.
type QueryUseCase struct {
	cache  cache.Service
	symbol string
}

func NewQueryUseCase(c cache.Service, symbol string) *QueryUseCase {
	return &QueryUseCase{cache: c, symbol: symbol}
}

// Symbol returns the symbol the queries are answered for.
func (q *QueryUseCase) Symbol() string { return q.symbol }

// Pools lists pools filtered by resolution ("" for all) and state. State
// "live" matches active and touched pools. Results are newest first.
func (q *QueryUseCase) Pools(ctx context.Context, res models.Resolution, state string, limit int) ([]models.Pool, int, error) {
	all, err := q.pools(ctx)
	if err != nil {
		return nil, 0, err
	}
	var out []models.Pool
	for _, p := range all {
		if res != 0 && p.Resolution != res {
			continue
		}
		if !matchState(p.State, state) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	total := len(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

// Pool returns one pool by id.
func (q *QueryUseCase) Pool(ctx context.Context, id string) (models.Pool, error) {
	all, err := q.pools(ctx)
	if err != nil {
		return models.Pool{}, err
	}
	for _, p := range all {
		if p.ID == id {
			return p, nil
		}
	}
	return models.Pool{}, ErrPoolNotFound
}

// Zones lists live zones, strongest first, optionally filtered by side.
func (q *QueryUseCase) Zones(ctx context.Context, side string, limit int) ([]models.Zone, int, error) {
	all, err := cache.GetTyped[[]models.Zone](ctx, q.cache, zonesKey(q.symbol))
	if err != nil {
		return nil, 0, q.miss(err)
	}
	var out []models.Zone
	for _, z := range all {
		if side != "" && side != "all" && string(z.Side) != side {
			continue
		}
		out = append(out, z)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Strength != out[j].Strength {
			return out[i].Strength > out[j].Strength
		}
		return out[i].ID < out[j].ID
	})
	total := len(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

// Metrics returns the registry counters and the snapshot time.
func (q *QueryUseCase) Metrics(ctx context.Context) (pool.Metrics, time.Time, error) {
	m, err := cache.GetTyped[pool.Metrics](ctx, q.cache, metricsKey(q.symbol))
	if err != nil {
		return pool.Metrics{}, time.Time{}, q.miss(err)
	}
	at, err := cache.GetTyped[time.Time](ctx, q.cache, stampKey(q.symbol))
	if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		return pool.Metrics{}, time.Time{}, err
	}
	return m, at, nil
}

func (q *QueryUseCase) pools(ctx context.Context) ([]models.Pool, error) {
	all, err := cache.GetTyped[[]models.Pool](ctx, q.cache, poolsKey(q.symbol))
	if err != nil {
		return nil, q.miss(err)
	}
	return all, nil
}

func (q *QueryUseCase) miss(err error) error {
	if errors.Is(err, cache.ErrCacheMiss) {
		return ErrNoSnapshot
	}
	return fmt.Errorf("read snapshot: %w", err)
}

func matchState(s models.PoolState, want string) bool {
	switch want {
	case "", "live":
		return s.Live()
	default:
		return string(s) == want
	}
}
