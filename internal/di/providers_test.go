package di

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LiqPool/internal/domain/models"
	internalrepo "LiqPool/internal/repository"
	"LiqPool/pkg/clock"
	"LiqPool/pkg/config"
)

const testConfig = `
environment: test
log:
  level: error
pipeline:
  symbol: BTCUSDT
  resolutions: ["1m", "5m"]
feed:
  type: websocket
  websocket:
    url: ws://127.0.0.1:1/ws
pools:
  resolutions:
    5m: {ttl: 2h, capacity: 10}
overlap:
  weights:
    5m: 2
backtest:
  source: sqlite
`

func testConfigFor(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(testConfig))
	require.NoError(t, err)
	return cfg
}

func TestProvideResolutions(t *testing.T) {
	cfg := testConfigFor(t)
	res, err := ProvideResolutions(cfg)
	require.NoError(t, err)
	assert.Equal(t, []models.Resolution{models.Res1m, models.Res5m}, res)

	cfg.Pipeline.BasePeriod = 2
	cfg.Pipeline.Resolutions = []string{"5m"}
	_, err = ProvideResolutions(cfg)
	assert.Error(t, err)

	cfg.Pipeline.Resolutions = []string{"soon"}
	_, err = ProvideResolutions(cfg)
	assert.Error(t, err)
}

func TestProvidePoolManagerPolicies(t *testing.T) {
	cfg := testConfigFor(t)
	pm, err := ProvidePoolManager(cfg, clock.NewSim(time.Unix(0, 0)))
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, pm.Policy(models.Res5m).TTL)
	assert.Equal(t, cfg.Pools.DefaultTTL, pm.Policy(models.Res1m).TTL)

	cfg.Pools.Resolutions["bogus"] = config.PoolResolution{}
	_, err = ProvidePoolManager(cfg, clock.NewSim(time.Unix(0, 0)))
	assert.Error(t, err)
}

func TestProvideOptionalSinks(t *testing.T) {
	cfg := testConfigFor(t)

	client, cleanup, err := ProvideClickHouseClient(cfg)
	require.NoError(t, err)
	cleanup()
	assert.Nil(t, client)

	producer, cleanup, err := ProvideKafkaProducer(cfg)
	require.NoError(t, err)
	cleanup()
	assert.Nil(t, producer)
	assert.Nil(t, ProvideEventPublisher(producer, cfg))
	assert.Nil(t, ProvideDigest(cfg, producer))
	assert.NotNil(t, ProvideBarStream(cfg, nil))
}

func TestInitializeBacktesterFromSQLite(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)
	path := filepath.Join(t.TempDir(), "bars.db")

	store, err := internalrepo.OpenSQLiteBarStore(ctx, path, nil)
	require.NoError(t, err)
	var bars []models.Bar
	for i := 0; i < 30; i++ {
		p := 100 + float64(i%7)
		bars = append(bars, models.Bar{
			Symbol: "BTCUSDT", Ts: t0.Add(time.Duration(i) * time.Minute),
			Open: p, High: p + 1, Low: p - 1, Close: p + 0.5, Volume: 10,
		})
	}
	require.NoError(t, store.InsertBars(ctx, bars))
	require.NoError(t, store.Close())

	cfg := testConfigFor(t)
	cfg.Backtest.SQLite = path
	cfg.Backtest.From = t0
	cfg.Backtest.To = t0.Add(time.Hour)

	bt, cleanup, err := InitializeBacktester(cfg)
	require.NoError(t, err)
	defer cleanup()

	sum, err := bt.Run(ctx, cfg.Backtest.From, cfg.Backtest.To)
	require.NoError(t, err)
	assert.Equal(t, 30, sum.Bars)
	assert.Empty(t, sum.Dropped)
	assert.Equal(t, 30, sum.Completed[models.Res1m])
	assert.Equal(t, 6, sum.Completed[models.Res5m])
}
