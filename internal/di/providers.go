package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"LiqPool/internal/domain/models"
	"LiqPool/internal/domain/repository"
	"LiqPool/internal/handler/api"
	mid "LiqPool/internal/middleware"
	internalrepo "LiqPool/internal/repository"
	"LiqPool/internal/service/feed"
	"LiqPool/internal/services/aggregation"
	"LiqPool/internal/services/detector"
	"LiqPool/internal/services/overlap"
	"LiqPool/internal/services/pool"
	"LiqPool/internal/usecase"
	"LiqPool/pkg/cache"
	pkgch "LiqPool/pkg/clickhouse"
	"LiqPool/pkg/clock"
	"LiqPool/pkg/config"
	xhttp "LiqPool/pkg/http"
	pkgkafka "LiqPool/pkg/kafka"
	"LiqPool/pkg/logger"
	"LiqPool/pkg/metrics"
	"LiqPool/pkg/ratelimit"
	"LiqPool/pkg/server"
)

var _ repository.Metrics = (*metrics.Recorder)(nil)

// ProvideDigest ships deduplicated warnings and errors to Kafka when enabled.
func ProvideDigest(cfg *config.Config, producer *pkgkafka.Producer) *logger.Digest {
	if !cfg.Log.Digest.Enabled || producer == nil {
		return nil
	}
	return logger.NewDigest(logger.DigestConfig{
		Interval:   cfg.Log.Digest.Interval,
		MaxEntries: cfg.Log.Digest.MaxEntries,
		Topic:      cfg.Log.Digest.Topic,
		Publisher:  producer,
	})
}

// ProvideLogger creates the root logger.
func ProvideLogger(cfg *config.Config, digest *logger.Digest) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: cfg.Log.TimeFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if digest != nil {
		l.AttachDigest(digest)
	}
	return l.With(logger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClock returns the wall clock used by live runs.
func ProvideClock() clock.Clock {
	return clock.NewReal()
}

// ProvideSimClock returns the backtest clock, parked at the start of the range.
func ProvideSimClock(cfg *config.Config) *clock.Sim {
	return clock.NewSim(cfg.Backtest.From)
}

// ProvideResolutions parses pipeline.resolutions.
func ProvideResolutions(cfg *config.Config) ([]models.Resolution, error) {
	out := make([]models.Resolution, 0, len(cfg.Pipeline.Resolutions))
	for _, s := range cfg.Pipeline.Resolutions {
		r, err := models.ParseResolution(s)
		if err != nil {
			return nil, fmt.Errorf("pipeline.resolutions: %w", err)
		}
		if r.Minutes()%cfg.Pipeline.BasePeriod != 0 {
			return nil, fmt.Errorf("pipeline.resolutions: %s is not a multiple of the %dm base period", r, cfg.Pipeline.BasePeriod)
		}
		out = append(out, r)
	}
	return out, nil
}

func basePeriod(cfg *config.Config) time.Duration {
	return time.Duration(cfg.Pipeline.BasePeriod) * time.Minute
}

// ProvideAggregator builds one aggregator per resolution.
func ProvideAggregator(cfg *config.Config, res []models.Resolution, clk clock.Clock) (*aggregation.Multi, error) {
	policy, err := aggregation.ParsePolicy(cfg.Pipeline.Ordering)
	if err != nil {
		return nil, fmt.Errorf("pipeline.ordering: %w", err)
	}
	return aggregation.NewMulti(res,
		aggregation.WithBasePeriod(basePeriod(cfg)),
		aggregation.WithPolicy(policy),
		aggregation.WithMaxSkew(cfg.Pipeline.MaxSkew),
		aggregation.WithClock(clk),
	), nil
}

// ProvideDetectors builds the gap and swing detectors.
func ProvideDetectors(cfg *config.Config, res []models.Resolution) (*detector.Manager, error) {
	d := cfg.Detectors
	opts := []detector.Option{
		detector.WithIndicators(d.Volatility, d.VolatilityWindow, d.VolumeWindow),
	}
	if d.Gap.Enabled {
		opts = append(opts, detector.WithGap(detector.GapConfig{
			MinSigma:     d.Gap.MinSigma,
			MinPct:       d.Gap.MinPct,
			MinRelVolume: d.Gap.MinRelVolume,
			SigmaRef:     d.Gap.SigmaRef,
			PctRef:       d.Gap.PctRef,
		}))
	} else {
		opts = append(opts, detector.WithoutGap())
	}
	if d.Swing.Enabled {
		opts = append(opts, detector.WithSwing(detector.SwingConfig{
			Lookback:            d.Swing.Lookback,
			MinSigma:            d.Swing.MinSigma,
			RegularStrength:     d.Swing.RegularStrength,
			SignificantStrength: d.Swing.SignificantStrength,
			MajorStrength:       d.Swing.MajorStrength,
		}))
	} else {
		opts = append(opts, detector.WithoutSwing())
	}
	m, err := detector.NewManager(res, opts...)
	if err != nil {
		return nil, fmt.Errorf("detectors: %w", err)
	}
	return m, nil
}

// ProvidePoolManager builds the registry and the manager in front of it.
func ProvidePoolManager(cfg *config.Config, clk clock.Clock) (*pool.Manager, error) {
	p := cfg.Pools
	regOpts := []pool.RegistryOption{
		pool.WithDefaultCapacity(p.DefaultCap),
		pool.WithGracePeriod(p.GracePeriod),
		pool.WithSweepInterval(p.SweepInterval),
		pool.WithWheel(pool.WheelConfig{
			Seconds: p.Wheel.Seconds,
			Minutes: p.Wheel.Minutes,
			Hours:   p.Wheel.Hours,
			Days:    p.Wheel.Days,
		}),
	}
	mgrOpts := []pool.ManagerOption{
		pool.WithDefaultPolicy(pool.ResolutionPolicy{TTL: p.DefaultTTL}),
		pool.WithMinStrength(p.MinStrength),
	}
	for name, rp := range p.Resolutions {
		res, err := models.ParseResolution(name)
		if err != nil {
			return nil, fmt.Errorf("pools.resolutions: %w", err)
		}
		ttl := rp.TTL
		if ttl == 0 {
			ttl = p.DefaultTTL
		}
		mgrOpts = append(mgrOpts, pool.WithPolicy(res, pool.ResolutionPolicy{
			TTL:          ttl,
			HitTolerance: rp.HitTolerance,
			Capacity:     rp.Capacity,
		}))
		if rp.Capacity > 0 {
			regOpts = append(regOpts, pool.WithCapacity(res, rp.Capacity))
		}
	}
	return pool.NewManager(pool.NewRegistry(clk.Now(), regOpts...), mgrOpts...), nil
}

// ProvideOverlapEngine builds the zone engine.
func ProvideOverlapEngine(cfg *config.Config) (*overlap.Engine, error) {
	o := cfg.Overlap
	opts := []overlap.Option{
		overlap.WithMinMembers(o.MinMembers),
		overlap.WithMinStrength(o.MinStrength),
		overlap.WithEpsilon(o.Epsilon),
		overlap.WithSideMixing(o.AllowSideMixing),
	}
	for name, w := range o.Weights {
		res, err := models.ParseResolution(name)
		if err != nil {
			return nil, fmt.Errorf("overlap.weights: %w", err)
		}
		opts = append(opts, overlap.WithWeight(res, w))
	}
	return overlap.NewEngine(opts...), nil
}

// ProvidePipeline wires the core services for the configured symbol.
func ProvidePipeline(
	cfg *config.Config,
	clk clock.Clock,
	agg *aggregation.Multi,
	det *detector.Manager,
	pools *pool.Manager,
	zones *overlap.Engine,
	m repository.Metrics,
	l *logger.Logger,
) *usecase.Pipeline {
	return usecase.NewPipeline(cfg.Pipeline.Symbol, basePeriod(cfg), clk, agg, det, pools, zones, m, l)
}

func needsKafkaSink(cfg *config.Config) bool {
	return cfg.Sinks.Type == usecase.SinkKafka || cfg.Sinks.Type == usecase.SinkBoth
}

func needsClickHouseSink(cfg *config.Config) bool {
	return cfg.Sinks.Type == usecase.SinkClickHouse || cfg.Sinks.Type == usecase.SinkBoth
}

func newClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(cfg.ClickHouse.Config)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideClickHouseClient connects only when a ClickHouse sink is configured.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, func(), error) {
	if !needsClickHouseSink(cfg) {
		return nil, func() {}, nil
	}
	client, err := newClickHouseClient(cfg)
	if err != nil {
		return nil, nil, err
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvideEventStorage creates the ClickHouse event tables.
func ProvideEventStorage(client *pkgch.Client, cfg *config.Config, l *logger.Logger) (repository.EventStorage, error) {
	if client == nil {
		return nil, nil
	}
	store := internalrepo.NewClickHouseEventStorage(client, cfg.ClickHouse.PoolEventsTable, cfg.ClickHouse.ZoneEventsTable, l)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return store, nil
}

// ProvideKafkaProducer creates a producer whenever brokers are configured.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, func(), error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(cfg.Kafka.Config)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideEventPublisher publishes lifecycle events when a Kafka sink is
// configured.
func ProvideEventPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.EventPublisher {
	if producer == nil || !needsKafkaSink(cfg) {
		return nil
	}
	return internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.PoolsTopic, cfg.Kafka.ZonesTopic)
}

// ProvideEventProcessor routes events to the configured sinks.
func ProvideEventProcessor(
	pub repository.EventPublisher,
	store repository.EventStorage,
	m repository.Metrics,
	l *logger.Logger,
	cfg *config.Config,
) *usecase.EventProcessor {
	return usecase.NewEventProcessor(pub, store, m, l, cfg.Sinks.Type, cfg.Sinks.MaxRetries, cfg.Sinks.Backoff)
}

// ProvideCache returns Redis when enabled, otherwise an in-process cache.
func ProvideCache(cfg *config.Config) (cache.Service, func(), error) {
	if !cfg.Redis.Enabled {
		mc := cache.NewMemoryCache()
		return mc, func() { _ = mc.Close() }, nil
	}
	rc, err := cache.NewRedisCache(cfg.Redis.RedisConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	return rc, func() { _ = rc.Close() }, nil
}

// ProvideSnapshotWriter publishes pipeline snapshots to the cache.
func ProvideSnapshotWriter(c cache.Service, cfg *config.Config, l *logger.Logger) *usecase.SnapshotWriter {
	return usecase.NewSnapshotWriter(c, cfg.Redis.SnapshotTTL, l)
}

// ProvideQueryUseCase serves API reads from the snapshot.
func ProvideQueryUseCase(c cache.Service, cfg *config.Config) *usecase.QueryUseCase {
	return usecase.NewQueryUseCase(c, cfg.Pipeline.Symbol)
}

// ProvideBarStream returns the websocket stream, or nil when bars come from
// Kafka.
func ProvideBarStream(cfg *config.Config, l *logger.Logger) repository.BarStream {
	if cfg.Feed.Type != "websocket" {
		return nil
	}
	f := cfg.Feed
	return feed.NewWebsocketStream(feed.Config{
		URL:             f.Websocket.URL,
		Symbol:          cfg.Pipeline.Symbol,
		Interval:        fmt.Sprintf("%dm", cfg.Pipeline.BasePeriod),
		PingInterval:    f.Websocket.PingInterval,
		InitialInterval: f.Reconnect.InitialInterval,
		MaxInterval:     f.Reconnect.MaxInterval,
		MaxElapsed:      f.Reconnect.MaxElapsed,
	}, l)
}

// ProvideLiveCollector builds the collector and its gate.
func ProvideLiveCollector(
	cfg *config.Config,
	pipe *usecase.Pipeline,
	proc *usecase.EventProcessor,
	snap *usecase.SnapshotWriter,
	stream repository.BarStream,
	m repository.Metrics,
	l *logger.Logger,
) *usecase.LiveCollector {
	opts := []usecase.CollectorOption{
		usecase.WithSnapshots(snap),
		usecase.WithGateOptions(
			mid.WithThrottle(cfg.Pipeline.Throttle),
			mid.WithBufferSize(cfg.Pipeline.BufferSize),
			mid.WithLogger(l),
		),
	}
	if stream != nil {
		opts = append(opts, usecase.WithStream(stream))
	}
	return usecase.NewLiveCollector(pipe, proc, m, l, opts...)
}

// ProvideKafkaConsumer subscribes the bars topic when the feed is Kafka.
func ProvideKafkaConsumer(cfg *config.Config, collector *usecase.LiveCollector, m repository.Metrics, l *logger.Logger) (*pkgkafka.Consumer, error) {
	if cfg.Feed.Type != "kafka" {
		return nil, nil
	}
	k := cfg.Kafka
	consumer, err := pkgkafka.NewConsumer(k.Config, l)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	h := usecase.NewKafkaBarsHandler(k.BarsTopic, collector.Gate(), m)
	if err := consumer.RegisterHandler(h); err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideHealth collects the readiness checks served at /healthz.
func ProvideHealth(c cache.Service, client *pkgch.Client, collector *usecase.LiveCollector) *server.Health {
	checks := map[string]server.Check{
		"cache": func(ctx context.Context) error {
			_, err := c.Exists(ctx, "healthz")
			return err
		},
		"feed": func(context.Context) error {
			if !collector.IsConnected() {
				return errors.New("feed disconnected")
			}
			return nil
		},
	}
	if client != nil {
		checks["clickhouse"] = client.Health
	}
	return server.NewHealth(checks)
}

// ProvideHTTPServer builds the Echo server with the API and health routes.
func ProvideHTTPServer(cfg *config.Config, l *logger.Logger, q *usecase.QueryUseCase, health *server.Health) *xhttp.Server {
	var opts []xhttp.ServerOption
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetricsPath(cfg.Metrics.Path))
	}
	if rl := cfg.Server.RateLimit; rl.Enabled {
		opts = append(opts, xhttp.WithRateLimit(ratelimit.NewKeyed(rl.RPS, rl.Burst, rl.IdleTTL)))
	}
	handlers := []xhttp.Handler{health, api.NewPoolsHandler(l, q)}
	return xhttp.NewServer(cfg.Server.Config, l, handlers, opts...)
}

// ProvideApp assembles the live service. The consumer starts after the
// collector so its gate is running before the first bar arrives.
func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	digest *logger.Digest,
	httpServer *xhttp.Server,
	collector *usecase.LiveCollector,
	consumer *pkgkafka.Consumer,
	proc *usecase.EventProcessor,
) *server.App {
	opts := []server.AppOption{
		server.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		server.WithComponent("collector", collector),
		server.WithCloser("event_processor", func() error { proc.Close(); return nil }),
	}
	if consumer != nil {
		opts = append(opts, server.WithComponent("kafka_consumer", consumer))
	}
	if digest != nil {
		opts = append(opts, server.WithCloser("log_digest", func() error { l.DetachDigest(); return nil }))
	}
	return server.New(l, httpServer, opts...)
}

// ProvideBarStore opens the backtest bar source.
func ProvideBarStore(cfg *config.Config, l *logger.Logger) (repository.BarStore, func(), error) {
	switch cfg.Backtest.Source {
	case "sqlite":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		store, err := internalrepo.OpenSQLiteBarStore(ctx, cfg.Backtest.SQLite, l)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite bar store: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	default:
		client, err := newClickHouseClient(cfg)
		if err != nil {
			return nil, nil, err
		}
		return internalrepo.NewCHBarStore(client, cfg.ClickHouse.BarsTable, l), func() { _ = client.Close() }, nil
	}
}

// ProvideBacktester wires a replay on the simulated clock.
func ProvideBacktester(
	cfg *config.Config,
	store repository.BarStore,
	pipe *usecase.Pipeline,
	clk *clock.Sim,
	proc *usecase.EventProcessor,
	l *logger.Logger,
) *usecase.Backtester {
	if cfg.Sinks.Type == usecase.SinkNone {
		proc = nil
	}
	return usecase.NewBacktester(store, pipe, clk, basePeriod(cfg), proc, l)
}
