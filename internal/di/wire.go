//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"LiqPool/internal/usecase"
	"LiqPool/pkg/clock"
	"LiqPool/pkg/config"
	"LiqPool/pkg/server"
)

var coreSet = wire.NewSet(
	ProvideMetrics,
	ProvideResolutions,
	ProvideAggregator,
	ProvideDetectors,
	ProvidePoolManager,
	ProvideOverlapEngine,
	ProvidePipeline,
)

var sinkSet = wire.NewSet(
	ProvideKafkaProducer,
	ProvideDigest,
	ProvideLogger,
	ProvideClickHouseClient,
	ProvideEventStorage,
	ProvideEventPublisher,
	ProvideEventProcessor,
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		ProvideClock,
		coreSet,
		sinkSet,

		// Read side
		ProvideCache,
		ProvideSnapshotWriter,
		ProvideQueryUseCase,

		// Feed
		ProvideBarStream,
		ProvideLiveCollector,
		ProvideKafkaConsumer,

		// HTTP + application
		ProvideHealth,
		ProvideHTTPServer,
		ProvideApp,
	)
	return nil, nil, nil
}

// InitializeBacktester wires a replay on the simulated clock.
func InitializeBacktester(cfg *config.Config) (*usecase.Backtester, func(), error) {
	wire.Build(
		ProvideSimClock,
		wire.Bind(new(clock.Clock), new(*clock.Sim)),
		coreSet,
		sinkSet,
		ProvideBarStore,
		ProvideBacktester,
	)
	return nil, nil, nil
}
