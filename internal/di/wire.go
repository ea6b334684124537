//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	internalrepo "FinSynth/internal/repository"
	"FinSynth/pkg/config"
	"FinSynth/pkg/server"
)

var infraSet = wire.NewSet(
	ProvidePrometheusRegistry,
	ProvideMetrics,
	ProvideKafkaProducer,
	ProvideLogger,
	ProvideClickHouseClient,
	ProvideRedisCache,
	ProvidePriceCache,
	ProvidePriceOracle,
	ProvideClosers,
)

// InitializeCoordinator wires the coordinator process.
func InitializeCoordinator(cfg *config.Config) (*server.CoordinatorApp, error) {
	wire.Build(
		wire.Value(Role("coordinator")),
		infraSet,

		// Repositories
		ProvideTransport,
		ProvideWorkerRegistry,
		ProvideWeightPublisher,
		ProvideScoreArchive,
		internalrepo.NewRequestLedger,
		internalrepo.NewScoreBook,

		// Use cases
		ProvideCollector,
		ProvideScoringEngine,
		ProvideCoordinator,
		ProvideTemplates,
		ProvideScheduler,

		// HTTP
		ProvideStatusHandler,
		ProvideCoordinatorServer,

		ProvideCoordinatorApp,
	)
	return &server.CoordinatorApp{}, nil
}

// InitializeWorker wires the worker process.
func InitializeWorker(cfg *config.Config) (*server.WorkerApp, error) {
	wire.Build(
		wire.Value(Role("worker")),
		infraSet,

		ProvideGenerator,
		ProvideWorkerService,
		ProvideWorkerHandler,
		ProvideWorkerServer,
		ProvideHeartbeater,

		ProvideWorkerApp,
	)
	return &server.WorkerApp{}, nil
}

// InitializeSimulator wires a standalone generator for one-off runs.
func InitializeSimulator(cfg *config.Config) (*Simulator, error) {
	wire.Build(
		wire.Value(Role("simulate")),
		infraSet,
		ProvideGenerator,
		wire.Struct(new(Simulator), "*"),
	)
	return &Simulator{}, nil
}
