//go:build wireinject
// +build wireinject

package di

import (
	"SignalSim/pkg/config"
	"SignalSim/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Observability
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaConsumer,
		ProvideRedisCache,
		ProvideCache,
		ProvideQueue,
		ProvideJobPublisher,
		ProvideHub,

		// Repositories
		ProvideSignalStore,
		ProvideSignalSource,
		ProvideEventStore,
		ProvideEventPublisher,

		// Use cases
		ProvideRunnerConfig,
		ProvideResultsUseCase,
		ProvideSimulationRunner,
		ProvideSimulationJob,
		ProvideKafkaSignalsHandler,

		// HTTP
		ProvideLimiter,
		ProvideHealthChecks,
		ProvideResultsHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return nil, nil, nil
}
