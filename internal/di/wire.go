//go:build wireinject
// +build wireinject

package di

import (
	"OracleFeed/pkg/config"
	"OracleFeed/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideLogger,
		ProvideMetrics,

		// Pipeline core
		ProvideValidator,
		ProvideAggregator,
		ProvideRealTimeCache,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideRedisCache,

		// Export targets
		ProvideHistorySink,
		ProvideConsensusPublisher,
		ProvideMirror,
		ProvideExportQueue,
		ProvideExporters,
		ProvideQueueConsumer,

		// Orchestration and ingest
		ProvideOrchestrator,
		ProvidePipeline,
		ProvideStreams,
		ProvideCollector,
		ProvideKafkaConsumer,
		ProvideKafkaUpdatesHandler,

		// HTTP API and application server
		ProvideHTTPHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}
