//go:build wireinject
// +build wireinject

package di

import (
	"BazaarPull/pkg/config"
	"BazaarPull/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvidePostgresPool,
		ProvideRedisCache,
		ProvideCacheBackend,
		ProvideKafkaProducer,

		// Repositories
		ProvideSnapshotStore,
		ProvideSummaryStore,
		ProvideProgressStore,
		ProvideMetricsWindowStore,
		ProvidePublisher,
		ProvideFeed,

		// Ingestion
		ProvideSnapshotProcessor,
		ProvideKafkaSnapshotsHandler,
		ProvideKafkaConsumer,
		ProvideStreamHub,
		ProvideCollector,

		// Batch jobs
		ProvideCompactionJob,
		ProvideAggregator,
		ProvideRunners,
		ProvideRecomputeJob,
		ProvideQueue,
		ProvideAdminService,

		// Serving
		ProvideScorer,
		ProvideOpportunityService,
		ProvideMarketService,
		ProvideHistoryService,
		ProvideRateLimiter,
		ProvideHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
