//go:build wireinject
// +build wireinject

package di

import (
	"TradeSim/pkg/config"
	"TradeSim/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideSnapshotCache,
		ProvideLogQueue,

		// Repositories
		ProvideTradeStore,
		ProvideTradeFeed,
		ProvideChallengeStore,
		ProvideMarketData,

		// Use cases
		ProvideDashboard,
		ProvideOrderPlacer,
		ProvideTradePipeline,
		ProvideTradesHandler,

		// Delivery
		ProvideStreamHub,
		ProvideHTTPHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
