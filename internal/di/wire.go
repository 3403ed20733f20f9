//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"CoinFlow/pkg/config"
	"CoinFlow/pkg/server"

	"github.com/google/wire"
)

var infraSet = wire.NewSet(
	ProvideLogger,
	ProvideMetrics,
	ProvideRedisClient,
	ProvideCacheStore,
	ProvideCacheStats,
	ProvideTTLCache,
	ProvideClickHouse,
	ProvideClickHouseArchive,
	ProvideQuoteArchive,
	ProvideSQLiteStore,
)

var sourceSet = wire.NewSet(
	ProvideLimiter,
	ProvideRegistry,
	ProvideBreakers,
	ProvideHistoryProviders,
)

var notifySet = wire.NewSet(
	ProvideKafkaProducer,
	ProvideTelegram,
	ProvideDelivery,
	ProvideRedisQueue,
	ProvideKafkaConsumer,
	ProvideNotifier,
)

var usecaseSet = wire.NewSet(
	ProvideRateAggregator,
	ProvideForecastEngine,
	ProvideAccuracyTracker,
	ProvideAlertService,
	ProvideAlertWatcher,
	ProvideScheduler,
)

// InitializeApp wires up all dependencies and returns the application.
// The returned cleanup closes stores and clients in reverse construction order.
func InitializeApp(ctx context.Context, cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		infraSet,
		sourceSet,
		notifySet,
		usecaseSet,
		ProvideHandlers,
		ProvideHTTPServer,
		ProvideApp,
	)
	return nil, nil, nil
}
