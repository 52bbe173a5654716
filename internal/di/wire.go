//go:build wireinject
// +build wireinject

package di

import (
	"TradeLoop/pkg/config"
	"TradeLoop/pkg/server"

	"github.com/google/wire"
)

var infraSet = wire.NewSet(
	ProvideLogger,
	ProvideMetrics,
	ProvideRedisClient,
	ProvideCache,
	ProvideClickHouseClient,
	ProvideKafkaProducer,
	ProvideKafkaConsumer,
	ProvidePostgresClient,
	ProvideAlertQueue,
	ProvideAlerter,
	ProvideQuoteBook,
)

var repositorySet = wire.NewSet(
	ProvideMarketSource,
	ProvidePortfolioSource,
	ProvideParameterStore,
	ProvideExecutionService,
	ProvideKafkaAuditSink,
	ProvideCycleStore,
	ProvideAuditSink,
)

var decisionSet = wire.NewSet(
	ProvideProducers,
	ProvideClassifier,
	ProvideSchedule,
	ProvideTemplates,
	ProvideSynthesizer,
	ProvideSelector,
	ProvideGate,
	ProvideDispatcher,
	ProvideCycle,
	ProvideFeedbackHandler,
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		infraSet,
		repositorySet,
		decisionSet,
		ProvideCyclesHandler,
		ProvideApp,
	)
	return nil, nil, nil
}
