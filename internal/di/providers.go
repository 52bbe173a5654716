package di

import (
	"context"
	"fmt"
	"sync"
	"time"

	"TradeLoop/internal/domain/models"
	domrepo "TradeLoop/internal/domain/repository"
	domsvc "TradeLoop/internal/domain/service"
	"TradeLoop/internal/handler/api"
	internalrepo "TradeLoop/internal/repository"
	"TradeLoop/internal/service/alerts"
	"TradeLoop/internal/service/finnhub"
	svcmetrics "TradeLoop/internal/service/metrics"
	"TradeLoop/internal/services/producers"
	"TradeLoop/internal/services/regime"
	"TradeLoop/internal/services/risk"
	"TradeLoop/internal/services/strategy"
	"TradeLoop/internal/usecase"
	"TradeLoop/pkg/breaker"
	"TradeLoop/pkg/cache"
	pkgch "TradeLoop/pkg/clickhouse"
	"TradeLoop/pkg/config"
	pkghttp "TradeLoop/pkg/http"
	pkgkafka "TradeLoop/pkg/kafka"
	applogger "TradeLoop/pkg/logger"
	"TradeLoop/pkg/market"
	"TradeLoop/pkg/metrics"
	"TradeLoop/pkg/postgres"
	"TradeLoop/pkg/queue"
	"TradeLoop/pkg/server"

	"github.com/redis/go-redis/v9"
)

// Infrastructure providers degrade to nil when a backend is disabled or unreachable;
// only configuration errors abort startup.

func noop() {}

func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: logger: %v", config.ErrFatalConfig, err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

var (
	metricsOnce sync.Once
	recorder    *metrics.Recorder
)

// ProvideMetrics registers the loop collectors on the default registry once per process.
func ProvideMetrics() domrepo.Metrics {
	metricsOnce.Do(func() {
		recorder = metrics.New(nil)
		svcmetrics.Register()
	})
	return recorder
}

func ProvideRedisClient(cfg *config.Config, l *applogger.Logger) (*redis.Client, func()) {
	if !cfg.Redis.Enabled {
		return nil, noop
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.KeyPrefix),
	)
	if err != nil {
		l.Warn("redis unavailable, using in-process fallbacks", applogger.String("addr", cfg.Redis.Addr), applogger.Error(err))
		return nil, noop
	}
	client := rc.Client()
	return client, func() {
		if err := client.Close(); err != nil {
			l.Warn("redis close error", applogger.Error(err))
		}
	}
}

// ProvideCache layers an in-process cache over Redis when Redis is up.
func ProvideCache(cfg *config.Config, rc *redis.Client) cache.Service {
	if rc == nil {
		return cache.NewMemoryCache()
	}
	return cache.NewLayeredCache(cache.NewRedisCacheFromClient(rc, cfg.Redis.KeyPrefix))
}

// ProvideClickHouseClient connects and creates the market and audit tables.
func ProvideClickHouseClient(cfg *config.Config, l *applogger.Logger) (*pkgch.Client, func()) {
	if !cfg.ClickHouse.Enabled {
		return nil, noop
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		l.Warn("clickhouse unavailable, market data disabled", applogger.Error(err))
		return nil, noop
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.MarketSchema(client)); err != nil {
		l.Warn("clickhouse schema init failed, market data disabled", applogger.Error(err))
		_ = client.Close()
		return nil, noop
	}
	l.Info("clickhouse ready", applogger.String("database", cfg.ClickHouse.Database))
	return client, func() {
		if err := client.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}
}

// ProvideKafkaProducer creates a Kafka producer for the audit topic.
func ProvideKafkaProducer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Producer, func()) {
	if !cfg.Kafka.Enabled {
		return nil, noop
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		l.Warn("kafka producer unavailable, audit stays local", applogger.Error(err))
		return nil, noop
	}
	return producer, func() {
		if err := producer.Close(); err != nil {
			l.Warn("kafka producer close error", applogger.Error(err))
		}
	}
}

// ProvideKafkaConsumer creates the outcome feedback consumer.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) *pkgkafka.Consumer {
	if !cfg.Kafka.Enabled {
		return nil
	}
	consumer, err := pkgkafka.NewConsumer(l,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		l.Warn("kafka consumer unavailable, learning disabled", applogger.Error(err))
		return nil
	}
	consumer.WithConsumerHook(pkgkafka.NoopHook{})
	return consumer
}

func ProvidePostgresClient(cfg *config.Config, l *applogger.Logger) (*postgres.Client, func()) {
	if !cfg.Postgres.Enabled {
		return nil, noop
	}
	client, err := postgres.New(postgres.Option{
		DSN:             cfg.Postgres.DSN,
		Host:            cfg.Postgres.Host,
		Port:            cfg.Postgres.Port,
		User:            cfg.Postgres.User,
		Password:        cfg.Postgres.Password,
		Database:        cfg.Postgres.Database,
		SSLMode:         cfg.Postgres.SSLMode,
		MaxOpenConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
	})
	if err != nil {
		l.Warn("postgres unavailable, every candidate will be rejected", applogger.Error(err))
		return nil, noop
	}
	return client, func() {
		if err := client.Close(); err != nil {
			l.Warn("postgres close error", applogger.Error(err))
		}
	}
}

// ProvideAlertQueue runs the alert delivery queue on Redis.
func ProvideAlertQueue(cfg *config.Config, l *applogger.Logger, rc *redis.Client) *queue.RedisQueue {
	if rc == nil {
		return nil
	}
	q := queue.NewRedisQueue(l, queue.Config{
		Workers:    cfg.Alerts.Workers,
		RetryLimit: cfg.Alerts.RetryLimit,
		RetryDelay: 10 * time.Second,
	}, rc, queue.ModeProducerConsumer, queue.WithKeyPrefix(cfg.Alerts.QueuePrefix))

	if cfg.Alerts.WebhookURL != "" {
		client := pkghttp.NewClient(pkghttp.WithTimeout(5 * time.Second))
		q.RegisterJob(alerts.NewWebhookJob(client, cfg.Alerts.WebhookURL))
		q.RegisterJob(alerts.NewDigestJob(l, client, cfg.Alerts.WebhookURL))
	}
	return q
}

func ProvideAlerter(cfg *config.Config, l *applogger.Logger, q *queue.RedisQueue) domsvc.Alerter {
	if q == nil {
		return alerts.NewRouter(l, nil, cfg.Alerts.Cooldown)
	}
	return alerts.NewRouter(l, q, cfg.Alerts.Cooldown)
}

// ProvideQuoteBook streams trades from Finnhub, archiving them to ClickHouse when available.
func ProvideQuoteBook(cfg *config.Config, l *applogger.Logger, ch *pkgch.Client) *finnhub.QuoteBook {
	if !cfg.Finnhub.Enabled {
		return nil
	}
	var opts []finnhub.Option
	if ch != nil {
		opts = append(opts, finnhub.WithTradeSink(internalrepo.NewCHTradeWriter(ch, "finnhub")))
	}
	return finnhub.New(l,
		cfg.Finnhub.APIKey,
		cfg.Finnhub.WebSocketURL,
		cfg.Loop.Symbols,
		cfg.Finnhub.ReconnectDelay,
		cfg.Finnhub.PingInterval,
		opts...,
	)
}

func ProvideMarketSource(cfg *config.Config, l *applogger.Logger, ch *pkgch.Client) domrepo.MarketDataSource {
	if ch == nil {
		return internalrepo.NoMarketData{}
	}
	src := internalrepo.NewCHMarketSource(ch,
		domrepo.NormalizeTimeframe(cfg.ClickHouse.Timeframe),
		cfg.ClickHouse.Lookback,
		cfg.Producers.Sentiment.Window,
	)
	src.SetLogger(l)
	return src
}

func ProvidePortfolioSource(cfg *config.Config, pg *postgres.Client) domrepo.PortfolioSource {
	if pg == nil {
		return internalrepo.NoPortfolio{}
	}
	return internalrepo.NewPGPortfolioSource(pg, cfg.Postgres.MaxSnapshotAge)
}

func ProvideParameterStore(cfg *config.Config, rc *redis.Client) domrepo.ParameterStore {
	if rc == nil {
		return internalrepo.NewMemoryParameterStore(internalrepo.DefaultLearningRate())
	}
	return internalrepo.NewRedisParameterStore(rc, cfg.Redis.KeyPrefix, internalrepo.DefaultLearningRate())
}

// ProvideExecutionService posts intents through a circuit breaker. Broker refusals
// do not trip it. Without a URL intents are only logged.
func ProvideExecutionService(cfg *config.Config, l *applogger.Logger) domrepo.ExecutionService {
	if cfg.Execution.URL == "" {
		l.Warn("execution.url not set, running in dry-run mode")
		return internalrepo.NewDryRunExecution(l)
	}
	client := pkghttp.NewClient(
		pkghttp.WithBaseURL(cfg.Execution.URL),
		pkghttp.WithTimeout(cfg.Execution.Timeout),
	)
	cb := breaker.New("execution",
		breaker.WithInterval(cfg.Execution.Breaker.Interval),
		breaker.WithOpenTimeout(cfg.Execution.Breaker.OpenTimeout),
		breaker.WithConsecutiveFailures(cfg.Execution.Breaker.ConsecutiveFailures),
		breaker.WithIgnore(internalrepo.IsRefusal),
		breaker.WithLogger(l),
	)
	return internalrepo.NewHTTPExecutionService(client, cb, l)
}

func ProvideCycleStore(l *applogger.Logger, ch *pkgch.Client) (*internalrepo.CHCycleStore, func()) {
	if ch == nil {
		return nil, noop
	}
	store := internalrepo.NewCHCycleStore(ch, l)
	return store, func() {
		if err := store.Close(); err != nil {
			l.Warn("cycle store close error", applogger.Error(err))
		}
	}
}

// ProvideKafkaAuditSink publishes cycle records in the background. Its cleanup drains
// queued records and must run before the producer closes.
func ProvideKafkaAuditSink(cfg *config.Config, l *applogger.Logger, producer *pkgkafka.Producer) (*internalrepo.KafkaAuditSink, func()) {
	if producer == nil {
		return nil, noop
	}
	sink := internalrepo.NewKafkaAuditSink(producer, cfg.Kafka.AuditTopic, l)
	return sink, func() {
		if err := sink.Close(); err != nil {
			l.Warn("kafka audit sink close error", applogger.Error(err))
		}
	}
}

// ProvideAuditSink fans cycle records out to every durable sink that is up.
func ProvideAuditSink(l *applogger.Logger, kafkaSink *internalrepo.KafkaAuditSink, store *internalrepo.CHCycleStore) domrepo.AuditSink {
	var sinks internalrepo.AuditFanout
	if kafkaSink != nil {
		sinks = append(sinks, kafkaSink)
	}
	if store != nil {
		sinks = append(sinks, store)
	}
	if len(sinks) == 0 {
		return internalrepo.NewLogAuditSink(l)
	}
	return sinks
}

func ProvideProducers(cfg *config.Config, l *applogger.Logger, c cache.Service) ([]domsvc.Producer, error) {
	return producers.Build(l, cfg, c)
}

func ProvideClassifier(cfg *config.Config) domsvc.RegimeClassifier {
	return regime.NewClassifier(regime.Thresholds{
		HighVol:              cfg.Regime.HighVolThreshold,
		Trend:                cfg.Regime.TrendThreshold,
		CorrelationBreakdown: cfg.Regime.CorrelationBreakdownThreshold,
		MinBars:              cfg.Regime.MinBars,
		Timeframe:            domrepo.NormalizeTimeframe(cfg.ClickHouse.Timeframe),
	})
}

func ProvideSchedule(cfg *config.Config) (*market.Schedule, error) {
	s, err := market.NewSchedule(market.Mode(cfg.Schedule.Mode), cfg.Schedule.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: schedule: %v", config.ErrFatalConfig, err)
	}
	return s, nil
}

func ProvideTemplates(cfg *config.Config) ([]models.StrategyTemplate, error) {
	return strategy.Templates(cfg.Strategies)
}

func ProvideSynthesizer(cfg *config.Config, templates []models.StrategyTemplate) *strategy.Synthesizer {
	return strategy.NewSynthesizer(templates, cfg.Loop.DefaultSize)
}

func ProvideSelector(cfg *config.Config, templates []models.StrategyTemplate) (*strategy.Selector, error) {
	e, err := strategy.ValidateEligibility(cfg.Regime.Eligibility, templates)
	if err != nil {
		return nil, err
	}
	return strategy.NewSelector(e), nil
}

func ProvideGate(cfg *config.Config) (*risk.Gate, error) {
	g, err := risk.NewGate(risk.Limits{
		MaxVaR:            cfg.Risk.MaxVaR,
		MaxConcentration:  cfg.Risk.MaxConcentration,
		AttenuationFactor: cfg.Risk.AttenuationFactor,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: risk limits: %v", config.ErrFatalConfig, err)
	}
	return g, nil
}

func ProvideDispatcher(cfg *config.Config, l *applogger.Logger, exec domrepo.ExecutionService, c cache.Service) *usecase.Dispatcher {
	return usecase.NewDispatcher(l, exec, c, cfg.Execution.LockTTL)
}

// ProvideCycle assembles the decision loop.
func ProvideCycle(
	cfg *config.Config,
	l *applogger.Logger,
	m domrepo.Metrics,
	marketSrc domrepo.MarketDataSource,
	portfolio domrepo.PortfolioSource,
	params domrepo.ParameterStore,
	audit domrepo.AuditSink,
	quotes *finnhub.QuoteBook,
	alerter domsvc.Alerter,
	prods []domsvc.Producer,
	classifier domsvc.RegimeClassifier,
	synth *strategy.Synthesizer,
	selector *strategy.Selector,
	gate *risk.Gate,
	dispatcher *usecase.Dispatcher,
	schedule *market.Schedule,
) *usecase.Cycle {
	deps := usecase.CycleDeps{
		Market:     marketSrc,
		Portfolio:  portfolio,
		Parameters: params,
		Audit:      audit,
		Metrics:    m,
		Alerter:    alerter,
		Producers:  prods,
		Classifier: classifier,
		Synth:      synth,
		Selector:   selector,
		Gate:       gate,
		Dispatcher: dispatcher,
		Schedule:   schedule,
	}
	if quotes != nil {
		deps.Quotes = quotes
	}
	return usecase.NewCycle(l.With(applogger.String("component", "cycle")), deps, usecase.CycleConfig{
		Symbols:           cfg.Loop.Symbols,
		Cadence:           cfg.Loop.Cadence,
		PrepareDeadline:   cfg.Loop.PrepareDeadline,
		FanoutDeadline:    cfg.Loop.FanoutDeadline,
		SynthesisDeadline: cfg.Loop.SynthesisDeadline,
		GateDeadline:      cfg.Loop.GateDeadline,
	})
}

func ProvideFeedbackHandler(cfg *config.Config, l *applogger.Logger, params domrepo.ParameterStore) *usecase.FeedbackHandler {
	return usecase.NewFeedbackHandler(l, cfg.Kafka.FeedbackTopic, params)
}

// ProvideCyclesHandler exposes the loop over HTTP with a health check per live backend.
func ProvideCyclesHandler(
	l *applogger.Logger,
	cycle *usecase.Cycle,
	store *internalrepo.CHCycleStore,
	schedule *market.Schedule,
	rc *redis.Client,
	ch *pkgch.Client,
) *api.CyclesHandler {
	checks := map[string]api.HealthCheck{}
	if rc != nil {
		checks["redis"] = func(ctx context.Context) error { return rc.Ping(ctx).Err() }
	}
	if ch != nil {
		checks["clickhouse"] = ch.Health
	}
	var cs domrepo.CycleStore
	if store != nil {
		cs = store
	}
	return api.NewCyclesHandler(l, cycle, cs, schedule, nil, checks)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	cycle *usecase.Cycle,
	handler *api.CyclesHandler,
	q *queue.RedisQueue,
	consumer *pkgkafka.Consumer,
	feedback *usecase.FeedbackHandler,
	quotes *finnhub.QuoteBook,
) *server.App {
	return server.New(cfg, l, server.Components{
		Cycle:    cycle,
		Handler:  handler,
		Queue:    q,
		Consumer: consumer,
		Feedback: feedback,
		Quotes:   quotes,
	})
}
