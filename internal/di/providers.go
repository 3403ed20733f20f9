package di

import (
	"context"
	"fmt"
	"time"

	"CoinFlow/internal/domain/models"
	"CoinFlow/internal/domain/repository"
	"CoinFlow/internal/handler/api"
	internalrepo "CoinFlow/internal/repository"
	"CoinFlow/internal/scheduler"
	"CoinFlow/internal/service/breaker"
	"CoinFlow/internal/service/cache"
	"CoinFlow/internal/service/forecast"
	"CoinFlow/internal/service/notify"
	"CoinFlow/internal/service/ratelimit"
	"CoinFlow/internal/service/source"
	"CoinFlow/internal/usecase"
	pkgcache "CoinFlow/pkg/cache"
	pkgch "CoinFlow/pkg/clickhouse"
	"CoinFlow/pkg/config"
	xhttp "CoinFlow/pkg/http"
	pkgkafka "CoinFlow/pkg/kafka"
	"CoinFlow/pkg/logger"
	"CoinFlow/pkg/metrics"
	"CoinFlow/pkg/queue"
	"CoinFlow/pkg/server"
	"CoinFlow/pkg/sqlite"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
)

func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(logger.String("env", cfg.Environment)), nil
}

// ProvideMetrics registers on the default registry, which is what /metrics serves.
func ProvideMetrics() repository.Metrics {
	return metrics.NewWithRegistry(prometheus.DefaultRegisterer)
}

func needsRedis(cfg *config.Config) bool {
	return cfg.Cache.Backend != "memory" || cfg.Notifications.Backend == "redis"
}

// ProvideRedisClient returns nil when neither the cache nor the queue uses redis.
func ProvideRedisClient(ctx context.Context, cfg *config.Config) (*redis.Client, func(), error) {
	if !needsRedis(cfg) {
		return nil, func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvideCacheStore picks the backend named by cache.backend.
func ProvideCacheStore(cfg *config.Config, rdb *redis.Client) (pkgcache.Service, func(), error) {
	mem := []pkgcache.MemoryOption{
		pkgcache.WithMemoryMaxSize(cfg.Cache.MaxSize),
		pkgcache.WithMemoryCleanup(cfg.Cache.CleanupInterval),
	}
	switch cfg.Cache.Backend {
	case "memory":
		mc := pkgcache.NewMemoryCache(mem...)
		return mc, func() { _ = mc.Close() }, nil
	case "redis":
		return pkgcache.NewRedisCache(rdb, cfg.Cache.Prefix), func() {}, nil
	case "layered":
		lc := pkgcache.NewLayeredCache(
			pkgcache.NewRedisCache(rdb, cfg.Cache.Prefix),
			pkgcache.WithLayeredMemory(mem...),
		)
		return lc, func() { _ = lc.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
}

func ProvideCacheStats(store pkgcache.Service) (pkgcache.StatsProvider, error) {
	sp, ok := store.(pkgcache.StatsProvider)
	if !ok {
		return nil, fmt.Errorf("cache backend %T does not report stats", store)
	}
	return sp, nil
}

func ProvideTTLCache(store pkgcache.Service, l *logger.Logger, m repository.Metrics) *cache.Cache {
	return cache.New(store, l, m)
}

func ProvideLimiter() *ratelimit.Limiter {
	return ratelimit.New()
}

func ProvideRegistry(cfg *config.Config, limiter *ratelimit.Limiter, l *logger.Logger) (*source.Registry, error) {
	reg := source.NewRegistry(cfg, limiter, l)
	if len(reg.Clients) == 0 {
		return nil, fmt.Errorf("no price sources enabled")
	}
	return reg, nil
}

// ProvideBreakers returns nil when breakers are disabled.
func ProvideBreakers(cfg *config.Config) *breaker.Set {
	if !cfg.Breaker.Enabled {
		return nil
	}
	return breaker.New(cfg.Breaker.FailureThreshold, cfg.Breaker.Cooldown)
}

// ProvideClickHouse returns a nil client when the archive is disabled.
func ProvideClickHouse(ctx context.Context, cfg *config.Config) (*pkgch.Client, func(), error) {
	if !cfg.ClickHouse.Enabled {
		return nil, func() {}, nil
	}
	ch := cfg.ClickHouse
	client, err := pkgch.NewClient(ctx,
		pkgch.WithHost(ch.Host, ch.Port),
		pkgch.WithDatabase(ch.Database),
		pkgch.WithCredentials(ch.User, ch.Password),
		pkgch.WithHTTP(ch.UseHTTP),
		pkgch.WithAsyncInsert(ch.AsyncInsert, false),
		pkgch.WithTimeouts(ch.DialTimeout, ch.ReadTimeout),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

func ProvideClickHouseArchive(ctx context.Context, ch *pkgch.Client, cfg *config.Config) (*internalrepo.ClickHouseArchive, error) {
	if ch == nil {
		return nil, nil
	}
	schemaCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	a, err := internalrepo.NewClickHouseArchive(schemaCtx, ch, cfg.ClickHouse.Table)
	if err != nil {
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return a, nil
}

// ProvideQuoteArchive keeps a disabled archive as a nil interface.
func ProvideQuoteArchive(a *internalrepo.ClickHouseArchive) repository.QuoteArchive {
	if a == nil {
		return nil
	}
	return a
}

// ProvideHistoryProviders orders history sources as forecast.history_sources lists them.
// Disabled sources are skipped.
func ProvideHistoryProviders(cfg *config.Config, reg *source.Registry, archive *internalrepo.ClickHouseArchive) []repository.HistoryProvider {
	out := make([]repository.HistoryProvider, 0, len(cfg.Forecast.HistorySources))
	for _, name := range cfg.Forecast.HistorySources {
		if name == "clickhouse" {
			if archive != nil {
				out = append(out, archive)
			}
			continue
		}
		if h, ok := reg.History[name]; ok {
			out = append(out, h)
		}
	}
	return out
}

func ProvideSQLiteStore(ctx context.Context, cfg *config.Config) (*internalrepo.SQLiteStore, func(), error) {
	store, err := internalrepo.NewSQLiteStore(ctx, sqlite.Config{
		Path:        cfg.SQLite.Path,
		BusyTimeout: cfg.SQLite.BusyTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite store: %w", err)
	}
	return store, func() { _ = store.Close() }, nil
}

func ProvideRateAggregator(
	cfg *config.Config,
	reg *source.Registry,
	c *cache.Cache,
	breakers *breaker.Set,
	archive repository.QuoteArchive,
	m repository.Metrics,
	l *logger.Logger,
) *usecase.RateAggregator {
	ac := cfg.Aggregator
	ttl := cfg.Cache.TTL
	return usecase.NewRateAggregator(reg.Clients, c, breakers, archive, m, l, usecase.AggregatorConfig{
		Primary:            ac.Primary,
		Timeout:            ac.Timeout,
		Retries:            ac.Retries,
		OutlierStdDevs:     ac.OutlierStdDevs,
		SpreadThresholdPct: ac.SpreadThresholdPct,
		Bridge:             ac.Bridge,
		ReferenceQuote:     ac.ReferenceQuote,
		TTL: map[models.DataClass]time.Duration{
			models.ClassSpot:        ttl.Spot,
			models.ClassFiat:        ttl.Fiat,
			models.ClassOfficial:    ttl.Official,
			models.ClassEquity:      ttl.Equity,
			models.ClassMarketplace: ttl.Marketplace,
		},
	})
}

func ProvideForecastEngine(
	cfg *config.Config,
	history []repository.HistoryProvider,
	c *cache.Cache,
	store *internalrepo.SQLiteStore,
	m repository.Metrics,
	l *logger.Logger,
) *usecase.ForecastEngine {
	fc := cfg.Forecast
	return usecase.NewForecastEngine(history, c, store, m, l, usecase.ForecastConfig{
		DefaultModel:     models.ModelType(fc.DefaultModel),
		Model:            forecast.Options{P: fc.ARIMA.P, D: fc.ARIMA.D},
		MinHistoryPoints: fc.MinHistoryPoints,
		RecordAllPoints:  fc.RecordAllPoints,
		HistoryTTL:       cfg.Cache.TTL.History,
		Timeout:          fc.Timeout,
		ReferenceQuote:   cfg.Aggregator.ReferenceQuote,
	})
}

func ProvideAccuracyTracker(
	cfg *config.Config,
	store *internalrepo.SQLiteStore,
	agg *usecase.RateAggregator,
	m repository.Metrics,
	l *logger.Logger,
) *usecase.AccuracyTracker {
	ac := cfg.Accuracy
	return usecase.NewAccuracyTracker(store, agg, m, l, usecase.AccuracyConfig{
		WindowDays:     ac.WindowDays,
		BatchSize:      ac.BatchSize,
		Concurrency:    ac.Concurrency,
		MinSamples:     ac.MinSamples,
		ReferenceQuote: cfg.Aggregator.ReferenceQuote,
	})
}

func ProvideAlertService(cfg *config.Config, store *internalrepo.SQLiteStore) *usecase.AlertService {
	return usecase.NewAlertService(store, cfg.Aggregator.ReferenceQuote)
}

// ProvideKafkaProducer returns nil unless alerts are published to kafka.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, func(), error) {
	if cfg.Notifications.Backend != "kafka" {
		return nil, func() {}, nil
	}
	k := cfg.Kafka
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(k.Brokers),
		pkgkafka.WithCompression(k.Compression),
		pkgkafka.WithRequiredAcks(k.RequiredAcks),
		pkgkafka.WithMaxAttempts(k.Producer.MaxAttempts),
		pkgkafka.WithWriteTimeout(k.Producer.WriteTimeout),
		pkgkafka.WithBatchTimeout(k.Producer.Linger),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithProducerMetrics(prometheus.DefaultRegisterer),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

func ProvideTelegram(cfg *config.Config, l *logger.Logger) *notify.Telegram {
	return notify.NewTelegram(notify.TelegramConfig{
		BotToken:   cfg.Telegram.BotToken,
		BaseURL:    cfg.Telegram.BaseURL,
		Timeout:    cfg.Telegram.Timeout,
		MaxRetries: cfg.Telegram.MaxRetries,
	}, l)
}

// ProvideDelivery returns nil when this process does not deliver notifications.
func ProvideDelivery(
	cfg *config.Config,
	tg *notify.Telegram,
	seen pkgcache.Service,
	m repository.Metrics,
	l *logger.Logger,
) *notify.Delivery {
	if !cfg.Notifications.Deliver || cfg.Notifications.Backend == "log" {
		return nil
	}
	return notify.NewDelivery(tg, seen, cfg.Kafka.AlertTopic, m, l)
}

// ProvideRedisQueue returns nil unless alerts go through the redis queue.
func ProvideRedisQueue(cfg *config.Config, l *logger.Logger, rdb *redis.Client, d *notify.Delivery) *queue.RedisQueue {
	if cfg.Notifications.Backend != "redis" {
		return nil
	}
	mode := queue.ModeProducerOnly
	if d != nil {
		mode = queue.ModeProducerConsumer
	}
	q := queue.NewRedisQueue(l, queue.Config{
		Name:       cfg.Queue.Name,
		KeyPrefix:  cfg.Cache.Prefix + ":queue",
		Workers:    cfg.Queue.Workers,
		RetryLimit: cfg.Queue.MaxRetries,
		RetryDelay: cfg.Queue.RetryDelay,
	}, rdb, mode)
	if d != nil {
		q.RegisterJob(d.QueueJob())
	}
	return q
}

// ProvideKafkaConsumer returns nil unless kafka events are delivered in this process.
func ProvideKafkaConsumer(cfg *config.Config, l *logger.Logger, d *notify.Delivery) (*pkgkafka.Consumer, error) {
	if cfg.Notifications.Backend != "kafka" || d == nil {
		return nil, nil
	}
	k := cfg.Kafka
	consumer, err := pkgkafka.NewConsumer(l,
		pkgkafka.WithConsumerBrokers(k.Brokers),
		pkgkafka.WithConsumerGroupID(k.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(k.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(k.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(k.Consumer.RetryMax, k.Consumer.BackoffMin, k.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(k.Consumer.DLQTopic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.RegisterHandler(d.KafkaHandler())
	consumer.WithHook(pkgkafka.HookFuncs{
		Err: func(_ context.Context, km kafka.Message, attempt int, err error) {
			l.Warn("alert delivery attempt failed",
				logger.Int("partition", km.Partition),
				logger.Int64("offset", km.Offset),
				logger.Int("attempt", attempt),
				logger.Error(err))
		},
	})
	return consumer, nil
}

func ProvideNotifier(cfg *config.Config, l *logger.Logger, producer *pkgkafka.Producer, q *queue.RedisQueue) (repository.Notifier, error) {
	switch cfg.Notifications.Backend {
	case "log":
		return notify.NewLogNotifier(l), nil
	case "kafka":
		return notify.NewKafkaNotifier(producer, cfg.Kafka.AlertTopic), nil
	case "redis":
		return notify.NewQueueNotifier(q), nil
	}
	return nil, fmt.Errorf("unknown notifications backend %q", cfg.Notifications.Backend)
}

func ProvideAlertWatcher(
	cfg *config.Config,
	store *internalrepo.SQLiteStore,
	agg *usecase.RateAggregator,
	n repository.Notifier,
	m repository.Metrics,
	l *logger.Logger,
) *usecase.AlertWatcher {
	return usecase.NewAlertWatcher(store, agg, n, m, l, cfg.Alerts.Concurrency)
}

func ProvideScheduler(
	cfg *config.Config,
	l *logger.Logger,
	watcher *usecase.AlertWatcher,
	tracker *usecase.AccuracyTracker,
) (*scheduler.Scheduler, error) {
	s := scheduler.New(l)
	if err := s.Add(cfg.Alerts.Schedule, cfg.Alerts.Timeout, scheduler.NewAlertJob(watcher)); err != nil {
		return nil, err
	}
	if err := s.Add(cfg.Accuracy.Schedule, cfg.Accuracy.Timeout, scheduler.NewAccuracyJob(tracker)); err != nil {
		return nil, err
	}
	return s, nil
}

func ProvideHandlers(
	l *logger.Logger,
	agg *usecase.RateAggregator,
	engine *usecase.ForecastEngine,
	tracker *usecase.AccuracyTracker,
	alerts *usecase.AlertService,
	stats pkgcache.StatsProvider,
	ttl *cache.Cache,
	sched *scheduler.Scheduler,
) []xhttp.Handler {
	return []xhttp.Handler{
		api.NewRatesHandler(l, agg),
		api.NewForecastsHandler(l, engine, tracker),
		api.NewAlertsHandler(l, alerts),
		api.NewCacheHandler(l, stats, ttl),
		api.NewJobsHandler(l, sched),
	}
}

func ProvideHTTPServer(
	cfg *config.Config,
	l *logger.Logger,
	handlers []xhttp.Handler,
	store *internalrepo.SQLiteStore,
	ch *pkgch.Client,
	rdb *redis.Client,
) *xhttp.Server {
	s := cfg.Server
	opts := []xhttp.ServerOption{
		xhttp.WithHost(s.Host),
		xhttp.WithPort(s.Port),
		xhttp.WithTimeouts(s.ReadTimeout, s.WriteTimeout, s.ShutdownTimeout),
		xhttp.WithCORSOrigins(s.CORSOrigins),
		xhttp.WithHealthCheck("sqlite", store.Health),
	}
	if ch != nil {
		opts = append(opts, xhttp.WithHealthCheck("clickhouse", ch.Health))
	}
	if rdb != nil {
		opts = append(opts, xhttp.WithHealthCheck("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}))
	}
	return xhttp.NewServer(l, handlers, opts...)
}

func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	httpServer *xhttp.Server,
	sched *scheduler.Scheduler,
	reg *source.Registry,
	agg *usecase.RateAggregator,
	consumer *pkgkafka.Consumer,
	q *queue.RedisQueue,
) *server.App {
	opts := []server.Option{
		server.WithScheduler(sched, cfg.Scheduler.RunOnStart),
		server.WithDrain(agg.Wait),
	}
	for _, s := range reg.Streams {
		opts = append(opts, server.WithStreams(s))
	}
	if consumer != nil {
		opts = append(opts, server.WithComponent("kafka consumer", consumer))
	}
	if q != nil {
		opts = append(opts, server.WithComponent("redis queue", q))
	}
	return server.New(l, httpServer, cfg.Server.ShutdownTimeout, opts...)
}
