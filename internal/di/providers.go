package di

import (
	"context"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"

	"BazaarPull/internal/domain/repository"
	"BazaarPull/internal/handler/api"
	mid "BazaarPull/internal/middleware"
	internalrepo "BazaarPull/internal/repository"
	"BazaarPull/internal/repository/memory"
	"BazaarPull/internal/service/bazaar"
	icache "BazaarPull/internal/service/cache"
	apimetrics "BazaarPull/internal/service/metrics"
	"BazaarPull/internal/service/ratelimit"
	"BazaarPull/internal/services/analytics"
	"BazaarPull/internal/services/compaction"
	"BazaarPull/internal/usecase"
	pkgcache "BazaarPull/pkg/cache"
	pkgch "BazaarPull/pkg/clickhouse"
	"BazaarPull/pkg/config"
	pkghttp "BazaarPull/pkg/http"
	pkgkafka "BazaarPull/pkg/kafka"
	applogger "BazaarPull/pkg/logger"
	"BazaarPull/pkg/metrics"
	pkgpg "BazaarPull/pkg/postgres"
	"BazaarPull/pkg/queue"
	"BazaarPull/pkg/scheduler"
	"BazaarPull/pkg/server"
)

const (
	userAgent      = "BazaarPull/1.0"
	errorLogTopic  = "error_logs"
	queuePrefix    = "bazaarpull:jobs"
	errorLogPrefix = "bazaarpull:errorlogs"
)

// Runners groups the periodic batch jobs so wire can tell them apart.
type Runners struct {
	Compaction  *scheduler.Runner
	Aggregation *scheduler.Runner
}

func (r Runners) All() []*scheduler.Runner {
	return []*scheduler.Runner{r.Compaction, r.Aggregation}
}

func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder and registers the API collectors.
func ProvideMetrics() repository.Metrics {
	apimetrics.Register(prometheus.DefaultRegisterer)
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client with the schema applied.
// It returns nil when storage runs in memory.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if cfg.Storage.Driver != "clickhouse" {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
		// raw deletes must be visible before the next window is read
		pkgch.WithMutationsSync(true),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.ClickHouseSchema(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvidePostgresPool returns nil unless postgres is enabled.
func ProvidePostgresPool(cfg *config.Config) (*pkgpg.Pool, error) {
	if !cfg.Postgres.Enabled {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := pkgpg.NewPool(ctx, cfg.Postgres.DSN,
		pkgpg.WithMaxConns(cfg.Postgres.MaxConns),
		pkgpg.WithConnLifetime(cfg.Postgres.MaxLifetime),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	if err := pool.Migrate(ctx, internalrepo.PostgresSchema()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres schema: %w", err)
	}
	return pool, nil
}

// ProvideRedisCache returns nil unless redis is enabled.
func ProvideRedisCache(cfg *config.Config) (*pkgcache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(cfg.Redis.Host),
		pkgcache.WithRedisPort(cfg.Redis.Port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.PoolSize/2, cfg.Redis.Timeout),
		pkgcache.WithRedisPrefix("bazaarpull"),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, nil
}

// ProvideCacheBackend layers an in-process LRU over redis when available.
func ProvideCacheBackend(cfg *config.Config, rc *pkgcache.RedisCache) pkgcache.Service {
	if rc != nil {
		return pkgcache.NewLayeredCache(rc,
			pkgcache.WithLayeredMemorySize(cfg.Aggregation.CacheSize),
			pkgcache.WithLayeredL1TTL(cfg.Aggregation.CacheTTL/2),
		)
	}
	return pkgcache.NewMemoryCache(
		pkgcache.WithMemoryMaxSize(cfg.Aggregation.CacheSize),
		pkgcache.WithMemoryDefaultTTL(cfg.Aggregation.CacheTTL),
		pkgcache.WithMemoryCleanup(time.Minute),
	)
}

// ProvideKafkaProducer returns nil unless the kafka backend is selected.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if cfg.Backend.Type != usecase.BackendKafka {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideKafkaConsumer returns nil unless the kafka backend is selected.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger, m repository.Metrics, h *usecase.KafkaSnapshotsHandler) (*pkgkafka.Consumer, error) {
	if cfg.Backend.Type != usecase.BackendKafka {
		return nil, nil
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
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NewHookChain(
		pkgkafka.LoggingHook{Log: l, Slow: time.Second},
		pkgkafka.HookFuncs{Err: func(context.Context, string, kafka.Message, []byte, error) {
			m.RecordError("consumer_retry")
		}},
	))
	consumer.RegisterHandler(h)
	return consumer, nil
}

func ProvideSnapshotStore(ch *pkgch.Client, l *applogger.Logger) repository.SnapshotStore {
	if ch == nil {
		return memory.NewSnapshotStore()
	}
	return internalrepo.NewCHSnapshotStore(ch, l)
}

func ProvideSummaryStore(ch *pkgch.Client, l *applogger.Logger) repository.SummaryStore {
	if ch == nil {
		return memory.NewSummaryStore()
	}
	return internalrepo.NewCHSummaryStore(ch, l)
}

func ProvideProgressStore(ch *pkgch.Client) repository.ProgressStore {
	if ch == nil {
		return memory.NewProgressStore()
	}
	return internalrepo.NewCHProgressStore(ch)
}

// ProvideMetricsWindowStore keeps windows in postgres when enabled.
func ProvideMetricsWindowStore(pool *pkgpg.Pool, l *applogger.Logger) repository.MetricsWindowStore {
	if pool == nil {
		return memory.NewMetricsWindowStore()
	}
	return internalrepo.NewPGMetricsWindowStore(pool, l)
}

// ProvidePublisher returns a nil interface without a producer.
func ProvidePublisher(cfg *config.Config, producer *pkgkafka.Producer) repository.Publisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topic)
}

func ProvideKafkaSnapshotsHandler(cfg *config.Config, store repository.SnapshotStore, m repository.Metrics) *usecase.KafkaSnapshotsHandler {
	return usecase.NewKafkaSnapshotsHandler(cfg.Kafka.Topic, store, m)
}

func ProvideSnapshotProcessor(
	cfg *config.Config,
	pub repository.Publisher,
	store repository.SnapshotStore,
	m repository.Metrics,
) *usecase.SnapshotProcessor {
	return usecase.NewSnapshotProcessor(pub, store, m, cfg.Backend.Type, cfg.Backend.BatchSize)
}

func ProvideFeed(cfg *config.Config) repository.SnapshotFeed {
	hc := pkghttp.NewClient(
		pkghttp.WithTimeout(cfg.Bazaar.Timeout),
		pkghttp.WithRetry(cfg.Bazaar.RetryMax, cfg.Bazaar.BackoffMin, cfg.Bazaar.BackoffMax),
		pkghttp.WithUserAgent(userAgent),
	)
	return bazaar.New(hc, cfg.Bazaar.URL)
}

func ProvideStreamHub(l *applogger.Logger) *api.StreamHub {
	return api.NewStreamHub(l)
}

// ProvideCollector builds the pipeline between the feed poller and the processor.
func ProvideCollector(
	cfg *config.Config,
	feed repository.SnapshotFeed,
	proc *usecase.SnapshotProcessor,
	hub *api.StreamHub,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.SnapshotCollector {
	pipe := mid.NewSnapshotPipeline(proc, m,
		mid.WithMinInterval(cfg.Pipeline.MinInterval),
		mid.WithBufferSize(cfg.Pipeline.BufferSize),
		mid.WithRetryBackoff(cfg.Bazaar.BackoffMin, cfg.Bazaar.BackoffMax),
		mid.WithLogger(l),
	)
	return usecase.NewSnapshotCollector(feed, pipe, hub, m, cfg.Bazaar.PollInterval, l)
}

func ProvideCompactionJob(
	cfg *config.Config,
	snaps repository.SnapshotStore,
	summaries repository.SummaryStore,
	progress repository.ProgressStore,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.CompactionJob {
	c := compaction.New(compaction.Config{
		MaxGap:        cfg.Compaction.MaxGap,
		MoveThreshold: cfg.Compaction.MoveThreshold,
		FlushEvery:    cfg.Compaction.FlushEvery,
		LadderDepth:   cfg.Compaction.LadderDepth,
	})
	return usecase.NewCompactionJob(snaps, summaries, progress, c, m, usecase.CompactionJobConfig{
		Grace:            cfg.Compaction.Grace,
		RawRetention:     cfg.Compaction.RawRetention,
		PointRetention:   cfg.Compaction.PointRetention,
		Workers:          cfg.Compaction.Workers,
		MaxWindowsPerRun: cfg.Compaction.MaxWindowsPerRun,
	}, l.With(applogger.String("component", "compaction")))
}

func ProvideAggregator(
	cfg *config.Config,
	summaries repository.SummaryStore,
	store repository.MetricsWindowStore,
	svc pkgcache.Service,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.Aggregator {
	rt := icache.NewReadThrough(svc, "mw", cfg.Aggregation.CacheTTL, l)
	return usecase.NewAggregator(summaries, store, rt, m, usecase.AggregationConfig{
		Windows:   cfg.Aggregation.Windows,
		BatchSize: cfg.Aggregation.BatchSize,
		Workers:   cfg.Aggregation.Workers,
		CacheTTL:  cfg.Aggregation.CacheTTL,
	}, l.With(applogger.String("component", "aggregation")))
}

// ProvideRunners schedules compaction and aggregation under the shared cache lock.
func ProvideRunners(
	cfg *config.Config,
	job *usecase.CompactionJob,
	agg *usecase.Aggregator,
	locks pkgcache.Service,
	m repository.Metrics,
	l *applogger.Logger,
) Runners {
	return Runners{
		Compaction: scheduler.NewRunner(job, cfg.Compaction.Interval, l,
			scheduler.WithLocker(locks, cfg.Compaction.LockTTL),
			scheduler.WithMetrics(m),
			scheduler.WithRunOnStart(true),
		),
		Aggregation: scheduler.NewRunner(agg, cfg.Aggregation.Interval, l,
			scheduler.WithLocker(locks, cfg.Aggregation.LockTTL),
			scheduler.WithMetrics(m),
			scheduler.WithRunOnStart(true),
		),
	}
}

// ProvideRecomputeJob runs compaction before aggregation so a full recompute sees fresh summaries.
func ProvideRecomputeJob(r Runners, l *applogger.Logger) *usecase.RecomputeJob {
	return usecase.NewRecomputeJob(l, r.Compaction, r.Aggregation)
}

// ProvideQueue returns nil without redis. It also ships deduplicated error logs
// to a producer-only list next to the job queue.
func ProvideQueue(cfg *config.Config, rc *pkgcache.RedisCache, job *usecase.RecomputeJob, l *applogger.Logger) *queue.RedisQueue {
	if rc == nil {
		return nil
	}
	q := queue.NewRedisQueue(l, &queue.QueueConfig{
		Workers:    cfg.Redis.Queue.Workers,
		RetryLimit: cfg.Redis.Queue.RetryLimit,
		RetryDelay: cfg.Redis.Queue.RetryDelay,
	}, rc.Client(), queue.ModeProducerConsumer, queue.WithKeyPrefix(queuePrefix))
	q.RegisterJob(job)

	sink, err := queue.NewRedisPublisher(l, rc.Client(), queue.WithKeyPrefix(errorLogPrefix))
	if err != nil {
		l.Warn("error log sink unavailable", applogger.Error(err))
		return q
	}
	l.AddCollector(&applogger.CollectionConfig{
		TimeInterval:   30 * time.Second,
		CountThreshold: 100,
		Topic:          errorLogTopic,
		Publisher:      sink,
	})
	return q
}

func ProvideAdminService(job *usecase.RecomputeJob, q *queue.RedisQueue, l *applogger.Logger) *usecase.AdminService {
	if q == nil {
		return usecase.NewAdminService(job, nil, l)
	}
	return usecase.NewAdminService(job, q, l)
}

func ProvideScorer(cfg *config.Config) *analytics.Scorer {
	sc := analytics.DefaultScorerConfig()
	sc.CompetitionCoef = cfg.Scorer.CompetitionCoef
	sc.RiskPenaltyCoef = cfg.Scorer.RiskPenaltyCoef
	sc.LiquidityFloor = cfg.Scorer.LiquidityFloor
	sc.LiquidityRef = cfg.Scorer.LiquidityRef
	sc.ETAHalfLife = cfg.Scorer.ETAHalfLife
	return analytics.NewScorer(sc)
}

func paging(cfg *config.Config) usecase.Paging {
	return usecase.Paging{DefaultLimit: cfg.Serving.DefaultLimit, MaxLimit: cfg.Serving.MaxLimit}
}

func ProvideOpportunityService(
	cfg *config.Config,
	snaps repository.SnapshotStore,
	windows repository.MetricsWindowStore,
	svc pkgcache.Service,
	scorer *analytics.Scorer,
	l *applogger.Logger,
) *usecase.OpportunityService {
	// shares the aggregation namespace so each recompute drops these rows too
	rt := icache.NewReadThrough(svc, "mw", cfg.Aggregation.CacheTTL, l)
	return usecase.NewOpportunityService(snaps, windows, rt, scorer, usecase.OpportunityConfig{
		ChurnWindow:     cfg.Scorer.ChurnWindow,
		ReferenceWindow: cfg.Scorer.ReferenceWindow,
		Paging:          paging(cfg),
	}, l)
}

// ProvideMarketService caches list pages for one poll interval at most.
func ProvideMarketService(cfg *config.Config, snaps repository.SnapshotStore, svc pkgcache.Service, l *applogger.Logger) *usecase.MarketService {
	ttl := min(cfg.Aggregation.CacheTTL, cfg.Bazaar.PollInterval)
	rt := icache.NewReadThrough(svc, "latest", ttl, l)
	return usecase.NewMarketService(snaps, rt, ttl, paging(cfg))
}

func ProvideHistoryService(summaries repository.SummaryStore) *usecase.HistoryService {
	return usecase.NewHistoryService(summaries)
}

func ProvideRateLimiter() *ratelimit.Limiter {
	return ratelimit.New()
}

func ProvideHandler(
	cfg *config.Config,
	l *applogger.Logger,
	market *usecase.MarketService,
	history *usecase.HistoryService,
	agg *usecase.Aggregator,
	opps *usecase.OpportunityService,
	admin *usecase.AdminService,
	hub *api.StreamHub,
	limiter *ratelimit.Limiter,
) *api.BazaarEchoHandler {
	var limit echo.MiddlewareFunc
	if cfg.Serving.RateLimitRPS > 0 {
		limit = limiter.Middleware(cfg.Serving.RateLimitRPS, int(cfg.Serving.RateLimitBurst))
	}
	return api.NewBazaarEchoHandler(l, market, history, agg, opps, admin, hub, limit)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	collector *usecase.SnapshotCollector,
	processor *usecase.SnapshotProcessor,
	consumer *pkgkafka.Consumer,
	runners Runners,
	q *queue.RedisQueue,
	handler *api.BazaarEchoHandler,
	hub *api.StreamHub,
	limiter *ratelimit.Limiter,
	chClient *pkgch.Client,
	pgPool *pkgpg.Pool,
	cacheSvc pkgcache.Service,
) *server.App {
	return server.New(cfg, l, server.Components{
		Collector:  collector,
		Processor:  processor,
		Consumer:   consumer,
		Runners:    runners.All(),
		Queue:      q,
		Handler:    handler,
		Hub:        hub,
		Limiter:    limiter,
		ClickHouse: chClient,
		Postgres:   pgPool,
		Cache:      cacheSvc,
	})
}
