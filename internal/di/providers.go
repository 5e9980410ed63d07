package di

import (
	"context"
	"fmt"
	"time"

	"SignalSim/internal/domain/models"
	"SignalSim/internal/domain/repository"
	"SignalSim/internal/handler/api"
	internalrepo "SignalSim/internal/repository"
	"SignalSim/internal/service/ratelimit"
	"SignalSim/internal/service/stream"
	"SignalSim/internal/usecase"
	"SignalSim/pkg/cache"
	pkgch "SignalSim/pkg/clickhouse"
	"SignalSim/pkg/config"
	xhttp "SignalSim/pkg/http"
	pkgkafka "SignalSim/pkg/kafka"
	applogger "SignalSim/pkg/logger"
	"SignalSim/pkg/metrics"
	"SignalSim/pkg/queue"
	"SignalSim/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// ProvideLogger creates the application logger. With log.digest enabled, warn and error
// entries are also shipped to Kafka as periodic digests.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, func(), error) {
	l, err := applogger.New(&cfg.Log.Config)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.Log.Digest.Enabled && producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			Service:        "signalsim",
			TimeInterval:   cfg.Log.Digest.Interval,
			CountThreshold: cfg.Log.Digest.Threshold,
			Topic:          cfg.Log.Digest.Topic,
			Publisher:      producer,
		})
	}
	return l, l.RemoveCollector, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client and makes sure the schema exists.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, func(), error) {
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
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.Schema(client.Database())); err != nil {
		_ = client.Close() // no logger in the DI layer yet; propagate
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, func() { _ = client.Close() }, nil
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
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
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideKafkaConsumer creates the signals consumer, or nil when there is nothing to consume.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || cfg.Kafka.SignalsTopic == "" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideSignalStore creates the ClickHouse signal table repository.
func ProvideSignalStore(ch *pkgch.Client, l *applogger.Logger) *internalrepo.CHSignalStore {
	s := internalrepo.NewCHSignalStore(ch)
	s.SetLogger(l)
	return s
}

// ProvideSignalSource picks where runs read their signals from.
func ProvideSignalSource(cfg *config.Config, store *internalrepo.CHSignalStore) repository.SignalSource {
	if cfg.Simulation.Source == "csv" {
		return internalrepo.NewCSVSignalSource(cfg.Simulation.CSVPath)
	}
	return store
}

// ProvideEventStore creates the ClickHouse run output repository.
func ProvideEventStore(ch *pkgch.Client, l *applogger.Logger) repository.EventStore {
	s := internalrepo.NewCHEventStore(ch)
	s.SetLogger(l)
	return s
}

// ProvideEventPublisher creates the Kafka run event publisher, or nil without an events topic.
func ProvideEventPublisher(cfg *config.Config, producer *pkgkafka.Producer) repository.EventPublisher {
	if producer == nil || cfg.Kafka.EventsTopic == "" {
		return nil
	}
	return internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.EventsTopic)
}

// ProvideKafkaSignalsHandler creates the ingest handler for the signals topic.
func ProvideKafkaSignalsHandler(cfg *config.Config, store *internalrepo.CHSignalStore, m repository.Metrics) *usecase.KafkaSignalsHandler {
	return usecase.NewKafkaSignalsHandler(cfg.Kafka.SignalsTopic, store, m)
}

// ProvideRedisCache connects to Redis, or returns nil when Redis is disabled.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, func(), error) {
	if !cfg.Redis.Enabled {
		return nil, func() {}, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, 0, 0),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	return rc, func() { _ = rc.Close() }, nil
}

// ProvideCache returns the Redis cache, or an in-process one when Redis is disabled.
func ProvideCache(rc *cache.RedisCache) (cache.Service, func()) {
	if rc != nil {
		return rc, func() {}
	}
	mem := cache.NewMemoryCache()
	return mem, func() { _ = mem.Close() }
}

// ProvideQueue creates the simulation job queue. It needs Redis; nil otherwise.
func ProvideQueue(cfg *config.Config, l *applogger.Logger, rc *cache.RedisCache) *queue.RedisQueue {
	if rc == nil {
		return nil
	}
	return queue.NewRedisQueue(l, &queue.QueueConfig{
		Workers:    cfg.Queue.Workers,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
	}, rc.Client(), queue.WithKeyPrefix(cfg.Queue.KeyPrefix))
}

// ProvideJobPublisher exposes the queue to the HTTP layer, keeping a nil queue a nil interface.
func ProvideJobPublisher(q *queue.RedisQueue) queue.Publisher {
	if q == nil {
		return nil
	}
	return q
}

// ProvideHub creates the websocket hub for live run notifications.
func ProvideHub(l *applogger.Logger) (*stream.Hub, func()) {
	h := stream.NewHub(l)
	return h, h.Close
}

// ProvideRunnerConfig translates the simulation section of the config.
func ProvideRunnerConfig(cfg *config.Config) usecase.RunnerConfig {
	s := cfg.Simulation
	rc := usecase.RunnerConfig{
		StartingCapital: decimal.NewFromFloat(s.StartingCapital),
		PositionSize:    decimal.NewFromFloat(s.PositionSize),
		Parallelism:     s.Parallelism,
		RunTimeout:      s.RunTimeout,
		PriceStaleness:  s.PriceStaleness,
	}
	for _, m := range s.Models {
		for _, h := range m.Horizons {
			rc.Runs = append(rc.Runs, usecase.RunSpec{Model: m.Name, Horizon: models.Horizon(h)})
		}
	}
	return rc
}

// ProvideResultsUseCase creates the cached results reader.
func ProvideResultsUseCase(cfg *config.Config, store repository.EventStore, c cache.Service, m repository.Metrics) *usecase.ResultsUseCase {
	return usecase.NewResultsUseCase(store, c, cfg.Results.CacheTTL, m)
}

// ProvideSimulationRunner assembles the runner with every sink that is configured.
func ProvideSimulationRunner(
	rc usecase.RunnerConfig,
	source repository.SignalSource,
	m repository.Metrics,
	l *applogger.Logger,
	store repository.EventStore,
	pub repository.EventPublisher,
	hub *stream.Hub,
	results *usecase.ResultsUseCase,
) *usecase.SimulationRunner {
	opts := []usecase.RunnerOption{
		usecase.WithRunnerLogger(l),
		usecase.WithEventStore(store),
		usecase.WithNotifier(hub),
		usecase.WithInvalidator(results),
	}
	if pub != nil {
		opts = append(opts, usecase.WithEventPublisher(pub))
	}
	return usecase.NewSimulationRunner(source, m, rc, opts...)
}

// ProvideSimulationJob creates the queue job running requested batches.
func ProvideSimulationJob(cfg *config.Config, runner *usecase.SimulationRunner, c cache.Service, l *applogger.Logger) *usecase.SimulationJob {
	lockTTL := 2 * cfg.Simulation.RunTimeout
	return usecase.NewSimulationJob(runner, c, lockTTL, l)
}

// ProvideLimiter creates the per-client limiter of simulation submissions.
func ProvideLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.Results.RateCapacity, cfg.Results.RateRefill)
}

// ProvideHealthChecks collects the probes of every connected dependency.
func ProvideHealthChecks(ch *pkgch.Client, rc *cache.RedisCache) api.HealthChecks {
	checks := api.HealthChecks{"clickhouse": ch.Health}
	if rc != nil {
		checks["redis"] = rc.Health
	}
	return checks
}

// ProvideResultsHandler creates the results HTTP handler.
func ProvideResultsHandler(
	l *applogger.Logger,
	results *usecase.ResultsUseCase,
	jobs queue.Publisher,
	rc usecase.RunnerConfig,
	limiter *ratelimit.Limiter,
	hub *stream.Hub,
	health api.HealthChecks,
) *api.ResultsEchoHandler {
	return api.NewResultsEchoHandler(l, results, jobs, rc.Runs, limiter, hub, health)
}

// ProvideHTTPServer creates the echo server with every handler registered.
func ProvideHTTPServer(cfg *config.Config, l *applogger.Logger, h *api.ResultsEchoHandler) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithSlowRequest(cfg.Server.SlowRequest),
		xhttp.WithLogger(l),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(cfg.Metrics.Path, prometheus.DefaultRegisterer, prometheus.DefaultGatherer))
	} else {
		opts = append(opts, xhttp.WithMetrics("", nil, nil))
	}
	return xhttp.NewServer([]xhttp.Handler{h}, opts...)
}

// ProvideApp creates the application.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	srv *xhttp.Server,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaSignalsHandler,
	q *queue.RedisQueue,
	job *usecase.SimulationJob,
	limiter *ratelimit.Limiter,
) *server.App {
	return server.New(cfg, l, srv, consumer, kh, q, job, limiter)
}
