package di

import (
	"context"
	"fmt"
	"time"

	"OracleFeed/internal/cache"
	"OracleFeed/internal/consensus"
	"OracleFeed/internal/domain/models"
	"OracleFeed/internal/domain/repository"
	"OracleFeed/internal/handler/api"
	mid "OracleFeed/internal/middleware"
	"OracleFeed/internal/orchestrator"
	internalrepo "OracleFeed/internal/repository"
	"OracleFeed/internal/service/exchange"
	"OracleFeed/internal/usecase"
	"OracleFeed/internal/validation"
	pkgcache "OracleFeed/pkg/cache"
	pkgch "OracleFeed/pkg/clickhouse"
	"OracleFeed/pkg/config"
	xhttp "OracleFeed/pkg/http"
	pkgkafka "OracleFeed/pkg/kafka"
	applogger "OracleFeed/pkg/logger"
	"OracleFeed/pkg/metrics"
	"OracleFeed/pkg/queue"
	"OracleFeed/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	lc := &applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if lc.Level == "" {
		lc.Level = "info"
	}
	if lc.Format == "" {
		lc.Format = "console"
	}
	if lc.Output == "" {
		lc.Output = "stdout"
	}
	return applogger.New(lc)
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideValidator creates the update validator from config.
func ProvideValidator(cfg *config.Config, lgr *applogger.Logger) (*validation.Validator, error) {
	return validation.New(validation.Config{
		MaxAge:               cfg.Validator.MaxAge,
		PriceMin:             cfg.Validator.PriceMin,
		PriceMax:             cfg.Validator.PriceMax,
		OutlierThreshold:     cfg.Validator.OutlierThreshold,
		ConsensusWeight:      cfg.Validator.ConsensusWeight,
		HistoricalDataWindow: cfg.Validator.HistoricalDataWindow,
		CrossSourceWindow:    cfg.Validator.CrossSourceWindow,
		MinHistoryPoints:     cfg.Validator.MinHistoryPoints,
		ZScoreThreshold:      cfg.Validator.ZScoreThreshold,
		CacheSize:            cfg.Validator.CacheSize,
		CacheTTL:             cfg.Validator.CacheTTL,
	}, lgr)
}

// ProvideAggregator creates the consensus aggregator from config.
func ProvideAggregator(cfg *config.Config, lgr *applogger.Logger) (*consensus.Aggregator, error) {
	return consensus.New(consensus.Config{
		OutlierThreshold: cfg.Aggregator.OutlierThreshold,
		DecayLambda:      cfg.Aggregator.DecayLambda,
		AgreementPenalty: cfg.Aggregator.AgreementPenalty,
	}, lgr)
}

// ProvideRealTimeCache creates the consensus cache.
func ProvideRealTimeCache(cfg *config.Config, lgr *applogger.Logger, m repository.Metrics) (*cache.RealTime, error) {
	return cache.NewRealTime(cache.Config{
		TTL:             cfg.Cache.TTL,
		MaxSize:         cfg.Cache.MaxSize,
		EvictionPolicy:  cfg.Cache.EvictionPolicy,
		MemoryLimit:     cfg.Cache.MemoryLimit,
		Compression:     cfg.Cache.Compression,
		CleanupInterval: cfg.Cache.CleanupInterval,
	}, cache.WithLogger(lgr), cache.WithMetrics(m))
}

// ProvideClickHouseClient creates a ClickHouse client, or nil when the
// history export is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
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
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideHistorySink creates the write-only consensus history sink.
func ProvideHistorySink(chClient *pkgch.Client) (repository.HistorySink, error) {
	if chClient == nil {
		return nil, nil
	}
	sink := internalrepo.NewCHHistorySink(chClient, "")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sink.Init(ctx); err != nil {
		return nil, fmt.Errorf("history sink schema: %w", err)
	}
	return sink, nil
}

// ProvideKafkaProducer creates a Kafka producer, or nil when disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
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

// ProvideConsensusPublisher publishes finished consensus prices to Kafka.
func ProvideConsensusPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.ConsensusPublisher {
	if producer == nil || cfg.Kafka.ConsensusTopic == "" {
		return nil
	}
	return internalrepo.NewKafkaConsensusPublisher(producer, cfg.Kafka.ConsensusTopic)
}

// ProvideRedisCache creates the shared Redis client, or nil when disabled.
func ProvideRedisCache(cfg *config.Config) (*pkgcache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(cfg.Redis.Host),
		pkgcache.WithRedisPort(cfg.Redis.Port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, nil
}

// ProvideMirror mirrors consensus values into Redis for external readers.
// The layered cache keeps an L1 copy so local readers skip the round trip.
func ProvideMirror(rc *pkgcache.RedisCache, cfg *config.Config) repository.Mirror {
	if rc == nil {
		return nil
	}
	layered := pkgcache.NewLayeredCache(rc, pkgcache.WithLayeredMemorySize(1024))
	return internalrepo.NewRedisMirror(layered, cfg.Redis.Prefix, 30*time.Second)
}

// ProvideExportQueue creates the write-behind export queue publisher.
func ProvideExportQueue(rc *pkgcache.RedisCache, lgr *applogger.Logger) queue.QueueService {
	if rc == nil {
		return nil
	}
	return queue.NewRedisPublisher(lgr, rc.Client())
}

// ProvideExporters assembles the observational fan-out from whatever export
// targets are configured. With the queue available, history is write-behind:
// the exporter only enqueues and the queue consumer drains into ClickHouse.
// Without it, history writes go to the sink directly.
func ProvideExporters(sink repository.HistorySink, mirror repository.Mirror, q queue.QueueService) []repository.Exporter {
	var out []repository.Exporter
	if mirror != nil {
		out = append(out, internalrepo.NewMirrorExporter(mirror))
	}
	switch {
	case q != nil:
		out = append(out, internalrepo.NewQueueExporter(q, "consensus_price"))
	case sink != nil:
		out = append(out, internalrepo.NewHistoryExporter(sink))
	}
	return out
}

// ProvideQueueConsumer creates the worker pool draining the write-behind
// history queue, or nil when either side of it is disabled.
func ProvideQueueConsumer(rc *pkgcache.RedisCache, sink repository.HistorySink, lgr *applogger.Logger) *queue.RedisQueue {
	if rc == nil || sink == nil {
		return nil
	}
	return queue.NewRedisConsumer(lgr, &queue.QueueConfig{
		Workers:    2,
		RetryLimit: 3,
		RetryDelay: 15 * time.Second,
	}, rc.Client(), []queue.Job{internalrepo.NewHistoryArchiveJob(sink)})
}

// ProvideOrchestrator wires the pipeline core and registers configured feeds.
func ProvideOrchestrator(
	cfg *config.Config,
	v *validation.Validator,
	a *consensus.Aggregator,
	c *cache.RealTime,
	lgr *applogger.Logger,
	m repository.Metrics,
	pub repository.ConsensusPublisher,
	exporters []repository.Exporter,
) (*orchestrator.Orchestrator, error) {
	opts := []orchestrator.Option{
		orchestrator.WithLogger(lgr),
		orchestrator.WithMetrics(m),
	}
	if pub != nil {
		opts = append(opts, orchestrator.WithPublisher(pub))
	}
	if len(exporters) > 0 {
		opts = append(opts, orchestrator.WithExporters(exporters...))
	}
	o, err := orchestrator.New(orchestrator.Config{}, v, a, c, opts...)
	if err != nil {
		return nil, err
	}
	for _, f := range cfg.Feeds {
		o.RegisterFeed(models.NewFeedID(models.ParseCategory(f.Category), f.Name), f.Sources)
	}
	return o, nil
}

// ProvidePipeline creates the ingest pipeline in front of the orchestrator.
func ProvidePipeline(o *orchestrator.Orchestrator, m repository.Metrics) *mid.IngestPipeline {
	return mid.NewIngestPipeline(o, m,
		mid.WithMaxRPS(50),
		mid.WithBufferSize(2000),
	)
}

// ProvideStreams builds one MarketStream per configured exchange.
func ProvideStreams(cfg *config.Config, lgr *applogger.Logger) []repository.MarketStream {
	streams := make([]repository.MarketStream, 0, len(cfg.Exchanges))
	for _, e := range cfg.Exchanges {
		switch e.Kind {
		case "rest":
			streams = append(streams, exchange.NewRESTStream(e.Name, e.URL, e.Pairs, e.PollInterval, lgr))
		default:
			streams = append(streams, exchange.NewWSStream(e.Name, e.URL, e.Pairs, e.ReconnectDelay, e.PingInterval, lgr))
		}
	}
	return streams
}

// ProvideCollector creates the update collector over all streams.
func ProvideCollector(
	streams []repository.MarketStream,
	pipe *mid.IngestPipeline,
	m repository.Metrics,
	lgr *applogger.Logger,
	cfg *config.Config,
) *usecase.UpdateCollector {
	feeds := make([]models.FeedID, 0, len(cfg.Feeds))
	for _, f := range cfg.Feeds {
		feeds = append(feeds, models.NewFeedID(models.ParseCategory(f.Category), f.Name))
	}
	return usecase.NewUpdateCollector(streams, pipe, m, lgr, feeds)
}

// ProvideKafkaConsumer creates the inbound updates consumer, or nil when the
// updates topic is not configured.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || cfg.Kafka.UpdatesTopic == "" {
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
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideKafkaUpdatesHandler routes inbound Kafka ticks into the pipeline.
func ProvideKafkaUpdatesHandler(pipe *mid.IngestPipeline, m repository.Metrics, cfg *config.Config) *usecase.KafkaUpdatesHandler {
	return usecase.NewKafkaUpdatesHandler(cfg.Kafka.UpdatesTopic, pipe, m)
}

// ProvideHTTPHandler creates the consensus read API.
func ProvideHTTPHandler(lgr *applogger.Logger, o *orchestrator.Orchestrator, c *cache.RealTime) xhttp.Handler {
	return api.NewPricesEchoHandler(lgr, o, c)
}

// logPublisher adapts the Kafka producer to the log collector's Publisher.
type logPublisher struct {
	p *pkgkafka.Producer
}

func (lp logPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return lp.p.Publish(ctx, topic, nil, payload)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	lgr *applogger.Logger,
	o *orchestrator.Orchestrator,
	c *cache.RealTime,
	collector *usecase.UpdateCollector,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaUpdatesHandler,
	chClient *pkgch.Client,
	producer *pkgkafka.Producer,
	queueConsumer *queue.RedisQueue,
	handler xhttp.Handler,
) *server.App {
	if consumer != nil {
		consumer.WithConsumerHook(pkgkafka.NoopHook{})
	}
	if producer != nil {
		lgr.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          "oraclefeed.logs",
			Publisher:      logPublisher{p: producer},
		})
	}
	app := server.New(cfg, lgr, o, c, collector, consumer, kh, chClient, queueConsumer)
	app.SetHTTPHandler(handler)
	return app
}
