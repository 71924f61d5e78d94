package di

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"TradeSim/internal/domain/repository"
	"TradeSim/internal/handler/api"
	mid "TradeSim/internal/middleware"
	internalrepo "TradeSim/internal/repository"
	"TradeSim/internal/service/marketdata"
	"TradeSim/internal/service/stream"
	"TradeSim/internal/usecase"
	"TradeSim/pkg/cache"
	pkgch "TradeSim/pkg/clickhouse"
	"TradeSim/pkg/config"
	xhttp "TradeSim/pkg/http"
	pkgkafka "TradeSim/pkg/kafka"
	applogger "TradeSim/pkg/logger"
	"TradeSim/pkg/metrics"
	"TradeSim/pkg/queue"
	"TradeSim/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	format := "json"
	if cfg.Environment == "development" {
		format = "console"
	}
	return applogger.New(&applogger.Config{Level: "info", Format: format, Output: "stdout"})
}

// ProvideClickHouseClient creates a ClickHouse client.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
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

	// Initialize schema
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db := cfg.ClickHouse.Database
	if err := client.InitSchema(ctx, []string{
		"CREATE DATABASE IF NOT EXISTS " + db,
		"CREATE TABLE IF NOT EXISTS " + db + ".trades (" +
			"id String, user_id String, challenge_id String, symbol String, " +
			"side String, quantity Float64, entry_price Float64, status String, " +
			"created_at DateTime64(3)) " +
			"ENGINE=MergeTree ORDER BY (challenge_id, created_at)",
	}); err != nil {
		_ = client.Close() // cannot log here (DI layer no logger); propagate error
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideKafkaProducer creates a Kafka producer.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
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

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
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

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideTradeStore creates the ClickHouse trade log repository.
func ProvideTradeStore(chClient *pkgch.Client, cfg *config.Config) repository.TradeStore {
	return internalrepo.NewClickHouseTradeStore(chClient.DB(), cfg.ClickHouse.Database+".trades")
}

// ProvideTradeFeed creates the Kafka trade change feed.
func ProvideTradeFeed(producer *pkgkafka.Producer, cfg *config.Config) repository.TradeFeed {
	return internalrepo.NewKafkaTradeFeed(producer, cfg.Kafka.Topic)
}

// ProvideChallengeStore creates the SQLite challenge repository.
func ProvideChallengeStore(cfg *config.Config) (repository.ChallengeStore, error) {
	return internalrepo.NewGormChallengeStore(cfg.SQLite.Path)
}

// ProvideMarketData creates the market-data proxy client.
func ProvideMarketData(cfg *config.Config) repository.MarketData {
	return marketdata.New(cfg.MarketData.BaseURL,
		marketdata.WithTimeout(cfg.MarketData.Timeout),
		marketdata.WithCasablancaMock(cfg.MarketData.MockCasablanca),
	)
}

// ProvideSnapshotCache builds the snapshot cache: memory-backed, with a Redis
// layer underneath when configured.
func ProvideSnapshotCache(cfg *config.Config) (cache.Service, *cache.RedisCache) {
	memOpts := []cache.MemoryOption{}
	if cfg.Cache.MemorySize > 0 {
		memOpts = append(memOpts, cache.WithMemoryMaxSize(cfg.Cache.MemorySize))
	}
	if !cfg.Cache.Redis.Enabled {
		return cache.NewMemoryCache(memOpts...), nil
	}
	host, port := splitHostPort(cfg.Cache.Redis.Addr)
	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(host),
		cache.WithRedisPort(port),
		cache.WithRedisPassword(cfg.Cache.Redis.Password),
		cache.WithRedisDB(cfg.Cache.Redis.DB),
	)
	if err != nil {
		// Redis being down must not prevent startup; memory still serves.
		return cache.NewMemoryCache(memOpts...), nil
	}
	return cache.NewLayeredCache(rc), rc
}

// splitHostPort parses "host:port", defaulting the port to 6379.
func splitHostPort(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 6379
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, 6379
	}
	return host, port
}

// ProvideLogQueue creates the Redis-backed queue shipping aggregated error
// logs. Nil when Redis is not configured.
func ProvideLogQueue(redisCache *cache.RedisCache, logger *applogger.Logger) *queue.RedisQueue {
	if redisCache == nil {
		return nil
	}
	return queue.NewRedisPublisher(logger, redisCache.Client(), queue.WithKeyPrefix("tradesim:logs"))
}

// ProvideDashboard creates the dashboard use case.
func ProvideDashboard(
	trades repository.TradeStore,
	market repository.MarketData,
	challenges repository.ChallengeStore,
	mx repository.Metrics,
	snapCache cache.Service,
	logger *applogger.Logger,
	cfg *config.Config,
) *usecase.Dashboard {
	return usecase.NewDashboard(trades, market, challenges, mx, snapCache, logger,
		cfg.MarketData.Market, cfg.MarketData.RefreshInterval)
}

// ProvideOrderPlacer creates the order placement use case.
func ProvideOrderPlacer(
	trades repository.TradeStore,
	feed repository.TradeFeed,
	challenges repository.ChallengeStore,
	mx repository.Metrics,
) *usecase.OrderPlacer {
	return usecase.NewOrderPlacer(trades, feed, challenges, mx)
}

// ProvideTradePipeline builds the validated, throttled path between the trade
// feed and the dashboard.
func ProvideTradePipeline(dashboard *usecase.Dashboard, mx repository.Metrics) *mid.TradePipeline {
	return mid.NewTradePipeline(dashboard, mx,
		mid.WithMaxRPS(50),
		mid.WithBufferSize(2000),
	)
}

// ProvideTradesHandler registers the handler for the trades topic.
func ProvideTradesHandler(pipeline *mid.TradePipeline, mx repository.Metrics, cfg *config.Config) pkgkafka.MessageHandler {
	return usecase.NewKafkaTradesHandler(cfg.Kafka.Topic, pipeline, mx)
}

// ProvideStreamHub creates the websocket fan-out hub.
func ProvideStreamHub(dashboard *usecase.Dashboard, logger *applogger.Logger) *stream.Hub {
	return stream.NewHub(dashboard, logger)
}

// ProvideHTTPHandler creates the Echo route handler.
func ProvideHTTPHandler(
	logger *applogger.Logger,
	dashboard *usecase.Dashboard,
	orders *usecase.OrderPlacer,
	trades repository.TradeStore,
	hub *stream.Hub,
) xhttp.Handler {
	return api.NewDashboardEchoHandler(logger, dashboard, orders, trades, hub)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	logger *applogger.Logger,
	dashboard *usecase.Dashboard,
	pipeline *mid.TradePipeline,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	hub *stream.Hub,
	chClient *pkgch.Client,
	handler xhttp.Handler,
	logQueue *queue.RedisQueue,
	challenges repository.ChallengeStore,
	feed repository.TradeFeed,
) *server.App {
	if consumer != nil {
		consumer.WithConsumerHook(pkgkafka.NoopHook{})
	}
	app := server.New(cfg, logger, dashboard, pipeline, consumer, kh, hub, chClient)
	app.SetHTTPHandler(handler)
	if logQueue != nil {
		app.SetLogQueue(logQueue)
	}
	app.AddCloser(challenges)
	app.AddCloser(feed)
	return app
}
