package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/piwi3910/nfvacct/internal/aggregator"
	"github.com/piwi3910/nfvacct/internal/billing"
	"github.com/piwi3910/nfvacct/internal/config"
	"github.com/piwi3910/nfvacct/internal/events"
	"github.com/piwi3910/nfvacct/internal/observability"
	"github.com/piwi3910/nfvacct/internal/osm"
	"github.com/piwi3910/nfvacct/internal/reconciler"
	"github.com/piwi3910/nfvacct/internal/storage"
	"github.com/piwi3910/nfvacct/internal/telemetry"
)

const startupTimeout = 30 * time.Second

// applicationComponents holds all initialized application components.
type applicationComponents struct {
	store         *storage.GormStore
	redis         redis.UniversalClient
	nbi           *osm.NBIClient
	ro            *osm.ROClient
	ledger        *billing.Ledger
	deadLetter    events.DeadLetter
	sources       []events.Source
	consumers     []*events.Consumer
	aggregator    *aggregator.Aggregator
	healthChecker *observability.HealthChecker
}

// Close closes all components in reverse dependency order.
func (c *applicationComponents) Close(logger *zap.Logger) {
	for _, src := range c.sources {
		if err := src.Close(); err != nil {
			logger.Warn("failed to close message source", zap.String("topic", src.Topic()), zap.Error(err))
		}
	}
	if c.deadLetter != nil {
		if err := c.deadLetter.Close(); err != nil {
			logger.Warn("failed to close dead letter sink", zap.Error(err))
		}
	}
	if c.ledger != nil {
		c.ledger.Shutdown()
	}
	if c.nbi != nil {
		if err := c.nbi.Close(); err != nil {
			logger.Warn("failed to close NBI client", zap.Error(err))
		}
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			logger.Warn("failed to close Redis connection", zap.Error(err))
		}
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			logger.Warn("failed to close database", zap.Error(err))
		}
	}
}

// initializeCore opens the store, the billing ledger and, when configured, Redis.
// It is shared by serve and aggregate.
func initializeCore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*applicationComponents, error) {
	c := &applicationComponents{}

	store, err := storage.Open(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	c.store = store
	logger.Info("database initialized", zap.String("driver", cfg.Database.Driver))

	if cfg.UsesRedis() {
		client, err := storage.NewRedisClient(cfg.Redis)
		if err != nil {
			c.Close(logger)
			return nil, fmt.Errorf("failed to initialize Redis: %w", err)
		}
		c.redis = client
		if err := storage.RedisPing(client)(ctx); err != nil {
			c.Close(logger)
			return nil, fmt.Errorf("redis connectivity check failed: %w", err)
		}
		logger.Info("Redis initialized",
			zap.String("mode", cfg.Redis.Mode),
			zap.Strings("addresses", cfg.Redis.Addresses))
	}

	ledger, err := billing.New(ctx, &cfg.Billing, logger)
	if err != nil {
		c.Close(logger)
		return nil, fmt.Errorf("failed to initialize billing ledger: %w", err)
	}
	c.ledger = ledger
	logger.Info("billing ledger initialized", zap.String("host", cfg.Billing.Host))

	return c, nil
}

// initializeComponents builds everything serve runs.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*applicationComponents, error) {
	initCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	c, err := initializeCore(initCtx, cfg, logger)
	if err != nil {
		return nil, err
	}

	fail := func(err error) (*applicationComponents, error) {
		c.Close(logger)
		return nil, err
	}

	if c.nbi, err = osm.NewNBIClient(&cfg.OSM.NBI); err != nil {
		return fail(fmt.Errorf("failed to initialize NBI client: %w", err))
	}
	if c.ro, err = osm.NewROClient(&cfg.OSM.RO); err != nil {
		return fail(fmt.Errorf("failed to initialize RO client: %w", err))
	}

	if c.deadLetter, err = newDeadLetter(cfg, c.redis); err != nil {
		return fail(err)
	}

	rec, err := reconciler.New(reconciler.Params{
		Store:  c.store,
		NBI:    c.nbi,
		RO:     c.ro,
		Ledger: c.ledger,
		Defaults: reconciler.Defaults{
			ManoID:        cfg.Accounting.ManoID,
			NfvipopID:     cfg.Accounting.NfvipopID,
			CatalogUser:   cfg.Accounting.CatalogUser,
			CatalogTenant: cfg.Accounting.CatalogTenant,
			ManoProject:   cfg.Accounting.ManoProject,
		},
		Logger: logger,
	})
	if err != nil {
		return fail(fmt.Errorf("failed to initialize reconciler: %w", err))
	}

	ingestor, err := telemetry.NewIngestor(c.store, cfg.Telemetry, logger)
	if err != nil {
		return fail(fmt.Errorf("failed to initialize telemetry ingestion: %w", err))
	}

	lifecycleSrc, telemetrySrc, err := newSources(initCtx, cfg, c.redis, logger)
	if err != nil {
		return fail(err)
	}
	c.sources = []events.Source{lifecycleSrc, telemetrySrc}
	c.consumers = []*events.Consumer{
		events.NewConsumer(lifecycleSrc, events.LifecycleHandler(rec.Handle), c.deadLetter, logger),
		events.NewConsumer(telemetrySrc, events.TelemetryHandler(ingestor.Handle), c.deadLetter, logger),
	}

	if cfg.Aggregator.Enabled {
		if c.aggregator, err = newAggregator(cfg, c, logger); err != nil {
			return fail(err)
		}
	}

	c.healthChecker = newHealthChecker(c)
	return c, nil
}

func newSources(ctx context.Context, cfg *config.Config, client redis.UniversalClient, logger *zap.Logger) (lifecycle, metrics events.Source, err error) {
	switch cfg.Bus.Driver {
	case config.BusDriverRedis:
		consumer, err := streamConsumerName(cfg)
		if err != nil {
			return nil, nil, err
		}
		idle := cfg.Redis.ClaimMinIdle
		if lifecycle, err = events.NewRedisStreamSource(ctx, client, cfg.Redis.LifecycleStream, cfg.Kafka.GroupID, consumer, idle); err != nil {
			return nil, nil, fmt.Errorf("failed to open lifecycle stream: %w", err)
		}
		if metrics, err = events.NewRedisStreamSource(ctx, client, cfg.Redis.TelemetryStream, cfg.Kafka.GroupID, consumer, idle); err != nil {
			return nil, nil, fmt.Errorf("failed to open telemetry stream: %w", err)
		}
	default:
		if lifecycle, err = events.NewKafkaSource(cfg.Kafka, cfg.Kafka.Lifecycle, logger); err != nil {
			return nil, nil, fmt.Errorf("failed to open lifecycle topic: %w", err)
		}
		if metrics, err = events.NewKafkaSource(cfg.Kafka, cfg.Kafka.Telemetry, logger); err != nil {
			_ = lifecycle.Close()
			return nil, nil, fmt.Errorf("failed to open telemetry topic: %w", err)
		}
	}

	logger.Info("message sources initialized",
		zap.String("driver", cfg.Bus.Driver),
		zap.String("lifecycle", lifecycle.Topic()),
		zap.String("telemetry", metrics.Topic()))
	return lifecycle, metrics, nil
}

// streamConsumerName returns the configured consumer name, or the hostname so
// a restarted replica reclaims the entries it left pending.
func streamConsumerName(cfg *config.Config) (string, error) {
	if cfg.Redis.ConsumerName != "" {
		return cfg.Redis.ConsumerName, nil
	}
	host, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("failed to resolve stream consumer name: %w", err)
	}
	return "nfvacct-" + host, nil
}

func newDeadLetter(cfg *config.Config, client redis.UniversalClient) (events.DeadLetter, error) {
	switch cfg.DeadLetter.Driver {
	case config.DeadLetterRedis:
		return events.NewRedisDeadLetter(client, cfg.DeadLetter.Stream, cfg.DeadLetter.MaxLen), nil
	case config.DeadLetterKafka:
		dlq, err := events.NewKafkaDeadLetter(cfg.Kafka.Brokers, cfg.DeadLetter.Stream)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize dead letter topic: %w", err)
		}
		return dlq, nil
	default:
		return events.NopDeadLetter{}, nil
	}
}

func newAggregator(cfg *config.Config, c *applicationComponents, logger *zap.Logger) (*aggregator.Aggregator, error) {
	var opts []aggregator.Option
	if cfg.Aggregator.Lock.Enabled {
		lock, err := aggregator.NewRedisLock(c.redis, cfg.Aggregator.Lock.Key, cfg.Aggregator.Lock.TTL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize aggregation lock: %w", err)
		}
		opts = append(opts, aggregator.WithLock(lock))
	}

	agg, err := aggregator.New(c.store, c.ledger, cfg.Aggregator, logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize aggregator: %w", err)
	}
	return agg, nil
}

// newHealthChecker registers local dependencies as health checks and remote
// services as readiness checks.
func newHealthChecker(c *applicationComponents) *observability.HealthChecker {
	hc := observability.NewHealthChecker(Version)
	hc.SetTimeout(5 * time.Second)

	hc.RegisterHealthCheck("database", observability.PingCheck("database", c.store.Ping))
	if c.redis != nil {
		hc.RegisterHealthCheck("redis", observability.PingCheck("redis", storage.RedisPing(c.redis)))
	}

	hc.RegisterReadinessCheck("osm_nbi", observability.PingCheck("osm_nbi", c.nbi.Health))
	hc.RegisterReadinessCheck("osm_ro", observability.PingCheck("osm_ro", c.ro.Health))
	hc.RegisterReadinessCheck("billing", observability.PingCheck("billing", c.ledger.Health))
	return hc
}
