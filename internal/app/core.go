package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/utafrali/shopindex/internal/config"
	"github.com/utafrali/shopindex/internal/document"
	"github.com/utafrali/shopindex/internal/engine"
	esengine "github.com/utafrali/shopindex/internal/engine/elasticsearch"
	"github.com/utafrali/shopindex/internal/engine/guard"
	enginemem "github.com/utafrali/shopindex/internal/engine/memory"
	"github.com/utafrali/shopindex/internal/reindex"
	"github.com/utafrali/shopindex/internal/repository"
	"github.com/utafrali/shopindex/internal/repository/memory"
	"github.com/utafrali/shopindex/internal/repository/postgres"
	"github.com/utafrali/shopindex/internal/service"
	"github.com/utafrali/shopindex/migrations"
	"github.com/utafrali/shopindex/pkg/database"
	"github.com/utafrali/shopindex/pkg/health"
	"github.com/utafrali/shopindex/pkg/httpclient"
)

// Core holds the components shared by the server and the operator CLI: the
// record store, the index store and everything that reads one to fill the
// other.
type Core struct {
	Store     *repository.Store
	Index     engine.IndexStore
	Builder   *document.Builder
	Search    *service.SearchService
	Reindexer *reindex.Reindexer
	Health    *health.Handler

	closers []func(context.Context) error
}

// NewCore connects the configured backends. On error everything opened so
// far is closed again.
func NewCore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *Core, err error) {
	c := &Core{Health: health.NewHandler()}
	defer func() {
		if err != nil {
			_ = c.Close(context.Background())
		}
	}()

	if c.Store, err = c.openRecordStore(ctx, cfg, logger); err != nil {
		return nil, err
	}
	if c.Index, err = c.openIndexStore(ctx, cfg, logger); err != nil {
		return nil, err
	}

	c.Builder = document.NewBuilder(c.Store)
	c.Search = service.NewSearchService(c.Index, logger)

	var opts []reindex.Option
	if cfg.ReindexLock == config.LockRedis {
		rdb, err := database.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		c.onClose(func(context.Context) error { return rdb.Close() })
		c.Health.RegisterNonCritical("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
		opts = append(opts, reindex.WithLocker(reindex.NewRedisLocker(rdb, cfg.ReindexLockTTL, logger)))
		logger.Info("reindex lock uses redis", slog.String("addr", cfg.Redis.Addr))
	}

	c.Reindexer = reindex.New(c.Store, c.Builder, c.Index, reindex.Config{
		Target:          cfg.IndexPrefix + "all",
		BatchSize:       cfg.ReindexBatchSize,
		LoaderThreads:   cfg.ReindexLoaderThreads,
		TypesInParallel: cfg.ReindexTypesInParallel,
		ProgressEvery:   cfg.ReindexProgressEvery,
		QPS:             cfg.ReindexQPSLimit,
	}, logger, opts...)
	c.onClose(c.Reindexer.Close)

	return c, nil
}

func (c *Core) openRecordStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*repository.Store, error) {
	if cfg.RecordStore == config.StoreMemory {
		logger.Info("in-memory record store initialized")
		return memory.NewStore(), nil
	}

	pool, err := database.NewPostgresPool(ctx, &cfg.Postgres, logger)
	if err != nil {
		return nil, err
	}
	c.onClose(func(context.Context) error { pool.Close(); return nil })
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.Postgres.Host),
		slog.Int("port", cfg.Postgres.Port),
		slog.String("database", cfg.Postgres.DBName),
	)

	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, config.ServiceName); err != nil {
		logger.Warn("failed to register pool metrics", slog.String("error", err.Error()))
	}
	database.SetSlowQueryLogging(cfg.SlowQueryLogAfter, logger)

	applied, err := database.RunMigrations(ctx, pool, migrations.FS, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("database migrations completed", slog.Int("applied", len(applied)))

	c.Health.RegisterCritical("postgres", pool.Ping)
	return postgres.NewStore(pool), nil
}

func (c *Core) openIndexStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (engine.IndexStore, error) {
	var index engine.IndexStore
	switch cfg.SearchEngine {
	case config.EngineElasticsearch:
		es, err := esengine.New(ctx, esengine.Config{
			Addresses: cfg.ElasticsearchURLs,
			Username:  cfg.ElasticsearchUsername,
			Password:  cfg.ElasticsearchPassword,
			Names:     cfg.IndexNames(),
			Refresh:   cfg.ElasticsearchRefresh,
			Transport: httpclient.Traced(httpclient.NewTransport(httpclient.DefaultConfig()), "elasticsearch"),
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("init elasticsearch engine: %w", err)
		}
		index = es
		logger.Info("elasticsearch index store initialized", slog.Any("urls", cfg.ElasticsearchURLs))
	default:
		index = enginemem.New()
		logger.Info("in-memory index store initialized")
	}

	guarded := guard.New(index, guard.DefaultConfig(cfg.SearchEngine), logger)
	// Ping bypasses the breaker so readiness reflects the store itself.
	c.Health.RegisterNonCritical(cfg.SearchEngine, index.Ping)
	return guarded, nil
}

func (c *Core) onClose(fn func(context.Context) error) {
	c.closers = append(c.closers, fn)
}

// Close releases backends in reverse order of opening.
func (c *Core) Close(ctx context.Context) error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
