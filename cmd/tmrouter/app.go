package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/kailas-cloud/tmrouter/internal/config"
	dbRedis "github.com/kailas-cloud/tmrouter/internal/db/redis"
	"github.com/kailas-cloud/tmrouter/internal/db/sqldb"
	"github.com/kailas-cloud/tmrouter/internal/domain"
	"github.com/kailas-cloud/tmrouter/internal/index"
	logpkg "github.com/kailas-cloud/tmrouter/internal/logger"
	"github.com/kailas-cloud/tmrouter/internal/metrics"
	budgetrepo "github.com/kailas-cloud/tmrouter/internal/repository/budget"
	glossaryrepo "github.com/kailas-cloud/tmrouter/internal/repository/glossary"
	memoryrepo "github.com/kailas-cloud/tmrouter/internal/repository/memory"
	embeddinguc "github.com/kailas-cloud/tmrouter/internal/usecase/embedding"
	glossaryuc "github.com/kailas-cloud/tmrouter/internal/usecase/glossary"
	"github.com/kailas-cloud/tmrouter/internal/usecase/retrieval"
)

// app is the composition root shared by every subcommand.
type app struct {
	cfg    config.Config
	logger *zap.Logger

	db    *bun.DB
	redis *dbRedis.Store // nil when redis is not configured

	memoryRepo   *memoryrepo.Repo
	glossaryRepo *glossaryrepo.Repo

	budget   *embeddinguc.BudgetTracker // nil when no limit is set
	embedder domain.Embedder
	closers  []func()

	retrieval *retrieval.Service
	glossary  *glossaryuc.Service
}

func newApp(ctx context.Context, env string) (*app, error) {
	cfg, err := config.Load(env)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterRetrievalMetrics()

	a := &app{cfg: cfg, logger: logger}
	if err := a.open(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) open(ctx context.Context) error {
	cfg := a.cfg
	logger := a.logger

	db, err := sqldb.Open(ctx, sqldb.Config{
		Driver:        cfg.Database.Driver,
		Path:          cfg.Database.Path,
		DSN:           cfg.Database.DSN,
		MaxOpenConns:  cfg.Database.MaxOpenConns,
		SlowThreshold: time.Duration(cfg.Database.SlowQueryMs) * time.Millisecond,
		Debug:         cfg.Database.Debug,
	}, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	a.db = db
	logger.Info("Connected to database", zap.String("driver", cfg.Database.Driver))

	a.memoryRepo = memoryrepo.New(db)
	if err := a.memoryRepo.CreateSchema(ctx); err != nil {
		return fmt.Errorf("memory schema: %w", err)
	}
	a.glossaryRepo = glossaryrepo.New(db)
	if err := a.glossaryRepo.CreateSchema(ctx); err != nil {
		return fmt.Errorf("glossary schema: %w", err)
	}

	if cfg.Redis.Enabled() {
		store, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:     cfg.Redis.Addrs,
			Username:  cfg.Redis.Username,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return fmt.Errorf("create redis store: %w", err)
		}
		a.redis = store
		if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
			return fmt.Errorf("redis not ready: %w", err)
		}
		logger.Info("Connected to redis", zap.Strings("addrs", cfg.Redis.Addrs))
	}

	budgetCfg := cfg.Embedding.Budget
	if budgetCfg.DailyTokenLimit > 0 || budgetCfg.MonthlyTokenLimit > 0 {
		action := embeddinguc.BudgetActionWarn
		if budgetCfg.Action == "reject" {
			action = embeddinguc.BudgetActionReject
		}
		a.budget = embeddinguc.NewBudgetTracker(
			cfg.Embedding.Provider, budgetCfg.DailyTokenLimit, budgetCfg.MonthlyTokenLimit, action, logger,
		)
		if a.redis != nil {
			a.budget.WithStore(ctx, budgetrepo.New(a.redis, 0, 0))
		}
	}

	// Go gotcha: (*BudgetTracker)(nil) wrapped in BudgetChecker != nil.
	var budgetChecker embeddinguc.BudgetChecker
	if a.budget != nil {
		budgetChecker = a.budget
	}

	embedder, closeEmbedder, err := buildEmbedder(cfg.Embedding, a.redis, budgetChecker, logger)
	if err != nil {
		return fmt.Errorf("build embedder: %w", err)
	}
	a.embedder = embedder
	a.closers = append(a.closers, closeEmbedder)
	logger.Info("Embedder created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
		zap.Bool("redis_cache", a.redis != nil),
	)

	idx, err := index.New(index.Config{
		Dimensions: cfg.Embedding.Dimensions,
		Model:      cfg.Embedding.Model,
		Store:      index.NewFileStore(cfg.Index.SnapshotPath),
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}

	a.retrieval = retrieval.New(a.memoryRepo, idx, embedder, retrieval.Config{
		DefaultTopK:      cfg.Retrieval.TopK,
		DefaultThreshold: cfg.Retrieval.SimilarityThreshold,
	}, logger)
	a.glossary = glossaryuc.New(a.glossaryRepo, logger)
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	if a.redis != nil {
		a.redis.Close()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("Failed to close database", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

// reloadGlossary refreshes the in-memory glossary until ctx is done.
func (a *app) reloadGlossary(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.glossary.Reload(ctx); err != nil && ctx.Err() == nil {
				a.logger.Warn("Glossary reload failed, keeping previous terms", zap.Error(err))
			}
		}
	}
}

// degradable reports whether the server can start without a usable vector index.
func degradable(err error) bool {
	return errors.Is(err, domain.ErrEmbeddingUnavailable) ||
		errors.Is(err, domain.ErrEmbeddingQuotaExceeded) ||
		errors.Is(err, domain.ErrPersistence)
}
