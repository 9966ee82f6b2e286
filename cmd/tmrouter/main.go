package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/tmrouter/internal/config"
	"github.com/kailas-cloud/tmrouter/internal/domain"
	"github.com/kailas-cloud/tmrouter/internal/seed"
	chiTransport "github.com/kailas-cloud/tmrouter/internal/transport/chi"
	healthuc "github.com/kailas-cloud/tmrouter/internal/usecase/health"
	"github.com/kailas-cloud/tmrouter/internal/usecase/routing"
	"github.com/kailas-cloud/tmrouter/internal/usecase/translate"
	"github.com/kailas-cloud/tmrouter/internal/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var env string

	root := &cobra.Command{
		Use:           "tmrouter",
		Short:         "Translation memory retrieval and routing service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), env)
		},
	}
	root.PersistentFlags().StringVar(&env, "env", config.GetEnv(), "configuration environment (config/<env>.yaml)")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runServe(cmd.Context(), env)
			},
		},
		&cobra.Command{
			Use:   "reindex",
			Short: "Rebuild the vector index from the memory store",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runReindex(cmd.Context(), env)
			},
		},
		&cobra.Command{
			Use:   "seed",
			Short: "Load starter pairs and glossary terms into empty tables",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runSeed(cmd.Context(), env)
			},
		},
		newGlossaryCmd(&env),
		&cobra.Command{
			Use:   "version",
			Short: "Print build information",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version.String())
			},
		},
	)
	return root
}

func runServe(ctx context.Context, env string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, env)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.cfg
	logger := a.logger

	if cfg.Database.Seed == "auto" {
		if _, err := seed.Run(ctx, a.memoryRepo, a.glossaryRepo, logger); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}

	if err := a.glossary.Reload(ctx); err != nil {
		return fmt.Errorf("load glossary: %w", err)
	}
	if cfg.Glossary.ReloadIntervalSec > 0 {
		go a.reloadGlossary(ctx, time.Duration(cfg.Glossary.ReloadIntervalSec)*time.Second)
	}

	if err := a.retrieval.Init(ctx); err != nil {
		if !degradable(err) {
			return fmt.Errorf("init vector index: %w", err)
		}
		// Exact matches and generation still work; the next restart or reindex rebuilds.
		logger.Error("Vector index unavailable, serving exact matches only", zap.Error(err))
	}

	builder, err := buildPrompt(cfg.Generation)
	if err != nil {
		return fmt.Errorf("build prompt: %w", err)
	}
	generator, err := buildGenerator(cfg.Generation, builder, logger)
	if err != nil {
		return fmt.Errorf("build generator: %w", err)
	}

	// Pass nil interface (not typed nil pointer!) if budget is not configured.
	var budget translate.BudgetReporter
	if a.budget != nil {
		budget = a.budget
	}

	translator := translate.New(a.retrieval, a.glossary, routing.Policy{
		DirectUseThreshold: cfg.Routing.DirectUseThreshold,
		Baseline:           cfg.Routing.Baseline,
		TermWeight:         cfg.Routing.TermWeight,
		MemoryWeight:       cfg.Routing.MemoryWeight,
	}, generator, budget, translate.Config{
		EmbeddingModel:      cfg.Embedding.Model,
		SimilarityThreshold: cfg.Retrieval.SimilarityThreshold,
		TopK:                cfg.Retrieval.TopK,
		Prompt:              builder,
	}, logger)

	deps := healthuc.Deps{
		DB:        a.db,
		Embedding: newEmbeddingHealthChecker(a.embedder),
		Index:     a.retrieval,
	}
	if a.redis != nil {
		deps.Cache = a.redis
	}
	healthSvc := healthuc.New(deps, logger)

	server := chiTransport.NewServer(translator, a.retrieval, a.glossary, healthSvc, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Router(cfg.Auth.APIKeys),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	logger.Info("Starting tmrouter API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.String("addr", addr),
		zap.String("generator", cfg.Generation.Provider),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
	return nil
}

func runReindex(ctx context.Context, env string) error {
	a, err := newApp(ctx, env)
	if err != nil {
		return err
	}
	defer a.Close()

	start := time.Now()
	n, err := a.retrieval.Rebuild(ctx)
	if err != nil {
		return fmt.Errorf("rebuild index: %w", err)
	}
	a.logger.Info("Vector index rebuilt",
		zap.Int("records", n),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}

func newGlossaryCmd(env *string) *cobra.Command {
	var targetLanguage string

	importCmd := &cobra.Command{
		Use:   "import <csv>",
		Short: "Add glossary terms from a CSV file with term and preferred_translation columns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := runGlossaryImport(cmd.Context(), *env, args[0], targetLanguage)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d glossary terms\n", n)
			return nil
		},
	}
	importCmd.Flags().StringVar(&targetLanguage, "target-language", domain.DefaultTargetLanguage,
		"target language for rows without a target_language column")

	glossaryCmd := &cobra.Command{
		Use:   "glossary",
		Short: "Manage glossary terms",
	}
	glossaryCmd.AddCommand(importCmd)
	return glossaryCmd
}

func runGlossaryImport(ctx context.Context, env, path, targetLanguage string) (int, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return 0, fmt.Errorf("open glossary csv: %w", err)
	}
	defer func() { _ = f.Close() }()

	a, err := newApp(ctx, env)
	if err != nil {
		return 0, err
	}
	defer a.Close()

	n, err := seed.ImportTerms(ctx, f, a.glossaryRepo, targetLanguage, a.logger)
	if err != nil {
		return n, fmt.Errorf("import glossary %s: %w", path, err)
	}
	return n, nil
}

func runSeed(ctx context.Context, env string) error {
	a, err := newApp(ctx, env)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := seed.Run(ctx, a.memoryRepo, a.glossaryRepo, a.logger)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	if res.Pairs > 0 {
		if err := a.retrieval.Init(ctx); err != nil {
			return fmt.Errorf("index seeded pairs: %w", err)
		}
	}
	a.logger.Info("Seed finished", zap.Int("pairs", res.Pairs), zap.Int("terms", res.Terms))
	return nil
}
