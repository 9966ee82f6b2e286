package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tmrouter/internal/config"
	dbRedis "github.com/kailas-cloud/tmrouter/internal/db/redis"
	"github.com/kailas-cloud/tmrouter/internal/domain"
	"github.com/kailas-cloud/tmrouter/internal/metrics"
	"github.com/kailas-cloud/tmrouter/internal/prompt"
	"github.com/kailas-cloud/tmrouter/internal/repository/embcache"
	anthropicGen "github.com/kailas-cloud/tmrouter/internal/transport/anthropic"
	"github.com/kailas-cloud/tmrouter/internal/transport/httpclient"
	"github.com/kailas-cloud/tmrouter/internal/transport/ollama"
	openaiTransport "github.com/kailas-cloud/tmrouter/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/tmrouter/internal/usecase/embedding"
)

// embeddingHealthChecker wraps domain.Embedder to implement health.EmbeddingChecker.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}

func httpClientConfig(cfg config.HTTPClientConfig) httpclient.Config {
	return httpclient.Config{
		RetryMax: cfg.RetryMax,
		Timeout:  time.Duration(cfg.TimeoutSec) * time.Second,
		WaitMin:  time.Duration(cfg.WaitMinMs) * time.Millisecond,
		WaitMax:  time.Duration(cfg.WaitMaxMs) * time.Millisecond,
	}
}

// buildEmbedder assembles the decorator chain:
// OpenAI -> Retrying -> Cached (redis) -> Local -> Instrumented -> Instruction.
// The returned func releases the local cache.
func buildEmbedder(
	cfg config.EmbeddingConfig,
	redis *dbRedis.Store,
	budget embeddinguc.BudgetChecker,
	logger *zap.Logger,
) (domain.Embedder, func(), error) {
	base := openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Model:      cfg.Model,
		Dimensions: cfg.Dimensions,
		Provider:   cfg.Provider,
		HTTPClient: httpclient.New(httpClientConfig(cfg.HTTP), logger),
		Logger:     logger,
	})

	var embedder domain.Embedder = base
	if cfg.Retry.MaxRetries > 0 {
		embedder = embeddinguc.NewRetryingEmbedder(embedder, embeddinguc.RetryConfig{
			MaxRetries: cfg.Retry.MaxRetries,
			BaseDelay:  time.Duration(cfg.Retry.BaseDelayMs) * time.Millisecond,
			MaxDelay:   time.Duration(cfg.Retry.MaxDelayMs) * time.Millisecond,
		}, logger)
	}

	// Shared cache survives restarts; the local cache absorbs hot keys in front of it.
	if redis != nil {
		embedder = embcache.New(
			embedder, redis, cfg.Model,
			time.Duration(cfg.Cache.RedisTTLHours)*time.Hour,
			metrics.EmbeddingCacheTotal, logger,
		)
	}
	local, err := embcache.NewLocal(embedder, cfg.Model, cfg.Cache.LocalMaxItems, metrics.EmbeddingCacheTotal)
	if err != nil {
		return nil, nil, err
	}

	instrumented := embeddinguc.NewInstrumentedEmbedder(
		local, cfg.Provider, cfg.Model, budget,
		time.Duration(cfg.TimeoutSec)*time.Second, logger,
	)
	if cfg.MaxBatchSize > 0 {
		instrumented = instrumented.WithMaxBatchSize(cfg.MaxBatchSize)
	}
	embedder = instrumented

	// Instruction prefix (outermost: cache keys include the instruction)
	if cfg.Instruction != "" {
		embedder = domain.NewInstructionEmbedder(embedder, cfg.Instruction)
	}
	return embedder, local.Close, nil
}

// buildPrompt parses the configured prompt template, or the built-in one.
func buildPrompt(cfg config.GenerationConfig) (*prompt.Builder, error) {
	var tmpl string
	if cfg.PromptTemplate != "" {
		data, err := os.ReadFile(filepath.Clean(cfg.PromptTemplate))
		if err != nil {
			return nil, fmt.Errorf("read prompt template: %w", err)
		}
		tmpl = string(data)
	}
	return prompt.New(tmpl)
}

// buildGenerator returns the configured generative provider, or nil when disabled.
func buildGenerator(cfg config.GenerationConfig, builder *prompt.Builder, logger *zap.Logger) (domain.Generator, error) {
	if !cfg.Enabled() {
		logger.Info("Generative translation disabled, falling back to glossary substitution")
		return nil, nil
	}

	client := httpclient.New(httpClientConfig(cfg.HTTP), logger)

	logger.Info("Generator created",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
	)

	switch cfg.Provider {
	case "openai", "azure":
		g, err := openaiTransport.NewGenerator(&openaiTransport.GeneratorConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Azure:       cfg.Provider == "azure",
			APIVersion:  cfg.APIVersion,
			Temperature: float32(cfg.Temperature),
			MaxTokens:   cfg.MaxTokens,
			HTTPClient:  client,
			Prompt:      builder,
			Logger:      logger,
		})
		if err != nil {
			return nil, err
		}
		return g, nil
	case "anthropic":
		g, err := anthropicGen.NewGenerator(&anthropicGen.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			MaxTokens:   int64(cfg.MaxTokens),
			Temperature: cfg.Temperature,
			HTTPClient:  client,
			Prompt:      builder,
			Logger:      logger,
		})
		if err != nil {
			return nil, err
		}
		return g, nil
	case "local":
		g, err := ollama.NewGenerator(&ollama.Config{
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			HTTPClient:  client,
			Prompt:      builder,
			Logger:      logger,
		})
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
	}
}
