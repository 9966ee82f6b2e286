package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"go.uber.org/zap"

	"github.com/kailas-cloud/tmrouter/internal/domain"
)

// RetryConfig bounds retries of transient provider failures.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// RetryingEmbedder retries failed provider calls with exponential backoff.
// Quota errors and caller cancellation are never retried.
type RetryingEmbedder struct {
	inner  domain.Embedder
	cfg    RetryConfig
	logger *zap.Logger
}

// NewRetryingEmbedder wraps inner with a retry policy.
func NewRetryingEmbedder(inner domain.Embedder, cfg RetryConfig, logger *zap.Logger) *RetryingEmbedder {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	return &RetryingEmbedder{inner: inner, cfg: cfg, logger: logger}
}

// Embed calls the inner embedder until it succeeds or the policy gives up.
func (r *RetryingEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	return retry(ctx, r, func() (domain.EmbeddingResult, error) {
		return r.inner.Embed(ctx, text)
	})
}

// BatchEmbed retries the whole batch.
func (r *RetryingEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	return retry(ctx, r, func() (domain.BatchEmbeddingResult, error) {
		return domain.EmbedAll(ctx, r.inner, texts)
	})
}

// HealthCheck delegates without retries.
func (r *RetryingEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := r.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

func retry[R any](ctx context.Context, r *RetryingEmbedder, fn func() (R, error)) (R, error) {
	if r.cfg.MaxRetries <= 0 {
		return fn()
	}

	policy := retrypolicy.Builder[R]().
		HandleIf(func(_ R, err error) bool { return retryable(err) }).
		WithBackoff(r.cfg.BaseDelay, r.cfg.MaxDelay).
		WithMaxRetries(r.cfg.MaxRetries).
		Build()

	var (
		attempts int
		lastErr  error
	)
	res, err := failsafe.NewExecutor[R](policy).WithContext(ctx).Get(func() (R, error) {
		attempts++
		out, err := fn()
		if err != nil {
			lastErr = err
			if attempts <= r.cfg.MaxRetries && retryable(err) {
				r.logger.Warn("Embedding attempt failed, retrying",
					zap.Int("attempt", attempts),
					zap.Error(err),
				)
			}
		}
		return out, err
	})
	if err != nil {
		var zero R
		if lastErr != nil {
			return zero, fmt.Errorf("after %d attempts: %w", attempts, lastErr)
		}
		return zero, fmt.Errorf("retry: %w", err)
	}
	return res, nil
}

func retryable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, domain.ErrEmbeddingQuotaExceeded) &&
		!errors.Is(err, domain.ErrDimensionMismatch) &&
		!errors.Is(err, context.Canceled)
}
