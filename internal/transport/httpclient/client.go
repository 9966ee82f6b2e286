// Package httpclient builds the retrying HTTP client shared by provider SDKs.
package httpclient

import (
	"context"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// Defaults.
const (
	DefaultRetryMax = 2
	DefaultTimeout  = 30 * time.Second
)

// Config holds client settings.
type Config struct {
	RetryMax int
	Timeout  time.Duration
	WaitMin  time.Duration
	WaitMax  time.Duration
}

// New returns a standard *http.Client whose transport retries 429 and 5xx responses
// and connection errors with exponential backoff.
func New(cfg Config, logger *zap.Logger) *http.Client {
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	rc.RetryMax = cfg.RetryMax
	if cfg.WaitMin > 0 {
		rc.RetryWaitMin = cfg.WaitMin
	}
	if cfg.WaitMax > 0 {
		rc.RetryWaitMax = cfg.WaitMax
	}
	rc.Backoff = retryablehttp.DefaultBackoff
	rc.CheckRetry = IgnoreBadRequestRetryPolicy
	rc.Logger = leveledLogger{logger.Named("http")}
	return rc.StandardClient()
}

// IgnoreBadRequestRetryPolicy never retries 4xx other than 429, nor a cancelled or
// expired context.
func IgnoreBadRequestRetryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// leveledLogger adapts zap to retryablehttp.LeveledLogger.
type leveledLogger struct {
	l *zap.Logger
}

func (z leveledLogger) Error(msg string, kv ...any) { z.l.Error(msg, fields(kv)...) }
func (z leveledLogger) Warn(msg string, kv ...any)  { z.l.Warn(msg, fields(kv)...) }
func (z leveledLogger) Info(msg string, kv ...any)  { z.l.Debug(msg, fields(kv)...) }
func (z leveledLogger) Debug(msg string, kv ...any) { z.l.Debug(msg, fields(kv)...) }

func fields(kv []any) []zap.Field {
	out := make([]zap.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		out = append(out, zap.Any(key, kv[i+1]))
	}
	return out
}
