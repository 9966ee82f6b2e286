// Package anthropic adapts the Anthropic Messages API to the generation contract.
package anthropic

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/kailas-cloud/tmrouter/internal/domain"
	"github.com/kailas-cloud/tmrouter/internal/metrics"
	"github.com/kailas-cloud/tmrouter/internal/prompt"
)

const providerName = "anthropic"

// Defaults.
const (
	DefaultModel       = "claude-3-5-sonnet-latest"
	DefaultMaxTokens   = 1000
	DefaultTemperature = 0.3
)

// Config holds generator settings.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int64
	Temperature float64
	// MaxRetries is the SDK's own retry budget; zero leaves retries to HTTPClient.
	MaxRetries int
	HTTPClient *http.Client
	Prompt     *prompt.Builder
	Logger     *zap.Logger
}

// Generator translates through the Messages API.
type Generator struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
	prompt      *prompt.Builder
	logger      *zap.Logger
}

// NewGenerator creates an Anthropic generator.
func NewGenerator(cfg *Config) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	builder := cfg.Prompt
	if builder == nil {
		var err error
		if builder, err = prompt.New(""); err != nil {
			return nil, err
		}
	}

	g := &Generator{
		client:      anthropic.NewClient(opts...),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		prompt:      builder,
		logger:      cfg.Logger,
	}
	if g.model == "" {
		g.model = DefaultModel
	}
	if g.maxTokens <= 0 {
		g.maxTokens = DefaultMaxTokens
	}
	if g.temperature == 0 {
		g.temperature = DefaultTemperature
	}
	return g, nil
}

// Name returns the provider name.
func (g *Generator) Name() string { return providerName }

// Translate renders the prompt and returns the concatenated text blocks of the reply.
func (g *Generator) Translate(ctx context.Context, req domain.GenerationRequest) (string, error) {
	user, err := g.prompt.Render(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrGenerativeBackend, err)
	}

	start := time.Now()
	resp, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(g.model),
		MaxTokens:   g.maxTokens,
		Temperature: anthropic.Float(g.temperature),
		System:      []anthropic.TextBlockParam{{Text: prompt.System}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	metrics.GenerationDuration.WithLabelValues(providerName).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.GenerationRequestsTotal.WithLabelValues(providerName, "error").Inc()
		return "", fmt.Errorf("%w: claude API error: %w", domain.ErrGenerativeBackend, err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		metrics.GenerationRequestsTotal.WithLabelValues(providerName, "error").Inc()
		return "", fmt.Errorf("%w: empty completion", domain.ErrGenerativeBackend)
	}

	metrics.GenerationRequestsTotal.WithLabelValues(providerName, "success").Inc()
	g.logger.Debug("Generative translation completed",
		zap.String("provider", providerName),
		zap.String("model", g.model),
		zap.Int64("input_tokens", resp.Usage.InputTokens),
		zap.Int64("output_tokens", resp.Usage.OutputTokens),
	)
	return out, nil
}
