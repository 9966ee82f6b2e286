package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/tmrouter/internal/domain"
	"github.com/kailas-cloud/tmrouter/internal/metrics"
	"github.com/kailas-cloud/tmrouter/internal/prompt"
)

// Generation defaults.
const (
	DefaultTemperature = 0.3
	DefaultMaxTokens   = 1000
	DefaultAPIVersion  = "2024-02-01"
)

// GeneratorConfig holds chat-completion settings. With Azure set, BaseURL is the Azure
// endpoint and Model the deployment name.
type GeneratorConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Azure       bool
	APIVersion  string
	Temperature float32
	MaxTokens   int
	HTTPClient  *http.Client
	Prompt      *prompt.Builder
	Logger      *zap.Logger
}

// Generator translates through chat completions.
type Generator struct {
	client      *openai.Client
	name        string
	model       string
	temperature float32
	maxTokens   int
	prompt      *prompt.Builder
	logger      *zap.Logger
}

// NewGenerator creates an OpenAI or Azure OpenAI generator.
func NewGenerator(cfg *GeneratorConfig) (*Generator, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("generation model is required")
	}

	var clientCfg openai.ClientConfig
	name := "openai"
	if cfg.Azure {
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("azure endpoint is required")
		}
		clientCfg = openai.DefaultAzureConfig(cfg.APIKey, cfg.BaseURL)
		clientCfg.APIVersion = cfg.APIVersion
		if clientCfg.APIVersion == "" {
			clientCfg.APIVersion = DefaultAPIVersion
		}
		name = "azure"
	} else {
		clientCfg = openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientCfg.BaseURL = cfg.BaseURL
		}
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}

	builder := cfg.Prompt
	if builder == nil {
		var err error
		if builder, err = prompt.New(""); err != nil {
			return nil, err
		}
	}

	g := &Generator{
		client:      openai.NewClientWithConfig(clientCfg),
		name:        name,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		prompt:      builder,
		logger:      cfg.Logger,
	}
	if g.temperature == 0 {
		g.temperature = DefaultTemperature
	}
	if g.maxTokens <= 0 {
		g.maxTokens = DefaultMaxTokens
	}
	return g, nil
}

// Name returns the provider name.
func (g *Generator) Name() string { return g.name }

// Translate renders the prompt and returns the trimmed completion.
func (g *Generator) Translate(ctx context.Context, req domain.GenerationRequest) (string, error) {
	user, err := g.prompt.Render(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrGenerativeBackend, err)
	}

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.System},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	})
	metrics.GenerationDuration.WithLabelValues(g.name).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.GenerationRequestsTotal.WithLabelValues(g.name, "error").Inc()
		return "", parseAPIError("generation", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		metrics.GenerationRequestsTotal.WithLabelValues(g.name, "error").Inc()
		return "", fmt.Errorf("%w: empty completion", domain.ErrGenerativeBackend)
	}

	metrics.GenerationRequestsTotal.WithLabelValues(g.name, "success").Inc()
	g.logger.Debug("Generative translation completed",
		zap.String("provider", g.name),
		zap.String("model", g.model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
