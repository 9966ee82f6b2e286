// Package ollama adapts a local Ollama server's generate API to the generation contract.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tmrouter/internal/domain"
	"github.com/kailas-cloud/tmrouter/internal/metrics"
	"github.com/kailas-cloud/tmrouter/internal/prompt"
)

const providerName = "local"

// Defaults.
const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultModel   = "llama2"
)

// Config holds generator settings.
type Config struct {
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	HTTPClient  *http.Client
	Prompt      *prompt.Builder
	Logger      *zap.Logger
}

type generateRequest struct {
	Model   string   `json:"model"`
	Prompt  string   `json:"prompt"`
	System  string   `json:"system,omitempty"`
	Stream  bool     `json:"stream"`
	Options *options `json:"options,omitempty"`
}

type options struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type generateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count,omitempty"`
	EvalCount       int    `json:"eval_count,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Generator translates through a non-streaming /api/generate call.
type Generator struct {
	client   *http.Client
	endpoint string
	model    string
	opts     *options
	prompt   *prompt.Builder
	logger   *zap.Logger
}

// NewGenerator creates a local-model generator.
func NewGenerator(cfg *Config) (*Generator, error) {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid ollama base url %q", base)
	}

	builder := cfg.Prompt
	if builder == nil {
		if builder, err = prompt.New(""); err != nil {
			return nil, err
		}
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	g := &Generator{
		client:   client,
		endpoint: u.JoinPath("/api/generate").String(),
		model:    cfg.Model,
		prompt:   builder,
		logger:   logger,
	}
	if g.model == "" {
		g.model = DefaultModel
	}
	if cfg.Temperature > 0 || cfg.MaxTokens > 0 {
		g.opts = &options{Temperature: cfg.Temperature, NumPredict: cfg.MaxTokens}
	}
	return g, nil
}

// Name returns the provider name.
func (g *Generator) Name() string { return providerName }

// Translate renders the prompt and returns the trimmed model response.
func (g *Generator) Translate(ctx context.Context, req domain.GenerationRequest) (string, error) {
	user, err := g.prompt.Render(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrGenerativeBackend, err)
	}

	start := time.Now()
	resp, err := g.generate(ctx, &generateRequest{
		Model:   g.model,
		Prompt:  user,
		System:  prompt.System,
		Options: g.opts,
	})
	metrics.GenerationDuration.WithLabelValues(providerName).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.GenerationRequestsTotal.WithLabelValues(providerName, "error").Inc()
		return "", fmt.Errorf("%w: %w", domain.ErrGenerativeBackend, err)
	}

	out := strings.TrimSpace(resp.Response)
	if out == "" {
		metrics.GenerationRequestsTotal.WithLabelValues(providerName, "error").Inc()
		return "", fmt.Errorf("%w: empty completion", domain.ErrGenerativeBackend)
	}

	metrics.GenerationRequestsTotal.WithLabelValues(providerName, "success").Inc()
	g.logger.Debug("Generative translation completed",
		zap.String("provider", providerName),
		zap.String("model", g.model),
		zap.Int("prompt_tokens", resp.PromptEvalCount),
		zap.Int("completion_tokens", resp.EvalCount),
	)
	return out, nil
}

func (g *Generator) generate(ctx context.Context, req *generateRequest) (*generateResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var e errorResponse
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			return nil, fmt.Errorf("ollama status %d: %s", resp.StatusCode, e.Error)
		}
		return nil, fmt.Errorf("ollama status %d", resp.StatusCode)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}
