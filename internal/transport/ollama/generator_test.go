package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tmrouter/internal/domain"
	"github.com/kailas-cloud/tmrouter/internal/prompt"
)

func generateServer(t *testing.T, status int, body any, got *generateRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got != nil {
			if err := json.NewDecoder(r.Body).Decode(got); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGenerator_Translate(t *testing.T) {
	var req generateRequest
	srv := generateServer(t, http.StatusOK, generateResponse{
		Model: DefaultModel, Response: "  Le serveur cloud est lent\n", Done: true, PromptEvalCount: 52, EvalCount: 8,
	}, &req)

	g, err := NewGenerator(&Config{BaseURL: srv.URL, Temperature: 0.3, MaxTokens: 200, Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out, err := g.Translate(context.Background(), domain.GenerationRequest{
		Text: "The cloud server is slow", TargetLanguage: "fr",
		Hints: domain.ContextHints{Terms: []domain.TermMatch{{Term: "cloud server", Translation: "serveur cloud"}}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "Le serveur cloud est lent" {
		t.Errorf("unexpected translation %q", out)
	}
	if g.Name() != "local" {
		t.Errorf("unexpected name %q", g.Name())
	}

	if req.Model != DefaultModel || req.Stream {
		t.Errorf("unexpected request: model=%q stream=%v", req.Model, req.Stream)
	}
	if req.System != prompt.System {
		t.Errorf("unexpected system prompt %q", req.System)
	}
	if !strings.Contains(req.Prompt, "cloud server → serveur cloud") {
		t.Errorf("prompt missing glossary hint:\n%s", req.Prompt)
	}
	if req.Options == nil || req.Options.Temperature != 0.3 || req.Options.NumPredict != 200 {
		t.Errorf("unexpected options: %+v", req.Options)
	}
}

func TestGenerator_ErrorStatus(t *testing.T) {
	srv := generateServer(t, http.StatusNotFound, errorResponse{Error: `model "llama2" not found`}, nil)
	g, _ := NewGenerator(&Config{BaseURL: srv.URL})

	_, err := g.Translate(context.Background(), domain.GenerationRequest{Text: "Hello", TargetLanguage: "fr"})
	if !errors.Is(err, domain.ErrGenerativeBackend) {
		t.Fatalf("expected ErrGenerativeBackend, got %v", err)
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected server message in error, got %v", err)
	}
}

func TestGenerator_EmptyResponse(t *testing.T) {
	srv := generateServer(t, http.StatusOK, generateResponse{Response: "   ", Done: true}, nil)
	g, _ := NewGenerator(&Config{BaseURL: srv.URL})

	if _, err := g.Translate(context.Background(), domain.GenerationRequest{Text: "Hello", TargetLanguage: "fr"}); !errors.Is(err, domain.ErrGenerativeBackend) {
		t.Errorf("expected ErrGenerativeBackend, got %v", err)
	}
}

func TestNewGenerator_Defaults(t *testing.T) {
	g, err := NewGenerator(&Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.endpoint != DefaultBaseURL+"/api/generate" || g.model != DefaultModel || g.opts != nil {
		t.Errorf("unexpected defaults: endpoint=%q model=%q opts=%+v", g.endpoint, g.model, g.opts)
	}

	if _, err := NewGenerator(&Config{BaseURL: "localhost"}); err == nil {
		t.Error("expected error for base url without scheme")
	}
}
