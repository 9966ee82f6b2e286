package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validConfig(t *testing.T) Config {
	t.Helper()
	cfg := Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		t.Fatalf("apply defaults: %v", err)
	}
	return cfg
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaults_AreValid(t *testing.T) {
	cfg := validConfig(t)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := validConfig(t)

	if cfg.HTTP.Port != 8000 {
		t.Errorf("expected Port=8000, got %d", cfg.HTTP.Port)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.Seed != "auto" {
		t.Errorf("unexpected database defaults: %+v", cfg.Database)
	}
	if cfg.Retrieval.TopK != 5 || cfg.Retrieval.SimilarityThreshold != 0.7 {
		t.Errorf("unexpected retrieval defaults: %+v", cfg.Retrieval)
	}
	if cfg.Routing.DirectUseThreshold != 0.8 || cfg.Routing.Baseline != 0.5 {
		t.Errorf("unexpected routing defaults: %+v", cfg.Routing)
	}
	if cfg.Embedding.Retry.MaxRetries != 2 || cfg.Embedding.Cache.LocalMaxItems != 10000 {
		t.Errorf("unexpected embedding defaults: %+v", cfg.Embedding)
	}
	if cfg.Generation.Provider != "none" || cfg.Generation.Enabled() {
		t.Errorf("expected generation disabled by default, got %q", cfg.Generation.Provider)
	}
	if cfg.Redis.Enabled() {
		t.Error("expected redis disabled by default")
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		HTTP:      HTTPConfig{Port: 9090, ReadTimeoutSec: 30},
		Retrieval: RetrievalConfig{TopK: 10, SimilarityThreshold: 0.5},
		Embedding: EmbeddingConfig{Retry: RetryConfig{MaxRetries: -1}},
		Redis:     RedisConfig{KeyPrefix: "custom:"},
	}
	if err := cfg.ApplyDefaults(); err != nil {
		t.Fatal(err)
	}

	if cfg.HTTP.Port != 9090 || cfg.HTTP.ReadTimeoutSec != 30 {
		t.Errorf("http overridden: %+v", cfg.HTTP)
	}
	if cfg.HTTP.WriteTimeoutSec != 60 {
		t.Errorf("expected WriteTimeoutSec default, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.Retrieval.TopK != 10 || cfg.Retrieval.SimilarityThreshold != 0.5 {
		t.Errorf("retrieval overridden: %+v", cfg.Retrieval)
	}
	if cfg.Embedding.Retry.MaxRetries != -1 {
		t.Errorf("expected disabled retries kept, got %d", cfg.Embedding.Retry.MaxRetries)
	}
	if cfg.Redis.KeyPrefix != "custom:" {
		t.Errorf("expected KeyPrefix='custom:', got %q", cfg.Redis.KeyPrefix)
	}
}

func TestValidate(t *testing.T) {
	tests := map[string]struct {
		mutate  func(c *Config)
		wantErr string
	}{
		"invalid port":        {func(c *Config) { c.HTTP.Port = 70000 }, "http.port"},
		"unknown driver":      {func(c *Config) { c.Database.Driver = "mysql" }, "database.driver"},
		"postgres needs dsn":  {func(c *Config) { c.Database.Driver = "postgres" }, "database.dsn"},
		"bad seed mode":       {func(c *Config) { c.Database.Seed = "always" }, "database.seed"},
		"bad budget action":   {func(c *Config) { c.Embedding.Budget.Action = "invalid_action" }, "embedding.budget.action"},
		"unknown generator":   {func(c *Config) { c.Generation.Provider = "llama" }, "generation.provider"},
		"openai needs key":    {func(c *Config) { c.Generation.Provider = "openai" }, "generation.api_key"},
		"azure needs url":     {func(c *Config) { c.Generation.Provider = "azure"; c.Generation.APIKey = "k" }, "base_url"},
		"threshold too high":  {func(c *Config) { c.Retrieval.SimilarityThreshold = 1.5 }, "similarity_threshold"},
		"direct use negative": {func(c *Config) { c.Routing.DirectUseThreshold = -0.1 }, "direct_use_threshold"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig(t)
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestValidate_GeneratorProviders(t *testing.T) {
	for _, p := range []string{"openai", "anthropic"} {
		cfg := validConfig(t)
		cfg.Generation.Provider = p
		cfg.Generation.APIKey = "key"
		if err := cfg.Validate(); err != nil {
			t.Errorf("provider %s: unexpected error: %v", p, err)
		}
	}

	cfg := validConfig(t)
	cfg.Generation = GenerationConfig{Provider: "azure", APIKey: "k", BaseURL: "https://x.openai.azure.com", Model: "gpt-4o"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("azure: unexpected error: %v", err)
	}

	// A local Ollama server needs no key; base_url and model have defaults.
	cfg = validConfig(t)
	cfg.Generation = GenerationConfig{Provider: "local"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("local: unexpected error: %v", err)
	}
}

func TestLoadFile_ExpandsEnv(t *testing.T) {
	t.Setenv("TMROUTER_TEST_KEY", "sk-test")
	path := writeConfig(t, `
http:
  port: ${TMROUTER_TEST_PORT:-8123}
auth:
  api_keys: ["${TMROUTER_TEST_KEY}"]
embedding:
  api_key: ${TMROUTER_TEST_KEY}
  dimensions: 384
generation:
  provider: anthropic
  api_key: ${TMROUTER_TEST_KEY}
retrieval:
  similarity_threshold: 0.75
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Port != 8123 {
		t.Errorf("expected default from expansion, got %d", cfg.HTTP.Port)
	}
	if len(cfg.Auth.APIKeys) != 1 || cfg.Auth.APIKeys[0] != "sk-test" {
		t.Errorf("unexpected api keys: %v", cfg.Auth.APIKeys)
	}
	if cfg.Embedding.Dimensions != 384 || cfg.Embedding.Model != "text-embedding-3-small" {
		t.Errorf("unexpected embedding config: %+v", cfg.Embedding)
	}
	if cfg.Generation.Provider != "anthropic" || cfg.Generation.MaxTokens != 1000 {
		t.Errorf("unexpected generation config: %+v", cfg.Generation)
	}
	if cfg.Retrieval.SimilarityThreshold != 0.75 || cfg.Retrieval.TopK != 5 {
		t.Errorf("unexpected retrieval config: %+v", cfg.Retrieval)
	}
}

func TestLoadFile_Invalid(t *testing.T) {
	if _, err := LoadFile(writeConfig(t, "http: [")); err == nil {
		t.Error("expected parse error")
	}
	if _, err := LoadFile(writeConfig(t, "database:\n  driver: oracle\n")); err == nil {
		t.Error("expected validation error")
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected read error")
	}
}

func TestLoad_RepositoryConfigs(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	for _, env := range []string{"local", "test"} {
		if _, err := Load(env); err != nil {
			t.Errorf("config/%s.yaml: %v", env, err)
		}
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TMROUTER_SET", "value")
	got := string(expandEnvVars([]byte("a=${TMROUTER_SET} b=${TMROUTER_UNSET:-fallback} c=${TMROUTER_UNSET}")))
	if got != "a=value b=fallback c=" {
		t.Errorf("unexpected expansion: %q", got)
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("ENV", "")
	if GetEnv() != "local" {
		t.Errorf("expected local, got %q", GetEnv())
	}
	t.Setenv("ENV", "prod")
	if GetEnv() != "prod" {
		t.Errorf("expected prod, got %q", GetEnv())
	}
}
