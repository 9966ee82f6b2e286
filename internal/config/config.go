// Package config loads the per-environment YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the tmrouter configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Auth       AuthConfig       `yaml:"auth"`
	Logging    LoggingConfig    `yaml:"logging"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Index      IndexConfig      `yaml:"index"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Routing    RoutingConfig    `yaml:"routing"`
	Glossary   GlossaryConfig   `yaml:"glossary"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds the memory and glossary store settings.
type DatabaseConfig struct {
	Driver           string `yaml:"driver"` // sqlite (default), postgres
	Path             string `yaml:"path"`   // sqlite file
	DSN              string `yaml:"dsn"`    // postgres connection string
	MaxOpenConns     int    `yaml:"max_open_conns"`
	SlowQueryMs      int    `yaml:"slow_query_ms"`
	Debug            bool   `yaml:"debug"`
	Seed             string `yaml:"seed"` // auto (default): load starter data into empty tables; off
	ReadinessTimeout int    `yaml:"readiness_timeout_sec"`
}

// RedisConfig holds the optional Redis connection. No addrs disables Redis.
type RedisConfig struct {
	Addrs     []string `yaml:"addrs"`
	Username  string   `yaml:"username"`
	Password  string   `yaml:"password"`
	DB        int      `yaml:"db"`
	KeyPrefix string   `yaml:"key_prefix"`
}

// Enabled reports whether Redis is configured.
func (r RedisConfig) Enabled() bool { return len(r.Addrs) > 0 }

// EmbeddingConfig holds the embedding provider and its decorator chain settings.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	// Instruction prefixes both stored and query texts so identical texts embed identically.
	Instruction  string           `yaml:"instruction"`
	TimeoutSec   int              `yaml:"timeout_sec"`
	MaxBatchSize int              `yaml:"max_batch_size"`
	HTTP         HTTPClientConfig `yaml:"http"`
	Retry        RetryConfig      `yaml:"retry"`
	Cache        CacheConfig      `yaml:"cache"`
	Budget       BudgetConfig     `yaml:"budget"`
}

// HTTPClientConfig holds outbound HTTP retry settings.
type HTTPClientConfig struct {
	RetryMax   int `yaml:"retry_max"`
	TimeoutSec int `yaml:"timeout_sec"`
	WaitMinMs  int `yaml:"wait_min_ms"`
	WaitMaxMs  int `yaml:"wait_max_ms"`
}

// RetryConfig holds embedding call retry settings. Negative max_retries disables retries.
type RetryConfig struct {
	MaxRetries  int `yaml:"max_retries"`
	BaseDelayMs int `yaml:"base_delay_ms"`
	MaxDelayMs  int `yaml:"max_delay_ms"`
}

// CacheConfig holds embedding cache settings.
type CacheConfig struct {
	LocalMaxItems int64 `yaml:"local_max_items"`
	RedisTTLHours int   `yaml:"redis_ttl_hours"`
}

// BudgetConfig holds token budget settings.
type BudgetConfig struct {
	DailyTokenLimit   int64  `yaml:"daily_token_limit"`   // 0 = unlimited
	MonthlyTokenLimit int64  `yaml:"monthly_token_limit"` // 0 = unlimited
	Action            string `yaml:"action"`              // "reject" | "warn" (default)
}

// GenerationConfig selects the generative translation provider.
type GenerationConfig struct {
	Provider       string           `yaml:"provider"` // openai, azure, anthropic, local, none
	APIKey         string           `yaml:"api_key"`
	BaseURL        string           `yaml:"base_url"`
	Model          string           `yaml:"model"`
	APIVersion     string           `yaml:"api_version"`
	Temperature    float64          `yaml:"temperature"`
	MaxTokens      int              `yaml:"max_tokens"`
	PromptTemplate string           `yaml:"prompt_template"` // file path; empty uses the built-in template
	HTTP           HTTPClientConfig `yaml:"http"`
}

// Enabled reports whether a generative provider is configured.
func (g GenerationConfig) Enabled() bool { return g.Provider != "" && g.Provider != "none" }

// IndexConfig holds vector index settings.
type IndexConfig struct {
	SnapshotPath string `yaml:"snapshot_path"`
}

// RetrievalConfig holds memory search defaults.
type RetrievalConfig struct {
	TopK                int     `yaml:"top_k"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

// RoutingConfig holds routing policy constants.
type RoutingConfig struct {
	DirectUseThreshold float64 `yaml:"direct_use_threshold"`
	Baseline           float64 `yaml:"baseline"`
	TermWeight         float64 `yaml:"term_weight"`
	MemoryWeight       float64 `yaml:"memory_weight"`
}

// GlossaryConfig holds glossary cache settings.
type GlossaryConfig struct {
	// ReloadIntervalSec refreshes the in-memory glossary from the store. Negative disables.
	ReloadIntervalSec int `yaml:"reload_interval_sec"`
}

// Defaults returns the configuration used for every field left empty.
func Defaults() Config {
	return Config{
		HTTP: HTTPConfig{
			Port:            8000,
			ReadTimeoutSec:  10,
			WriteTimeoutSec: 60,
			ShutdownSec:     10,
		},
		Database: DatabaseConfig{
			Driver:           "sqlite",
			Path:             "data/translation.db",
			MaxOpenConns:     10,
			SlowQueryMs:      200,
			Seed:             "auto",
			ReadinessTimeout: 10,
		},
		Redis: RedisConfig{
			KeyPrefix: "tmrouter:",
		},
		Embedding: EmbeddingConfig{
			Provider:     "openai",
			Model:        "text-embedding-3-small",
			Dimensions:   1536,
			TimeoutSec:   10,
			MaxBatchSize: 100,
			HTTP:         HTTPClientConfig{RetryMax: 2, TimeoutSec: 30, WaitMinMs: 200, WaitMaxMs: 2000},
			Retry:        RetryConfig{MaxRetries: 2, BaseDelayMs: 200, MaxDelayMs: 2000},
			Cache:        CacheConfig{LocalMaxItems: 10000, RedisTTLHours: 720},
			Budget:       BudgetConfig{Action: "warn"},
		},
		Generation: GenerationConfig{
			Provider:    "none",
			Temperature: 0.3,
			MaxTokens:   1000,
			APIVersion:  "2024-02-01",
			HTTP:        HTTPClientConfig{RetryMax: 2, TimeoutSec: 60, WaitMinMs: 500, WaitMaxMs: 5000},
		},
		Index: IndexConfig{
			SnapshotPath: "data/vector_index.tmx",
		},
		Retrieval: RetrievalConfig{
			TopK:                5,
			SimilarityThreshold: 0.7,
		},
		Routing: RoutingConfig{
			DirectUseThreshold: 0.8,
			Baseline:           0.5,
			TermWeight:         0.3,
			MemoryWeight:       0.2,
		},
		Glossary: GlossaryConfig{
			ReloadIntervalSec: 300,
		},
	}
}

// Load reads configuration by environment name (local, test, prod). A .env file in the
// working directory, when present, is loaded into the process environment first.
func Load(env string) (Config, error) {
	_ = godotenv.Load()
	return LoadFile(findConfigPath(env))
}

// LoadFile reads, expands, defaults and validates one YAML file.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.ApplyDefaults(); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills zero-valued fields from Defaults.
func (c *Config) ApplyDefaults() error {
	if err := mergo.Merge(c, Defaults()); err != nil {
		return fmt.Errorf("apply config defaults: %w", err)
	}
	return nil
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("database.driver must be \"sqlite\" or \"postgres\", got %q", c.Database.Driver)
	}
	if c.Database.Seed != "auto" && c.Database.Seed != "off" {
		return fmt.Errorf("database.seed must be \"auto\" or \"off\", got %q", c.Database.Seed)
	}

	if c.Embedding.Provider != "openai" {
		return fmt.Errorf("embedding.provider must be \"openai\", got %q", c.Embedding.Provider)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	switch c.Embedding.Budget.Action {
	case "warn", "reject":
	default:
		return fmt.Errorf("embedding.budget.action must be \"warn\" or \"reject\", got %q", c.Embedding.Budget.Action)
	}

	switch c.Generation.Provider {
	case "none", "local":
	case "openai", "anthropic":
		if c.Generation.APIKey == "" {
			return fmt.Errorf("generation.api_key is required for provider %q", c.Generation.Provider)
		}
	case "azure":
		if c.Generation.APIKey == "" || c.Generation.BaseURL == "" {
			return fmt.Errorf("generation.api_key and generation.base_url are required for provider \"azure\"")
		}
		if c.Generation.Model == "" {
			return fmt.Errorf("generation.model (deployment name) is required for provider \"azure\"")
		}
	default:
		return fmt.Errorf("generation.provider must be one of openai, azure, anthropic, local, none; got %q",
			c.Generation.Provider)
	}

	if c.Retrieval.TopK < 1 {
		return fmt.Errorf("retrieval.top_k must be at least 1, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.SimilarityThreshold < -1 || c.Retrieval.SimilarityThreshold > 1 {
		return fmt.Errorf("retrieval.similarity_threshold must be within [-1, 1], got %v",
			c.Retrieval.SimilarityThreshold)
	}
	if c.Routing.DirectUseThreshold < 0 || c.Routing.DirectUseThreshold > 1 {
		return fmt.Errorf("routing.direct_use_threshold must be within [0, 1], got %v",
			c.Routing.DirectUseThreshold)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
