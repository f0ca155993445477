// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (RAGPIPE_* runtime override)
//  2. Config file (~/.ragpipe/config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - Provider: embedding/generation provider selection and model names
//   - Index: vector index backend (memory or postgres) and Postgres
//     connection settings (see storage.go)
//   - Ingest: chunking parameters and embedding cache location
//   - Retrieve: top-k and minimum similarity score
//   - Prompt: token budget and system instructions
//
// Security: the Postgres password is masked in MarshalJSON and never logged.
// Validation: range checks live in validation.go with sentinel errors so
// callers can use errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Sentinel errors for configuration problems.
var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidProvider indicates the provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidChunking indicates chunk size/overlap are out of range.
	ErrInvalidChunking = errors.New("invalid chunking parameters")

	// ErrInvalidTopK indicates the retrieval top-k is out of range.
	ErrInvalidTopK = errors.New("invalid top-k")

	// ErrInvalidMinScore indicates the minimum score is out of range.
	ErrInvalidMinScore = errors.New("invalid minimum score")

	// ErrInvalidTokenBudget indicates the prompt token budget is out of range.
	ErrInvalidTokenBudget = errors.New("invalid token budget")

	// ErrInvalidIndexBackend indicates an unknown vector index backend.
	ErrInvalidIndexBackend = errors.New("invalid index backend")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")
)

// Provider identifiers used in Config.Provider.
const (
	ProviderOllama = "ollama"
	ProviderGenkit = "genkit"
)

// Index backend identifiers used in Config.IndexBackend.
const (
	IndexBackendMemory   = "memory"
	IndexBackendPostgres = "postgres"
)

// Defaults applied when neither the environment nor the config file sets a
// value.
const (
	DefaultModelName     = "llama3.1"
	DefaultEmbedderModel = "nomic-embed-text"
	DefaultChunkSize     = 1000
	DefaultChunkOverlap  = 200
	DefaultTopK          = 5
	DefaultMinScore      = 0.25
	DefaultTokenBudget   = 8000
	DefaultMaxRetries    = 3
	DefaultTimeoutSecs   = 60
)

// Config stores application configuration.
// SECURITY: sensitive fields are masked in MarshalJSON. When adding new
// secrets (passwords, API keys), update MarshalJSON.
type Config struct {
	// Provider and models
	Provider      string  `mapstructure:"provider" json:"provider"`             // "ollama" (default) or "genkit"
	ModelName     string  `mapstructure:"model_name" json:"model_name"`         // generation model (e.g. "llama3.1")
	EmbedderModel string  `mapstructure:"embedder_model" json:"embedder_model"` // embedding model (e.g. "nomic-embed-text")
	OllamaHost    string  `mapstructure:"ollama_host" json:"ollama_host"`       // empty = OLLAMA_HOST / default
	Temperature   float32 `mapstructure:"temperature" json:"temperature"`

	// Generation resilience
	MaxRetries     int `mapstructure:"max_retries" json:"max_retries"`
	TimeoutSeconds int `mapstructure:"timeout_seconds" json:"timeout_seconds"`

	// Ingestion
	ChunkSize    int    `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap int    `mapstructure:"chunk_overlap" json:"chunk_overlap"`
	CachePath    string `mapstructure:"cache_path" json:"cache_path"` // embedding cache SQLite file; empty disables

	// Retrieval
	TopK     int     `mapstructure:"top_k" json:"top_k"`
	MinScore float32 `mapstructure:"min_score" json:"min_score"`

	// Prompt assembly
	TokenBudget        int    `mapstructure:"token_budget" json:"token_budget"`
	SystemInstructions string `mapstructure:"system_instructions" json:"system_instructions"`

	// Vector index
	IndexBackend string `mapstructure:"index_backend" json:"index_backend"` // "memory" or "postgres"

	// PostgreSQL connection (used when IndexBackend == "postgres")
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"`
	PostgresDBName   string `mapstructure:"postgres_dbname" json:"postgres_dbname"`
	PostgresSSLMode  string `mapstructure:"postgres_sslmode" json:"postgres_sslmode"`

	// Logging
	LogLevel string `mapstructure:"log_level" json:"log_level"` // debug, info, warn, error
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`
}

// DefaultSystemInstructions is the baseline system prompt when none is
// configured. It instructs the model to answer strictly from retrieved
// context.
const DefaultSystemInstructions = `You are a document analysis assistant. Answer questions accurately based on the provided context. If the answer is not in the context, say you do not have enough information to answer.`

// Load reads configuration from defaults, the config file (if present), and
// environment variables, then validates the result.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Config file is optional: ~/.ragpipe/config.yaml
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".ragpipe"))
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// No config file: defaults + env only.
	}

	v.SetEnvPrefix("RAGPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// DATABASE_URL wins over individual postgres_* values when present.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns a validated configuration containing only defaults.
// Mostly useful for tests and for embedding the core without viper.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	// Unmarshal of pure defaults cannot fail.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", ProviderOllama)
	v.SetDefault("model_name", DefaultModelName)
	v.SetDefault("embedder_model", DefaultEmbedderModel)
	v.SetDefault("ollama_host", "")
	v.SetDefault("temperature", 0.1)

	v.SetDefault("max_retries", DefaultMaxRetries)
	v.SetDefault("timeout_seconds", DefaultTimeoutSecs)

	v.SetDefault("chunk_size", DefaultChunkSize)
	v.SetDefault("chunk_overlap", DefaultChunkOverlap)
	v.SetDefault("cache_path", "")

	v.SetDefault("top_k", DefaultTopK)
	v.SetDefault("min_score", DefaultMinScore)

	v.SetDefault("token_budget", DefaultTokenBudget)
	v.SetDefault("system_instructions", DefaultSystemInstructions)

	v.SetDefault("index_backend", IndexBackendMemory)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "ragpipe")
	v.SetDefault("postgres_password", "")
	v.SetDefault("postgres_dbname", "ragpipe")
	v.SetDefault("postgres_sslmode", "disable")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
}

// MarshalJSON masks sensitive fields so the config can be logged or dumped
// safely.
func (c *Config) MarshalJSON() ([]byte, error) {
	type alias Config // avoid recursion
	masked := alias(*c)
	if masked.PostgresPassword != "" {
		masked.PostgresPassword = "****"
	}
	return json.Marshal(masked)
}

// String renders the masked configuration for diagnostics.
func (c *Config) String() string {
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Sprintf("config(marshal error: %v)", err)
	}
	return string(b)
}
