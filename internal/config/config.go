// Package config provides application configuration with multi-source
// priority.
//
// Sources (highest to lowest):
//  1. Environment variables (MASTT_* plus GEMINI_API_KEY / DATABASE_URL)
//  2. Config file (./mastt.yaml or ~/.mastt/config.yaml)
//  3. Default values
//
// Categories: project identity and output root, PostgreSQL storage for the
// chunk index, Gemini model settings, RAG tuning (chunk size, overlap,
// context budget), Confluence access, the HTTP server, and tracing.
//
// Validation is fail-fast: Load returns an error before any component is
// constructed, so a missing API key can never surface mid-pipeline.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrMissingAPIKey indicates GEMINI_API_KEY is not set.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrMissingProjectName indicates the project name is empty.
	ErrMissingProjectName = errors.New("missing project name")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates max output tokens is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidChunking indicates chunk size / overlap are inconsistent.
	ErrInvalidChunking = errors.New("invalid chunking parameters")

	// ErrInvalidContextBudget indicates the context token budget is invalid.
	ErrInvalidContextBudget = errors.New("invalid context token budget")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresSSLMode indicates the SSL mode is not recognized.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrIncompleteConfluence indicates a partially configured Confluence
	// connection (some but not all of URL, username, token).
	ErrIncompleteConfluence = errors.New("incomplete Confluence configuration")
)

const (
	// DefaultModel is the default Gemini generation model.
	DefaultModel = "gemini-2.5-flash"

	// DefaultEmbedderModel is the default Gemini embedder model.
	// gemini-embedding-001 supports truncation to 768 dimensions, which is
	// what the chunks table schema uses.
	DefaultEmbedderModel = "gemini-embedding-001"
)

// ConfluenceConfig holds optional Confluence access settings. All of URL,
// username and token must be set for the client to be enabled.
type ConfluenceConfig struct {
	URL      string `mapstructure:"url" json:"url"`
	Username string `mapstructure:"username" json:"username"`
	Token    string `mapstructure:"token" json:"token"` // SENSITIVE: masked in MarshalJSON
	SpaceKey string `mapstructure:"space_key" json:"space_key"`
}

// Enabled reports whether enough settings are present to talk to Confluence.
func (c ConfluenceConfig) Enabled() bool {
	return c.URL != "" && c.Username != "" && c.Token != ""
}

// TracingConfig holds optional OpenTelemetry export settings.
type TracingConfig struct {
	Endpoint    string `mapstructure:"endpoint" json:"endpoint"` // OTLP HTTP endpoint, e.g. localhost:4318
	ServiceName string `mapstructure:"service_name" json:"service_name"`
	Environment string `mapstructure:"environment" json:"environment"`
}

// Config stores application configuration.
// SECURITY: sensitive fields are masked in MarshalJSON. When adding new
// secrets (passwords, API keys, tokens), update MarshalJSON.
type Config struct {
	// Project identity
	ProjectName    string   `mapstructure:"project_name" json:"project_name"`
	RepositoryPath string   `mapstructure:"repository_path" json:"repository_path"`
	DocumentPaths  []string `mapstructure:"document_paths" json:"document_paths"`
	OutputDir      string   `mapstructure:"output_dir" json:"output_dir"`

	// Gemini configuration
	GeminiAPIKey string  `mapstructure:"gemini_api_key" json:"gemini_api_key"` // SENSITIVE: masked in MarshalJSON
	ModelName    string  `mapstructure:"model_name" json:"model_name"`
	Temperature  float32 `mapstructure:"temperature" json:"temperature"`
	MaxTokens    int     `mapstructure:"max_tokens" json:"max_tokens"`

	// RAG configuration
	EmbedderModel    string `mapstructure:"embedder_model" json:"embedder_model"`
	ChunkSize        int    `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap     int    `mapstructure:"chunk_overlap" json:"chunk_overlap"`
	EmbedBatchSize   int    `mapstructure:"embed_batch_size" json:"embed_batch_size"`
	RetrievalTopK    int    `mapstructure:"retrieval_top_k" json:"retrieval_top_k"`
	MaxContextTokens int    `mapstructure:"max_context_tokens" json:"max_context_tokens"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Collaborators
	Confluence ConfluenceConfig `mapstructure:"confluence" json:"confluence"`

	// Server configuration (serve mode only)
	ServerAddr string `mapstructure:"server_addr" json:"server_addr"`

	// Observability configuration
	Tracing TracingConfig `mapstructure:"tracing" json:"tracing"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("mastt")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".mastt"))
	}

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults plus env apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults", "config_name", "mastt.yaml")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings when present.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("project_name", "test_project")
	v.SetDefault("output_dir", "./output")

	// Gemini defaults
	v.SetDefault("model_name", DefaultModel)
	v.SetDefault("temperature", 0.7)
	v.SetDefault("max_tokens", 8192)

	// RAG defaults
	v.SetDefault("embedder_model", DefaultEmbedderModel)
	v.SetDefault("chunk_size", 1000)
	v.SetDefault("chunk_overlap", 200)
	v.SetDefault("embed_batch_size", 100)
	v.SetDefault("retrieval_top_k", 10)
	v.SetDefault("max_context_tokens", 4000)

	// PostgreSQL defaults (matching docker-compose.yml)
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "mastt")
	v.SetDefault("postgres_password", "mastt_dev_password")
	v.SetDefault("postgres_db_name", "mastt")
	v.SetDefault("postgres_ssl_mode", "disable")

	// Server defaults
	v.SetDefault("server_addr", ":8080")

	// Tracing defaults (disabled unless endpoint set)
	v.SetDefault("tracing.service_name", "mastt")
	v.SetDefault("tracing.environment", "dev")
}

// bindEnvVariables binds environment variables. MASTT_* covers every key
// (MASTT_PROJECT_NAME, MASTT_POSTGRES_HOST, ...); the two secrets keep their
// conventional unprefixed names.
func bindEnvVariables(v *viper.Viper) {
	v.SetEnvPrefix("MASTT")
	v.AutomaticEnv()

	// Hardcoded keys cannot fail to bind; a panic here is a bug, not a
	// runtime condition.
	mustBind := func(key string, envs ...string) {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			panic(fmt.Sprintf("config: binding %s: %v", key, err))
		}
	}

	mustBind("gemini_api_key", "GEMINI_API_KEY", "GOOGLE_API_KEY")
	mustBind("confluence.token", "CONFLUENCE_TOKEN")
}
