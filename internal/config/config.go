// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.bookmarkhub/config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - Storage: PostgreSQL connection (see storage.go)
//   - LLM: Ollama host, generation and embedding models
//   - Pipeline: worker intervals, batch sizes, retry/lease policy
//   - RAG: chunk limits, similarity threshold
//
// Sensitive data (the database password) is never logged; Validate()
// fails fast with sentinel errors checkable via errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidOllamaHost indicates the Ollama host is invalid.
	ErrInvalidOllamaHost = errors.New("invalid Ollama host")

	// ErrInvalidReadabilityURL indicates the readability service URL is invalid.
	ErrInvalidReadabilityURL = errors.New("invalid readability service URL")

	// ErrInvalidModelName indicates a model name is empty.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidStaticRoot indicates the static content directory is not set.
	ErrInvalidStaticRoot = errors.New("invalid static content directory")

	// ErrInvalidInterval indicates a worker interval is non-positive.
	ErrInvalidInterval = errors.New("invalid worker interval")

	// ErrInvalidRetryCeiling indicates the task retry ceiling is non-positive.
	ErrInvalidRetryCeiling = errors.New("invalid retry ceiling")

	// ErrInvalidRagLimits indicates the RAG chunk limit or threshold is out of range.
	ErrInvalidRagLimits = errors.New("invalid RAG limits")
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
type Config struct {
	// Storage configuration (see storage.go for connection helpers)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// LLM backend (Ollama over HTTP)
	OllamaHost      string `mapstructure:"ollama_host" json:"ollama_host"`
	GenerationModel string `mapstructure:"generation_model" json:"generation_model"`
	EmbeddingModel  string `mapstructure:"embedding_model" json:"embedding_model"`

	// Content extraction. When ReadabilityURL is empty the in-process
	// extractor is used instead of the external service.
	ReadabilityURL string `mapstructure:"readability_url" json:"readability_url"`

	// StaticRoot is the directory for extracted HTML and downloaded images,
	// laid out as {user_id}/{bookmark_id}/...
	StaticRoot string `mapstructure:"static_root" json:"static_root"`

	// Pipeline policy
	IngestionInterval   time.Duration `mapstructure:"ingestion_interval" json:"ingestion_interval"`
	EnrichmentInterval  time.Duration `mapstructure:"enrichment_interval" json:"enrichment_interval"`
	DequeueBatchSize    int           `mapstructure:"dequeue_batch_size" json:"dequeue_batch_size"`
	EnrichmentBatchSize int           `mapstructure:"enrichment_batch_size" json:"enrichment_batch_size"`
	TaskLeaseWindow     time.Duration `mapstructure:"task_lease_window" json:"task_lease_window"`
	TaskRetryCeiling    int           `mapstructure:"task_retry_ceiling" json:"task_retry_ceiling"`

	// RAG policy
	RagMaxChunks           int     `mapstructure:"rag_max_chunks" json:"rag_max_chunks"`
	RagSimilarityThreshold float64 `mapstructure:"rag_similarity_threshold" json:"rag_similarity_threshold"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".bookmarkhub")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// Missing config file is fine, defaults apply.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides the individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "bookmarkhub")
	viper.SetDefault("postgres_password", "bookmarkhub_dev_password")
	viper.SetDefault("postgres_db_name", "bookmarkhub")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Ollama defaults
	viper.SetDefault("ollama_host", "http://localhost:11434")
	viper.SetDefault("generation_model", "llama3.2")
	viper.SetDefault("embedding_model", "nomic-embed-text")

	// Content extraction
	viper.SetDefault("readability_url", "")
	viper.SetDefault("static_root", "./static")

	// Pipeline defaults
	viper.SetDefault("ingestion_interval", "30s")
	viper.SetDefault("enrichment_interval", "60s")
	viper.SetDefault("dequeue_batch_size", 10)
	viper.SetDefault("enrichment_batch_size", 10)
	viper.SetDefault("task_lease_window", "5m")
	viper.SetDefault("task_retry_ceiling", 5)

	// RAG defaults
	viper.SetDefault("rag_max_chunks", 10)
	viper.SetDefault("rag_similarity_threshold", 0.5)
}

// bindEnvVariables binds environment overrides explicitly.
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("ollama_host", "BOOKMARKHUB_OLLAMA_HOST")
	mustBind("generation_model", "BOOKMARKHUB_GENERATION_MODEL")
	mustBind("embedding_model", "BOOKMARKHUB_EMBEDDING_MODEL")
	mustBind("readability_url", "BOOKMARKHUB_READABILITY_URL")
	mustBind("static_root", "BOOKMARKHUB_STATIC_ROOT")

	// NOTE: DATABASE_URL is read directly in parseDatabaseURL, not via viper.
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging. Short secrets are fully
// masked to prevent substring matching against logs.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with sensitive field masking.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
