// Package config provides application configuration.
package config

import (
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvConfig holds all environment-based configuration.
type EnvConfig struct {
	// Host is the server host to bind to.
	// Env: HOST (default: 0.0.0.0)
	Host string `envconfig:"HOST" default:"0.0.0.0"`

	// Port is the server port to listen on.
	// Env: PORT (default: 8000)
	Port int `envconfig:"PORT" default:"8000"`

	// DataDir is the directory holding the persisted index and record
	// store files.
	// Env: DATA_DIR (default: ~/.schemavault)
	DataDir string `envconfig:"DATA_DIR"`

	// LogLevel is the log verbosity level.
	// Env: LOG_LEVEL (default: INFO)
	LogLevel string `envconfig:"LOG_LEVEL" default:"INFO"`

	// LogFormat is the log output format (pretty or json).
	// Env: LOG_FORMAT (default: pretty)
	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	// IndexKind selects the vector index: bruteforce or hnsw.
	// Env: INDEX_KIND (default: bruteforce)
	IndexKind string `envconfig:"INDEX_KIND" default:"bruteforce"`

	// Embedding configures the embedding service.
	Embedding EmbeddingEnv `envconfig:"EMBEDDING"`

	// Databricks configures the Unity Catalog ingestion source.
	Databricks DatabricksEnv `envconfig:"DATABRICKS"`
}

// EmbeddingEnv holds environment configuration for the embedding endpoint.
type EmbeddingEnv struct {
	// APIURL is the OpenAI-compatible base URL.
	// Env: EMBEDDING_API_URL (default: http://localhost:8000/v1)
	APIURL string `envconfig:"API_URL" default:"http://localhost:8000/v1"`

	// APIKey is the bearer token for the endpoint.
	// Env: EMBEDDING_API_KEY
	APIKey string `envconfig:"API_KEY"`

	// Model is the embedding model identifier.
	// Env: EMBEDDING_MODEL (default: nomic-embed-text)
	Model string `envconfig:"MODEL" default:"nomic-embed-text"`

	// Dimensions is the embedding vector dimension, fixed at index
	// creation time.
	// Env: EMBEDDING_DIMENSIONS (default: 768)
	Dimensions int `envconfig:"DIMENSIONS" default:"768"`

	// Timeout is the request timeout in seconds.
	// Env: EMBEDDING_TIMEOUT (default: 60)
	Timeout float64 `envconfig:"TIMEOUT" default:"60"`

	// MaxRetries is the maximum number of retries.
	// Env: EMBEDDING_MAX_RETRIES (default: 5)
	MaxRetries int `envconfig:"MAX_RETRIES" default:"5"`
}

// DatabricksEnv holds environment configuration for Unity Catalog ingestion.
type DatabricksEnv struct {
	// Host is the workspace URL. Ingestion is disabled when unset.
	// Env: DATABRICKS_HOST
	Host string `envconfig:"HOST"`

	// Token is the personal access token.
	// Env: DATABRICKS_TOKEN
	Token string `envconfig:"TOKEN"`

	// Catalogs is a comma-separated catalog filter; "*" means all.
	// Env: DATABRICKS_CATALOGS (default: main)
	Catalogs string `envconfig:"CATALOGS" default:"main"`

	// Schemas is a comma-separated schema filter; empty or "*" means all.
	// Env: DATABRICKS_SCHEMAS
	Schemas string `envconfig:"SCHEMAS"`
}

// IsConfigured reports whether ingestion credentials are present.
func (d DatabricksEnv) IsConfigured() bool {
	return d.Host != "" && d.Token != ""
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (EnvConfig, error) {
	var cfg EnvConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return EnvConfig{}, err
	}
	return cfg, nil
}

// ToAppConfig converts EnvConfig to AppConfig.
func (e EnvConfig) ToAppConfig() AppConfig {
	opts := []AppConfigOption{
		WithHost(e.Host),
		WithPort(e.Port),
		WithLogLevel(e.LogLevel),
		WithLogFormat(parseLogFormat(e.LogFormat)),
		WithIndexKind(parseIndexKind(e.IndexKind)),
		WithEmbedding(Embedding{
			apiURL:     e.Embedding.APIURL,
			apiKey:     e.Embedding.APIKey,
			model:      e.Embedding.Model,
			dimensions: e.Embedding.Dimensions,
			timeout:    time.Duration(e.Embedding.Timeout * float64(time.Second)),
			maxRetries: e.Embedding.MaxRetries,
		}),
	}
	if e.DataDir != "" {
		opts = append(opts, WithDataDir(e.DataDir))
	}
	if e.Databricks.IsConfigured() {
		opts = append(opts, WithDatabricks(Databricks{
			host:     e.Databricks.Host,
			token:    e.Databricks.Token,
			catalogs: e.Databricks.Catalogs,
			schemas:  e.Databricks.Schemas,
		}))
	}

	return NewAppConfig(opts...)
}

// parseLogFormat parses a log format string.
func parseLogFormat(s string) LogFormat {
	switch strings.ToLower(s) {
	case "json":
		return LogFormatJSON
	default:
		return LogFormatPretty
	}
}

// parseIndexKind parses an index kind string.
func parseIndexKind(s string) IndexKind {
	switch strings.ToLower(s) {
	case "hnsw":
		return IndexHNSW
	default:
		return IndexBruteForce
	}
}
