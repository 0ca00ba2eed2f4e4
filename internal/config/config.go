package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LogFormat is the log output format.
type LogFormat int

// Log output formats.
const (
	LogFormatPretty LogFormat = iota
	LogFormatJSON
)

// IndexKind selects the vector index implementation.
type IndexKind int

// Vector index kinds.
const (
	IndexBruteForce IndexKind = iota
	IndexHNSW
)

// File names inside the data directory.
const (
	IndexFileName  = "vectors.index"
	RecordFileName = "schemas.json"
)

// Embedding holds embedding endpoint configuration.
type Embedding struct {
	apiURL     string
	apiKey     string
	model      string
	dimensions int
	timeout    time.Duration
	maxRetries int
}

// NewEmbedding creates an Embedding configuration. Zero values fall back
// to the defaults NewAppConfig uses.
func NewEmbedding(apiURL, apiKey, model string, dimensions int, timeout time.Duration, maxRetries int) Embedding {
	e := NewAppConfig().embedding
	if apiURL != "" {
		e.apiURL = apiURL
	}
	e.apiKey = apiKey
	if model != "" {
		e.model = model
	}
	if dimensions > 0 {
		e.dimensions = dimensions
	}
	if timeout > 0 {
		e.timeout = timeout
	}
	if maxRetries > 0 {
		e.maxRetries = maxRetries
	}
	return e
}

// APIURL returns the OpenAI-compatible base URL.
func (e Embedding) APIURL() string { return e.apiURL }

// APIKey returns the bearer token.
func (e Embedding) APIKey() string { return e.apiKey }

// Model returns the embedding model identifier.
func (e Embedding) Model() string { return e.model }

// Dimensions returns the embedding vector dimension.
func (e Embedding) Dimensions() int { return e.dimensions }

// Timeout returns the request timeout.
func (e Embedding) Timeout() time.Duration { return e.timeout }

// MaxRetries returns the maximum retry count.
func (e Embedding) MaxRetries() int { return e.maxRetries }

// Databricks holds Unity Catalog ingestion configuration.
type Databricks struct {
	host     string
	token    string
	catalogs string
	schemas  string
}

// NewDatabricks creates a Databricks ingestion configuration.
func NewDatabricks(host, token, catalogs, schemas string) Databricks {
	return Databricks{host: host, token: token, catalogs: catalogs, schemas: schemas}
}

// Host returns the workspace URL.
func (d Databricks) Host() string { return d.host }

// Token returns the personal access token.
func (d Databricks) Token() string { return d.token }

// Catalogs returns the comma-separated catalog filter.
func (d Databricks) Catalogs() string { return d.catalogs }

// Schemas returns the comma-separated schema filter.
func (d Databricks) Schemas() string { return d.schemas }

// IsConfigured reports whether ingestion credentials are present.
func (d Databricks) IsConfigured() bool { return d.host != "" && d.token != "" }

// AppConfig is the immutable application configuration.
type AppConfig struct {
	host       string
	port       int
	dataDir    string
	logLevel   string
	logFormat  LogFormat
	indexKind  IndexKind
	embedding  Embedding
	databricks Databricks
}

// AppConfigOption configures an AppConfig.
type AppConfigOption func(*AppConfig)

// WithHost sets the server host.
func WithHost(host string) AppConfigOption {
	return func(c *AppConfig) {
		if host != "" {
			c.host = host
		}
	}
}

// WithPort sets the server port.
func WithPort(port int) AppConfigOption {
	return func(c *AppConfig) {
		if port != 0 {
			c.port = port
		}
	}
}

// WithDataDir sets the data directory.
func WithDataDir(dir string) AppConfigOption {
	return func(c *AppConfig) {
		if dir != "" {
			c.dataDir = dir
		}
	}
}

// WithLogLevel sets the log level.
func WithLogLevel(level string) AppConfigOption {
	return func(c *AppConfig) {
		if level != "" {
			c.logLevel = level
		}
	}
}

// WithLogFormat sets the log format.
func WithLogFormat(format LogFormat) AppConfigOption {
	return func(c *AppConfig) { c.logFormat = format }
}

// WithIndexKind sets the vector index implementation.
func WithIndexKind(kind IndexKind) AppConfigOption {
	return func(c *AppConfig) { c.indexKind = kind }
}

// WithEmbedding sets the embedding endpoint configuration.
func WithEmbedding(e Embedding) AppConfigOption {
	return func(c *AppConfig) { c.embedding = e }
}

// WithDatabricks sets the Unity Catalog ingestion configuration.
func WithDatabricks(d Databricks) AppConfigOption {
	return func(c *AppConfig) { c.databricks = d }
}

// NewAppConfig creates an AppConfig with defaults, then applies options.
func NewAppConfig(opts ...AppConfigOption) AppConfig {
	cfg := AppConfig{
		host:      "0.0.0.0",
		port:      8000,
		dataDir:   DefaultDataDir(),
		logLevel:  "INFO",
		logFormat: LogFormatPretty,
		indexKind: IndexBruteForce,
		embedding: Embedding{
			apiURL:     "http://localhost:8000/v1",
			model:      "nomic-embed-text",
			dimensions: 768,
			timeout:    60 * time.Second,
			maxRetries: 5,
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Apply returns a copy with the given options applied.
func (c AppConfig) Apply(opts ...AppConfigOption) AppConfig {
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Host returns the server host.
func (c AppConfig) Host() string { return c.host }

// Port returns the server port.
func (c AppConfig) Port() int { return c.port }

// Addr returns the host:port bind address.
func (c AppConfig) Addr() string { return fmt.Sprintf("%s:%d", c.host, c.port) }

// DataDir returns the data directory.
func (c AppConfig) DataDir() string { return c.dataDir }

// LogLevel returns the log level.
func (c AppConfig) LogLevel() string { return c.logLevel }

// LogFormat returns the log format.
func (c AppConfig) LogFormat() LogFormat { return c.logFormat }

// IndexKind returns the configured vector index implementation.
func (c AppConfig) IndexKind() IndexKind { return c.indexKind }

// Embedding returns the embedding endpoint configuration.
func (c AppConfig) Embedding() Embedding { return c.embedding }

// Databricks returns the Unity Catalog ingestion configuration.
func (c AppConfig) Databricks() Databricks { return c.databricks }

// IndexPath returns the vector index file path.
func (c AppConfig) IndexPath() string { return filepath.Join(c.dataDir, IndexFileName) }

// RecordPath returns the record store file path.
func (c AppConfig) RecordPath() string { return filepath.Join(c.dataDir, RecordFileName) }

// EnsureDataDir creates the data directory if needed.
func (c AppConfig) EnsureDataDir() error {
	return os.MkdirAll(c.dataDir, 0o755)
}

// DefaultDataDir returns ~/.schemavault, falling back to a relative
// .schemavault when the home directory cannot be resolved.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".schemavault"
	}
	return filepath.Join(home, ".schemavault")
}
