package schemavault

import (
	"log/slog"

	"github.com/schemavault/schemavault/application/service"
	"github.com/schemavault/schemavault/domain/schema"
	"github.com/schemavault/schemavault/domain/search"
	"github.com/schemavault/schemavault/internal/config"
)

// clientConfig holds configuration for Client construction.
type clientConfig struct {
	app         config.AppConfig
	embedder    search.Embedder
	index       schema.VectorIndex
	source      schema.Source
	logger      *slog.Logger
	catalogOpts []service.CatalogOption
}

func newClientConfig() *clientConfig {
	return &clientConfig{
		app: config.NewAppConfig(),
	}
}

// Option configures the Client.
type Option func(*clientConfig)

// WithConfig replaces the entire application configuration. Options
// applied after this one override individual fields.
func WithConfig(cfg config.AppConfig) Option {
	return func(c *clientConfig) {
		c.app = cfg
	}
}

// WithDataDir sets the directory for persisted index and record files.
func WithDataDir(dir string) Option {
	return func(c *clientConfig) {
		c.app = c.app.Apply(config.WithDataDir(dir))
	}
}

// WithIndexKind selects the vector index implementation.
func WithIndexKind(kind config.IndexKind) Option {
	return func(c *clientConfig) {
		c.app = c.app.Apply(config.WithIndexKind(kind))
	}
}

// WithEmbedding sets the embedding endpoint configuration.
func WithEmbedding(e config.Embedding) Option {
	return func(c *clientConfig) {
		c.app = c.app.Apply(config.WithEmbedding(e))
	}
}

// WithEmbedder sets a custom embedding provider, bypassing the
// OpenAI-compatible client built from configuration.
func WithEmbedder(e search.Embedder) Option {
	return func(c *clientConfig) {
		c.embedder = e
	}
}

// WithVectorIndex sets a custom vector index, bypassing the one built
// from configuration.
func WithVectorIndex(idx schema.VectorIndex) Option {
	return func(c *clientConfig) {
		c.index = idx
	}
}

// WithSource sets the schema source used by Reload.
func WithSource(s schema.Source) Option {
	return func(c *clientConfig) {
		c.source = s
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *clientConfig) {
		c.logger = l
	}
}

// WithReloadParallelism sets how many schemas are embedded concurrently
// during Reload. Defaults to 4. Values <= 0 are ignored.
func WithReloadParallelism(n int) Option {
	return func(c *clientConfig) {
		if n > 0 {
			c.catalogOpts = append(c.catalogOpts, service.WithReloadParallelism(n))
		}
	}
}
