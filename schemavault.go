// Package schemavault provides a persistent semantic index over database
// table schemas.
//
// Schemas are embedded with an OpenAI-compatible embedding endpoint and
// indexed for cosine-similarity search. State is persisted to two files
// in the data directory and survives restarts.
//
// Basic usage:
//
//	client, err := schemavault.New(
//	    schemavault.WithDataDir(".schemavault"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Store a schema
//	record, err := client.Catalog.AddSchema(ctx, schema.NewTableSchema(
//	    "main", "sales", "orders", columns, "Customer purchase records",
//	))
//
//	// Search by meaning
//	matches, err := client.Catalog.Query(ctx, "customer purchase records", 5)
//	for _, m := range matches {
//	    fmt.Println(m.Record().ID(), m.Distance())
//	}
package schemavault

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/schemavault/schemavault/application/service"
	"github.com/schemavault/schemavault/domain/schema"
	"github.com/schemavault/schemavault/domain/search"
	"github.com/schemavault/schemavault/infrastructure/index"
	"github.com/schemavault/schemavault/infrastructure/persistence"
	"github.com/schemavault/schemavault/infrastructure/provider"
	"github.com/schemavault/schemavault/infrastructure/unitycatalog"
	"github.com/schemavault/schemavault/internal/config"
	"github.com/schemavault/schemavault/internal/log"
)

// ErrClientClosed is returned when operations are attempted on a closed client.
var ErrClientClosed = fmt.Errorf("schemavault client is closed")

// Client is the main entry point for the schemavault library.
//
// Access the catalog via the struct field:
//
//	client.Catalog.AddSchema(ctx, table)
//	client.Catalog.Query(ctx, "payment transactions", 5)
type Client struct {
	// Catalog provides direct access to the schema catalog.
	Catalog *service.Catalog

	cfg    config.AppConfig
	source schema.Source
	logger *slog.Logger
	closed atomic.Bool
}

// New creates a new Client with the given options and loads any persisted
// state from the data directory.
func New(opts ...Option) (*Client, error) {
	cc := newClientConfig()
	for _, opt := range opts {
		opt(cc)
	}
	cfg := cc.app

	logger := cc.logger
	if logger == nil {
		logger = log.New(cfg)
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("prepare data dir: %w", err)
	}

	embedder := cc.embedder
	if embedder == nil {
		emb := cfg.Embedding()
		embedder = provider.NewOpenAIEmbedder(provider.OpenAIConfig{
			APIKey:     emb.APIKey(),
			BaseURL:    emb.APIURL(),
			Model:      emb.Model(),
			Dimension:  emb.Dimensions(),
			Timeout:    emb.Timeout(),
			MaxRetries: emb.MaxRetries(),
		})
	}

	vectorIndex := cc.index
	if vectorIndex == nil {
		dim := cfg.Embedding().Dimensions()
		switch cfg.IndexKind() {
		case config.IndexHNSW:
			vectorIndex = index.NewHNSW(dim)
		default:
			vectorIndex = index.NewBruteForce(dim)
		}
	}

	source := cc.source
	if source == nil && cfg.Databricks().IsConfigured() {
		db := cfg.Databricks()
		ucClient, err := unitycatalog.NewClient(db.Host(), db.Token(), db.Catalogs(), db.Schemas(),
			unitycatalog.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("unity catalog client: %w", err)
		}
		source = ucClient
	}

	catalog := service.NewCatalog(
		persistence.NewRecordStore(),
		vectorIndex,
		embedder,
		cfg.RecordPath(),
		cfg.IndexPath(),
		logger,
		cc.catalogOpts...,
	)
	if err := catalog.Open(); err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	return &Client{
		Catalog: catalog,
		cfg:     cfg,
		source:  source,
		logger:  logger,
	}, nil
}

// Reload re-crawls the configured schema source and replaces the catalog
// contents. It is a no-op returning empty stats when no source is
// configured.
func (c *Client) Reload(ctx context.Context) (service.ReloadStats, error) {
	if c.closed.Load() {
		return service.ReloadStats{}, ErrClientClosed
	}
	if c.source == nil {
		c.logger.Info("no schema source configured, skipping reload")
		return service.ReloadStats{}, nil
	}
	return c.Catalog.Reload(ctx, c.source)
}

// HasSource reports whether a schema source is configured.
func (c *Client) HasSource() bool {
	return c.source != nil
}

// Close persists catalog state and releases resources.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClientClosed
	}

	if err := c.Catalog.Close(); err != nil {
		return fmt.Errorf("close catalog: %w", err)
	}

	c.logger.Info("schemavault client closed")
	return nil
}

// Config returns the resolved application configuration.
func (c *Client) Config() config.AppConfig {
	return c.cfg
}

// Logger returns the client's logger.
func (c *Client) Logger() *slog.Logger {
	return c.logger
}

// Embedder is the interface embedding providers implement.
type Embedder = search.Embedder
