// Package service contains the catalog service that orchestrates the record
// store, the vector index, and the embedding client.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/schemavault/schemavault/domain/schema"
	"github.com/schemavault/schemavault/domain/search"
)

// DefaultTopK is the result count used when a query does not specify one.
const DefaultTopK = 5

// DefaultReloadParallelism bounds concurrent embedding calls during a
// startup reload.
const DefaultReloadParallelism = 4

// Catalog presents atomic, consistency-preserving operations over one
// record store + vector index pair. Mutations run under writer exclusion;
// reads share a lock. Embedding calls never run under the writer lock.
type Catalog struct {
	store    schema.RecordStore
	index    schema.VectorIndex
	embedder search.Embedder
	logger   *slog.Logger

	storePath   string
	indexPath   string
	parallelism int

	mu sync.RWMutex
}

// CatalogOption configures a Catalog.
type CatalogOption func(*Catalog)

// WithReloadParallelism bounds concurrent embedding calls during Reload.
func WithReloadParallelism(n int) CatalogOption {
	return func(c *Catalog) {
		if n > 0 {
			c.parallelism = n
		}
	}
}

// NewCatalog creates a Catalog over the given stores. storePath and
// indexPath are the two files the catalog persists to.
func NewCatalog(store schema.RecordStore, index schema.VectorIndex, embedder search.Embedder, storePath, indexPath string, logger *slog.Logger, opts ...CatalogOption) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Catalog{
		store:       store,
		index:       index,
		embedder:    embedder,
		logger:      logger,
		storePath:   storePath,
		indexPath:   indexPath,
		parallelism: DefaultReloadParallelism,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open loads both stores from disk. A corrupt file degrades to an empty
// store with a warning (the startup reload repopulates); anything else,
// notably an index dimension mismatch, aborts startup.
func (c *Catalog) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Load(c.storePath); err != nil {
		if !errors.Is(err, schema.ErrCorrupt) {
			return fmt.Errorf("load record store: %w", err)
		}
		c.logger.Warn("record store unreadable, starting empty", slog.String("path", c.storePath), slog.Any("error", err))
	}
	if err := c.index.Load(c.indexPath); err != nil {
		if !errors.Is(err, schema.ErrCorrupt) {
			return fmt.Errorf("load vector index: %w", err)
		}
		c.logger.Warn("vector index unreadable, starting empty", slog.String("path", c.indexPath), slog.Any("error", err))
	}

	c.reconcileLocked()
	return nil
}

// Close persists both stores.
func (c *Catalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.persistLocked()
}

// AddSchema validates, embeds, and upserts one table schema. The embedding
// call runs before the writer lock is taken. After a successful return the
// record and its vector are visible to Get and Query, and both files are
// persisted.
func (c *Catalog) AddSchema(ctx context.Context, table schema.TableSchema) (schema.Record, error) {
	if err := table.Validate(); err != nil {
		return schema.Record{}, err
	}

	vec, err := c.embedOne(ctx, table.EmbeddingText())
	if err != nil {
		return schema.Record{}, fmt.Errorf("embed schema %s: %w", table.ID(), err)
	}

	now := time.Now().UTC()

	c.mu.Lock()
	defer c.mu.Unlock()

	record, err := c.upsertLocked(table, vec, now)
	if err != nil {
		return schema.Record{}, err
	}
	if err := c.persistLocked(); err != nil {
		return schema.Record{}, fmt.Errorf("persist after upsert of %s: %w", table.ID(), err)
	}
	return record, nil
}

// upsertLocked retires any prior vector for the id and installs the new
// record in both stores. Caller holds the write lock.
func (c *Catalog) upsertLocked(table schema.TableSchema, vec []float32, now time.Time) (schema.Record, error) {
	if len(vec) != c.index.Dimension() {
		return schema.Record{}, fmt.Errorf("%w: embedding has dimension %d, index wants %d",
			schema.ErrValidation, len(vec), c.index.Dimension())
	}

	id := table.ID()
	createdAt := now
	if prev, ok := c.store.Get(id); ok {
		createdAt = prev.CreatedAt()
		c.index.Remove(id)
	}

	if err := c.index.Insert(id, vec); err != nil {
		return schema.Record{}, fmt.Errorf("index schema %s: %w", id, err)
	}
	record := schema.NewRecord(table, vec, createdAt, now)
	c.store.Put(record)
	return record, nil
}

// QueryMatch is one hydrated query result.
type QueryMatch struct {
	record   schema.Record
	distance float64
}

// NewQueryMatch creates a QueryMatch.
func NewQueryMatch(record schema.Record, distance float64) QueryMatch {
	return QueryMatch{record: record, distance: distance}
}

// Record returns the matched record.
func (m QueryMatch) Record() schema.Record { return m.record }

// Distance returns the cosine distance to the query.
func (m QueryMatch) Distance() float64 { return m.distance }

// Query embeds the text, searches the index, and hydrates the matches. An
// index id missing from the record store is skipped and logged, never an
// error. topK defaults to DefaultTopK when non-positive.
func (c *Catalog) Query(ctx context.Context, text string, topK int) ([]QueryMatch, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: query text is required", schema.ErrValidation)
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	vec, err := c.embedOne(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	matches, err := c.index.Search(vec, topK)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	out := make([]QueryMatch, 0, len(matches))
	for _, m := range matches {
		record, ok := c.store.Get(m.ID())
		if !ok {
			c.logger.Warn("index id has no record, skipping", slog.String("id", m.ID()))
			continue
		}
		out = append(out, QueryMatch{record: record, distance: m.Distance()})
	}
	return out, nil
}

// ModelSummary is the projection returned by List.
type ModelSummary struct {
	id         string
	catalog    string
	schemaName string
	tableName  string
}

// NewModelSummary creates a ModelSummary.
func NewModelSummary(id, catalog, schemaName, tableName string) ModelSummary {
	return ModelSummary{id: id, catalog: catalog, schemaName: schemaName, tableName: tableName}
}

// ID returns the record id.
func (s ModelSummary) ID() string { return s.id }

// Catalog returns the catalog name.
func (s ModelSummary) Catalog() string { return s.catalog }

// SchemaName returns the schema name.
func (s ModelSummary) SchemaName() string { return s.schemaName }

// TableName returns the table name.
func (s ModelSummary) TableName() string { return s.tableName }

// List returns a summary of every stored schema, sorted by id.
func (c *Catalog) List(_ context.Context) []ModelSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	records := c.store.List()
	out := make([]ModelSummary, len(records))
	for i, r := range records {
		table := r.Table()
		out[i] = ModelSummary{
			id:         r.ID(),
			catalog:    table.Catalog(),
			schemaName: table.SchemaName(),
			tableName:  table.TableName(),
		}
	}
	return out
}

// Get returns the record for id, or false when absent.
func (c *Catalog) Get(_ context.Context, id string) (schema.Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store.Get(id)
}

// Count returns the number of stored schemas.
func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store.Len()
}

// ReloadStats summarizes a startup reload.
type ReloadStats struct {
	Added     int
	Updated   int
	Unchanged int
	Skipped   int
}

// Reload rebuilds the catalog from the source: both stores are cleared and
// every discovered schema is re-added. Schemas whose fingerprint matches
// the previous record reuse its embedding instead of calling the embedding
// service again. Per-record failures are logged and skipped; they never
// abort the rest of the reload. A nil source yields an empty catalog.
func (c *Catalog) Reload(ctx context.Context, source schema.Source) (ReloadStats, error) {
	var stats ReloadStats

	var tables []schema.TableSchema
	if source != nil {
		var err error
		tables, err = source.ListSchemas(ctx)
		if err != nil {
			return stats, fmt.Errorf("list source schemas: %w", err)
		}
	}

	// Snapshot prior records for fingerprint reuse before clearing.
	c.mu.RLock()
	prev := make(map[string]schema.Record, c.store.Len())
	for _, r := range c.store.List() {
		prev[r.ID()] = r
	}
	c.mu.RUnlock()

	type prepared struct {
		table     schema.TableSchema
		vec       []float32
		unchanged bool
	}

	// Embed with bounded parallelism, outside the writer lock. Failures
	// leave a nil slot; the apply pass counts them as skipped.
	results := make([]*prepared, len(tables))
	g := new(errgroup.Group)
	g.SetLimit(c.parallelism)
	for i, t := range tables {
		g.Go(func() error {
			if err := t.Validate(); err != nil {
				c.logger.Warn("skipping invalid source schema", slog.String("id", t.ID()), slog.Any("error", err))
				return nil
			}
			if prevRec, ok := prev[t.ID()]; ok && prevRec.Fingerprint() == t.Fingerprint() {
				results[i] = &prepared{table: t, vec: prevRec.Embedding(), unchanged: true}
				return nil
			}
			vec, err := c.embedOne(ctx, t.EmbeddingText())
			if err != nil {
				c.logger.Warn("skipping schema, embedding failed", slog.String("id", t.ID()), slog.Any("error", err))
				return nil
			}
			results[i] = &prepared{table: t, vec: vec}
			return nil
		})
	}
	_ = g.Wait()

	now := time.Now().UTC()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.store.Reset()
	c.index.Reset()

	for _, p := range results {
		if p == nil {
			stats.Skipped++
			continue
		}
		if _, err := c.upsertLocked(p.table, p.vec, now); err != nil {
			c.logger.Warn("skipping schema, upsert failed", slog.String("id", p.table.ID()), slog.Any("error", err))
			stats.Skipped++
			continue
		}
		prevRec, existed := prev[p.table.ID()]
		switch {
		case p.unchanged:
			// Keep the original timestamps for records that did not change.
			c.store.Put(schema.NewRecord(p.table, p.vec, prevRec.CreatedAt(), prevRec.UpdatedAt()))
			stats.Unchanged++
		case existed:
			stats.Updated++
		default:
			stats.Added++
		}
	}

	if err := c.persistLocked(); err != nil {
		return stats, fmt.Errorf("persist after reload: %w", err)
	}
	return stats, nil
}

// embedOne embeds a single text.
func (c *Catalog) embedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: embedder returned %d vectors for one text", schema.ErrTransient, len(vectors))
	}
	return vectors[0], nil
}

// persistLocked writes both files. Caller holds the write lock, so persists
// never race each other.
func (c *Catalog) persistLocked() error {
	if err := c.store.Save(c.storePath); err != nil {
		return err
	}
	return c.index.Save(c.indexPath)
}

// reconcileLocked enforces the lockstep invariant after a load: records
// without a live vector are re-indexed from their stored embedding, and
// vectors without a record are retired. Violations are logged, never fatal.
func (c *Catalog) reconcileLocked() {
	for _, r := range c.store.List() {
		if c.index.Has(r.ID()) {
			continue
		}
		c.logger.Warn("record missing from vector index, re-indexing", slog.String("id", r.ID()))
		if err := c.index.Insert(r.ID(), r.Embedding()); err != nil {
			c.logger.Warn("re-index failed, dropping record", slog.String("id", r.ID()), slog.Any("error", err))
			c.store.Delete(r.ID())
		}
	}
	for _, id := range c.index.IDs() {
		if _, ok := c.store.Get(id); !ok {
			c.logger.Warn("vector has no record, retiring", slog.String("id", id))
			c.index.Remove(id)
		}
	}
}
