package service

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemavault/schemavault/domain/schema"
	"github.com/schemavault/schemavault/infrastructure/index"
	"github.com/schemavault/schemavault/infrastructure/persistence"
)

const testDim = 64

// --- fakes ---

// fakeEmbedder hashes words into a bag-of-words vector, so texts sharing
// words land near each other under cosine distance.
type fakeEmbedder struct {
	calls   int
	failAll bool
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.failAll {
		return nil, fmt.Errorf("embedding endpoint unavailable")
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, testDim)
		for _, word := range strings.Fields(strings.ToLower(text)) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(strings.Trim(word, ".,:()")))
			vec[h.Sum32()%testDim]++
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// fakeSource returns canned table schemas.
type fakeSource struct {
	tables []schema.TableSchema
	err    error
}

func (f *fakeSource) ListSchemas(_ context.Context) ([]schema.TableSchema, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.tables, nil
}

// --- helpers ---

func ordersSchema() schema.TableSchema {
	return schema.NewTableSchema("main", "sales", "orders",
		[]schema.Column{
			schema.NewColumn("order_id", "bigint", false, ""),
			schema.NewColumn("total", "decimal(10,2)", true, ""),
		},
		"Customer purchase records with totals")
}

func employeesSchema() schema.TableSchema {
	return schema.NewTableSchema("main", "hr", "employees",
		[]schema.Column{
			schema.NewColumn("employee_id", "bigint", false, ""),
			schema.NewColumn("name", "string", true, ""),
		},
		"Staff directory and reporting lines")
}

func newTestCatalog(t *testing.T, dir string) (*Catalog, *fakeEmbedder) {
	t.Helper()
	embedder := &fakeEmbedder{}
	catalog := NewCatalog(
		persistence.NewRecordStore(),
		index.NewBruteForce(testDim),
		embedder,
		filepath.Join(dir, "schemas.json"),
		filepath.Join(dir, "vectors.index"),
		nil,
	)
	require.NoError(t, catalog.Open())
	return catalog, embedder
}

// --- tests ---

func TestCatalog_AddSchemaAndQuery(t *testing.T) {
	catalog, _ := newTestCatalog(t, t.TempDir())
	ctx := context.Background()

	_, err := catalog.AddSchema(ctx, ordersSchema())
	require.NoError(t, err)
	_, err = catalog.AddSchema(ctx, employeesSchema())
	require.NoError(t, err)

	matches, err := catalog.Query(ctx, "customer purchase records", 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	assert.Equal(t, "main.sales.orders", matches[0].Record().ID())
	assert.Equal(t, "main.hr.employees", matches[1].Record().ID())
	assert.Less(t, matches[0].Distance(), matches[1].Distance())
}

func TestCatalog_AddSchemaRejectsInvalid(t *testing.T) {
	catalog, embedder := newTestCatalog(t, t.TempDir())

	_, err := catalog.AddSchema(context.Background(), schema.NewTableSchema("", "sales", "orders", nil, ""))
	require.ErrorIs(t, err, schema.ErrValidation)
	assert.Equal(t, 0, embedder.calls, "validation failures must not call the embedding service")
	assert.Equal(t, 0, catalog.Count())
}

func TestCatalog_AddSchemaEmbeddingFailureLeavesStateUntouched(t *testing.T) {
	catalog, embedder := newTestCatalog(t, t.TempDir())
	ctx := context.Background()

	_, err := catalog.AddSchema(ctx, ordersSchema())
	require.NoError(t, err)

	embedder.failAll = true
	_, err = catalog.AddSchema(ctx, employeesSchema())
	require.Error(t, err)

	assert.Equal(t, 1, catalog.Count())
	_, ok := catalog.Get(ctx, "main.hr.employees")
	assert.False(t, ok)
}

func TestCatalog_UpsertReplacesByID(t *testing.T) {
	catalog, _ := newTestCatalog(t, t.TempDir())
	ctx := context.Background()

	first, err := catalog.AddSchema(ctx, ordersSchema())
	require.NoError(t, err)

	revised := schema.NewTableSchema("main", "sales", "orders",
		[]schema.Column{schema.NewColumn("order_id", "bigint", false, "")},
		"Order headers only")
	second, err := catalog.AddSchema(ctx, revised)
	require.NoError(t, err)

	assert.Equal(t, 1, catalog.Count(), "upsert must not grow the catalog")
	assert.True(t, second.CreatedAt().Equal(first.CreatedAt()), "createdAt survives upserts")
	assert.False(t, second.UpdatedAt().Before(first.UpdatedAt()))

	got, ok := catalog.Get(ctx, "main.sales.orders")
	require.True(t, ok)
	assert.Equal(t, "Order headers only", got.Table().Description())

	matches, err := catalog.Query(ctx, "order headers", 5)
	require.NoError(t, err)
	require.Len(t, matches, 1, "the old vector must be retired")
}

func TestCatalog_QueryValidation(t *testing.T) {
	catalog, _ := newTestCatalog(t, t.TempDir())

	_, err := catalog.Query(context.Background(), "   ", 5)
	require.ErrorIs(t, err, schema.ErrValidation)
}

func TestCatalog_QueryDefaultsTopK(t *testing.T) {
	catalog, _ := newTestCatalog(t, t.TempDir())
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		table := schema.NewTableSchema("main", "sales", fmt.Sprintf("t%d", i), nil, fmt.Sprintf("table number %d", i))
		_, err := catalog.AddSchema(ctx, table)
		require.NoError(t, err)
	}

	matches, err := catalog.Query(ctx, "table number", 0)
	require.NoError(t, err)
	assert.Len(t, matches, DefaultTopK)
}

func TestCatalog_ListSortedByID(t *testing.T) {
	catalog, _ := newTestCatalog(t, t.TempDir())
	ctx := context.Background()

	_, err := catalog.AddSchema(ctx, ordersSchema())
	require.NoError(t, err)
	_, err = catalog.AddSchema(ctx, employeesSchema())
	require.NoError(t, err)

	summaries := catalog.List(ctx)
	require.Len(t, summaries, 2)
	assert.Equal(t, "main.hr.employees", summaries[0].ID())
	assert.Equal(t, "main.sales.orders", summaries[1].ID())
	assert.Equal(t, "hr", summaries[0].SchemaName())
	assert.Equal(t, "orders", summaries[1].TableName())
}

func TestCatalog_StateSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	catalog, _ := newTestCatalog(t, dir)
	_, err := catalog.AddSchema(ctx, ordersSchema())
	require.NoError(t, err)
	require.NoError(t, catalog.Close())

	reopened, _ := newTestCatalog(t, dir)
	assert.Equal(t, 1, reopened.Count())

	matches, err := reopened.Query(ctx, "customer purchase records", 5)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "main.sales.orders", matches[0].Record().ID())
}

func TestCatalog_OpenWithCorruptStoreStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "schemas.json"), []byte("{broken"), 0o644))

	catalog, _ := newTestCatalog(t, dir)
	assert.Equal(t, 0, catalog.Count())
}

func TestCatalog_OpenDimensionMismatchFails(t *testing.T) {
	dir := t.TempDir()
	indexPath := filepath.Join(dir, "vectors.index")

	other := index.NewBruteForce(testDim + 1)
	require.NoError(t, other.Insert("a", make([]float32, testDim+1)))
	require.NoError(t, other.Save(indexPath))

	catalog := NewCatalog(
		persistence.NewRecordStore(),
		index.NewBruteForce(testDim),
		&fakeEmbedder{},
		filepath.Join(dir, "schemas.json"),
		indexPath,
		nil,
	)
	require.Error(t, catalog.Open(), "a dimension mismatch must abort startup, not silently degrade")
}

func TestCatalog_OpenReindexesFromRecordStore(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	catalog, _ := newTestCatalog(t, dir)
	_, err := catalog.AddSchema(ctx, ordersSchema())
	require.NoError(t, err)
	require.NoError(t, catalog.Close())

	// Simulate a crash that lost the index file but kept the record store.
	require.NoError(t, os.Remove(filepath.Join(dir, "vectors.index")))

	reopened, embedder := newTestCatalog(t, dir)
	assert.Equal(t, 1, reopened.Count())

	matches, err := reopened.Query(ctx, "customer purchase records", 5)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, 1, embedder.calls, "re-indexing reuses stored embeddings, only the query is embedded")
}

func TestCatalog_ReloadFromEmpty(t *testing.T) {
	catalog, _ := newTestCatalog(t, t.TempDir())

	source := &fakeSource{tables: []schema.TableSchema{ordersSchema(), employeesSchema()}}
	stats, err := catalog.Reload(context.Background(), source)
	require.NoError(t, err)

	assert.Equal(t, ReloadStats{Added: 2}, stats)
	assert.Equal(t, 2, catalog.Count())
}

func TestCatalog_ReloadCountsChanges(t *testing.T) {
	catalog, embedder := newTestCatalog(t, t.TempDir())
	ctx := context.Background()

	first := &fakeSource{tables: []schema.TableSchema{ordersSchema(), employeesSchema()}}
	_, err := catalog.Reload(ctx, first)
	require.NoError(t, err)
	callsAfterFirst := embedder.calls

	changedOrders := schema.NewTableSchema("main", "sales", "orders",
		[]schema.Column{schema.NewColumn("order_id", "bigint", false, "")},
		"Order headers only")
	newTable := schema.NewTableSchema("main", "sales", "refunds", nil, "Refund ledger")
	invalid := schema.NewTableSchema("", "sales", "broken", nil, "")

	second := &fakeSource{tables: []schema.TableSchema{employeesSchema(), changedOrders, newTable, invalid}}
	stats, err := catalog.Reload(ctx, second)
	require.NoError(t, err)

	assert.Equal(t, ReloadStats{Added: 1, Updated: 1, Unchanged: 1, Skipped: 1}, stats)
	assert.Equal(t, 3, catalog.Count())
	assert.Equal(t, callsAfterFirst+2, embedder.calls,
		"only the changed and the new schema are re-embedded")
}

func TestCatalog_ReloadUnchangedKeepsTimestamps(t *testing.T) {
	catalog, _ := newTestCatalog(t, t.TempDir())
	ctx := context.Background()

	source := &fakeSource{tables: []schema.TableSchema{ordersSchema()}}
	_, err := catalog.Reload(ctx, source)
	require.NoError(t, err)
	before, ok := catalog.Get(ctx, "main.sales.orders")
	require.True(t, ok)

	_, err = catalog.Reload(ctx, source)
	require.NoError(t, err)
	after, ok := catalog.Get(ctx, "main.sales.orders")
	require.True(t, ok)

	assert.True(t, after.CreatedAt().Equal(before.CreatedAt()))
	assert.True(t, after.UpdatedAt().Equal(before.UpdatedAt()))
}

func TestCatalog_ReloadDropsRemovedTables(t *testing.T) {
	catalog, _ := newTestCatalog(t, t.TempDir())
	ctx := context.Background()

	_, err := catalog.Reload(ctx, &fakeSource{tables: []schema.TableSchema{ordersSchema(), employeesSchema()}})
	require.NoError(t, err)

	_, err = catalog.Reload(ctx, &fakeSource{tables: []schema.TableSchema{ordersSchema()}})
	require.NoError(t, err)

	assert.Equal(t, 1, catalog.Count())
	_, ok := catalog.Get(ctx, "main.hr.employees")
	assert.False(t, ok, "tables gone from the source are gone from the catalog")
}

func TestCatalog_ReloadSourceErrorKeepsCatalog(t *testing.T) {
	catalog, _ := newTestCatalog(t, t.TempDir())
	ctx := context.Background()

	_, err := catalog.AddSchema(ctx, ordersSchema())
	require.NoError(t, err)

	_, err = catalog.Reload(ctx, &fakeSource{err: fmt.Errorf("workspace unreachable")})
	require.Error(t, err)
	assert.Equal(t, 1, catalog.Count(), "a failed crawl must not clear the catalog")
}

func TestCatalog_ReloadEmbeddingFailuresAreSkipped(t *testing.T) {
	catalog, embedder := newTestCatalog(t, t.TempDir())
	embedder.failAll = true

	stats, err := catalog.Reload(context.Background(), &fakeSource{tables: []schema.TableSchema{ordersSchema()}})
	require.NoError(t, err)
	assert.Equal(t, ReloadStats{Skipped: 1}, stats)
	assert.Equal(t, 0, catalog.Count())
}
