package schema

import (
	"context"

	"github.com/schemavault/schemavault/domain/search"
)

// RecordStore is the durable mapping from record id to schema metadata.
// Implementations are not required to be safe for concurrent use; the
// catalog serializes access.
type RecordStore interface {
	// Put upserts a record by id, fully replacing any prior value.
	Put(record Record)

	// Get returns the record for id, or false when absent.
	Get(id string) (Record, bool)

	// Delete removes id. Absent ids are a no-op.
	Delete(id string)

	// List returns all records in a stable snapshot order (sorted by id).
	List() []Record

	// Len returns the number of live records.
	Len() int

	// Reset drops all records.
	Reset()

	// Save serializes the full mapping to a single file.
	Save(path string) error

	// Load replaces the store contents from a file. A missing file yields
	// an empty store.
	Load(path string) error
}

// VectorIndex is the approximate nearest-neighbor structure over the same
// ids as the RecordStore. Implementations are not required to be safe for
// concurrent use; the catalog serializes access.
type VectorIndex interface {
	// Insert adds a vector for an id that is not currently live. Callers
	// replacing an id must Remove it first.
	Insert(id string, vector []float32) error

	// Remove retires a vector. Absent ids are a no-op.
	Remove(id string)

	// Search returns up to k matches ordered by ascending distance, ties
	// broken by insertion order. Fewer than k matches are returned when
	// fewer live vectors exist.
	Search(vector []float32, k int) ([]search.Match, error)

	// Len returns the number of live vectors.
	Len() int

	// Has reports whether id is live.
	Has(id string) bool

	// IDs returns the live ids in unspecified order.
	IDs() []string

	// Reset drops all vectors.
	Reset()

	// Dimension returns the fixed vector dimension.
	Dimension() int

	// Save serializes the full index to a single file.
	Save(path string) error

	// Load replaces the index contents from a file. A missing file yields
	// an empty index; a dimension mismatch is fatal.
	Load(path string) error
}

// Source produces the schemas the catalog ingests on startup.
type Source interface {
	ListSchemas(ctx context.Context) ([]TableSchema, error)
}
