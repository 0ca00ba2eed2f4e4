// Package persistence provides the file-backed schema record store.
package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/schemavault/schemavault/domain/schema"
	"github.com/schemavault/schemavault/internal/atomicfile"
)

// RecordStore is an in-memory record map serialized to a single JSON file,
// one entry per id. It is not safe for concurrent use; the catalog
// serializes access.
type RecordStore struct {
	records map[string]schema.Record
}

// NewRecordStore creates an empty record store.
func NewRecordStore() *RecordStore {
	return &RecordStore{records: make(map[string]schema.Record)}
}

// Put upserts a record by id, fully replacing any prior value.
func (s *RecordStore) Put(record schema.Record) {
	s.records[record.ID()] = record
}

// Get returns the record for id, or false when absent.
func (s *RecordStore) Get(id string) (schema.Record, bool) {
	r, ok := s.records[id]
	return r, ok
}

// Delete removes id. Absent ids are a no-op.
func (s *RecordStore) Delete(id string) {
	delete(s.records, id)
}

// List returns all records sorted by id, a stable snapshot order.
func (s *RecordStore) List() []schema.Record {
	out := make([]schema.Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Len returns the number of live records.
func (s *RecordStore) Len() int { return len(s.records) }

// Reset drops all records.
func (s *RecordStore) Reset() {
	s.records = make(map[string]schema.Record)
}

// recordDocument is the JSON shape of one stored record.
type recordDocument struct {
	Catalog     string           `json:"catalog"`
	Schema      string           `json:"schema"`
	Table       string           `json:"table"`
	Columns     []columnDocument `json:"columns"`
	Description string           `json:"description,omitempty"`
	Embedding   []float32        `json:"embedding"`
	Fingerprint string           `json:"fingerprint"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

type columnDocument struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
	Comment  string `json:"comment,omitempty"`
}

// Save serializes the full mapping to a single JSON file via temp-file +
// rename.
func (s *RecordStore) Save(path string) error {
	docs := make(map[string]recordDocument, len(s.records))
	for id, r := range s.records {
		docs[id] = toDocument(r)
	}

	data, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode record store: %w", err)
	}
	if err := atomicfile.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("save record store: %w", err)
	}
	return nil
}

// Load replaces the store contents from a file. A missing file yields an
// empty store; an unreadable one yields an empty store plus a wrapped
// schema.ErrCorrupt for the caller to log.
func (s *RecordStore) Load(path string) error {
	s.records = make(map[string]schema.Record)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: read record store: %v", schema.ErrCorrupt, err)
	}

	var docs map[string]recordDocument
	if err := json.Unmarshal(data, &docs); err != nil {
		return fmt.Errorf("%w: decode record store: %v", schema.ErrCorrupt, err)
	}

	for _, doc := range docs {
		s.Put(fromDocument(doc))
	}
	return nil
}

func toDocument(r schema.Record) recordDocument {
	table := r.Table()
	cols := table.Columns()
	docCols := make([]columnDocument, len(cols))
	for i, c := range cols {
		docCols[i] = columnDocument{
			Name:     c.Name(),
			Type:     c.DataType(),
			Nullable: c.Nullable(),
			Comment:  c.Comment(),
		}
	}
	return recordDocument{
		Catalog:     table.Catalog(),
		Schema:      table.SchemaName(),
		Table:       table.TableName(),
		Columns:     docCols,
		Description: table.Description(),
		Embedding:   r.Embedding(),
		Fingerprint: r.Fingerprint(),
		CreatedAt:   r.CreatedAt(),
		UpdatedAt:   r.UpdatedAt(),
	}
}

func fromDocument(doc recordDocument) schema.Record {
	cols := make([]schema.Column, len(doc.Columns))
	for i, c := range doc.Columns {
		cols[i] = schema.NewColumn(c.Name, c.Type, c.Nullable, c.Comment)
	}
	table := schema.NewTableSchema(doc.Catalog, doc.Schema, doc.Table, cols, doc.Description)
	return schema.NewRecord(table, doc.Embedding, doc.CreatedAt, doc.UpdatedAt)
}

var _ schema.RecordStore = (*RecordStore)(nil)
