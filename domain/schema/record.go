// Package schema defines the catalog's core types: table schemas as
// discovered from a source system, the records stored in the index, and the
// store interfaces the catalog orchestrates.
package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Column describes a single table column.
type Column struct {
	name     string
	dataType string
	nullable bool
	comment  string
}

// NewColumn creates a new Column.
func NewColumn(name, dataType string, nullable bool, comment string) Column {
	return Column{
		name:     name,
		dataType: dataType,
		nullable: nullable,
		comment:  comment,
	}
}

// Name returns the column name.
func (c Column) Name() string { return c.name }

// DataType returns the column type as reported by the source system.
func (c Column) DataType() string { return c.dataType }

// Nullable reports whether the column accepts NULL.
func (c Column) Nullable() bool { return c.nullable }

// Comment returns the column comment, which may be empty.
func (c Column) Comment() string { return c.comment }

// TableSchema is a table description as produced by an ingestion source or
// an add_schema call, before it has been embedded and stored.
type TableSchema struct {
	catalog     string
	schemaName  string
	tableName   string
	columns     []Column
	description string
}

// NewTableSchema creates a new TableSchema.
func NewTableSchema(catalog, schemaName, tableName string, columns []Column, description string) TableSchema {
	cols := make([]Column, len(columns))
	copy(cols, columns)
	return TableSchema{
		catalog:     catalog,
		schemaName:  schemaName,
		tableName:   tableName,
		columns:     cols,
		description: description,
	}
}

// Catalog returns the catalog name.
func (t TableSchema) Catalog() string { return t.catalog }

// SchemaName returns the schema name.
func (t TableSchema) SchemaName() string { return t.schemaName }

// TableName returns the table name.
func (t TableSchema) TableName() string { return t.tableName }

// Columns returns the ordered column list (copy).
func (t TableSchema) Columns() []Column {
	cols := make([]Column, len(t.columns))
	copy(cols, t.columns)
	return cols
}

// Description returns the free-text table description, which may be empty.
func (t TableSchema) Description() string { return t.description }

// ID returns the stable identifier derived from (catalog, schema, table).
func (t TableSchema) ID() string {
	return DeriveID(t.catalog, t.schemaName, t.tableName)
}

// Validate checks that the schema is well-formed enough to store.
func (t TableSchema) Validate() error {
	if strings.TrimSpace(t.catalog) == "" {
		return fmt.Errorf("%w: catalog is required", ErrValidation)
	}
	if strings.TrimSpace(t.schemaName) == "" {
		return fmt.Errorf("%w: schema is required", ErrValidation)
	}
	if strings.TrimSpace(t.tableName) == "" {
		return fmt.Errorf("%w: table is required", ErrValidation)
	}
	for i, col := range t.columns {
		if strings.TrimSpace(col.name) == "" {
			return fmt.Errorf("%w: column %d has no name", ErrValidation, i)
		}
	}
	return nil
}

// EmbeddingText renders the schema as the text that gets embedded. When the
// description is empty the identifier and column list still produce a
// non-degenerate vector.
func (t TableSchema) EmbeddingText() string {
	cols := make([]string, len(t.columns))
	for i, c := range t.columns {
		cols[i] = fmt.Sprintf("%s (%s)", c.name, c.dataType)
	}

	text := fmt.Sprintf("Table: %s. Columns: %s.", t.ID(), strings.Join(cols, ", "))
	if t.description != "" {
		text += " Description: " + t.description
	}
	return text
}

// Fingerprint returns a SHA-256 digest over the canonical schema text plus
// column nullability and comments. Two schemas with the same fingerprint
// embed identically, so a reload can skip them.
func (t TableSchema) Fingerprint() string {
	h := sha256.New()
	h.Write([]byte(t.EmbeddingText()))
	for _, c := range t.columns {
		fmt.Fprintf(h, "|%s:%t:%s", c.name, c.nullable, c.comment)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// DeriveID builds the stable record identifier from the table coordinates:
// each part lowercased and trimmed, joined with dots.
func DeriveID(catalog, schemaName, tableName string) string {
	norm := func(s string) string {
		return strings.ToLower(strings.TrimSpace(s))
	}
	return norm(catalog) + "." + norm(schemaName) + "." + norm(tableName)
}

// Record is a stored schema: a TableSchema plus its embedding vector and
// bookkeeping timestamps.
type Record struct {
	table       TableSchema
	embedding   []float32
	fingerprint string
	createdAt   time.Time
	updatedAt   time.Time
}

// NewRecord creates a Record from a validated TableSchema and its embedding.
// createdAt is preserved across upserts of the same id by passing the prior
// record's value.
func NewRecord(table TableSchema, embedding []float32, createdAt, updatedAt time.Time) Record {
	vec := make([]float32, len(embedding))
	copy(vec, embedding)
	return Record{
		table:       table,
		embedding:   vec,
		fingerprint: table.Fingerprint(),
		createdAt:   createdAt,
		updatedAt:   updatedAt,
	}
}

// ID returns the record's stable identifier.
func (r Record) ID() string { return r.table.ID() }

// Table returns the underlying table schema.
func (r Record) Table() TableSchema { return r.table }

// Embedding returns the embedding vector (copy).
func (r Record) Embedding() []float32 {
	vec := make([]float32, len(r.embedding))
	copy(vec, r.embedding)
	return vec
}

// Fingerprint returns the schema content digest captured at store time.
func (r Record) Fingerprint() string { return r.fingerprint }

// CreatedAt returns when the id was first stored.
func (r Record) CreatedAt() time.Time { return r.createdAt }

// UpdatedAt returns when the record was last upserted.
func (r Record) UpdatedAt() time.Time { return r.updatedAt }
