// Package search defines the vector search contracts shared by the catalog
// and the index implementations.
package search

import "context"

// Embedder converts texts into fixed-dimension embedding vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
