// Package index provides the vector indexes backing the schema catalog:
// an exact brute-force scan used as the correctness baseline for small
// catalogs, and an HNSW graph for sub-linear queries over larger ones.
//
// Both implementations share the same contract: cosine distance
// (1 - cosine similarity), ties broken by insertion order, tombstone
// removal, and single-file binary persistence with the embedding dimension
// recorded in the header.
package index
