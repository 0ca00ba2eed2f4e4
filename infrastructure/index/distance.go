package index

import (
	"errors"
	"math"
)

// Sentinel errors shared by the index implementations.
var (
	// ErrDuplicateID indicates an Insert for an id that is already live.
	ErrDuplicateID = errors.New("index: id already present")

	// ErrDimensionMismatch indicates a vector whose length differs from the
	// index dimension. On Load this is fatal: the on-disk index was built
	// for a different embedding model.
	ErrDimensionMismatch = errors.New("index: vector dimension mismatch")
)

// CosineDistance computes 1 - cosine similarity between two vectors of the
// same length. Zero-magnitude vectors are treated as maximally distant.
func CosineDistance(a, b []float32) float64 {
	return cosineDistance(dot(a, b), magnitude(a), magnitude(b))
}

// cosineDistance finishes the distance from a dot product and precomputed
// magnitudes, letting indexes cache the stored side's magnitude.
func cosineDistance(dp, ma, mb float64) float64 {
	if ma == 0 || mb == 0 {
		return 1
	}
	d := 1 - dp/(ma*mb)
	if math.IsNaN(d) {
		return 1
	}
	return d
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func magnitude(v []float32) float64 {
	return math.Sqrt(dot(v, v))
}
