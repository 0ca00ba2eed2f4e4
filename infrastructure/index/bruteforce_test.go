package index

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemavault/schemavault/domain/schema"
)

func TestBruteForce_SearchOrdersByDistance(t *testing.T) {
	idx := NewBruteForce(2)
	require.NoError(t, idx.Insert("far", []float32{0, 1}))
	require.NoError(t, idx.Insert("near", []float32{1, 0.1}))
	require.NoError(t, idx.Insert("exact", []float32{1, 0}))

	matches, err := idx.Search([]float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, matches, 3)

	assert.Equal(t, "exact", matches[0].ID())
	assert.Equal(t, "near", matches[1].ID())
	assert.Equal(t, "far", matches[2].ID())
	assert.InDelta(t, 0.0, matches[0].Distance(), 1e-9)
	assert.Less(t, matches[1].Distance(), matches[2].Distance())
}

func TestBruteForce_TiesBreakByInsertionOrder(t *testing.T) {
	idx := NewBruteForce(2)
	// Same direction, different magnitude: identical cosine distance.
	require.NoError(t, idx.Insert("second", []float32{2, 2}))
	require.NoError(t, idx.Insert("first", []float32{1, 1}))

	matches, err := idx.Search([]float32{1, 1}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	assert.Equal(t, "second", matches[0].ID(), "earlier insertion wins the tie")
	assert.Equal(t, "first", matches[1].ID())
}

func TestBruteForce_KLargerThanLive(t *testing.T) {
	idx := NewBruteForce(2)
	require.NoError(t, idx.Insert("a", []float32{1, 0}))
	require.NoError(t, idx.Insert("b", []float32{0, 1}))

	matches, err := idx.Search([]float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, matches, 2, "k past the live count returns exactly the live count")
}

func TestBruteForce_SearchEmpty(t *testing.T) {
	idx := NewBruteForce(2)
	matches, err := idx.Search([]float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestBruteForce_InsertDuplicateID(t *testing.T) {
	idx := NewBruteForce(2)
	require.NoError(t, idx.Insert("a", []float32{1, 0}))
	err := idx.Insert("a", []float32{0, 1})
	require.ErrorIs(t, err, ErrDuplicateID)
}

func TestBruteForce_InsertWrongDimension(t *testing.T) {
	idx := NewBruteForce(3)
	err := idx.Insert("a", []float32{1, 0})
	require.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Equal(t, 0, idx.Len())
}

func TestBruteForce_SearchWrongDimension(t *testing.T) {
	idx := NewBruteForce(3)
	_, err := idx.Search([]float32{1, 0}, 1)
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestBruteForce_RemoveIsIdempotent(t *testing.T) {
	idx := NewBruteForce(2)
	require.NoError(t, idx.Insert("a", []float32{1, 0}))
	require.NoError(t, idx.Insert("b", []float32{0, 1}))

	idx.Remove("a")
	idx.Remove("a")
	idx.Remove("missing")

	assert.Equal(t, 1, idx.Len())
	assert.False(t, idx.Has("a"))
	assert.True(t, idx.Has("b"))

	matches, err := idx.Search([]float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "b", matches[0].ID())
}

func TestBruteForce_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.index")

	idx := NewBruteForce(3)
	require.NoError(t, idx.Insert("a", []float32{1, 0, 0}))
	require.NoError(t, idx.Insert("b", []float32{0, 1, 0}))
	idx.Remove("a")
	require.NoError(t, idx.Insert("c", []float32{0, 0, 1}))
	require.NoError(t, idx.Save(path))

	loaded := NewBruteForce(3)
	require.NoError(t, loaded.Load(path))

	assert.Equal(t, 2, loaded.Len())
	assert.False(t, loaded.Has("a"))
	assert.ElementsMatch(t, []string{"b", "c"}, loaded.IDs())

	matches, err := loaded.Search([]float32{0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "b", matches[0].ID())
}

func TestBruteForce_LoadMissingFile(t *testing.T) {
	idx := NewBruteForce(3)
	require.NoError(t, idx.Insert("stale", []float32{1, 0, 0}))

	err := idx.Load(filepath.Join(t.TempDir(), "nope.index"))
	require.NoError(t, err)
	assert.Equal(t, 0, idx.Len(), "missing file yields an empty index")
}

func TestBruteForce_LoadGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.index")
	require.NoError(t, os.WriteFile(path, []byte("not an index"), 0o644))

	idx := NewBruteForce(3)
	err := idx.Load(path)
	require.ErrorIs(t, err, schema.ErrCorrupt)
}

func TestBruteForce_LoadTruncated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.index")

	idx := NewBruteForce(3)
	require.NoError(t, idx.Insert("a", []float32{1, 0, 0}))
	require.NoError(t, idx.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data[:len(data)-5], 0o644))

	err = NewBruteForce(3).Load(path)
	require.ErrorIs(t, err, schema.ErrCorrupt)
}

func TestBruteForce_CrashMidSaveLeavesPriorStateLoadable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors.index")

	idx := NewBruteForce(3)
	require.NoError(t, idx.Insert("a", []float32{1, 0, 0}))
	require.NoError(t, idx.Insert("b", []float32{0, 1, 0}))
	require.NoError(t, idx.Save(path))

	// A writer killed mid-save leaves a truncated temp file behind; the
	// previous snapshot must stay intact and loadable.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	tmpPath := filepath.Join(dir, "vectors.index.tmp-crashed")
	require.NoError(t, os.WriteFile(tmpPath, data[:len(data)/2], 0o644))

	loaded := NewBruteForce(3)
	require.NoError(t, loaded.Load(path))
	require.Equal(t, 2, loaded.Len())

	matches, err := loaded.Search([]float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "a", matches[0].ID())
}

func TestBruteForce_LoadDimensionMismatchIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.index")

	idx := NewBruteForce(3)
	require.NoError(t, idx.Insert("a", []float32{1, 0, 0}))
	require.NoError(t, idx.Save(path))

	err := NewBruteForce(4).Load(path)
	require.ErrorIs(t, err, ErrDimensionMismatch)
	assert.NotErrorIs(t, err, schema.ErrCorrupt, "dimension mismatch must not degrade to empty")
}

func TestCosineDistance_ZeroVector(t *testing.T) {
	d := CosineDistance([]float32{0, 0}, []float32{1, 0})
	assert.Equal(t, 1.0, d, "zero magnitude means no similarity")
}

func TestCosineDistance_OppositeVectors(t *testing.T) {
	d := CosineDistance([]float32{1, 0}, []float32{-1, 0})
	assert.InDelta(t, 2.0, d, 1e-9)
}
