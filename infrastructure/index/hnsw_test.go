package index

import (
	"encoding/binary"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemavault/schemavault/domain/schema"
)

func randomVectors(t *testing.T, n, dim int, seed int64) [][]float32 {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	vecs := make([][]float32, n)
	for i := range vecs {
		v := make([]float32, dim)
		for j := range v {
			v[j] = rng.Float32()*2 - 1
		}
		vecs[i] = v
	}
	return vecs
}

func TestHNSW_ExactVectorRanksFirst(t *testing.T) {
	const dim = 16
	idx := NewHNSW(dim, WithSeed(7))
	vecs := randomVectors(t, 100, dim, 7)
	for i, v := range vecs {
		require.NoError(t, idx.Insert(fmt.Sprintf("id-%d", i), v))
	}

	for _, probe := range []int{0, 13, 42, 99} {
		matches, err := idx.Search(vecs[probe], 1)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, fmt.Sprintf("id-%d", probe), matches[0].ID())
		assert.InDelta(t, 0.0, matches[0].Distance(), 1e-6)
	}
}

func TestHNSW_RecallAgainstBruteForce(t *testing.T) {
	const (
		dim = 16
		n   = 200
		k   = 10
	)
	vecs := randomVectors(t, n, dim, 11)

	hnsw := NewHNSW(dim, WithSeed(11))
	exact := NewBruteForce(dim)
	for i, v := range vecs {
		id := fmt.Sprintf("id-%d", i)
		require.NoError(t, hnsw.Insert(id, v))
		require.NoError(t, exact.Insert(id, v))
	}

	queries := randomVectors(t, 20, dim, 12)
	var hits, total int
	for _, q := range queries {
		want, err := exact.Search(q, k)
		require.NoError(t, err)
		got, err := hnsw.Search(q, k)
		require.NoError(t, err)
		require.Len(t, got, k)

		wantIDs := make(map[string]bool, k)
		for _, m := range want {
			wantIDs[m.ID()] = true
		}
		for _, m := range got {
			if wantIDs[m.ID()] {
				hits++
			}
		}
		total += k
	}

	recall := float64(hits) / float64(total)
	assert.GreaterOrEqual(t, recall, 0.8, "recall %f too low", recall)
}

func TestHNSW_RemoveTombstonesID(t *testing.T) {
	const dim = 8
	idx := NewHNSW(dim, WithSeed(3))
	vecs := randomVectors(t, 20, dim, 3)
	for i, v := range vecs {
		require.NoError(t, idx.Insert(fmt.Sprintf("id-%d", i), v))
	}

	idx.Remove("id-5")
	idx.Remove("id-5")

	assert.Equal(t, 19, idx.Len())
	assert.False(t, idx.Has("id-5"))

	matches, err := idx.Search(vecs[5], 20)
	require.NoError(t, err)
	assert.Len(t, matches, 19, "k past the live count returns exactly the live count")
	for _, m := range matches {
		assert.NotEqual(t, "id-5", m.ID())
	}
}

func TestHNSW_ReinsertAfterRemove(t *testing.T) {
	const dim = 8
	idx := NewHNSW(dim, WithSeed(4))
	vecs := randomVectors(t, 10, dim, 4)
	for i, v := range vecs {
		require.NoError(t, idx.Insert(fmt.Sprintf("id-%d", i), v))
	}

	idx.Remove("id-2")
	require.NoError(t, idx.Insert("id-2", vecs[3]))

	assert.Equal(t, 10, idx.Len())
	matches, err := idx.Search(vecs[3], 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	ids := []string{matches[0].ID(), matches[1].ID()}
	assert.Contains(t, ids, "id-2", "reinserted id should be searchable at its new vector")
	assert.Contains(t, ids, "id-3")
}

func TestHNSW_SaveLoadRoundTrip(t *testing.T) {
	const dim = 8
	path := filepath.Join(t.TempDir(), "vectors.index")

	idx := NewHNSW(dim, WithSeed(5))
	vecs := randomVectors(t, 30, dim, 5)
	for i, v := range vecs {
		require.NoError(t, idx.Insert(fmt.Sprintf("id-%d", i), v))
	}
	idx.Remove("id-7")
	require.NoError(t, idx.Save(path))

	loaded := NewHNSW(dim)
	require.NoError(t, loaded.Load(path))

	assert.Equal(t, idx.Len(), loaded.Len())
	assert.False(t, loaded.Has("id-7"))

	for _, probe := range []int{0, 11, 29} {
		want, err := idx.Search(vecs[probe], 5)
		require.NoError(t, err)
		got, err := loaded.Search(vecs[probe], 5)
		require.NoError(t, err)
		require.Len(t, got, len(want))
		for i := range want {
			assert.Equal(t, want[i].ID(), got[i].ID())
		}
	}
}

func TestHNSW_LoadWrongKind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.index")

	bf := NewBruteForce(8)
	require.NoError(t, bf.Insert("a", make([]float32, 8)))
	require.NoError(t, bf.Save(path))

	err := NewHNSW(8).Load(path)
	require.ErrorIs(t, err, schema.ErrCorrupt)
}

// Byte offsets of the entry-point and max-level fields in a saved index:
// magic(4) + version(2) + kind(1) + dim(4) + m(4) + nextSeq(8).
const (
	entryPointOffset = 23
	maxLevelOffset   = 31
)

func saveOneNodeIndex(t *testing.T, dim int) (string, []float32) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vectors.index")
	vec := randomVectors(t, 1, dim, 9)[0]

	idx := NewHNSW(dim, WithSeed(9))
	require.NoError(t, idx.Insert("a", vec))
	require.NoError(t, idx.Save(path))
	return path, vec
}

func TestHNSW_LoadRejectsMissingEntryPoint(t *testing.T) {
	const dim = 8
	path, vec := saveOneNodeIndex(t, dim)

	// Zero the entry-point field: it decodes to -1 while a node exists,
	// which must read as corruption, not an index that panics on Search.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	for i := entryPointOffset; i < entryPointOffset+8; i++ {
		data[i] = 0
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))

	loaded := NewHNSW(dim)
	err = loaded.Load(path)
	require.ErrorIs(t, err, schema.ErrCorrupt)

	// The index stays usable and empty after the rejected load.
	assert.Equal(t, 0, loaded.Len())
	matches, err := loaded.Search(vec, 1)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestHNSW_LoadRejectsAbsurdMaxLevel(t *testing.T) {
	const dim = 8
	path, _ := saveOneNodeIndex(t, dim)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	binary.LittleEndian.PutUint32(data[maxLevelOffset:], 1<<30)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	err = NewHNSW(dim).Load(path)
	require.ErrorIs(t, err, schema.ErrCorrupt)
}

func TestHNSW_LoadDimensionMismatchIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.index")

	idx := NewHNSW(8, WithSeed(6))
	require.NoError(t, idx.Insert("a", make([]float32, 8)))
	require.NoError(t, idx.Save(path))

	err := NewHNSW(16).Load(path)
	require.ErrorIs(t, err, ErrDimensionMismatch)
}
