package index

import (
	"fmt"
	"os"
	"sort"

	"github.com/schemavault/schemavault/domain/schema"
	"github.com/schemavault/schemavault/domain/search"
	"github.com/schemavault/schemavault/internal/atomicfile"
)

// BruteForce is an exact vector index that answers kNN queries by scanning
// every live vector. It is the correctness baseline for the HNSW index and
// the default for small catalogs.
type BruteForce struct {
	dim     int
	nextSeq uint64
	entries []bfEntry
	byID    map[string]int
}

type bfEntry struct {
	id  string
	seq uint64
	vec []float32
	mag float64
}

// NewBruteForce creates an empty brute-force index with the given dimension.
func NewBruteForce(dim int) *BruteForce {
	return &BruteForce{
		dim:  dim,
		byID: make(map[string]int),
	}
}

// Dimension returns the fixed vector dimension.
func (b *BruteForce) Dimension() int { return b.dim }

// Len returns the number of live vectors.
func (b *BruteForce) Len() int { return len(b.entries) }

// Has reports whether id is live.
func (b *BruteForce) Has(id string) bool {
	_, ok := b.byID[id]
	return ok
}

// IDs returns the live ids in unspecified order.
func (b *BruteForce) IDs() []string {
	ids := make([]string, 0, len(b.byID))
	for id := range b.byID {
		ids = append(ids, id)
	}
	return ids
}

// Reset drops all vectors.
func (b *BruteForce) Reset() { b.reset() }

// Insert adds a vector for a new id.
func (b *BruteForce) Insert(id string, vector []float32) error {
	if len(vector) != b.dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), b.dim)
	}
	if _, ok := b.byID[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}

	vec := make([]float32, len(vector))
	copy(vec, vector)

	b.byID[id] = len(b.entries)
	b.entries = append(b.entries, bfEntry{
		id:  id,
		seq: b.nextSeq,
		vec: vec,
		mag: magnitude(vec),
	})
	b.nextSeq++
	return nil
}

// Remove retires an id. Absent ids are a no-op.
func (b *BruteForce) Remove(id string) {
	pos, ok := b.byID[id]
	if !ok {
		return
	}
	last := len(b.entries) - 1
	if pos != last {
		b.entries[pos] = b.entries[last]
		b.byID[b.entries[pos].id] = pos
	}
	b.entries = b.entries[:last]
	delete(b.byID, id)
}

// Search returns up to k matches ordered by ascending cosine distance,
// ties broken by insertion order.
func (b *BruteForce) Search(vector []float32, k int) ([]search.Match, error) {
	if len(vector) != b.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), b.dim)
	}
	if len(b.entries) == 0 || k <= 0 {
		return []search.Match{}, nil
	}

	type scored struct {
		pos  int
		dist float64
	}
	qmag := magnitude(vector)
	scoreds := make([]scored, len(b.entries))
	for i, e := range b.entries {
		scoreds[i] = scored{pos: i, dist: cosineDistance(dot(vector, e.vec), qmag, e.mag)}
	}
	sort.Slice(scoreds, func(i, j int) bool {
		if scoreds[i].dist != scoreds[j].dist {
			return scoreds[i].dist < scoreds[j].dist
		}
		return b.entries[scoreds[i].pos].seq < b.entries[scoreds[j].pos].seq
	})

	if k > len(scoreds) {
		k = len(scoreds)
	}
	matches := make([]search.Match, k)
	for i := 0; i < k; i++ {
		matches[i] = search.NewMatch(b.entries[scoreds[i].pos].id, scoreds[i].dist)
	}
	return matches, nil
}

// Save serializes the index to a single file via temp-file + rename.
func (b *BruteForce) Save(path string) error {
	w := newBinaryWriter(16 + len(b.entries)*(16+4*b.dim))
	w.header(kindBruteForce, b.dim)
	w.u64(b.nextSeq)
	w.u32(uint32(len(b.entries)))
	for _, e := range b.entries {
		w.str(e.id)
		w.u64(e.seq)
		w.vec(e.vec)
	}
	if err := atomicfile.WriteFile(path, w.bytes(), 0o644); err != nil {
		return fmt.Errorf("save brute-force index: %w", err)
	}
	return nil
}

// Load replaces the index contents from a file. A missing file yields an
// empty index; a dimension mismatch is fatal.
func (b *BruteForce) Load(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		b.reset()
		return nil
	}
	if err != nil {
		return fmt.Errorf("read index file: %w", err)
	}

	r := newBinaryReader(data)
	if _, err := r.header(kindBruteForce, b.dim); err != nil {
		return err
	}

	nextSeq := r.u64()
	n := int(r.u32())
	// Entry counts come from untrusted bytes; each entry occupies at least
	// 16 bytes, so anything larger is corruption and must not drive an
	// allocation.
	if n > len(data)/16 {
		return fmt.Errorf("%w: implausible entry count %d in index file", schema.ErrCorrupt, n)
	}
	entries := make([]bfEntry, 0, n)
	byID := make(map[string]int, n)
	for i := 0; i < n; i++ {
		id := r.str()
		seq := r.u64()
		vec := r.vec(b.dim)
		if r.corrupt {
			break
		}
		if _, ok := byID[id]; ok {
			return fmt.Errorf("%w: duplicate id %q in index file", schema.ErrCorrupt, id)
		}
		byID[id] = len(entries)
		entries = append(entries, bfEntry{id: id, seq: seq, vec: vec, mag: magnitude(vec)})
	}
	if err := r.err(); err != nil {
		return err
	}

	b.nextSeq = nextSeq
	b.entries = entries
	b.byID = byID
	return nil
}

func (b *BruteForce) reset() {
	b.nextSeq = 0
	b.entries = nil
	b.byID = make(map[string]int)
}

var _ schema.VectorIndex = (*BruteForce)(nil)
