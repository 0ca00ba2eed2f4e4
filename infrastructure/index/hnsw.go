package index

import (
	"container/heap"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"

	"github.com/schemavault/schemavault/domain/schema"
	"github.com/schemavault/schemavault/domain/search"
	"github.com/schemavault/schemavault/internal/atomicfile"
)

// Default HNSW parameters. These mirror the construction settings the
// catalog has always used: M=16, efConstruction=200, efSearch=50.
const (
	DefaultM              = 16
	DefaultEfConstruction = 200
	DefaultEfSearch       = 50

	defaultSeed = 100
)

// HNSW is a hierarchical navigable small world graph index over cosine
// distance. Removals are tombstones: retired nodes stay in the graph for
// navigation but never appear in results. Storage grows without a fixed
// element cap.
//
// HNSW is not safe for concurrent use; the catalog serializes access.
type HNSW struct {
	dim            int
	m              int
	efConstruction int
	efSearch       int
	levelMult      float64
	rng            *rand.Rand

	nodes    []*hnswNode
	byID     map[string]int
	entry    int
	maxLevel int
	nextSeq  uint64
	live     int
}

type hnswNode struct {
	id        string
	seq       uint64
	vec       []float32
	mag       float64
	deleted   bool
	neighbors [][]int
}

func (n *hnswNode) level() int { return len(n.neighbors) - 1 }

// HNSWOption configures an HNSW index.
type HNSWOption func(*HNSW)

// WithM sets the number of graph links per node.
func WithM(m int) HNSWOption {
	return func(h *HNSW) { h.m = m }
}

// WithEfConstruction sets the candidate list size used while inserting.
func WithEfConstruction(ef int) HNSWOption {
	return func(h *HNSW) { h.efConstruction = ef }
}

// WithEfSearch sets the candidate list size used while querying.
func WithEfSearch(ef int) HNSWOption {
	return func(h *HNSW) { h.efSearch = ef }
}

// WithSeed sets the level-assignment random seed.
func WithSeed(seed int64) HNSWOption {
	return func(h *HNSW) { h.rng = rand.New(rand.NewSource(seed)) }
}

// NewHNSW creates an empty HNSW index with the given dimension.
func NewHNSW(dim int, opts ...HNSWOption) *HNSW {
	h := &HNSW{
		dim:            dim,
		m:              DefaultM,
		efConstruction: DefaultEfConstruction,
		efSearch:       DefaultEfSearch,
		rng:            rand.New(rand.NewSource(defaultSeed)),
		byID:           make(map[string]int),
		entry:          -1,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.levelMult = 1 / math.Log(float64(h.m))
	return h
}

// Dimension returns the fixed vector dimension.
func (h *HNSW) Dimension() int { return h.dim }

// Len returns the number of live vectors.
func (h *HNSW) Len() int { return h.live }

// Has reports whether id is live.
func (h *HNSW) Has(id string) bool {
	_, ok := h.byID[id]
	return ok
}

// IDs returns the live ids in unspecified order.
func (h *HNSW) IDs() []string {
	ids := make([]string, 0, len(h.byID))
	for id := range h.byID {
		ids = append(ids, id)
	}
	return ids
}

// Reset drops all vectors, tombstones included.
func (h *HNSW) Reset() { h.reset() }

// Insert adds a vector for a new id.
func (h *HNSW) Insert(id string, vector []float32) error {
	if len(vector) != h.dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), h.dim)
	}
	if _, ok := h.byID[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}

	vec := make([]float32, len(vector))
	copy(vec, vector)
	level := h.randomLevel()

	node := &hnswNode{
		id:        id,
		seq:       h.nextSeq,
		vec:       vec,
		mag:       magnitude(vec),
		neighbors: make([][]int, level+1),
	}
	idx := len(h.nodes)
	h.nodes = append(h.nodes, node)
	h.byID[id] = idx
	h.nextSeq++
	h.live++

	if h.entry < 0 {
		h.entry = idx
		h.maxLevel = level
		return nil
	}

	qmag := node.mag
	curr := h.entry
	currDist := h.distTo(vec, qmag, curr)
	for l := h.maxLevel; l > level; l-- {
		curr, currDist = h.greedy(vec, qmag, curr, currDist, l)
	}

	top := level
	if h.maxLevel < top {
		top = h.maxLevel
	}
	for l := top; l >= 0; l-- {
		cands := h.searchLayer(vec, qmag, curr, h.efConstruction, l)
		node.neighbors[l] = h.closestOf(cands, h.maxNeighbors(l), idx)
		for _, nb := range node.neighbors[l] {
			h.addLink(nb, idx, l)
		}
		if len(cands) > 0 {
			curr = cands[0].idx
		}
	}

	if level > h.maxLevel {
		h.maxLevel = level
		h.entry = idx
	}
	return nil
}

// Remove tombstones an id. Absent ids are a no-op. The node stays in the
// graph for navigation, which keeps neighbor lists valid without a
// structural rebuild.
func (h *HNSW) Remove(id string) {
	idx, ok := h.byID[id]
	if !ok {
		return
	}
	h.nodes[idx].deleted = true
	delete(h.byID, id)
	h.live--
}

// Search returns up to k live matches ordered by ascending cosine distance,
// ties broken by insertion order.
func (h *HNSW) Search(vector []float32, k int) ([]search.Match, error) {
	if len(vector) != h.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), h.dim)
	}
	if h.live == 0 || k <= 0 {
		return []search.Match{}, nil
	}

	qmag := magnitude(vector)
	curr := h.entry
	currDist := h.distTo(vector, qmag, curr)
	for l := h.maxLevel; l > 0; l-- {
		curr, currDist = h.greedy(vector, qmag, curr, currDist, l)
	}

	// Widen ef by the tombstone count so retired nodes cannot crowd live
	// ones out of the candidate list.
	ef := h.efSearch
	if k > ef {
		ef = k
	}
	ef += len(h.nodes) - h.live

	cands := h.searchLayer(vector, qmag, curr, ef, 0)

	matches := make([]search.Match, 0, k)
	for _, c := range cands {
		if h.nodes[c.idx].deleted {
			continue
		}
		matches = append(matches, search.NewMatch(h.nodes[c.idx].id, c.dist))
		if len(matches) == k {
			break
		}
	}
	return matches, nil
}

func (h *HNSW) randomLevel() int {
	r := h.rng.Float64()
	if r == 0 {
		r = math.SmallestNonzeroFloat64
	}
	return int(math.Floor(-math.Log(r) * h.levelMult))
}

func (h *HNSW) maxNeighbors(level int) int {
	if level == 0 {
		return 2 * h.m
	}
	return h.m
}

func (h *HNSW) distTo(query []float32, qmag float64, idx int) float64 {
	n := h.nodes[idx]
	if qmag == 0 || n.mag == 0 {
		return 1
	}
	d := 1 - dot(query, n.vec)/(qmag*n.mag)
	if math.IsNaN(d) {
		return 1
	}
	return d
}

// greedy walks level l from curr to the locally closest node to query.
func (h *HNSW) greedy(query []float32, qmag float64, curr int, currDist float64, l int) (int, float64) {
	for {
		improved := false
		node := h.nodes[curr]
		if l < len(node.neighbors) {
			for _, nb := range node.neighbors[l] {
				if d := h.distTo(query, qmag, nb); d < currDist {
					curr, currDist = nb, d
					improved = true
				}
			}
		}
		if !improved {
			return curr, currDist
		}
	}
}

// searchLayer is the classic HNSW beam search over one level, returning up
// to ef candidates sorted by ascending distance then insertion order.
// Tombstoned nodes participate: they are filtered by the caller.
func (h *HNSW) searchLayer(query []float32, qmag float64, entry, ef, level int) []scoredNode {
	start := scoredNode{idx: entry, dist: h.distTo(query, qmag, entry), seq: h.nodes[entry].seq}

	visited := map[int]struct{}{entry: {}}
	candidates := &minQueue{start}
	results := &maxQueue{start}

	for candidates.Len() > 0 {
		c := heap.Pop(candidates).(scoredNode)
		if results.Len() >= ef && c.dist > (*results)[0].dist {
			break
		}
		node := h.nodes[c.idx]
		if level >= len(node.neighbors) {
			continue
		}
		for _, nb := range node.neighbors[level] {
			if _, seen := visited[nb]; seen {
				continue
			}
			visited[nb] = struct{}{}
			d := h.distTo(query, qmag, nb)
			if results.Len() < ef || d < (*results)[0].dist {
				sn := scoredNode{idx: nb, dist: d, seq: h.nodes[nb].seq}
				heap.Push(candidates, sn)
				heap.Push(results, sn)
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	out := make([]scoredNode, results.Len())
	copy(out, *results)
	sort.Slice(out, func(i, j int) bool {
		if out[i].dist != out[j].dist {
			return out[i].dist < out[j].dist
		}
		return out[i].seq < out[j].seq
	})
	return out
}

// closestOf picks up to n candidate indexes, skipping self links.
func (h *HNSW) closestOf(cands []scoredNode, n, self int) []int {
	out := make([]int, 0, n)
	for _, c := range cands {
		if c.idx == self {
			continue
		}
		out = append(out, c.idx)
		if len(out) == n {
			break
		}
	}
	return out
}

// addLink adds a back-edge from -> to at the given level, pruning the
// neighbor list back to its cap by distance when it overflows.
func (h *HNSW) addLink(from, to, level int) {
	node := h.nodes[from]
	node.neighbors[level] = append(node.neighbors[level], to)

	limit := h.maxNeighbors(level)
	if len(node.neighbors[level]) <= limit {
		return
	}

	nbs := node.neighbors[level]
	sort.Slice(nbs, func(i, j int) bool {
		di := CosineDistance(node.vec, h.nodes[nbs[i]].vec)
		dj := CosineDistance(node.vec, h.nodes[nbs[j]].vec)
		if di != dj {
			return di < dj
		}
		return h.nodes[nbs[i]].seq < h.nodes[nbs[j]].seq
	})
	node.neighbors[level] = nbs[:limit]
}

// Save serializes the full graph to a single file via temp-file + rename.
func (h *HNSW) Save(path string) error {
	w := newBinaryWriter(64 + len(h.nodes)*(32+4*h.dim))
	w.header(kindHNSW, h.dim)
	w.u32(uint32(h.m))
	w.u64(h.nextSeq)
	w.u64(uint64(h.entry + 1)) // 0 means no entry point
	w.u32(uint32(h.maxLevel))
	w.u32(uint32(len(h.nodes)))
	for _, n := range h.nodes {
		w.str(n.id)
		w.u64(n.seq)
		if n.deleted {
			w.u8(1)
		} else {
			w.u8(0)
		}
		w.vec(n.vec)
		w.u32(uint32(len(n.neighbors)))
		for _, nbs := range n.neighbors {
			w.u32(uint32(len(nbs)))
			for _, nb := range nbs {
				w.u32(uint32(nb))
			}
		}
	}
	if err := atomicfile.WriteFile(path, w.bytes(), 0o644); err != nil {
		return fmt.Errorf("save hnsw index: %w", err)
	}
	return nil
}

// Load replaces the index contents from a file. A missing file yields an
// empty index; a dimension mismatch is fatal.
func (h *HNSW) Load(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		h.reset()
		return nil
	}
	if err != nil {
		return fmt.Errorf("read index file: %w", err)
	}

	r := newBinaryReader(data)
	if _, err := r.header(kindHNSW, h.dim); err != nil {
		return err
	}

	m := int(r.u32())
	if m < 2 {
		return fmt.Errorf("%w: implausible link count %d in index file", schema.ErrCorrupt, m)
	}
	nextSeq := r.u64()
	entry := int(r.u64()) - 1
	maxLevel := int(r.u32())
	count := int(r.u32())
	// Node counts come from untrusted bytes; each node occupies at least
	// 17 bytes, so anything larger is corruption and must not drive an
	// allocation.
	if count > len(data)/17 {
		return fmt.Errorf("%w: implausible node count %d in index file", schema.ErrCorrupt, count)
	}

	nodes := make([]*hnswNode, 0, count)
	byID := make(map[string]int, count)
	live := 0
	for i := 0; i < count; i++ {
		id := r.str()
		seq := r.u64()
		deleted := r.u8() == 1
		vec := r.vec(h.dim)
		levels := int(r.u32())
		if r.corrupt || levels < 1 || levels > count {
			r.corrupt = true
			break
		}
		neighbors := make([][]int, levels)
		for l := range neighbors {
			nn := int(r.u32())
			if r.corrupt || nn < 0 || nn > count {
				r.corrupt = true
				break
			}
			nbs := make([]int, nn)
			for j := range nbs {
				nb := int(r.u32())
				if nb < 0 || nb >= count {
					r.corrupt = true
					break
				}
				nbs[j] = nb
			}
			neighbors[l] = nbs
		}
		if r.corrupt {
			break
		}
		if _, ok := byID[id]; !deleted && ok {
			return fmt.Errorf("%w: duplicate live id %q in index file", schema.ErrCorrupt, id)
		}
		if !deleted {
			byID[id] = i
			live++
		}
		nodes = append(nodes, &hnswNode{
			id:        id,
			seq:       seq,
			vec:       vec,
			mag:       magnitude(vec),
			deleted:   deleted,
			neighbors: neighbors,
		})
	}
	if err := r.err(); err != nil {
		return err
	}
	// The entry point and max level seed every graph walk, so bogus values
	// would panic or spin Search rather than fail a later decode.
	if count == 0 {
		if entry != -1 {
			return fmt.Errorf("%w: entry point %d in empty index file", schema.ErrCorrupt, entry)
		}
		if maxLevel != 0 {
			return fmt.Errorf("%w: max level %d in empty index file", schema.ErrCorrupt, maxLevel)
		}
	} else {
		if entry < 0 || entry >= count {
			return fmt.Errorf("%w: entry point %d out of range", schema.ErrCorrupt, entry)
		}
		if lvl := nodes[entry].level(); maxLevel < 0 || maxLevel > lvl {
			return fmt.Errorf("%w: max level %d exceeds entry node level %d", schema.ErrCorrupt, maxLevel, lvl)
		}
	}

	h.m = m
	h.levelMult = 1 / math.Log(float64(m))
	h.nextSeq = nextSeq
	h.entry = entry
	h.maxLevel = maxLevel
	h.nodes = nodes
	h.byID = byID
	h.live = live
	return nil
}

func (h *HNSW) reset() {
	h.nodes = nil
	h.byID = make(map[string]int)
	h.entry = -1
	h.maxLevel = 0
	h.nextSeq = 0
	h.live = 0
}

// scoredNode is a graph node paired with its distance to the current query.
type scoredNode struct {
	idx  int
	dist float64
	seq  uint64
}

// minQueue pops the closest node first.
type minQueue []scoredNode

func (q minQueue) Len() int { return len(q) }
func (q minQueue) Less(i, j int) bool {
	if q[i].dist != q[j].dist {
		return q[i].dist < q[j].dist
	}
	return q[i].seq < q[j].seq
}
func (q minQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *minQueue) Push(x any)   { *q = append(*q, x.(scoredNode)) }

func (q *minQueue) Pop() any {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[:n-1]
	return x
}

// maxQueue pops the farthest node first, for bounding the result set.
type maxQueue []scoredNode

func (q maxQueue) Len() int { return len(q) }
func (q maxQueue) Less(i, j int) bool {
	if q[i].dist != q[j].dist {
		return q[i].dist > q[j].dist
	}
	return q[i].seq > q[j].seq
}
func (q maxQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *maxQueue) Push(x any)   { *q = append(*q, x.(scoredNode)) }

func (q *maxQueue) Pop() any {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[:n-1]
	return x
}

var _ schema.VectorIndex = (*HNSW)(nil)
