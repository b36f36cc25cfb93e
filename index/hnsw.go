package index

import (
	"bytes"
	"container/heap"
	"encoding/gob"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
	"sync"

	"github.com/poiesic/mtgindex/cache"
)

// Default graph parameters, tuned for a few hundred thousand card vectors
// of dimension 512.
const (
	DefaultM              = 32
	DefaultEfConstruction = 200
	DefaultEfSearch       = 64
)

// levelSeed fixes the level draw sequence so identical input produces an
// identical graph.
const levelSeed = 1

// Config controls graph shape and search effort. Zero fields take the
// package defaults.
type Config struct {
	M              int // max connections per node above the base layer
	EfConstruction int // candidate pool size while building
	EfSearch       int // candidate pool size while querying
}

// WithDefaults returns the config with zero fields replaced by the package
// defaults.
func (c Config) WithDefaults() Config {
	if c.M <= 0 {
		c.M = DefaultM
	}
	if c.EfConstruction <= 0 {
		c.EfConstruction = DefaultEfConstruction
	}
	if c.EfSearch <= 0 {
		c.EfSearch = DefaultEfSearch
	}
	return c
}

// node is one graph vertex. Fields are exported for gob serialization.
type node struct {
	ID        int64
	Vector    []float32
	Level     int
	Neighbors [][]int32 // Neighbors[level] holds indices into the node slice
}

// Match is one search hit. Score is the inner product between the query
// and the stored vector, which equals cosine similarity for unit vectors.
type Match struct {
	ID    int64
	Score float32
}

// HNSW is a hierarchical navigable small world graph.
type HNSW struct {
	mu         sync.RWMutex
	cfg        Config
	levelMult  float64
	rng        *rand.Rand
	dim        int
	nodes      []node
	entryPoint int32 // -1 while empty
	maxLevel   int
}

// New creates an empty graph.
func New(cfg Config) *HNSW {
	cfg = cfg.WithDefaults()
	return &HNSW{
		cfg:        cfg,
		levelMult:  1.0 / math.Log(float64(cfg.M)),
		rng:        rand.New(rand.NewSource(levelSeed)),
		entryPoint: -1,
	}
}

// Add inserts a vector under the given ID. The first insert fixes the
// dimension; every later vector must match it.
func (h *HNSW) Add(id int64, vec []float32) error {
	if len(vec) == 0 {
		return ErrEmptyVector
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.dim == 0 {
		h.dim = len(vec)
	} else if len(vec) != h.dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), h.dim)
	}

	level := h.randomLevel()
	idx := int32(len(h.nodes))
	h.nodes = append(h.nodes, node{
		ID:        id,
		Vector:    vec,
		Level:     level,
		Neighbors: make([][]int32, level+1),
	})

	if h.entryPoint < 0 {
		h.entryPoint = idx
		h.maxLevel = level
		return nil
	}

	// Greedy descent through the layers above the new node's level.
	curr := h.entryPoint
	for l := h.maxLevel; l > level; l-- {
		curr = h.greedyClosest(vec, curr, l)
	}

	for l := min(level, h.maxLevel); l >= 0; l-- {
		found := h.searchLayer(vec, curr, h.cfg.EfConstruction, l)
		h.connect(idx, found, l)
		curr = found[0].idx
	}

	if level > h.maxLevel {
		h.maxLevel = level
		h.entryPoint = idx
	}
	return nil
}

// Search returns up to k matches ordered by score descending. An empty
// graph returns no matches.
func (h *HNSW) Search(query []float32, k int) ([]Match, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.entryPoint < 0 || k <= 0 {
		return nil, nil
	}
	if len(query) != h.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(query), h.dim)
	}

	curr := h.entryPoint
	for l := h.maxLevel; l > 0; l-- {
		curr = h.greedyClosest(query, curr, l)
	}

	ef := h.cfg.EfSearch
	if ef < k {
		ef = k
	}
	found := h.searchLayer(query, curr, ef, 0)
	if len(found) > k {
		found = found[:k]
	}

	matches := make([]Match, len(found))
	for i, c := range found {
		matches[i] = Match{ID: h.nodes[c.idx].ID, Score: c.sim}
	}
	return matches, nil
}

// Len returns the number of stored vectors.
func (h *HNSW) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.nodes)
}

// Dimension returns the vector dimension, or zero before the first insert.
func (h *HNSW) Dimension() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dim
}

// SetEfSearch overrides the search beam width. Values below 1 are ignored.
func (h *HNSW) SetEfSearch(ef int) {
	if ef < 1 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cfg.EfSearch = ef
}

func (h *HNSW) randomLevel() int {
	u := h.rng.Float64()
	for u == 0 {
		u = h.rng.Float64()
	}
	return int(-math.Log(u) * h.levelMult)
}

// greedyClosest walks one layer, moving to whichever neighbor improves on
// the current similarity, until no neighbor does.
func (h *HNSW) greedyClosest(query []float32, entry int32, level int) int32 {
	curr := entry
	best := dot(query, h.nodes[curr].Vector)

	for {
		improved := false
		for _, nb := range h.neighborsAt(curr, level) {
			if sim := dot(query, h.nodes[nb].Vector); sim > best {
				curr = nb
				best = sim
				improved = true
			}
		}
		if !improved {
			return curr
		}
	}
}

// searchLayer runs a best-first scan over one layer and returns up to ef
// candidates ordered most similar first. The result always contains at
// least the entry node.
func (h *HNSW) searchLayer(query []float32, entry int32, ef, level int) []scored {
	entrySim := dot(query, h.nodes[entry].Vector)
	visited := map[int32]bool{entry: true}

	candidates := &maxQueue{{idx: entry, sim: entrySim}}
	results := &minQueue{{idx: entry, sim: entrySim}}

	for candidates.Len() > 0 {
		curr := heap.Pop(candidates).(scored)

		// The best remaining candidate is worse than the worst kept
		// result, so no reachable node can improve the result set.
		if results.Len() >= ef && curr.sim < (*results)[0].sim {
			break
		}

		for _, nb := range h.neighborsAt(curr.idx, level) {
			if visited[nb] {
				continue
			}
			visited[nb] = true

			sim := dot(query, h.nodes[nb].Vector)
			if results.Len() < ef || sim > (*results)[0].sim {
				heap.Push(candidates, scored{idx: nb, sim: sim})
				heap.Push(results, scored{idx: nb, sim: sim})
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	out := make([]scored, results.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(results).(scored)
	}
	return out
}

// connect links a fresh node into one layer and keeps every degree within
// the layer's limit.
func (h *HNSW) connect(idx int32, found []scored, level int) {
	limit := h.degreeLimit(level)

	n := len(found)
	if n > limit {
		n = limit
	}
	neighbors := make([]int32, 0, n)
	for _, c := range found[:n] {
		neighbors = append(neighbors, c.idx)
	}
	h.nodes[idx].Neighbors[level] = neighbors

	for _, nb := range neighbors {
		if level >= len(h.nodes[nb].Neighbors) {
			continue
		}
		back := append(h.nodes[nb].Neighbors[level], idx)
		if len(back) > limit {
			back = h.closestSubset(nb, back, limit)
		}
		h.nodes[nb].Neighbors[level] = back
	}
}

// degreeLimit is M on upper layers and 2M on the base layer, which holds
// every node.
func (h *HNSW) degreeLimit(level int) int {
	if level == 0 {
		return h.cfg.M * 2
	}
	return h.cfg.M
}

// closestSubset keeps the limit most similar neighbors of idx.
func (h *HNSW) closestSubset(idx int32, neighbors []int32, limit int) []int32 {
	base := h.nodes[idx].Vector

	type ranked struct {
		idx int32
		sim float32
	}
	rs := make([]ranked, len(neighbors))
	for i, nb := range neighbors {
		rs[i] = ranked{idx: nb, sim: dot(base, h.nodes[nb].Vector)}
	}
	sort.Slice(rs, func(i, j int) bool { return rs[i].sim > rs[j].sim })

	out := make([]int32, limit)
	for i := range out {
		out[i] = rs[i].idx
	}
	return out
}

func (h *HNSW) neighborsAt(idx int32, level int) []int32 {
	nbs := h.nodes[idx].Neighbors
	if level >= len(nbs) {
		return nil
	}
	return nbs[level]
}

// dot computes the inner product of two equal-length vectors.
func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// graphData is the serializable representation of the graph.
type graphData struct {
	Config     Config
	Dimension  int
	Nodes      []node
	EntryPoint int32
	MaxLevel   int
}

// Save writes the graph to path atomically.
func (h *HNSW) Save(path string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var buf bytes.Buffer
	data := graphData{
		Config:     h.cfg,
		Dimension:  h.dim,
		Nodes:      h.nodes,
		EntryPoint: h.entryPoint,
		MaxLevel:   h.maxLevel,
	}
	if err := gob.NewEncoder(&buf).Encode(data); err != nil {
		return fmt.Errorf("encoding index: %w", err)
	}
	return cache.WriteAtomic(path, &buf)
}

// Load reads a graph previously written by Save.
func Load(path string) (*HNSW, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var data graphData
	if err := gob.NewDecoder(f).Decode(&data); err != nil {
		return nil, fmt.Errorf("decoding index %s: %w", path, err)
	}

	h := New(data.Config)
	h.dim = data.Dimension
	h.nodes = data.Nodes
	h.entryPoint = data.EntryPoint
	h.maxLevel = data.MaxLevel
	return h, nil
}

// scored pairs a node index with its similarity to the current query.
type scored struct {
	idx int32
	sim float32
}

// minQueue is a heap with the worst similarity on top.
type minQueue []scored

func (q minQueue) Len() int           { return len(q) }
func (q minQueue) Less(i, j int) bool { return q[i].sim < q[j].sim }
func (q minQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }

func (q *minQueue) Push(x any) { *q = append(*q, x.(scored)) }

func (q *minQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// maxQueue is a heap with the best similarity on top.
type maxQueue []scored

func (q maxQueue) Len() int           { return len(q) }
func (q maxQueue) Less(i, j int) bool { return q[i].sim > q[j].sim }
func (q maxQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }

func (q *maxQueue) Push(x any) { *q = append(*q, x.(scored)) }

func (q *maxQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
