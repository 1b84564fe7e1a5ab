// Package hnsw implements a hierarchical navigable small world index used for
// approximate nearest-neighbor queries during graph construction.
//
// The index is deterministic: level assignment draws from an explicitly
// seeded generator, and all candidate orderings break distance ties by node
// id. Building the same vectors with the same seed therefore yields the same
// graph and the same query results.
package hnsw

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/kusimpkins/cellgraph/internal/math32"
	"github.com/kusimpkins/cellgraph/internal/queue"
	"github.com/kusimpkins/cellgraph/internal/visited"
)

// ErrDimensionMismatch indicates a vector whose length differs from the
// index dimension.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// DistanceFunc computes the distance between two vectors of equal length.
type DistanceFunc func(a, b []float32) float32

// Options configures the index.
type Options struct {
	// M is the number of links created per node per layer. The bottom layer
	// allows 2*M. Range 8-48 covers most embedding dimensionalities.
	M int

	// EF is the construction-time candidate list size. Larger values improve
	// graph quality at the cost of build time.
	EF int

	// Heuristic enables diversity-aware neighbor pruning instead of plain
	// closest-M selection. Keeps the graph navigable in clustered data.
	Heuristic bool

	// Seed drives level assignment.
	Seed int64

	// DistanceFunc is the metric used for all comparisons.
	DistanceFunc DistanceFunc
}

// DefaultOptions are the default index options.
var DefaultOptions = Options{
	M:            16,
	EF:           200,
	Heuristic:    true,
	Seed:         0,
	DistanceFunc: math32.SquaredL2,
}

type node struct {
	vector      []float32
	connections [][]uint32
	layer       int
}

// Index is a hierarchical navigable small world graph.
type Index struct {
	dimension int
	mmax      int
	mmax0     int
	ml        float64
	ep        uint32
	maxLevel  int

	nodes []node
	rng   *rand.Rand
	seen  *visited.Set

	opts Options
}

// New creates an empty index for vectors of the given dimension.
func New(dimension int, optFns ...func(o *Options)) *Index {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.M < 2 {
		// M == 1 would make the level normalization factor divide by zero.
		opts.M = 2
	}

	return &Index{
		dimension: dimension,
		mmax:      opts.M,
		mmax0:     2 * opts.M,
		ml:        1 / math.Log(float64(opts.M)),
		rng:       rand.New(rand.NewSource(opts.Seed)),
		seen:      visited.New(1024),
		opts:      opts,
	}
}

// Len returns the number of indexed vectors.
func (h *Index) Len() int { return len(h.nodes) }

// Insert adds a vector and returns its id. Ids are assigned densely in
// insertion order, so inserting matrix rows 0..n-1 in order makes node ids
// coincide with observation ids.
func (h *Index) Insert(v []float32) (uint32, error) {
	if len(v) != h.dimension {
		return 0, &ErrDimensionMismatch{Expected: h.dimension, Actual: len(v)}
	}

	vec := make([]float32, len(v))
	copy(vec, v)

	id := uint32(len(h.nodes))
	layer := int(math.Floor(-math.Log(h.rng.Float64()) * h.ml))

	n := node{
		vector:      vec,
		layer:       layer,
		connections: make([][]uint32, layer+1),
	}

	if len(h.nodes) == 0 {
		h.nodes = append(h.nodes, n)
		h.ep = 0
		h.maxLevel = layer
		return id, nil
	}

	// Greedy descent through layers above the new node's top layer.
	curr, currDist := h.descend(vec, h.ep, h.maxLevel, layer+1)

	// Link on every layer from min(layer, maxLevel) down to 0.
	for level := min(layer, h.maxLevel); level >= 0; level-- {
		top := h.searchLayer(vec, curr, currDist, h.opts.EF, level)
		neighbors := h.selectNeighbors(top, h.opts.M)
		n.connections[level] = neighbors

		if len(neighbors) > 0 {
			// Best candidate seeds the next layer's search.
			curr = neighbors[0]
			currDist = h.opts.DistanceFunc(vec, h.nodes[curr].vector)
		}
	}

	h.nodes = append(h.nodes, n)

	// Backlink neighbors, pruning overfull connection lists.
	for level := min(layer, h.maxLevel); level >= 0; level-- {
		for _, nb := range h.nodes[id].connections[level] {
			h.link(nb, id, level)
		}
	}

	if layer > h.maxLevel {
		h.ep = id
		h.maxLevel = layer
	}

	return id, nil
}

// Search returns up to k nearest neighbors of q, closest first. efSearch
// bounds the candidate pool; values below k are raised to k.
func (h *Index) Search(q []float32, k, efSearch int) ([]queue.Item, error) {
	if len(q) != h.dimension {
		return nil, &ErrDimensionMismatch{Expected: h.dimension, Actual: len(q)}
	}
	if len(h.nodes) == 0 {
		return nil, nil
	}
	if efSearch < k {
		efSearch = k
	}

	curr, currDist := h.descend(q, h.ep, h.maxLevel, 1)
	top := h.searchLayer(q, curr, currDist, efSearch, 0)

	for top.Len() > k {
		top.Pop()
	}

	// Max-heap pops farthest first; reverse into ascending order.
	out := make([]queue.Item, top.Len())
	for i := top.Len() - 1; i >= 0; i-- {
		it, _ := top.Pop()
		out[i] = it
	}
	return out, nil
}

// descend walks greedily from entry point ep at fromLevel down to toLevel,
// returning the closest node found and its distance to q.
func (h *Index) descend(q []float32, ep uint32, fromLevel, toLevel int) (uint32, float32) {
	curr := ep
	currDist := h.opts.DistanceFunc(q, h.nodes[curr].vector)

	for level := fromLevel; level >= toLevel; level-- {
		for changed := true; changed; {
			changed = false
			n := &h.nodes[curr]
			if level >= len(n.connections) {
				continue
			}
			for _, nb := range n.connections[level] {
				if d := h.opts.DistanceFunc(q, h.nodes[nb].vector); d < currDist {
					curr, currDist = nb, d
					changed = true
				}
			}
		}
	}

	return curr, currDist
}

// searchLayer runs a best-first search on one layer and returns a max-heap of
// at most ef candidates.
func (h *Index) searchLayer(q []float32, ep uint32, epDist float32, ef, level int) *queue.PriorityQueue {
	h.seen.Reset()
	h.seen.Visit(ep)

	candidates := queue.NewMin(ef)
	candidates.Push(queue.Item{Node: ep, Distance: epDist})

	top := queue.NewMax(ef)
	top.Push(queue.Item{Node: ep, Distance: epDist})

	for candidates.Len() > 0 {
		lower, _ := top.Top()
		cand, _ := candidates.Pop()
		if cand.Distance > lower.Distance && top.Len() >= ef {
			break
		}

		n := &h.nodes[cand.Node]
		if level >= len(n.connections) {
			continue
		}

		for _, nb := range n.connections[level] {
			if h.seen.Visited(nb) {
				continue
			}
			h.seen.Visit(nb)

			d := h.opts.DistanceFunc(q, h.nodes[nb].vector)
			if top.Len() < ef {
				top.Push(queue.Item{Node: nb, Distance: d})
				candidates.Push(queue.Item{Node: nb, Distance: d})
			} else if farthest, _ := top.Top(); d < farthest.Distance {
				top.Pop()
				top.Push(queue.Item{Node: nb, Distance: d})
				candidates.Push(queue.Item{Node: nb, Distance: d})
			}
		}
	}

	return top
}

// selectNeighbors reduces a max-heap of candidates to at most m ids,
// closest first.
func (h *Index) selectNeighbors(top *queue.PriorityQueue, m int) []uint32 {
	items := make([]queue.Item, top.Len())
	for i := top.Len() - 1; i >= 0; i-- {
		it, _ := top.Pop()
		items[i] = it // ascending by distance
	}

	if len(items) <= m {
		out := make([]uint32, len(items))
		for i, it := range items {
			out[i] = it.Node
		}
		return out
	}

	if !h.opts.Heuristic {
		out := make([]uint32, m)
		for i := 0; i < m; i++ {
			out[i] = items[i].Node
		}
		return out
	}

	// Diversity pruning: keep a candidate only if it is closer to the query
	// than to every already-selected neighbor. Rejected candidates backfill
	// in distance order if the selection comes up short.
	selected := make([]queue.Item, 0, m)
	var rejected []queue.Item

	for _, it := range items {
		if len(selected) >= m {
			break
		}
		keep := true
		for _, s := range selected {
			if h.opts.DistanceFunc(h.nodes[s.Node].vector, h.nodes[it.Node].vector) < it.Distance {
				keep = false
				break
			}
		}
		if keep {
			selected = append(selected, it)
		} else {
			rejected = append(rejected, it)
		}
	}

	for _, it := range rejected {
		if len(selected) >= m {
			break
		}
		selected = append(selected, it)
	}

	out := make([]uint32, len(selected))
	for i, it := range selected {
		out[i] = it.Node
	}
	return out
}

// link appends target to node's connection list at level, pruning back to the
// per-level cap when the list overflows.
func (h *Index) link(id, target uint32, level int) {
	maxConns := h.mmax
	if level == 0 {
		maxConns = h.mmax0
	}

	n := &h.nodes[id]
	if level >= len(n.connections) {
		return
	}
	n.connections[level] = append(n.connections[level], target)

	if len(n.connections[level]) <= maxConns {
		return
	}

	top := queue.NewMax(len(n.connections[level]))
	for _, c := range n.connections[level] {
		top.Push(queue.Item{Node: c, Distance: h.opts.DistanceFunc(n.vector, h.nodes[c].vector)})
	}
	n.connections[level] = h.selectNeighbors(top, maxConns)
}
