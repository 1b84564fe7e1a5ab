package cluster

import (
	"context"
	"math/rand"

	"github.com/kusimpkins/cellgraph/sparse"
)

// workGraph is the mutable state of one Louvain level: adjacency lists plus
// the community bookkeeping needed for O(deg) move evaluation. Aggregation
// rebuilds it one size smaller; the input CSR is never touched.
type workGraph struct {
	n        int
	nbr      [][]int32
	wgt      [][]float64
	selfLoop []float64
	degree   []float64 // weighted degree, self-loops counted twice
	total    float64   // sum of degrees (2m)

	node2com []int
	comTot   []float64 // sum of member degrees per community
}

func newWorkGraph(adj *sparse.CSR) *workGraph {
	n := adj.N()
	w := &workGraph{
		n:        n,
		nbr:      make([][]int32, n),
		wgt:      make([][]float64, n),
		selfLoop: make([]float64, n),
		degree:   make([]float64, n),
		node2com: make([]int, n),
		comTot:   make([]float64, n),
	}

	for i := 0; i < n; i++ {
		cols, vals := adj.Row(i)
		for k, c := range cols {
			v := float64(vals[k])
			if int(c) == i {
				w.selfLoop[i] += v
				continue
			}
			w.nbr[i] = append(w.nbr[i], c)
			w.wgt[i] = append(w.wgt[i], v)
			w.degree[i] += v
		}
		w.degree[i] += 2 * w.selfLoop[i]
		w.total += w.degree[i]
		w.node2com[i] = i
		w.comTot[i] = w.degree[i]
	}

	return w
}

// localMove runs move sweeps until no node improves the quality function or
// the sweep bound is hit. Node visiting order is drawn from rng each sweep;
// candidate communities are evaluated in neighbor order with a deterministic
// tie rule (first community reaching the best gain wins), so identical seeds
// replay identical moves.
func (w *workGraph) localMove(ctx context.Context, rng *rand.Rand, opts Options) (movedAny, converged bool) {
	if w.total == 0 {
		return false, true
	}

	comW := make([]float64, w.n)
	touched := make([]int, 0, 64)

	moved := true
	for sweep := 0; moved; sweep++ {
		if sweep >= opts.MaxSweeps {
			return movedAny, false
		}
		if ctx.Err() != nil {
			return movedAny, false
		}
		moved = false

		for _, v := range rng.Perm(w.n) {
			c0 := w.node2com[v]
			deg := w.degree[v]

			// Affinity mass from v into each adjacent community.
			touched = touched[:0]
			for k, u := range w.nbr[v] {
				c := w.node2com[u]
				if comW[c] == 0 {
					touched = append(touched, c)
				}
				comW[c] += w.wgt[v][k]
			}

			// Evaluate gains with v removed from its community.
			w.comTot[c0] -= deg
			best := c0
			bestGain := comW[c0] - opts.Resolution*w.comTot[c0]*deg/w.total

			for _, c := range touched {
				if c == c0 {
					continue
				}
				gain := comW[c] - opts.Resolution*w.comTot[c]*deg/w.total
				if gain > bestGain+opts.MinGain {
					best = c
					bestGain = gain
				}
			}

			w.comTot[best] += deg
			if best != c0 {
				w.node2com[v] = best
				moved = true
				movedAny = true
			}

			for _, c := range touched {
				comW[c] = 0
			}
		}
	}

	return movedAny, true
}

// aggregate collapses communities into super-nodes and resets the graph to
// the coarser level. Returns the node -> super-node mapping.
func (w *workGraph) aggregate() []int {
	// Renumber communities by first appearance over node order.
	newID := make([]int, w.n)
	for i := range newID {
		newID[i] = -1
	}
	count := 0
	mapping := make([]int, w.n)
	for v := 0; v < w.n; v++ {
		c := w.node2com[v]
		if newID[c] < 0 {
			newID[c] = count
			count++
		}
		mapping[v] = newID[c]
	}

	selfLoop := make([]float64, count)
	nbrW := make([]float64, count)
	var touched []int32

	nbr := make([][]int32, count)
	wgt := make([][]float64, count)

	// Group members per super-node in node order.
	members := make([][]int, count)
	for v := 0; v < w.n; v++ {
		c := mapping[v]
		members[c] = append(members[c], v)
	}

	for c := 0; c < count; c++ {
		touched = touched[:0]
		for _, v := range members[c] {
			selfLoop[c] += w.selfLoop[v]
			for k, u := range w.nbr[v] {
				d := int32(mapping[u])
				if int(d) == c {
					// Directed internal entries count each edge twice.
					selfLoop[c] += w.wgt[v][k] / 2
					continue
				}
				if nbrW[d] == 0 {
					touched = append(touched, d)
				}
				nbrW[d] += w.wgt[v][k]
			}
		}

		nbr[c] = make([]int32, len(touched))
		wgt[c] = make([]float64, len(touched))
		for i, d := range touched {
			nbr[c][i] = d
			wgt[c][i] = nbrW[d]
			nbrW[d] = 0
		}
	}

	w.n = count
	w.nbr = nbr
	w.wgt = wgt
	w.selfLoop = selfLoop
	w.degree = make([]float64, count)
	w.node2com = make([]int, count)
	w.comTot = make([]float64, count)
	w.total = 0
	for c := 0; c < count; c++ {
		for _, v := range wgt[c] {
			w.degree[c] += v
		}
		w.degree[c] += 2 * selfLoop[c]
		w.total += w.degree[c]
		w.node2com[c] = c
		w.comTot[c] = w.degree[c]
	}

	return mapping
}

// normalizedCommunities returns the current node -> community map renumbered
// contiguously by first appearance.
func (w *workGraph) normalizedCommunities() []int {
	out := make([]int, w.n)
	copy(out, w.node2com)
	out, _ = relabel(out)
	return out
}

// modularity evaluates the partition quality at the current level. Valid at
// loop exit, where every super-node sits in its own community.
func (w *workGraph) modularity(resolution float64) float64 {
	if w.total == 0 {
		return 0
	}
	var q float64
	for v := 0; v < w.n; v++ {
		q += 2*w.selfLoop[v]/w.total - resolution*(w.degree[v]/w.total)*(w.degree[v]/w.total)
	}
	return q
}
