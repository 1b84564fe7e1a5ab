// Package cluster partitions the neighbor graph into communities by
// resolution-parameterized modularity optimization (Louvain method): seeded
// local move sweeps over singleton communities, aggregation of communities
// into super-nodes, and repetition on the coarser graph until stable.
package cluster

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/kusimpkins/cellgraph/sparse"
)

// ErrEmptyGraph indicates a graph with no nodes.
var ErrEmptyGraph = fmt.Errorf("cluster: graph has no nodes")

// ErrInvalidResolution indicates a non-positive resolution.
type ErrInvalidResolution struct {
	Resolution float64
}

func (e *ErrInvalidResolution) Error() string {
	return fmt.Sprintf("invalid resolution %g: must be > 0", e.Resolution)
}

// Assignment maps each observation to a community label.
type Assignment struct {
	// Labels holds one label per observation, contiguous from 0 in order of
	// first appearance.
	Labels []int

	// Count is the number of communities.
	Count int

	// Modularity is the quality of the final partition under the requested
	// resolution.
	Modularity float64

	// Converged is false when the iteration bound was hit before the
	// partition stabilized. The result is still usable.
	Converged bool

	// Warning is set when Converged is false. Excluded from snapshots: the
	// pipeline persists warnings as store metadata.
	Warning error `json:"-"`
}

// Options configures Run.
type Options struct {
	// Resolution scales the modularity null term. Higher values produce
	// more, smaller communities.
	Resolution float64

	// Seed drives the node visiting order.
	Seed int64

	// MaxLevels bounds the aggregation depth.
	MaxLevels int

	// MaxSweeps bounds the local move sweeps per level.
	MaxSweeps int

	// MinGain is the smallest modularity improvement that justifies a move.
	MinGain float64
}

// DefaultOptions are the default options for Run.
var DefaultOptions = Options{
	Resolution: 1.0,
	Seed:       0,
	MaxLevels:  20,
	MaxSweeps:  100,
	MinGain:    1e-9,
}

// Run clusters the symmetric affinity graph. Identical graph, resolution and
// seed produce an identical assignment.
func Run(ctx context.Context, adj *sparse.CSR, resolution float64, seed int64, optFns ...func(o *Options)) (*Assignment, error) {
	opts := DefaultOptions
	opts.Resolution = resolution
	opts.Seed = seed
	for _, fn := range optFns {
		fn(&opts)
	}

	if adj.N() == 0 {
		return nil, ErrEmptyGraph
	}
	if opts.Resolution <= 0 {
		return nil, &ErrInvalidResolution{Resolution: opts.Resolution}
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	w := newWorkGraph(adj)

	// labels[i] tracks observation i's community through all levels.
	labels := make([]int, adj.N())
	for i := range labels {
		labels[i] = i
	}

	converged := true
	for level := 0; ; level++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if level >= opts.MaxLevels {
			converged = false
			break
		}

		moved, sweepsConverged := w.localMove(ctx, rng, opts)
		if !sweepsConverged {
			converged = false
		}
		if !moved {
			break
		}

		mapping := w.aggregate()
		for i := range labels {
			labels[i] = mapping[labels[i]]
		}
	}

	// Compose through the final (unaggregated) node-to-community map.
	final := w.normalizedCommunities()
	for i := range labels {
		labels[i] = final[labels[i]]
	}

	labels, count := relabel(labels)

	a := &Assignment{
		Labels:     labels,
		Count:      count,
		Modularity: w.modularity(opts.Resolution),
		Converged:  converged,
	}
	if !converged {
		a.Warning = fmt.Errorf("cluster: iteration bound reached before stabilization")
	}
	return a, nil
}

// relabel renumbers labels contiguously from 0 by first appearance.
func relabel(labels []int) ([]int, int) {
	next := 0
	seen := make(map[int]int, 16)
	for i, l := range labels {
		id, ok := seen[l]
		if !ok {
			id = next
			seen[l] = id
			next++
		}
		labels[i] = id
	}
	return labels, next
}
