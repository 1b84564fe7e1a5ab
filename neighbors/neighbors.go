// Package neighbors builds the weighted neighbor graph over observations:
// k-nearest-neighbor search in reduced space (exact or approximate),
// locally-adaptive conversion of distances to affinities, and probabilistic
// symmetrization into an undirected connectivity matrix.
package neighbors

import (
	"context"
	"fmt"

	"github.com/kusimpkins/cellgraph/matrix"
	"github.com/kusimpkins/cellgraph/sparse"
)

// ErrInvalidK indicates a neighbor count outside [1, observations-1].
type ErrInvalidK struct {
	K int
	N int
}

func (e *ErrInvalidK) Error() string {
	return fmt.Sprintf("invalid k=%d for %d observations: need 1 <= k < n", e.K, e.N)
}

// ErrIsolated indicates isolated nodes under a connectivity guarantee.
type ErrIsolated struct {
	Nodes []int
}

func (e *ErrIsolated) Error() string {
	return fmt.Sprintf("graph has %d isolated nodes (first: %d)", len(e.Nodes), e.Nodes[0])
}

// Graph is the symmetrized neighbor graph over observations. Immutable once
// built; the clusterer and the embedder read it concurrently.
type Graph struct {
	// Connectivities is the symmetric affinity matrix: for every stored
	// (i,j,w) the entry (j,i,w) is stored too.
	Connectivities *sparse.CSR

	// Distances keeps the directed k-NN distances in the metric's native
	// scale (at most K entries per row).
	Distances *sparse.CSR

	// K is the neighbor count the graph was built with.
	K int

	// Metric is the distance metric used.
	Metric Metric

	// Warning carries non-fatal diagnostics (e.g. disconnected components
	// outside strict mode). Never set when an error is returned. Excluded
	// from snapshots: the pipeline persists warnings as store metadata.
	Warning error `json:"-"`
}

// N returns the number of observations in the graph.
func (g *Graph) N() int { return g.Connectivities.N() }

// Options configures Build.
type Options struct {
	// Metric selects the distance measure.
	Metric Metric

	// Approximate routes search through the HNSW index instead of brute
	// force. Worth it from roughly 10k observations up.
	Approximate bool

	// Strict fails with ErrIsolated when the symmetrized graph has isolated
	// nodes. Off by default: the condition degrades to Graph.Warning.
	Strict bool

	// Seed drives the approximate index build. The exact path is
	// deterministic independent of it.
	Seed int64

	// Workers bounds the search parallelism. <= 0 means GOMAXPROCS.
	Workers int

	// EF is the approximate search candidate pool. <= 0 derives it from K.
	EF int

	// Bandwidth scales the affinity mass each node's local kernel is
	// calibrated against (target = Bandwidth * log2(k)). Larger values
	// flatten the weight profile toward the full k-neighborhood; smaller
	// values concentrate it on the closest neighbors, which fragments
	// homogeneous regions into spurious sub-communities downstream.
	// <= 0 falls back to the default.
	Bandwidth float64
}

// DefaultOptions are the default options for Build.
var DefaultOptions = Options{
	Metric:      Euclidean,
	Approximate: false,
	Strict:      false,
	Seed:        0,
	Workers:     0,
	EF:          0,
	Bandwidth:   3.0,
}

// Build computes the neighbor graph of the embedding rows.
//
// Each observation gets its k nearest others under the metric; distances
// become affinities through a per-node bandwidth calibrated against local
// density, and the directed affinities are symmetrized with the probabilistic
// union a + b - a*b. Repeated runs with identical inputs and seed produce
// byte-identical graphs.
func Build(ctx context.Context, emb *matrix.Dense, k int, optFns ...func(o *Options)) (*Graph, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	n := emb.Rows()
	if k < 1 || k >= n {
		return nil, &ErrInvalidK{K: k, N: n}
	}
	if err := emb.CheckFinite(); err != nil {
		return nil, fmt.Errorf("build graph: %w", err)
	}

	prepared := opts.Metric.prepare(emb)

	var (
		res *knnResult
		err error
	)
	if opts.Approximate {
		ef := opts.EF
		if ef <= 0 {
			ef = max(4*k, 64)
		}
		res, err = approxKNN(ctx, prepared, k, opts.Workers, opts.Seed, ef)
	} else {
		res, err = exactKNN(ctx, prepared, k, opts.Workers)
	}
	if err != nil {
		return nil, err
	}

	// Raw squared-L2 -> metric-native distances.
	distCoo := sparse.NewCoo(n)
	for i, ids := range res.indices {
		for j, id := range ids {
			res.dists[i][j] = opts.Metric.finalize(res.dists[i][j])
			distCoo.Append(int32(i), int32(id), res.dists[i][j])
		}
	}
	distances := distCoo.ToCSR()

	// Local bandwidth calibration, then directed affinities.
	bw := opts.Bandwidth
	if bw <= 0 {
		bw = DefaultOptions.Bandwidth
	}
	rhos, sigmas := smoothKNN(res.dists, k, bw)
	affCoo := sparse.NewCoo(n)
	for i, ids := range res.indices {
		for j, id := range ids {
			affCoo.Append(int32(i), int32(id), membership(res.dists[i][j], rhos[i], sigmas[i]))
		}
	}

	conn := sparse.FuzzyUnion(affCoo.ToCSR())

	g := &Graph{
		Connectivities: conn,
		Distances:      distances,
		K:              k,
		Metric:         opts.Metric,
	}

	if iso := sparse.Isolated(conn); len(iso) > 0 {
		if opts.Strict {
			return nil, &ErrIsolated{Nodes: iso}
		}
		g.Warning = &ErrIsolated{Nodes: iso}
	} else if _, comps := sparse.ConnectedComponents(conn); comps > 1 {
		g.Warning = fmt.Errorf("graph has %d connected components", comps)
	}

	return g, nil
}
