// Package layout computes a low-dimensional force-directed arrangement of
// the neighbor graph. Edges are sampled in proportion to their affinity and
// pull endpoints together; random non-edges push points apart. The result
// preserves relative neighborhood topology, not absolute distances.
package layout

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/kusimpkins/cellgraph/matrix"
	"github.com/kusimpkins/cellgraph/sparse"
)

// ErrTooSmall indicates a graph with fewer than two nodes.
type ErrTooSmall struct {
	N int
}

func (e *ErrTooSmall) Error() string {
	return fmt.Sprintf("cannot lay out graph with %d nodes: need at least 2", e.N)
}

// ErrInvalidDims indicates an unsupported target dimensionality.
type ErrInvalidDims struct {
	NDims int
}

func (e *ErrInvalidDims) Error() string {
	return fmt.Sprintf("invalid layout dimensionality %d: must be 2 or 3", e.NDims)
}

// Layout is the embedded point set: one row per observation.
type Layout struct {
	Coords *matrix.Dense
	NDims  int
	Epochs int
}

// Options configures Embed.
type Options struct {
	// Epochs is the number of optimization passes. <= 0 picks a default
	// based on graph size.
	Epochs int

	// LearningRate is the initial step size; it decays linearly to zero
	// across epochs.
	LearningRate float64

	// NegativeSamples is the number of repulsion samples per attraction.
	NegativeSamples int

	// A and B shape the low-dimensional affinity curve. The defaults
	// correspond to the usual min-dist 0.1 / spread 1.0 fit; they are
	// tunables, not canon.
	A float64
	B float64

	// Init seeds point positions from the first NDims columns of the given
	// matrix (typically the reduced embedding), rescaled to the working
	// range. Nil falls back to seeded uniform noise.
	Init *matrix.Dense

	// Workers bounds the per-epoch force computation parallelism.
	// <= 0 means GOMAXPROCS. Worker count participates in determinism:
	// identical seed and workers replay identical layouts.
	Workers int
}

// DefaultOptions are the default options for Embed.
var DefaultOptions = Options{
	Epochs:          0,
	LearningRate:    1.0,
	NegativeSamples: 5,
	A:               1.577,
	B:               0.895,
	Init:            nil,
	Workers:         0,
}

const (
	// initRange bounds initial coordinates.
	initRange = 10.0
	// gradClip bounds each per-axis interaction gradient.
	gradClip = 4.0
	// repulsionEps keeps the repulsive gradient finite at zero distance.
	repulsionEps = 0.001
)

// Embed lays out the symmetric affinity graph in nDims dimensions.
//
// Each epoch samples due edges (attraction, frequency proportional to edge
// weight) and random non-edges (repulsion) across worker shards with
// seed-derived per-worker generators; displacements accumulate into
// per-worker buffers and apply in a fixed reduction order at the epoch
// boundary, so a given (seed, workers) pair is exactly reproducible.
// Cancellation is checked between epochs only.
func Embed(ctx context.Context, conn *sparse.CSR, nDims int, seed int64, optFns ...func(o *Options)) (*Layout, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	n := conn.N()
	if n < 2 {
		return nil, &ErrTooSmall{N: n}
	}
	if nDims != 2 && nDims != 3 {
		return nil, &ErrInvalidDims{NDims: nDims}
	}

	epochs := opts.Epochs
	if epochs <= 0 {
		if n < 10000 {
			epochs = 500
		} else {
			epochs = 200
		}
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	pos := initialPositions(conn, nDims, seed, opts.Init)
	edges := collectEdges(conn, epochs)

	if len(edges.head) == 0 {
		// Degenerate all-isolated graph: arbitrary but deterministic.
		return &Layout{Coords: pos, NDims: nDims, Epochs: epochs}, nil
	}

	if workers > len(edges.head) {
		workers = len(edges.head)
	}

	deltas := make([][]float32, workers)
	for w := range deltas {
		deltas[w] = make([]float32, n*nDims)
	}
	rngs := make([]*rand.Rand, workers)
	for w := range rngs {
		// Disjoint, seed-derived substream per worker.
		rngs[w] = rand.New(rand.NewSource(seed + int64(w+1)*0x4F1BBCDCBFA53E0A))
	}

	shard := (len(edges.head) + workers - 1) / workers

	for epoch := 0; epoch < epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		alpha := opts.LearningRate * (1 - float64(epoch)/float64(epochs))

		g, _ := errgroup.WithContext(ctx)
		for w := 0; w < workers; w++ {
			w := w
			lo, hi := w*shard, min((w+1)*shard, len(edges.head))
			g.Go(func() error {
				sampleShard(edges, lo, hi, epoch, pos, deltas[w], rngs[w], nDims, alpha, opts)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		// Deterministic reduction: worker order is fixed.
		data := pos.Data()
		for w := 0; w < workers; w++ {
			d := deltas[w]
			for i, v := range d {
				if v != 0 {
					data[i] += clip(v, gradClip)
					d[i] = 0
				}
			}
		}
	}

	return &Layout{Coords: pos, NDims: nDims, Epochs: epochs}, nil
}

// edgeSet is the sampling schedule: each edge is revisited every
// epochsPerSample epochs, so heavy edges exert proportionally more pull.
type edgeSet struct {
	head, tail      []int32
	epochsPerSample []float64
	nextEpoch       []float64
	nextNegEpoch    []float64
}

func collectEdges(conn *sparse.CSR, epochs int) *edgeSet {
	maxW := conn.Max()
	es := &edgeSet{}
	// The graph is symmetric; keep each undirected edge once.
	for i := 0; i < conn.N(); i++ {
		cols, vals := conn.Row(i)
		for k, c := range cols {
			if int(c) <= i {
				continue
			}
			w := vals[k]
			if w <= 0 {
				continue
			}
			// Edges sampled fewer than once per run are dropped, matching
			// the fuzzy-graph convention.
			if float64(w) < float64(maxW)/float64(epochs) {
				continue
			}
			es.head = append(es.head, int32(i))
			es.tail = append(es.tail, c)
			eps := float64(maxW / w)
			es.epochsPerSample = append(es.epochsPerSample, eps)
			es.nextEpoch = append(es.nextEpoch, eps)
			es.nextNegEpoch = append(es.nextNegEpoch, eps)
		}
	}
	return es
}

func initialPositions(conn *sparse.CSR, nDims int, seed int64, init *matrix.Dense) *matrix.Dense {
	n := conn.N()
	pos := matrix.Zeros(n, nDims)

	if init != nil && init.Rows() == n && init.Cols() >= nDims {
		// Rescale the projection into the working range.
		var maxAbs float32
		for i := 0; i < n; i++ {
			row := init.Row(i)
			for j := 0; j < nDims; j++ {
				if a := abs32(row[j]); a > maxAbs {
					maxAbs = a
				}
			}
		}
		scale := float32(1)
		if maxAbs > 0 {
			scale = initRange / maxAbs
		}
		for i := 0; i < n; i++ {
			src, dst := init.Row(i), pos.Row(i)
			for j := 0; j < nDims; j++ {
				dst[j] = src[j] * scale
			}
		}
		return pos
	}

	rng := rand.New(rand.NewSource(seed))
	data := pos.Data()
	for i := range data {
		data[i] = float32(rng.Float64()*2*initRange - initRange)
	}
	return pos
}

// sampleShard processes edges [lo, hi) for one epoch, writing displacements
// into delta only. Both endpoints receive attraction; repulsion moves the
// head alone.
func sampleShard(es *edgeSet, lo, hi, epoch int, pos *matrix.Dense, delta []float32, rng *rand.Rand, nDims int, alpha float64, opts Options) {
	n := pos.Rows()
	e := float64(epoch)

	for idx := lo; idx < hi; idx++ {
		if es.nextEpoch[idx] > e {
			continue
		}

		h, t := int(es.head[idx]), int(es.tail[idx])
		ph, pt := pos.Row(h), pos.Row(t)

		d2 := dist2(ph, pt, nDims)
		coeff := attractionCoeff(d2, opts.A, opts.B)
		for j := 0; j < nDims; j++ {
			g := clip(float32(coeff*float64(ph[j]-pt[j])), gradClip) * float32(alpha)
			delta[h*nDims+j] += g
			delta[t*nDims+j] -= g
		}

		es.nextEpoch[idx] += es.epochsPerSample[idx]

		// Negative samples, budgeted against the same schedule.
		negGap := es.epochsPerSample[idx] / float64(opts.NegativeSamples)
		for ; es.nextNegEpoch[idx] <= e; es.nextNegEpoch[idx] += negGap {
			o := rng.Intn(n)
			if o == h || o == t {
				continue
			}
			po := pos.Row(o)
			d2 := dist2(ph, po, nDims)
			coeff := repulsionCoeff(d2, opts.A, opts.B)
			for j := 0; j < nDims; j++ {
				g := clip(float32(coeff*float64(ph[j]-po[j])), gradClip) * float32(alpha)
				delta[h*nDims+j] += g
			}
		}
	}
}

// attractionCoeff is the gradient of the log low-dimensional affinity
// 1/(1 + a*d^(2b)) with respect to squared distance, negative (pulling).
func attractionCoeff(d2, a, b float64) float64 {
	if d2 <= 0 {
		return 0
	}
	return -2 * a * b * math.Pow(d2, b-1) / (1 + a*math.Pow(d2, b))
}

// repulsionCoeff pushes unconnected points apart, bounded near zero distance.
func repulsionCoeff(d2, a, b float64) float64 {
	return 2 * b / ((repulsionEps + d2) * (1 + a*math.Pow(d2, b)))
}

func dist2(a, b []float32, nDims int) float64 {
	var s float64
	for j := 0; j < nDims; j++ {
		d := float64(a[j] - b[j])
		s += d * d
	}
	return s
}

func clip(v, c float32) float32 {
	if v > c {
		return c
	}
	if v < -c {
		return -c
	}
	return v
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
