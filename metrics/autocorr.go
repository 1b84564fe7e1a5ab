// Package metrics computes graph autocorrelation statistics of feature
// values over the neighbor-graph connectivities: Moran's I and Geary's C.
// Both score how strongly a feature's values cluster on the graph, the usual
// way of ranking features against a computed neighborhood structure.
package metrics

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/kusimpkins/cellgraph/matrix"
	"github.com/kusimpkins/cellgraph/sparse"
)

// ErrLengthMismatch indicates a value vector whose length differs from the
// graph size.
type ErrLengthMismatch struct {
	Values int
	Nodes  int
}

func (e *ErrLengthMismatch) Error() string {
	return fmt.Sprintf("got %d values for %d graph nodes", e.Values, e.Nodes)
}

// ErrNoEdges indicates a graph with zero total edge weight.
var ErrNoEdges = fmt.Errorf("metrics: graph has no edge weight")

// MoransI computes Moran's I of vals over the weighted graph:
//
//	I = (n / S0) * sum_ij w_ij z_i z_j / sum_i z_i^2
//
// with z the centered values and S0 the total edge weight. Values near +1
// mean neighboring observations carry similar values; near 0, no
// autocorrelation; negative, dissimilarity between neighbors.
func MoransI(g *sparse.CSR, vals []float32) (float64, error) {
	n := g.N()
	if len(vals) != n {
		return 0, &ErrLengthMismatch{Values: len(vals), Nodes: n}
	}
	s0 := g.Sum()
	if s0 == 0 {
		return 0, ErrNoEdges
	}

	z, ss := center(vals)
	if ss == 0 {
		return 0, nil // constant feature carries no structure
	}

	var cross float64
	for i := 0; i < n; i++ {
		cols, ws := g.Row(i)
		zi := z[i]
		for k, c := range cols {
			cross += float64(ws[k]) * zi * z[c]
		}
	}

	return float64(n) / s0 * cross / ss, nil
}

// GearysC computes Geary's C of vals over the weighted graph:
//
//	C = ((n-1) / (2 S0)) * sum_ij w_ij (x_i - x_j)^2 / sum_i z_i^2
//
// Values below 1 indicate positive autocorrelation.
func GearysC(g *sparse.CSR, vals []float32) (float64, error) {
	n := g.N()
	if len(vals) != n {
		return 0, &ErrLengthMismatch{Values: len(vals), Nodes: n}
	}
	s0 := g.Sum()
	if s0 == 0 {
		return 0, ErrNoEdges
	}

	_, ss := center(vals)
	if ss == 0 {
		return 0, nil
	}

	var num float64
	for i := 0; i < n; i++ {
		cols, ws := g.Row(i)
		xi := float64(vals[i])
		for k, c := range cols {
			d := xi - float64(vals[c])
			num += float64(ws[k]) * d * d
		}
	}

	return float64(n-1) / (2 * s0) * num / ss, nil
}

// MoransIBatch computes Moran's I for every column of an observations x
// features matrix, parallel over feature batches.
func MoransIBatch(ctx context.Context, g *sparse.CSR, m *matrix.Dense, workers int) ([]float64, error) {
	if m.Rows() != g.N() {
		return nil, &ErrLengthMismatch{Values: m.Rows(), Nodes: g.N()}
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	out := make([]float64, m.Cols())

	grp, ctx := errgroup.WithContext(ctx)
	grp.SetLimit(workers)

	chunk := (m.Cols() + workers - 1) / workers
	for lo := 0; lo < m.Cols(); lo += chunk {
		lo, hi := lo, min(lo+chunk, m.Cols())
		grp.Go(func() error {
			col := make([]float32, m.Rows())
			for j := lo; j < hi; j++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				for i := range col {
					col[i] = m.At(i, j)
				}
				v, err := MoransI(g, col)
				if err != nil {
					return err
				}
				out[j] = v
			}
			return nil
		})
	}

	if err := grp.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// center returns the mean-centered values and their sum of squares.
func center(vals []float32) ([]float64, float64) {
	var mean float64
	for _, v := range vals {
		mean += float64(v)
	}
	mean /= float64(len(vals))

	z := make([]float64, len(vals))
	var ss float64
	for i, v := range vals {
		z[i] = float64(v) - mean
		ss += z[i] * z[i]
	}
	return z, ss
}
