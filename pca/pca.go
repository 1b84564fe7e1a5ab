// Package pca projects an observation matrix into a lower-dimensional linear
// subspace via truncated singular value decomposition.
package pca

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/kusimpkins/cellgraph/matrix"
)

// ErrRank indicates an infeasible component count for the input shape.
type ErrRank struct {
	Components int
	MaxRank    int
}

func (e *ErrRank) Error() string {
	return fmt.Sprintf("cannot extract %d components: max feasible rank is %d", e.Components, e.MaxRank)
}

// Embedding is the reduced representation of an observation matrix:
// one row per observation, one column per retained component.
type Embedding struct {
	// Coords holds observation scores, n x Components.
	Coords *matrix.Dense
	// Components is the number of retained components.
	Components int
	// VarianceRatio[j] is the fraction of total variance explained by
	// component j.
	VarianceRatio []float64
}

// Options configures Reduce.
type Options struct {
	// Scale divides each centered feature by its sample standard deviation,
	// putting features on a comparable footing. Features with zero variance
	// are left unscaled.
	Scale bool
}

// DefaultOptions are the default options for Reduce.
var DefaultOptions = Options{
	Scale: false,
}

// Reduce computes a truncated SVD of the column-centered matrix and returns
// the top nComponents observation scores by explained variance.
//
// The factorization is exact, so the result does not depend on seed; the
// parameter exists for contract symmetry with the stochastic stages and to
// keep parameter fingerprints uniform. Component signs are arbitrary in an
// SVD, so each component is oriented to make its largest-magnitude feature
// loading positive, which makes repeated runs byte-identical.
func Reduce(m *matrix.Dense, nComponents int, seed int64, optFns ...func(o *Options)) (*Embedding, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	_ = seed

	if err := m.CheckFinite(); err != nil {
		return nil, fmt.Errorf("reduce: %w", err)
	}

	n, d := m.Rows(), m.Cols()
	maxRank := min(n, d) - 1
	if nComponents < 1 || nComponents > maxRank {
		return nil, &ErrRank{Components: nComponents, MaxRank: maxRank}
	}

	centered := centerAndScale(m, opts.Scale)

	var svd mat.SVD
	if ok := svd.Factorize(centered, mat.SVDThin); !ok {
		return nil, fmt.Errorf("reduce: SVD failed to converge")
	}

	var u mat.Dense
	svd.UTo(&u)
	var v mat.Dense
	svd.VTo(&v)
	sv := svd.Values(nil)

	// Total variance of the centered data.
	var total float64
	for _, s := range sv {
		total += s * s
	}

	coords := matrix.Zeros(n, nComponents)
	ratio := make([]float64, nComponents)

	for j := 0; j < nComponents; j++ {
		sign := componentSign(&v, j, d)
		s := sv[j]
		for i := 0; i < n; i++ {
			coords.Row(i)[j] = float32(sign * u.At(i, j) * s)
		}
		if total > 0 {
			ratio[j] = s * s / total
		}
	}

	return &Embedding{Coords: coords, Components: nComponents, VarianceRatio: ratio}, nil
}

// componentSign orients component j so its largest-magnitude loading is
// positive. Ties in magnitude resolve to the lowest feature index.
func componentSign(v *mat.Dense, j, d int) float64 {
	best := 0
	bestAbs := 0.0
	for i := 0; i < d; i++ {
		if a := abs(v.At(i, j)); a > bestAbs {
			bestAbs = a
			best = i
		}
	}
	if v.At(best, j) < 0 {
		return -1
	}
	return 1
}

func centerAndScale(m *matrix.Dense, scale bool) *mat.Dense {
	n, d := m.Rows(), m.Cols()
	out := mat.NewDense(n, d, nil)

	mean := make([]float64, d)
	for i := 0; i < n; i++ {
		row := m.Row(i)
		for j := 0; j < d; j++ {
			mean[j] += float64(row[j])
		}
	}
	for j := range mean {
		mean[j] /= float64(n)
	}

	for i := 0; i < n; i++ {
		row := m.Row(i)
		for j := 0; j < d; j++ {
			out.Set(i, j, float64(row[j])-mean[j])
		}
	}

	if scale {
		for j := 0; j < d; j++ {
			var ss float64
			for i := 0; i < n; i++ {
				v := out.At(i, j)
				ss += v * v
			}
			if ss == 0 {
				continue
			}
			inv := 1 / sqrtSample(ss, n)
			for i := 0; i < n; i++ {
				out.Set(i, j, out.At(i, j)*inv)
			}
		}
	}

	return out
}

func sqrtSample(ss float64, n int) float64 {
	denom := float64(n - 1)
	if denom <= 0 {
		denom = 1
	}
	return math.Sqrt(ss / denom)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
