package neighbors

import "math"

// Bandwidth calibration constants, following the fuzzy-simplicial-set
// convention. These are tunables, not canon: the graph-level properties
// (symmetry, determinism, degree) hold for any positive settings.
const (
	// smoothIters bounds the bisection for the local bandwidth.
	smoothIters = 64
	// smoothTolerance stops the bisection once the affinity mass is close
	// enough to the target.
	smoothTolerance = 1e-5
	// minBandwidth floors sigma relative to the mean neighbor distance, so
	// near-duplicate points do not collapse the local scale to zero.
	minBandwidth = 1e-3
)

// smoothKNN derives each node's locally-adaptive bandwidth from its sorted
// neighbor distances: rho is the distance to the nearest distinct neighbor,
// and sigma is solved by bisection so the total outgoing affinity mass equals
// bandwidth * log2(k). The local scale compensates for variable density
// across the space; a global bandwidth cannot.
//
// Returns (rho, sigma) per node.
func smoothKNN(dists [][]float32, k int, bandwidth float64) (rhos, sigmas []float64) {
	n := len(dists)
	rhos = make([]float64, n)
	sigmas = make([]float64, n)

	// Each neighbor contributes at most affinity 1, so the mass target must
	// stay below k for the bisection to stay bounded.
	target := bandwidth * math.Log2(float64(k))
	if maxMass := 0.9 * float64(k); target > maxMass {
		target = maxMass
	}

	for i, ds := range dists {
		if len(ds) == 0 {
			sigmas[i] = 1
			continue
		}

		var mean float64
		for _, d := range ds {
			mean += float64(d)
		}
		mean /= float64(len(ds))

		// rho: nearest nonzero distance (zero for all-duplicate neighborhoods).
		for _, d := range ds {
			if d > 0 {
				rhos[i] = float64(d)
				break
			}
		}

		sigmas[i] = solveSigma(ds, rhos[i], target)
		if floor := minBandwidth * mean; sigmas[i] < floor {
			sigmas[i] = floor
		}
		if sigmas[i] <= 0 {
			sigmas[i] = 1
		}
	}

	return rhos, sigmas
}

// solveSigma bisects for the sigma satisfying
// sum_j exp(-max(0, d_j - rho) / sigma) = target.
func solveSigma(ds []float32, rho, target float64) float64 {
	lo, hi, mid := 0.0, math.Inf(1), 1.0

	for iter := 0; iter < smoothIters; iter++ {
		var mass float64
		for _, d := range ds {
			if gap := float64(d) - rho; gap > 0 {
				mass += math.Exp(-gap / mid)
			} else {
				mass++
			}
		}

		if math.Abs(mass-target) < smoothTolerance {
			break
		}

		if mass > target {
			hi = mid
			mid = (lo + hi) / 2
		} else {
			lo = mid
			if math.IsInf(hi, 1) {
				mid *= 2
			} else {
				mid = (lo + hi) / 2
			}
		}
	}

	return mid
}

// membership converts a distance to an affinity under the node's local scale.
func membership(d float32, rho, sigma float64) float32 {
	gap := float64(d) - rho
	if gap <= 0 {
		return 1
	}
	return float32(math.Exp(-gap / sigma))
}
