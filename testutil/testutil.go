// Package testutil provides synthetic datasets for tests.
package testutil

import (
	"math"
	"math/rand"

	"github.com/kusimpkins/cellgraph/matrix"
)

// Blobs generates n observations split evenly over well-separated Gaussian
// blobs in dim dimensions. Blob b is centered at sep along axis b (wrapping
// through the available axes) with unit-variance noise. Returns the matrix
// and the ground-truth blob label per observation.
func Blobs(n, blobs, dim int, sep float64, seed int64) (*matrix.Dense, []int) {
	rng := rand.New(rand.NewSource(seed))
	data := make([]float32, n*dim)
	labels := make([]int, n)

	for i := 0; i < n; i++ {
		b := i * blobs / n
		labels[i] = b
		for j := 0; j < dim; j++ {
			v := rng.NormFloat64()
			if j == b%dim {
				v += sep
			}
			data[i*dim+j] = float32(v)
		}
	}

	m, err := matrix.NewDense(n, dim, data)
	if err != nil {
		panic(err)
	}
	return m, labels
}

// Ring generates n observations on a noisy circle in 2 dimensions, useful for
// exercising locally varying density handling.
func Ring(n int, radius, noise float64, seed int64) *matrix.Dense {
	rng := rand.New(rand.NewSource(seed))
	data := make([]float32, n*2)
	for i := 0; i < n; i++ {
		theta := float64(i) / float64(n) * 2 * math.Pi
		r := radius + rng.NormFloat64()*noise
		data[i*2] = float32(r * math.Cos(theta))
		data[i*2+1] = float32(r * math.Sin(theta))
	}
	m, err := matrix.NewDense(n, 2, data)
	if err != nil {
		panic(err)
	}
	return m
}
