// Package math32 provides float32 vector kernels shared by the distance-heavy
// packages (neighbors, layout). This is an internal package - external users
// should go through the neighbors package.
package math32

import "math"

// Dot calculates the dot product of two vectors.
// Assumes vectors are the same length (caller's responsibility).
func Dot(a, b []float32) float32 {
	var ret float32
	for i := range a {
		ret += a[i] * b[i]
	}

	return ret
}

// SquaredL2 calculates the squared L2 distance.
func SquaredL2(a, b []float32) float32 {
	var distance float32
	for i := range a {
		distance += (a[i] - b[i]) * (a[i] - b[i])
	}

	return distance
}

// Norm returns the L2 norm of a.
func Norm(a []float32) float32 {
	return Sqrt(Dot(a, a))
}

// ScaleInPlace multiplies all elements of a by scalar.
func ScaleInPlace(a []float32, scalar float32) {
	for i := range a {
		a[i] *= scalar
	}
}

// Sqrt is a float32 convenience wrapper around math.Sqrt.
func Sqrt(v float32) float32 {
	return float32(math.Sqrt(float64(v)))
}
