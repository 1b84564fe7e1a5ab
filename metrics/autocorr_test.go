package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kusimpkins/cellgraph/matrix"
	"github.com/kusimpkins/cellgraph/sparse"
)

// chainGraph links node i to i+1 with unit weight in both directions.
func chainGraph(t *testing.T, n int) *sparse.CSR {
	t.Helper()
	coo := sparse.NewCoo(n)
	for i := 0; i < n-1; i++ {
		coo.Append(int32(i), int32(i+1), 1)
		coo.Append(int32(i+1), int32(i), 1)
	}
	g := coo.ToCSR()
	require.NoError(t, g.Validate())
	return g
}

func TestMoransIPositiveAutocorrelation(t *testing.T) {
	n := 20
	g := chainGraph(t, n)

	// Smooth gradient along the chain: neighbors carry similar values.
	vals := make([]float32, n)
	for i := range vals {
		vals[i] = float32(i)
	}

	v, err := MoransI(g, vals)
	require.NoError(t, err)
	assert.Greater(t, v, 0.8)

	c, err := GearysC(g, vals)
	require.NoError(t, err)
	assert.Less(t, c, 0.5)
}

func TestMoransINegativeAutocorrelation(t *testing.T) {
	n := 20
	g := chainGraph(t, n)

	// Alternating values: neighbors maximally dissimilar.
	vals := make([]float32, n)
	for i := range vals {
		if i%2 == 0 {
			vals[i] = 1
		} else {
			vals[i] = -1
		}
	}

	v, err := MoransI(g, vals)
	require.NoError(t, err)
	assert.Less(t, v, -0.8)

	c, err := GearysC(g, vals)
	require.NoError(t, err)
	assert.Greater(t, c, 1.5)
}

func TestConstantFeature(t *testing.T) {
	g := chainGraph(t, 10)
	vals := make([]float32, 10)
	for i := range vals {
		vals[i] = 3
	}

	v, err := MoransI(g, vals)
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestValidation(t *testing.T) {
	g := chainGraph(t, 10)

	_, err := MoransI(g, make([]float32, 5))
	var lm *ErrLengthMismatch
	require.ErrorAs(t, err, &lm)
	assert.Equal(t, 5, lm.Values)

	empty := sparse.NewCoo(3).ToCSR()
	_, err = MoransI(empty, make([]float32, 3))
	assert.ErrorIs(t, err, ErrNoEdges)
}

func TestMoransIBatch(t *testing.T) {
	n := 16
	g := chainGraph(t, n)

	// Column 0: gradient (high I). Column 1: alternating (negative I).
	data := make([]float32, n*2)
	for i := 0; i < n; i++ {
		data[i*2] = float32(i)
		if i%2 == 0 {
			data[i*2+1] = 1
		} else {
			data[i*2+1] = -1
		}
	}
	m, err := matrix.NewDense(n, 2, data)
	require.NoError(t, err)

	out, err := MoransIBatch(context.Background(), g, m, 2)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Greater(t, out[0], 0.8)
	assert.Less(t, out[1], -0.8)

	// Batch agrees with the scalar path.
	col := make([]float32, n)
	for i := range col {
		col[i] = m.At(i, 0)
	}
	single, err := MoransI(g, col)
	require.NoError(t, err)
	assert.InDelta(t, single, out[0], 1e-12)
}
