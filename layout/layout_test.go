package layout

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kusimpkins/cellgraph/sparse"
)

// twoCliques builds two disjoint complete graphs of size m with unit weights.
func twoCliques(t *testing.T, m int) *sparse.CSR {
	t.Helper()
	coo := sparse.NewCoo(2 * m)
	for off := 0; off < 2*m; off += m {
		for i := 0; i < m; i++ {
			for j := 0; j < m; j++ {
				if i != j {
					coo.Append(int32(off+i), int32(off+j), 1)
				}
			}
		}
	}
	g := coo.ToCSR()
	require.NoError(t, g.Validate())
	return g
}

func centroid(l *Layout, lo, hi int) []float64 {
	c := make([]float64, l.NDims)
	for i := lo; i < hi; i++ {
		row := l.Coords.Row(i)
		for j := range c {
			c[j] += float64(row[j])
		}
	}
	for j := range c {
		c[j] /= float64(hi - lo)
	}
	return c
}

func spread(l *Layout, lo, hi int, c []float64) float64 {
	var s float64
	for i := lo; i < hi; i++ {
		row := l.Coords.Row(i)
		var d2 float64
		for j := range c {
			d := float64(row[j]) - c[j]
			d2 += d * d
		}
		s += math.Sqrt(d2)
	}
	return s / float64(hi-lo)
}

func TestEmbedSeparatesComponents(t *testing.T) {
	m := 15
	g := twoCliques(t, m)

	l, err := Embed(context.Background(), g, 2, 3)
	require.NoError(t, err)
	require.Equal(t, 2*m, l.Coords.Rows())
	require.Equal(t, 2, l.Coords.Cols())

	c1 := centroid(l, 0, m)
	c2 := centroid(l, m, 2*m)
	var gap float64
	for j := range c1 {
		gap += (c1[j] - c2[j]) * (c1[j] - c2[j])
	}
	gap = math.Sqrt(gap)

	s1 := spread(l, 0, m, c1)
	s2 := spread(l, m, 2*m, c2)

	assert.Greater(t, gap, s1, "components not separated: gap %f spread %f", gap, s1)
	assert.Greater(t, gap, s2, "components not separated: gap %f spread %f", gap, s2)
}

func TestEmbedDeterministic(t *testing.T) {
	g := twoCliques(t, 10)

	run := func() []float32 {
		l, err := Embed(context.Background(), g, 2, 9, func(o *Options) {
			o.Workers = 2
			o.Epochs = 50
		})
		require.NoError(t, err)
		out := make([]float32, len(l.Coords.Data()))
		copy(out, l.Coords.Data())
		return out
	}

	assert.Equal(t, run(), run())
}

func TestEmbedValidation(t *testing.T) {
	one := sparse.NewCoo(1).ToCSR()
	_, err := Embed(context.Background(), one, 2, 0)
	var ts *ErrTooSmall
	require.ErrorAs(t, err, &ts)
	assert.Equal(t, 1, ts.N)

	g := twoCliques(t, 3)
	_, err = Embed(context.Background(), g, 4, 0)
	var id *ErrInvalidDims
	assert.ErrorAs(t, err, &id)

	_, err = Embed(context.Background(), g, 3, 0, func(o *Options) { o.Epochs = 10 })
	assert.NoError(t, err)
}

func TestEmbedDegenerateGraph(t *testing.T) {
	// All-isolated graph: layout is the (deterministic) initialization.
	g := sparse.NewCoo(4).ToCSR()

	a, err := Embed(context.Background(), g, 2, 5)
	require.NoError(t, err)
	b, err := Embed(context.Background(), g, 2, 5)
	require.NoError(t, err)
	assert.Equal(t, a.Coords.Data(), b.Coords.Data())
}

func TestEmbedCancellation(t *testing.T) {
	g := twoCliques(t, 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Embed(ctx, g, 2, 0)
	assert.ErrorIs(t, err, context.Canceled)
}
