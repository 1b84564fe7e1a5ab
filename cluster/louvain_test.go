package cluster

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kusimpkins/cellgraph/neighbors"
	"github.com/kusimpkins/cellgraph/sparse"
	"github.com/kusimpkins/cellgraph/testutil"
)

// twoCliques builds two disjoint complete graphs of size m each.
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

func TestRunTwoCliques(t *testing.T) {
	g := twoCliques(t, 10)

	a, err := Run(context.Background(), g, 1.0, 0)
	require.NoError(t, err)
	assert.True(t, a.Converged)
	assert.Equal(t, 2, a.Count)

	// Matching partition within each clique.
	for i := 1; i < 10; i++ {
		assert.Equal(t, a.Labels[0], a.Labels[i])
		assert.Equal(t, a.Labels[10], a.Labels[10+i])
	}
	assert.NotEqual(t, a.Labels[0], a.Labels[10])
	assert.InDelta(t, 0.5, a.Modularity, 0.05)
}

func TestRunLabelsContiguous(t *testing.T) {
	g := twoCliques(t, 6)

	a, err := Run(context.Background(), g, 1.0, 3)
	require.NoError(t, err)

	seen := make(map[int]bool)
	for _, l := range a.Labels {
		require.GreaterOrEqual(t, l, 0)
		require.Less(t, l, a.Count)
		seen[l] = true
	}
	assert.Len(t, seen, a.Count)
	// First appearance order: observation 0 always carries label 0.
	assert.Equal(t, 0, a.Labels[0])
}

func TestRunDeterministic(t *testing.T) {
	m, _ := testutil.Blobs(90, 3, 6, 10, 1)
	g, err := neighbors.Build(context.Background(), m, 10)
	require.NoError(t, err)

	a, err := Run(context.Background(), g.Connectivities, 1.0, 42)
	require.NoError(t, err)
	b, err := Run(context.Background(), g.Connectivities, 1.0, 42)
	require.NoError(t, err)

	assert.Equal(t, a.Labels, b.Labels)
	assert.Equal(t, a.Count, b.Count)
	assert.Equal(t, a.Modularity, b.Modularity)
}

func TestRunResolutionMonotone(t *testing.T) {
	m, _ := testutil.Blobs(120, 2, 8, 10, 2)
	g, err := neighbors.Build(context.Background(), m, 12)
	require.NoError(t, err)

	prev := 0
	for _, res := range []float64{0.1, 0.5, 1.0, 2.0} {
		a, err := Run(context.Background(), g.Connectivities, res, 7)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, a.Count, prev, "cluster count shrank at resolution %g", res)
		prev = a.Count
	}
}

func TestRunSingletons(t *testing.T) {
	// Edgeless graph: every node stays in its own community.
	coo := sparse.NewCoo(5)
	g := coo.ToCSR()

	a, err := Run(context.Background(), g, 1.0, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, a.Count)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, a.Labels)
	assert.Zero(t, a.Modularity)
}

func TestRunValidation(t *testing.T) {
	empty := sparse.NewCoo(0).ToCSR()
	_, err := Run(context.Background(), empty, 1.0, 0)
	assert.ErrorIs(t, err, ErrEmptyGraph)

	g := twoCliques(t, 4)
	_, err = Run(context.Background(), g, 0, 0)
	var ir *ErrInvalidResolution
	assert.ErrorAs(t, err, &ir)
	_, err = Run(context.Background(), g, -1, 0)
	assert.Error(t, err)
}

func TestRunIterationBound(t *testing.T) {
	m, _ := testutil.Blobs(80, 2, 5, 8, 3)
	g, err := neighbors.Build(context.Background(), m, 8)
	require.NoError(t, err)

	a, err := Run(context.Background(), g.Connectivities, 1.0, 0, func(o *Options) {
		o.MaxLevels = 1
		o.MaxSweeps = 1
	})
	require.NoError(t, err)
	// Result is returned even when the bound cuts optimization short.
	assert.Len(t, a.Labels, 80)
	if !a.Converged {
		assert.Error(t, a.Warning)
	}
}

func TestRunCancellation(t *testing.T) {
	g := twoCliques(t, 20)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, g, 1.0, 0)
	assert.ErrorIs(t, err, context.Canceled)
}
