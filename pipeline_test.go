package cellgraph

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kusimpkins/cellgraph/matrix"
	"github.com/kusimpkins/cellgraph/sparse"
	"github.com/kusimpkins/cellgraph/store"
	"github.com/kusimpkins/cellgraph/testutil"
)

func TestPipeline(t *testing.T) {
	t.Run("TwoBlobs", func(t *testing.T) {
		m, truth := testutil.Blobs(100, 2, 10, 25.0, 1)
		s := store.New(m)

		res, err := New(s).
			Components(5).
			K(15).
			Resolution(1.0).
			Seed(42).
			Run(context.Background())
		require.NoError(t, err)

		require.Equal(t, 100, res.Embedding.Coords.Rows())
		require.Equal(t, 5, res.Embedding.Coords.Cols())

		require.NotNil(t, res.Graph)
		assert.True(t, sparse.IsSymmetric(res.Graph.Connectivities))
		nnz := res.Graph.Connectivities.NNZ()
		require.Positive(t, nnz)
		_, _, vals := res.Graph.Connectivities.Raw()
		for _, w := range vals {
			assert.Greater(t, w, float32(0))
			assert.LessOrEqual(t, w, float32(1))
		}

		require.Equal(t, 2, res.Clusters.Count)
		require.Len(t, res.Clusters.Labels, 100)

		// Well-separated blobs must come out pure: one label per blob.
		blobLabel := map[int]int{}
		for i, b := range truth {
			got := res.Clusters.Labels[i]
			if want, seen := blobLabel[b]; seen {
				require.Equal(t, want, got, "observation %d crossed blobs", i)
			} else {
				blobLabel[b] = got
			}
		}
		require.NotEqual(t, blobLabel[0], blobLabel[1])

		require.Equal(t, 100, res.Layout.Coords.Rows())
		require.Equal(t, 2, res.Layout.Coords.Cols())
		for _, v := range res.Layout.Coords.Data() {
			require.False(t, math.IsNaN(float64(v)))
			require.False(t, math.IsInf(float64(v), 0))
		}

		// Every derived layer lands on the store.
		for _, name := range []string{LayerReduced, LayerGraph, LayerClusters, LayerLayout} {
			_, ok := s.Layer(name)
			assert.True(t, ok, "missing layer %s", name)
		}
	})

	t.Run("Determinism", func(t *testing.T) {
		run := func() *Result {
			m, _ := testutil.Blobs(80, 3, 8, 15.0, 7)
			res, err := New(store.New(m)).
				Components(4).
				K(10).
				Seed(99).
				Options(WithWorkers(1)).
				Run(context.Background())
			require.NoError(t, err)
			return res
		}

		a, b := run(), run()
		assert.Equal(t, a.Clusters.Labels, b.Clusters.Labels)
		assert.Equal(t, a.Clusters.Modularity, b.Clusters.Modularity)
		assert.Equal(t, a.Embedding.Coords.Data(), b.Embedding.Coords.Data())
		assert.Equal(t, a.Layout.Coords.Data(), b.Layout.Coords.Data())
	})

	t.Run("SeedChangesLayout", func(t *testing.T) {
		m, _ := testutil.Blobs(60, 2, 6, 15.0, 3)

		run := func(seed int64) *Result {
			res, err := New(store.New(m.Clone())).
				Components(4).
				K(10).
				Seed(seed).
				Options(WithWorkers(1)).
				Run(context.Background())
			require.NoError(t, err)
			return res
		}

		a, b := run(1), run(2)
		assert.NotEqual(t, a.Layout.Coords.Data(), b.Layout.Coords.Data())
	})

	t.Run("ThreeDimLayout", func(t *testing.T) {
		m, _ := testutil.Blobs(50, 2, 6, 15.0, 5)
		res, err := New(store.New(m)).
			Components(4).
			K(8).
			Dims(3).
			Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 3, res.Layout.Coords.Cols())
	})
}

func TestPipelineCaching(t *testing.T) {
	m, _ := testutil.Blobs(60, 2, 8, 15.0, 11)
	s := store.New(m)

	t.Run("SecondRunFullyCached", func(t *testing.T) {
		mc := &BasicMetricsCollector{}
		p, err := New(s).
			Components(4).
			K(10).
			Seed(1).
			Options(WithMetricsCollector(mc), WithWorkers(1)).
			Build()
		require.NoError(t, err)

		_, err = p.Run(context.Background())
		require.NoError(t, err)
		_, err = p.Run(context.Background())
		require.NoError(t, err)

		stats := mc.GetStats()
		for _, stage := range []Stage{StageReduce, StageNeighbors, StageCluster, StageLayout} {
			assert.Equal(t, int64(1), stats[stage].Count, "stage %s recomputed", stage)
			assert.Zero(t, stats[stage].Errors)
		}
	})

	t.Run("DownstreamOnlyRecompute", func(t *testing.T) {
		// Same store, new resolution: reduce, neighbors, and layout are
		// untouched by the change and must come from cache.
		mc := &BasicMetricsCollector{}
		_, err := New(s).
			Components(4).
			K(10).
			Resolution(2.0).
			Seed(1).
			Options(WithMetricsCollector(mc), WithWorkers(1)).
			Run(context.Background())
		require.NoError(t, err)

		stats := mc.GetStats()
		assert.Zero(t, stats[StageReduce].Count)
		assert.Zero(t, stats[StageNeighbors].Count)
		assert.Equal(t, int64(1), stats[StageCluster].Count)
		assert.Zero(t, stats[StageLayout].Count)
	})

	t.Run("UpstreamChangeInvalidatesChain", func(t *testing.T) {
		mc := &BasicMetricsCollector{}
		_, err := New(s).
			Components(5).
			K(10).
			Seed(1).
			Options(WithMetricsCollector(mc), WithWorkers(1)).
			Run(context.Background())
		require.NoError(t, err)

		stats := mc.GetStats()
		for _, stage := range []Stage{StageReduce, StageNeighbors, StageCluster, StageLayout} {
			assert.Equal(t, int64(1), stats[stage].Count, "stage %s served stale cache", stage)
		}
	})

	t.Run("WithoutCache", func(t *testing.T) {
		mc := &BasicMetricsCollector{}
		p, err := New(s).
			Components(4).
			K(10).
			Seed(1).
			Options(WithMetricsCollector(mc), WithWorkers(1), WithoutCache()).
			Build()
		require.NoError(t, err)

		_, err = p.Run(context.Background())
		require.NoError(t, err)

		stats := mc.GetStats()
		for _, stage := range []Stage{StageReduce, StageNeighbors, StageCluster, StageLayout} {
			assert.Equal(t, int64(1), stats[stage].Count)
		}
	})
}

func TestPipelineErrors(t *testing.T) {
	t.Run("InfeasibleComponents", func(t *testing.T) {
		m, _ := testutil.Blobs(20, 2, 10, 10.0, 1)
		_, err := New(store.New(m)).
			Components(50).
			K(5).
			Run(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrDimensionality)

		var stageErr *StageError
		require.ErrorAs(t, err, &stageErr)
		assert.Equal(t, StageReduce, stageErr.Stage)
	})

	t.Run("NonFiniteInput", func(t *testing.T) {
		m, _ := testutil.Blobs(20, 2, 5, 10.0, 1)
		m.Data()[7] = float32(math.NaN())
		_, err := New(store.New(m)).
			Components(3).
			K(5).
			Run(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("KTooLarge", func(t *testing.T) {
		m, _ := testutil.Blobs(10, 2, 5, 10.0, 1)
		_, err := New(store.New(m)).
			Components(3).
			K(10).
			Run(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidInput)

		var stageErr *StageError
		require.ErrorAs(t, err, &stageErr)
		assert.Equal(t, StageNeighbors, stageErr.Stage)
	})

	t.Run("ConstructionValidation", func(t *testing.T) {
		m, _ := testutil.Blobs(20, 2, 5, 10.0, 1)
		s := store.New(m)

		tests := []struct {
			name  string
			build func() (*Pipeline, error)
		}{
			{"NilStore", func() (*Pipeline, error) { return NewPipeline(nil, DefaultParams) }},
			{"ZeroComponents", func() (*Pipeline, error) { return New(s).Components(0).Build() }},
			{"ZeroK", func() (*Pipeline, error) { return New(s).K(0).Build() }},
			{"ZeroResolution", func() (*Pipeline, error) { return New(s).Resolution(0).Build() }},
			{"BadDims", func() (*Pipeline, error) { return New(s).Dims(4).Build() }},
			{"NegativeEpochs", func() (*Pipeline, error) { return New(s).Epochs(-1).Build() }},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := tt.build()
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidInput)
			})
		}
	})
}

func TestPipelineWarnings(t *testing.T) {
	// Two tight blobs pushed very far apart split the graph into multiple
	// connected components, which is a warning outside strict mode.
	m, _ := testutil.Blobs(40, 2, 5, 200.0, 1)
	s := store.New(m)

	res, err := New(s).
		Components(3).
		K(5).
		Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res.Graph.Warning)

	v, ok := s.Metadata("neighbors.warning")
	require.True(t, ok)
	assert.NotEmpty(t, v)
}

func TestPipelineInvalidMatrixShape(t *testing.T) {
	_, err := matrix.NewDense(3, 2, []float32{1, 2, 3})
	require.Error(t, err)

	var shapeErr *matrix.ErrShapeMismatch
	assert.ErrorAs(t, err, &shapeErr)
}
