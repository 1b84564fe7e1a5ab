package hnsw

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomVectors(n, dim int, seed int64) [][]float32 {
	rng := rand.New(rand.NewSource(seed))
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dim)
		for j := range v {
			v[j] = float32(rng.NormFloat64())
		}
		out[i] = v
	}
	return out
}

func TestInsertAssignsDenseIDs(t *testing.T) {
	idx := New(4)
	for i, v := range randomVectors(10, 4, 1) {
		id, err := idx.Insert(v)
		require.NoError(t, err)
		assert.Equal(t, uint32(i), id)
	}
	assert.Equal(t, 10, idx.Len())
}

func TestInsertDimensionMismatch(t *testing.T) {
	idx := New(4)
	_, err := idx.Insert([]float32{1, 2})

	var dm *ErrDimensionMismatch
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 4, dm.Expected)
	assert.Equal(t, 2, dm.Actual)
}

func TestSearchFindsExactMatch(t *testing.T) {
	vecs := randomVectors(200, 8, 2)
	idx := New(8)
	for _, v := range vecs {
		_, err := idx.Insert(v)
		require.NoError(t, err)
	}

	// Querying an indexed vector must return it first with distance 0.
	for _, id := range []uint32{0, 57, 199} {
		res, err := idx.Search(vecs[id], 1, 100)
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, id, res[0].Node)
		assert.InDelta(t, 0, res[0].Distance, 1e-6)
	}
}

func TestSearchRecall(t *testing.T) {
	vecs := randomVectors(500, 6, 3)
	idx := New(6, func(o *Options) { o.M = 16; o.EF = 200 })
	for _, v := range vecs {
		_, err := idx.Insert(v)
		require.NoError(t, err)
	}

	// Compare against brute force on a handful of queries.
	hits, total := 0, 0
	for q := 0; q < 20; q++ {
		query := vecs[q*17]
		res, err := idx.Search(query, 10, 200)
		require.NoError(t, err)

		exact := bruteKNN(vecs, query, 10)
		got := make(map[uint32]bool, len(res))
		for _, r := range res {
			got[r.Node] = true
		}
		for _, id := range exact {
			total++
			if got[id] {
				hits++
			}
		}
	}
	recall := float64(hits) / float64(total)
	assert.Greater(t, recall, 0.9, "recall %f too low", recall)
}

func TestDeterministicBuild(t *testing.T) {
	vecs := randomVectors(300, 5, 4)

	run := func() []uint32 {
		idx := New(5, func(o *Options) { o.Seed = 42 })
		for _, v := range vecs {
			_, err := idx.Insert(v)
			require.NoError(t, err)
		}
		res, err := idx.Search(vecs[123], 15, 150)
		require.NoError(t, err)
		out := make([]uint32, len(res))
		for i, r := range res {
			out[i] = r.Node
		}
		return out
	}

	assert.Equal(t, run(), run())
}

func TestSearchResultsAscending(t *testing.T) {
	vecs := randomVectors(100, 4, 5)
	idx := New(4)
	for _, v := range vecs {
		_, err := idx.Insert(v)
		require.NoError(t, err)
	}

	res, err := idx.Search(vecs[0], 20, 100)
	require.NoError(t, err)
	for i := 1; i < len(res); i++ {
		assert.GreaterOrEqual(t, res[i].Distance, res[i-1].Distance)
	}
}

func bruteKNN(vecs [][]float32, q []float32, k int) []uint32 {
	type cand struct {
		id uint32
		d  float32
	}
	cands := make([]cand, len(vecs))
	for i, v := range vecs {
		var d float32
		for j := range v {
			d += (v[j] - q[j]) * (v[j] - q[j])
		}
		cands[i] = cand{id: uint32(i), d: d}
	}
	for i := 0; i < k; i++ {
		best := i
		for j := i + 1; j < len(cands); j++ {
			if cands[j].d < cands[best].d || (cands[j].d == cands[best].d && cands[j].id < cands[best].id) {
				best = j
			}
		}
		cands[i], cands[best] = cands[best], cands[i]
	}
	out := make([]uint32, k)
	for i := 0; i < k; i++ {
		out[i] = cands[i].id
	}
	return out
}
