package neighbors

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/kusimpkins/cellgraph/internal/hnsw"
	"github.com/kusimpkins/cellgraph/internal/math32"
	"github.com/kusimpkins/cellgraph/internal/queue"
	"github.com/kusimpkins/cellgraph/matrix"
)

// knnResult holds each observation's k nearest others, ascending by distance
// with ties broken by observation id. Distances are raw squared-L2 values in
// the prepared space; Metric.finalize converts them later.
type knnResult struct {
	indices [][]uint32
	dists   [][]float32
}

// exactKNN computes k nearest neighbors per row by brute force, parallel over
// row batches. The per-row scan order is fixed, so output is deterministic
// for any worker count.
func exactKNN(ctx context.Context, m *matrix.Dense, k, workers int) (*knnResult, error) {
	n := m.Rows()
	res := &knnResult{
		indices: make([][]uint32, n),
		dists:   make([][]float32, n),
	}

	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	chunk := (n + workers - 1) / workers
	for lo := 0; lo < n; lo += chunk {
		lo, hi := lo, min(lo+chunk, n)
		g.Go(func() error {
			pq := queue.NewMax(k + 1)
			for i := lo; i < hi; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				row := m.Row(i)
				pq.Reset()
				for j := 0; j < n; j++ {
					if j == i {
						continue
					}
					d := math32.SquaredL2(row, m.Row(j))
					if pq.Len() < k {
						pq.Push(queue.Item{Node: uint32(j), Distance: d})
						continue
					}
					if far, _ := pq.Top(); d < far.Distance || (d == far.Distance && uint32(j) < far.Node) {
						pq.Pop()
						pq.Push(queue.Item{Node: uint32(j), Distance: d})
					}
				}
				res.indices[i], res.dists[i] = drainAscending(pq)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}

// approxKNN builds a seeded HNSW index over the rows and queries each row for
// its neighbors. Index construction is sequential (insertion order defines
// the graph); queries run parallel over row batches against the then-immutable
// index.
func approxKNN(ctx context.Context, m *matrix.Dense, k, workers int, seed int64, ef int) (*knnResult, error) {
	n := m.Rows()
	idx := hnsw.New(m.Cols(), func(o *hnsw.Options) {
		o.Seed = seed
	})

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := idx.Insert(m.Row(i)); err != nil {
			return nil, err
		}
	}

	res := &knnResult{
		indices: make([][]uint32, n),
		dists:   make([][]float32, n),
	}

	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if ef < k+1 {
		ef = k + 1
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	chunk := (n + workers - 1) / workers
	for lo := 0; lo < n; lo += chunk {
		lo, hi := lo, min(lo+chunk, n)
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				// k+1 because the query point itself comes back first.
				items, err := idx.Search(m.Row(i), k+1, ef)
				if err != nil {
					return err
				}

				ids := make([]uint32, 0, k)
				ds := make([]float32, 0, k)
				for _, it := range items {
					if it.Node == uint32(i) {
						continue
					}
					if len(ids) == k {
						break
					}
					ids = append(ids, it.Node)
					ds = append(ds, it.Distance)
				}
				res.indices[i], res.dists[i] = ids, ds
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}

// drainAscending empties a max-heap into ascending (distance, id) order.
func drainAscending(pq *queue.PriorityQueue) ([]uint32, []float32) {
	n := pq.Len()
	ids := make([]uint32, n)
	ds := make([]float32, n)
	for i := n - 1; i >= 0; i-- {
		it, _ := pq.Pop()
		ids[i] = it.Node
		ds[i] = it.Distance
	}
	return ids, ds
}
