package cellgraph

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kusimpkins/cellgraph/cluster"
	"github.com/kusimpkins/cellgraph/layout"
	"github.com/kusimpkins/cellgraph/neighbors"
	"github.com/kusimpkins/cellgraph/pca"
	"github.com/kusimpkins/cellgraph/store"
)

// Names of the derived layers the pipeline attaches to the store.
const (
	LayerReduced  = "reduced"
	LayerGraph    = "graph"
	LayerClusters = "clusters"
	LayerLayout   = "layout"
)

// Params are the pipeline's algorithm parameters. Together with the matrix
// identity they define each stage's fingerprint.
type Params struct {
	// Components is the reduced dimensionality.
	Components int
	// Scale standardizes features before reduction.
	Scale bool
	// K is the neighbor count.
	K int
	// Metric is the neighbor search distance.
	Metric neighbors.Metric
	// Approximate enables approximate neighbor search.
	Approximate bool
	// Strict makes isolated graph nodes fatal.
	Strict bool
	// Resolution controls clustering granularity.
	Resolution float64
	// Dims is the layout dimensionality (2 or 3).
	Dims int
	// Epochs is the layout optimization length. 0 picks a default.
	Epochs int
	// Seed drives every stochastic step.
	Seed int64
}

// DefaultParams are sensible defaults for typical observation counts.
var DefaultParams = Params{
	Components: 50,
	K:          15,
	Metric:     neighbors.Euclidean,
	Resolution: 1.0,
	Dims:       2,
	Epochs:     0,
	Seed:       0,
}

// Result bundles the artifacts of one pipeline run.
type Result struct {
	Embedding *pca.Embedding
	Graph     *neighbors.Graph
	Clusters  *cluster.Assignment
	Layout    *layout.Layout
}

// Pipeline runs reduce -> neighbor graph -> {cluster, layout} against a
// store, serving stages from cached layers when parameters are unchanged.
type Pipeline struct {
	store  *store.Store
	params Params
	opts   options
}

// NewPipeline validates params and binds the pipeline to a store.
func NewPipeline(s *store.Store, params Params, optFns ...Option) (*Pipeline, error) {
	if s == nil || s.Matrix() == nil {
		return nil, fmt.Errorf("%w: nil store", ErrInvalidInput)
	}
	if params.Components < 1 {
		return nil, fmt.Errorf("%w: components %d", ErrInvalidInput, params.Components)
	}
	if params.K < 1 {
		return nil, fmt.Errorf("%w: k %d", ErrInvalidInput, params.K)
	}
	if params.Resolution <= 0 {
		return nil, fmt.Errorf("%w: resolution %g", ErrInvalidInput, params.Resolution)
	}
	if params.Dims != 2 && params.Dims != 3 {
		return nil, fmt.Errorf("%w: layout dims %d", ErrInvalidInput, params.Dims)
	}
	if params.Epochs < 0 {
		return nil, fmt.Errorf("%w: epochs %d", ErrInvalidInput, params.Epochs)
	}

	return &Pipeline{
		store:  s,
		params: params,
		opts:   applyOptions(optFns),
	}, nil
}

// Store returns the bound store.
func (p *Pipeline) Store() *store.Store { return p.store }

// Run executes the pipeline. Stages run in data-dependency order; the
// clusterer and the embedder consume the same immutable graph concurrently.
// The first fatal error short-circuits everything downstream. Non-fatal
// warnings land on the artifacts and in store metadata, never in the error
// return.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	emb, embFP, err := p.runReduce(ctx)
	if err != nil {
		return nil, err
	}

	graph, graphFP, err := p.runNeighbors(ctx, emb, embFP)
	if err != nil {
		return nil, err
	}

	res := &Result{Embedding: emb, Graph: graph}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		assignment, err := p.runCluster(gctx, graph, graphFP)
		if err != nil {
			return err
		}
		res.Clusters = assignment
		return nil
	})
	g.Go(func() error {
		l, err := p.runLayout(gctx, graph, graphFP, emb)
		if err != nil {
			return err
		}
		res.Layout = l
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return res, nil
}

func (p *Pipeline) runReduce(ctx context.Context) (*pca.Embedding, uint32, error) {
	fp := fingerprintRecord{
		Stage:      string(StageReduce),
		Input:      p.store.MatrixFingerprint(),
		Components: p.params.Components,
		Scale:      p.params.Scale,
		Seed:       p.params.Seed,
	}.sum()

	if cached, ok := layerHit[*pca.Embedding](p, LayerReduced, fp); ok {
		p.opts.logger.LogCacheHit(ctx, StageReduce, fp)
		return cached, fp, nil
	}

	start := time.Now()
	emb, err := pca.Reduce(p.store.Matrix(), p.params.Components, p.params.Seed, func(o *pca.Options) {
		o.Scale = p.params.Scale
	})
	p.opts.metricsCollector.RecordStage(StageReduce, time.Since(start), err)
	p.opts.logger.LogStage(ctx, StageReduce, time.Since(start), err)
	if err != nil {
		return nil, 0, translateError(StageReduce, err)
	}

	p.store.SetLayer(LayerReduced, fp, emb)
	return emb, fp, nil
}

func (p *Pipeline) runNeighbors(ctx context.Context, emb *pca.Embedding, embFP uint32) (*neighbors.Graph, uint32, error) {
	fp := fingerprintRecord{
		Stage:       string(StageNeighbors),
		Input:       embFP,
		K:           p.params.K,
		Metric:      p.params.Metric.String(),
		Approximate: p.params.Approximate,
		Strict:      p.params.Strict,
		Seed:        p.params.Seed,
	}.sum()

	if cached, ok := layerHit[*neighbors.Graph](p, LayerGraph, fp); ok {
		p.opts.logger.LogCacheHit(ctx, StageNeighbors, fp)
		return cached, fp, nil
	}

	start := time.Now()
	graph, err := neighbors.Build(ctx, emb.Coords, p.params.K, func(o *neighbors.Options) {
		o.Metric = p.params.Metric
		o.Approximate = p.params.Approximate
		o.Strict = p.params.Strict
		o.Seed = p.params.Seed
		o.Workers = p.opts.workers
	})
	p.opts.metricsCollector.RecordStage(StageNeighbors, time.Since(start), err)
	p.opts.logger.LogStage(ctx, StageNeighbors, time.Since(start), err)
	if err != nil {
		return nil, 0, translateError(StageNeighbors, err)
	}

	if graph.Warning != nil {
		p.opts.logger.LogWarning(ctx, StageNeighbors, graph.Warning)
		p.store.SetMetadata("neighbors.warning", graph.Warning.Error())
	}

	p.store.SetLayer(LayerGraph, fp, graph)
	return graph, fp, nil
}

func (p *Pipeline) runCluster(ctx context.Context, graph *neighbors.Graph, graphFP uint32) (*cluster.Assignment, error) {
	fp := fingerprintRecord{
		Stage:      string(StageCluster),
		Input:      graphFP,
		Resolution: p.params.Resolution,
		Seed:       p.params.Seed,
	}.sum()

	if cached, ok := layerHit[*cluster.Assignment](p, LayerClusters, fp); ok {
		p.opts.logger.LogCacheHit(ctx, StageCluster, fp)
		return cached, nil
	}

	start := time.Now()
	assignment, err := cluster.Run(ctx, graph.Connectivities, p.params.Resolution, p.params.Seed)
	p.opts.metricsCollector.RecordStage(StageCluster, time.Since(start), err)
	p.opts.logger.LogStage(ctx, StageCluster, time.Since(start), err)
	if err != nil {
		return nil, translateError(StageCluster, err)
	}

	if assignment.Warning != nil {
		p.opts.logger.LogWarning(ctx, StageCluster, assignment.Warning)
		p.store.SetMetadata("cluster.warning", assignment.Warning.Error())
	}

	p.store.SetLayer(LayerClusters, fp, assignment)
	return assignment, nil
}

func (p *Pipeline) runLayout(ctx context.Context, graph *neighbors.Graph, graphFP uint32, emb *pca.Embedding) (*layout.Layout, error) {
	workers := p.opts.workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	fp := fingerprintRecord{
		Stage:   string(StageLayout),
		Input:   graphFP,
		Dims:    p.params.Dims,
		Epochs:  p.params.Epochs,
		Workers: workers,
		Seed:    p.params.Seed,
	}.sum()

	if cached, ok := layerHit[*layout.Layout](p, LayerLayout, fp); ok {
		p.opts.logger.LogCacheHit(ctx, StageLayout, fp)
		return cached, nil
	}

	start := time.Now()
	l, err := layout.Embed(ctx, graph.Connectivities, p.params.Dims, p.params.Seed, func(o *layout.Options) {
		o.Epochs = p.params.Epochs
		o.Init = emb.Coords
		o.Workers = workers
	})
	p.opts.metricsCollector.RecordStage(StageLayout, time.Since(start), err)
	p.opts.logger.LogStage(ctx, StageLayout, time.Since(start), err)
	if err != nil {
		return nil, translateError(StageLayout, err)
	}

	p.store.SetLayer(LayerLayout, fp, l)
	return l, nil
}

// layerHit returns the cached artifact when the layer exists, carries the
// expected fingerprint, and holds a live value of the expected type.
// Snapshot-loaded layers hold raw payloads and fall through to recompute.
func layerHit[T any](p *Pipeline, name string, fp uint32) (T, bool) {
	var zero T
	if p.opts.noCache {
		return zero, false
	}
	l, ok := p.store.Layer(name)
	if !ok || l.Fingerprint != fp {
		return zero, false
	}
	v, ok := l.Value.(T)
	if !ok {
		return zero, false
	}
	return v, true
}
