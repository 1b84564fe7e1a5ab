package cellgraph

import (
	"context"

	"github.com/kusimpkins/cellgraph/neighbors"
	"github.com/kusimpkins/cellgraph/store"
)

// Builder assembles a pipeline one parameter at a time, starting from
// DefaultParams. Validation happens in Build, not in the setters.
type Builder struct {
	store  *store.Store
	params Params
	optFns []Option
}

// New starts a builder over the given store with default parameters.
func New(s *store.Store) *Builder {
	return &Builder{store: s, params: DefaultParams}
}

// Components sets the reduced dimensionality.
func (b *Builder) Components(n int) *Builder {
	b.params.Components = n
	return b
}

// Scale standardizes features before reduction.
func (b *Builder) Scale() *Builder {
	b.params.Scale = true
	return b
}

// K sets the neighbor count.
func (b *Builder) K(k int) *Builder {
	b.params.K = k
	return b
}

// Metric sets the neighbor search distance.
func (b *Builder) Metric(m neighbors.Metric) *Builder {
	b.params.Metric = m
	return b
}

// Approximate enables approximate neighbor search.
func (b *Builder) Approximate() *Builder {
	b.params.Approximate = true
	return b
}

// Strict makes isolated graph nodes fatal instead of a warning.
func (b *Builder) Strict() *Builder {
	b.params.Strict = true
	return b
}

// Resolution sets the clustering granularity.
func (b *Builder) Resolution(r float64) *Builder {
	b.params.Resolution = r
	return b
}

// Dims sets the layout dimensionality.
func (b *Builder) Dims(d int) *Builder {
	b.params.Dims = d
	return b
}

// Epochs sets the layout optimization length.
func (b *Builder) Epochs(n int) *Builder {
	b.params.Epochs = n
	return b
}

// Seed sets the seed shared by every stochastic stage.
func (b *Builder) Seed(seed int64) *Builder {
	b.params.Seed = seed
	return b
}

// Options appends construction options (logging, metrics, workers, caching).
func (b *Builder) Options(optFns ...Option) *Builder {
	b.optFns = append(b.optFns, optFns...)
	return b
}

// Build validates the accumulated parameters and returns the pipeline.
func (b *Builder) Build() (*Pipeline, error) {
	return NewPipeline(b.store, b.params, b.optFns...)
}

// Run builds the pipeline and executes it.
func (b *Builder) Run(ctx context.Context) (*Result, error) {
	p, err := b.Build()
	if err != nil {
		return nil, err
	}
	return p.Run(ctx)
}
