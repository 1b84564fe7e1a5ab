package cellgraph

import (
	"errors"
	"fmt"

	"github.com/kusimpkins/cellgraph/cluster"
	"github.com/kusimpkins/cellgraph/layout"
	"github.com/kusimpkins/cellgraph/matrix"
	"github.com/kusimpkins/cellgraph/neighbors"
	"github.com/kusimpkins/cellgraph/pca"
)

// Stage identifies the pipeline stage an error or measurement belongs to.
type Stage string

const (
	StageReduce    Stage = "reduce"
	StageNeighbors Stage = "neighbors"
	StageCluster   Stage = "cluster"
	StageLayout    Stage = "layout"
)

var (
	// ErrInvalidInput marks malformed or out-of-range inputs. Fatal for
	// the stage that raises it.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDimensionality marks an infeasible rank request. Fatal.
	ErrDimensionality = errors.New("infeasible dimensionality")

	// ErrGraph marks a connectivity violation under strict mode. Fatal;
	// outside strict mode the same condition degrades to artifact metadata.
	ErrGraph = errors.New("graph connectivity violation")
)

// StageError wraps a stage failure with the stage that raised it.
// The underlying error is available via errors.Unwrap.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// translateError normalizes package-level errors into the pipeline taxonomy
// and tags them with the failing stage.
func translateError(stage Stage, err error) error {
	if err == nil {
		return nil
	}

	classified := err

	var (
		rank      *pca.ErrRank
		nonFinite *matrix.ErrNonFinite
		shape     *matrix.ErrShapeMismatch
		invalidK  *neighbors.ErrInvalidK
		isolated  *neighbors.ErrIsolated
		badRes    *cluster.ErrInvalidResolution
		tooSmall  *layout.ErrTooSmall
		badDims   *layout.ErrInvalidDims
	)

	switch {
	case errors.As(err, &rank):
		classified = fmt.Errorf("%w: %w", ErrDimensionality, err)
	case errors.As(err, &isolated):
		classified = fmt.Errorf("%w: %w", ErrGraph, err)
	case errors.As(err, &nonFinite),
		errors.As(err, &shape),
		errors.As(err, &invalidK),
		errors.As(err, &badRes),
		errors.As(err, &tooSmall),
		errors.As(err, &badDims),
		errors.Is(err, cluster.ErrEmptyGraph):
		classified = fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	return &StageError{Stage: stage, Err: classified}
}
