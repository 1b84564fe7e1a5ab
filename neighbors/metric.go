package neighbors

import (
	"fmt"

	"github.com/kusimpkins/cellgraph/internal/math32"
	"github.com/kusimpkins/cellgraph/matrix"
)

// Metric selects the distance measure for neighbor search.
type Metric int

const (
	// Euclidean is the L2 distance.
	Euclidean Metric = iota
	// Cosine is 1 minus the cosine similarity.
	Cosine
)

func (m Metric) String() string {
	switch m {
	case Euclidean:
		return "euclidean"
	case Cosine:
		return "cosine"
	default:
		return fmt.Sprintf("Unknown(%d)", int(m))
	}
}

// prepare returns the row data searched under squared-L2, which both metrics
// reduce to: cosine search runs on L2-normalized rows, where squared L2 is
// monotone in cosine distance (d2 = 2*(1-cos)). Zero-norm rows pass through
// unnormalized and behave as maximally distant under cosine.
func (m Metric) prepare(src *matrix.Dense) *matrix.Dense {
	if m == Euclidean {
		return src
	}
	out := src.Clone()
	for i := 0; i < out.Rows(); i++ {
		row := out.Row(i)
		if norm := math32.Norm(row); norm > 0 {
			math32.ScaleInPlace(row, 1/norm)
		}
	}
	return out
}

// finalize converts a raw squared-L2 value into the metric's native distance.
func (m Metric) finalize(d2 float32) float32 {
	if d2 < 0 {
		d2 = 0
	}
	switch m {
	case Cosine:
		// d2 = 2*(1-cos) on normalized rows.
		d := d2 / 2
		if d > 2 {
			d = 2
		}
		return d
	default:
		return math32.Sqrt(d2)
	}
}
