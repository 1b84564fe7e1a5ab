// Package matrix provides the dense observation matrix consumed by the
// reduction and graph-building stages.
//
// A Dense holds observations (rows) by features (columns) in row-major
// float32 storage. Downstream stages receive read-only row views; nothing in
// this module mutates a matrix after construction.
package matrix

import (
	"fmt"
	"math"
)

// ErrShapeMismatch indicates that the provided data length does not match the
// declared shape.
type ErrShapeMismatch struct {
	Rows, Cols, Len int
}

func (e *ErrShapeMismatch) Error() string {
	return fmt.Sprintf("shape mismatch: %dx%d requires %d values, got %d", e.Rows, e.Cols, e.Rows*e.Cols, e.Len)
}

// ErrNonFinite indicates a NaN or Inf value in the matrix.
type ErrNonFinite struct {
	Row, Col int
}

func (e *ErrNonFinite) Error() string {
	return fmt.Sprintf("non-finite value at (%d,%d)", e.Row, e.Col)
}

// Dense is a row-major observations x features matrix.
type Dense struct {
	rows int
	cols int
	data []float32
}

// NewDense constructs a Dense from row-major data. The data slice is owned by
// the matrix afterwards; callers must not modify it.
func NewDense(rows, cols int, data []float32) (*Dense, error) {
	if rows < 0 || cols < 0 {
		return nil, fmt.Errorf("negative dimensions %dx%d", rows, cols)
	}
	if len(data) != rows*cols {
		return nil, &ErrShapeMismatch{Rows: rows, Cols: cols, Len: len(data)}
	}
	return &Dense{rows: rows, cols: cols, data: data}, nil
}

// Zeros constructs a zero-valued Dense of the given shape.
func Zeros(rows, cols int) *Dense {
	return &Dense{rows: rows, cols: cols, data: make([]float32, rows*cols)}
}

// Rows returns the number of observations.
func (m *Dense) Rows() int { return m.rows }

// Cols returns the number of features.
func (m *Dense) Cols() int { return m.cols }

// Row returns a view of observation i. The returned slice aliases the matrix
// storage and must be treated as read-only.
func (m *Dense) Row(i int) []float32 {
	return m.data[i*m.cols : (i+1)*m.cols]
}

// At returns the value at (i, j).
func (m *Dense) At(i, j int) float32 {
	return m.data[i*m.cols+j]
}

// Data returns the backing row-major storage. Read-only.
func (m *Dense) Data() []float32 { return m.data }

// Clone returns a deep copy.
func (m *Dense) Clone() *Dense {
	data := make([]float32, len(m.data))
	copy(data, m.data)
	return &Dense{rows: m.rows, cols: m.cols, data: data}
}

// SelectRows returns a new Dense containing the given rows in order.
// Indices out of range cause a panic, matching slice semantics.
func (m *Dense) SelectRows(idx []int) *Dense {
	out := Zeros(len(idx), m.cols)
	for i, r := range idx {
		copy(out.Row(i), m.Row(r))
	}
	return out
}

// CheckFinite returns an error locating the first NaN or Inf value, or nil if
// every value is finite.
func (m *Dense) CheckFinite() error {
	for i, v := range m.data {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return &ErrNonFinite{Row: i / m.cols, Col: i % m.cols}
		}
	}
	return nil
}
