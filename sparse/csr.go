// Package sparse provides a compressed sparse row matrix over stable integer
// observation ids. It is the wire format shared by the neighbor graph, the
// clusterer, the embedder and the autocorrelation metrics: nodes are row
// indices, never object references.
package sparse

import (
	"fmt"
	"sort"
)

// CSR is an n x n sparse float32 matrix in compressed sparse row layout.
// Column indices within each row are strictly increasing.
type CSR struct {
	n       int
	indptr  []int32
	indices []int32
	data    []float32
}

// NewCSRRaw wraps pre-built CSR arrays without copying. Used by snapshot
// decoding; call Validate afterwards when the arrays come from disk.
func NewCSRRaw(n int, indptr, indices []int32, data []float32) *CSR {
	return &CSR{n: n, indptr: indptr, indices: indices, data: data}
}

// Raw exposes the backing arrays for snapshot encoding. Read-only.
func (m *CSR) Raw() (indptr, indices []int32, data []float32) {
	return m.indptr, m.indices, m.data
}

// N returns the matrix dimension.
func (m *CSR) N() int { return m.n }

// NNZ returns the number of stored entries.
func (m *CSR) NNZ() int { return len(m.data) }

// Row returns the column indices and values of row i.
// Both slices alias internal storage and must be treated as read-only.
func (m *CSR) Row(i int) ([]int32, []float32) {
	lo, hi := m.indptr[i], m.indptr[i+1]
	return m.indices[lo:hi], m.data[lo:hi]
}

// At returns the value at (i, j), or 0 if the entry is not stored.
func (m *CSR) At(i, j int) float32 {
	cols, vals := m.Row(i)
	k := sort.Search(len(cols), func(k int) bool { return cols[k] >= int32(j) })
	if k < len(cols) && cols[k] == int32(j) {
		return vals[k]
	}
	return 0
}

// RowSum returns the sum of the stored values in row i.
func (m *CSR) RowSum(i int) float64 {
	_, vals := m.Row(i)
	var s float64
	for _, v := range vals {
		s += float64(v)
	}
	return s
}

// Sum returns the sum of all stored values.
func (m *CSR) Sum() float64 {
	var s float64
	for _, v := range m.data {
		s += float64(v)
	}
	return s
}

// Max returns the largest stored value, or 0 for an empty matrix.
func (m *CSR) Max() float32 {
	var mx float32
	for _, v := range m.data {
		if v > mx {
			mx = v
		}
	}
	return mx
}

// Transpose returns the transposed matrix.
func (m *CSR) Transpose() *CSR {
	counts := make([]int32, m.n+1)
	for _, c := range m.indices {
		counts[c+1]++
	}
	for i := 0; i < m.n; i++ {
		counts[i+1] += counts[i]
	}

	indptr := counts
	indices := make([]int32, len(m.indices))
	data := make([]float32, len(m.data))
	next := make([]int32, m.n)
	copy(next, indptr[:m.n])

	for i := 0; i < m.n; i++ {
		cols, vals := m.Row(i)
		for k, c := range cols {
			p := next[c]
			indices[p] = int32(i)
			data[p] = vals[k]
			next[c]++
		}
	}

	return &CSR{n: m.n, indptr: indptr, indices: indices, data: data}
}

// Equal reports whether two matrices have identical structure and values.
func (m *CSR) Equal(o *CSR) bool {
	if m.n != o.n || len(m.data) != len(o.data) {
		return false
	}
	for i := range m.indptr {
		if m.indptr[i] != o.indptr[i] {
			return false
		}
	}
	for i := range m.indices {
		if m.indices[i] != o.indices[i] || m.data[i] != o.data[i] {
			return false
		}
	}
	return true
}

// Validate checks structural invariants. Mostly useful in tests and after
// deserialization.
func (m *CSR) Validate() error {
	if len(m.indptr) != m.n+1 {
		return fmt.Errorf("indptr length %d, want %d", len(m.indptr), m.n+1)
	}
	if m.indptr[0] != 0 || int(m.indptr[m.n]) != len(m.data) {
		return fmt.Errorf("indptr bounds [%d,%d] inconsistent with nnz %d", m.indptr[0], m.indptr[m.n], len(m.data))
	}
	for i := 0; i < m.n; i++ {
		if m.indptr[i] > m.indptr[i+1] {
			return fmt.Errorf("indptr not monotone at row %d", i)
		}
		cols, _ := m.Row(i)
		for k, c := range cols {
			if c < 0 || int(c) >= m.n {
				return fmt.Errorf("column %d out of range in row %d", c, i)
			}
			if k > 0 && cols[k-1] >= c {
				return fmt.Errorf("columns not strictly increasing in row %d", i)
			}
		}
	}
	return nil
}
