package sparse

import "sort"

// Coo accumulates (row, col, value) triplets for CSR assembly.
type Coo struct {
	n    int
	rows []int32
	cols []int32
	vals []float32
}

// NewCoo creates a triplet accumulator for an n x n matrix.
func NewCoo(n int) *Coo {
	return &Coo{n: n}
}

// Append adds an entry. Duplicate (row, col) pairs are summed during assembly.
func (c *Coo) Append(row, col int32, val float32) {
	c.rows = append(c.rows, row)
	c.cols = append(c.cols, col)
	c.vals = append(c.vals, val)
}

// ToCSR assembles the triplets into CSR form. Entries are sorted by
// (row, col) and duplicates summed, so assembly is deterministic regardless
// of append order. Zero-valued entries are dropped.
func (c *Coo) ToCSR() *CSR {
	order := make([]int, len(c.rows))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		ia, ib := order[a], order[b]
		if c.rows[ia] != c.rows[ib] {
			return c.rows[ia] < c.rows[ib]
		}
		return c.cols[ia] < c.cols[ib]
	})

	indptr := make([]int32, c.n+1)
	indices := make([]int32, 0, len(order))
	data := make([]float32, 0, len(order))

	for k := 0; k < len(order); {
		i := order[k]
		row, col := c.rows[i], c.cols[i]
		sum := c.vals[i]
		k++
		for k < len(order) && c.rows[order[k]] == row && c.cols[order[k]] == col {
			sum += c.vals[order[k]]
			k++
		}
		if sum == 0 {
			continue
		}
		indices = append(indices, col)
		data = append(data, sum)
		indptr[row+1]++
	}

	for i := 0; i < c.n; i++ {
		indptr[i+1] += indptr[i]
	}

	return &CSR{n: c.n, indptr: indptr, indices: indices, data: data}
}
