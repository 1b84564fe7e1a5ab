package sparse

import "github.com/bits-and-blooms/bitset"

// FuzzyUnion symmetrizes a directed affinity matrix with the probabilistic
// union w(i,j) = a + b - a*b, where a = m(i,j) and b = m(j,i). An edge strong
// in either direction survives, which keeps sparse and anisotropic regions
// connected where plain averaging would thin them out.
func FuzzyUnion(m *CSR) *CSR {
	t := m.Transpose()
	out := NewCoo(m.n)

	for i := 0; i < m.n; i++ {
		aCols, aVals := m.Row(i)
		bCols, bVals := t.Row(i)

		// Merge two sorted rows.
		ka, kb := 0, 0
		for ka < len(aCols) || kb < len(bCols) {
			switch {
			case kb == len(bCols) || (ka < len(aCols) && aCols[ka] < bCols[kb]):
				out.Append(int32(i), aCols[ka], aVals[ka])
				ka++
			case ka == len(aCols) || bCols[kb] < aCols[ka]:
				out.Append(int32(i), bCols[kb], bVals[kb])
				kb++
			default:
				a, b := aVals[ka], bVals[kb]
				out.Append(int32(i), aCols[ka], a+b-a*b)
				ka++
				kb++
			}
		}
	}

	return out.ToCSR()
}

// IsSymmetric reports whether m(i,j) == m(j,i) for all stored entries.
func IsSymmetric(m *CSR) bool {
	return m.Equal(m.Transpose())
}

// ConnectedComponents labels nodes of an undirected adjacency matrix by
// component. Labels are contiguous from 0 in order of first appearance.
func ConnectedComponents(m *CSR) (labels []int, count int) {
	labels = make([]int, m.n)
	for i := range labels {
		labels[i] = -1
	}

	seen := bitset.New(uint(m.n))
	var stack []int32

	for start := 0; start < m.n; start++ {
		if seen.Test(uint(start)) {
			continue
		}
		seen.Set(uint(start))
		labels[start] = count
		stack = append(stack[:0], int32(start))

		for len(stack) > 0 {
			v := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			cols, _ := m.Row(int(v))
			for _, c := range cols {
				if !seen.Test(uint(c)) {
					seen.Set(uint(c))
					labels[c] = count
					stack = append(stack, c)
				}
			}
		}
		count++
	}

	return labels, count
}

// Isolated returns the ids of nodes with no stored entries in their row.
func Isolated(m *CSR) []int {
	var ids []int
	for i := 0; i < m.n; i++ {
		if m.indptr[i] == m.indptr[i+1] {
			ids = append(ids, i)
		}
	}
	return ids
}
