package sparse

import (
	json "github.com/goccy/go-json"
)

type csrJSON struct {
	N       int       `json:"n"`
	Indptr  []int32   `json:"indptr"`
	Indices []int32   `json:"indices"`
	Data    []float32 `json:"data"`
}

// MarshalJSON encodes the raw CSR arrays, so layers holding a graph survive
// store snapshots.
func (m *CSR) MarshalJSON() ([]byte, error) {
	return json.Marshal(csrJSON{N: m.n, Indptr: m.indptr, Indices: m.indices, Data: m.data})
}

// UnmarshalJSON decodes the form written by MarshalJSON and validates the
// structural invariants before accepting it.
func (m *CSR) UnmarshalJSON(b []byte) error {
	var r csrJSON
	if err := json.Unmarshal(b, &r); err != nil {
		return err
	}
	c := NewCSRRaw(r.N, r.Indptr, r.Indices, r.Data)
	if err := c.Validate(); err != nil {
		return err
	}
	*m = *c
	return nil
}
