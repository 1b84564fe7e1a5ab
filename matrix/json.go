package matrix

import (
	json "github.com/goccy/go-json"
)

type denseJSON struct {
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float32 `json:"data"`
}

// MarshalJSON encodes the matrix as shape plus row-major data, so layers
// holding a Dense survive store snapshots.
func (m *Dense) MarshalJSON() ([]byte, error) {
	return json.Marshal(denseJSON{Rows: m.rows, Cols: m.cols, Data: m.data})
}

// UnmarshalJSON decodes the form written by MarshalJSON, validating the
// shape against the data length.
func (m *Dense) UnmarshalJSON(b []byte) error {
	var r denseJSON
	if err := json.Unmarshal(b, &r); err != nil {
		return err
	}
	d, err := NewDense(r.Rows, r.Cols, r.Data)
	if err != nil {
		return err
	}
	*m = *d
	return nil
}
