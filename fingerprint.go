package cellgraph

import (
	"github.com/kusimpkins/cellgraph/codec"
	"github.com/kusimpkins/cellgraph/internal/hash"
)

// fingerprintRecord is the canonical parameter identity of one stage run.
// Hashing the codec-encoded record keeps the fingerprint stable across
// process restarts, so cached layers survive snapshot round-trips.
type fingerprintRecord struct {
	Stage       string  `json:"stage"`
	Input       uint32  `json:"input"` // upstream artifact fingerprint
	Components  int     `json:"components,omitempty"`
	Scale       bool    `json:"scale,omitempty"`
	K           int     `json:"k,omitempty"`
	Metric      string  `json:"metric,omitempty"`
	Approximate bool    `json:"approximate,omitempty"`
	Strict      bool    `json:"strict,omitempty"`
	Resolution  float64 `json:"resolution,omitempty"`
	Dims        int     `json:"dims,omitempty"`
	Epochs      int     `json:"epochs,omitempty"`
	Workers     int     `json:"workers,omitempty"`
	Seed        int64   `json:"seed"`
}

func (r fingerprintRecord) sum() uint32 {
	return hash.CRC32C(codec.MustMarshal(codec.Default, r))
}
