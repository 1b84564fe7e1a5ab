// Package store is the annotated matrix container the pipeline runs against:
// the observation matrix, named derived layers versioned by parameter
// fingerprint, and free-form metadata. Layers are immutable once attached;
// reruns replace them wholesale.
package store

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/kusimpkins/cellgraph/internal/hash"
	"github.com/kusimpkins/cellgraph/matrix"
)

// Layer is a named derived artifact with the fingerprint of the parameters
// that produced it.
type Layer struct {
	Name        string
	Fingerprint uint32
	Value       any
}

// Store holds one observation matrix and its derived layers.
// Safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	mat      *matrix.Dense
	matFP    uint32
	layers   map[string]Layer
	metadata map[string]string
}

// New wraps an observation matrix. The matrix identity fingerprint is
// computed once here and participates in every derived layer's fingerprint.
func New(m *matrix.Dense) *Store {
	return &Store{
		mat:      m,
		matFP:    matrixFingerprint(m),
		layers:   make(map[string]Layer),
		metadata: make(map[string]string),
	}
}

// Matrix returns the observation matrix. Read-only.
func (s *Store) Matrix() *matrix.Dense { return s.mat }

// MatrixFingerprint identifies the matrix content.
func (s *Store) MatrixFingerprint() uint32 { return s.matFP }

// SetLayer attaches a derived artifact under name, replacing any previous
// version.
func (s *Store) SetLayer(name string, fingerprint uint32, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layers[name] = Layer{Name: name, Fingerprint: fingerprint, Value: value}
}

// Layer returns the named artifact.
func (s *Store) Layer(name string) (Layer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.layers[name]
	return l, ok
}

// LayerNames returns the attached layer names in unspecified order.
func (s *Store) LayerNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.layers))
	for name := range s.layers {
		out = append(out, name)
	}
	return out
}

// SetMetadata stores a metadata value under key.
func (s *Store) SetMetadata(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata[key] = value
}

// Metadata returns the metadata value under key.
func (s *Store) Metadata(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.metadata[key]
	return v, ok
}

// Subset returns a new store holding only the selected observations, in
// ascending id order. Derived layers are not carried over: they index
// observations positionally and are invalidated by slicing. Metadata is
// copied.
func (s *Store) Subset(sel *roaring.Bitmap) *Store {
	idx := make([]int, 0, sel.GetCardinality())
	it := sel.Iterator()
	for it.HasNext() {
		idx = append(idx, int(it.Next()))
	}

	sub := New(s.mat.SelectRows(idx))

	s.mu.RLock()
	defer s.mu.RUnlock()
	for k, v := range s.metadata {
		sub.metadata[k] = v
	}
	return sub
}

// matrixFingerprint is a CRC32C over the shape and raw float bits.
func matrixFingerprint(m *matrix.Dense) uint32 {
	h := hash.NewCRC32C()
	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[:4], uint32(m.Rows()))
	binary.LittleEndian.PutUint32(buf[4:], uint32(m.Cols()))
	h.Write(buf[:])

	var w [4]byte
	for _, v := range m.Data() {
		binary.LittleEndian.PutUint32(w[:], math.Float32bits(v))
		h.Write(w[:])
	}
	return h.Sum32()
}
