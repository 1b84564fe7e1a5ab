package store

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/kusimpkins/cellgraph/codec"
	"github.com/kusimpkins/cellgraph/internal/hash"
	"github.com/kusimpkins/cellgraph/matrix"
)

// Compression selects the snapshot payload compressor.
type Compression string

const (
	// CompressionNone stores the payload as-is.
	CompressionNone Compression = "none"
	// CompressionZstd is the default.
	CompressionZstd Compression = "zstd"
	// CompressionLZ4 trades ratio for speed.
	CompressionLZ4 Compression = "lz4"
)

// snapshot magic plus format version. Changing the payload schema bumps the
// version.
var snapshotMagic = [8]byte{'C', 'E', 'L', 'L', 'G', 'R', 'P', '1'}

// ErrBadSnapshot indicates a corrupt or foreign snapshot file.
type ErrBadSnapshot struct {
	Reason string
}

func (e *ErrBadSnapshot) Error() string {
	return fmt.Sprintf("bad snapshot: %s", e.Reason)
}

// SaveOptions configures Save.
type SaveOptions struct {
	Codec       codec.Codec
	Compression Compression
}

// DefaultSaveOptions are the defaults for Save.
var DefaultSaveOptions = SaveOptions{
	Codec:       codec.Default,
	Compression: CompressionZstd,
}

type snapshotPayload struct {
	Rows     int               `json:"rows"`
	Cols     int               `json:"cols"`
	Data     []float32         `json:"data"`
	Metadata map[string]string `json:"metadata"`
	Layers   []snapshotLayer   `json:"layers"`
}

type snapshotLayer struct {
	Name        string `json:"name"`
	Fingerprint uint32 `json:"fingerprint"`
	Payload     []byte `json:"payload"`
}

// RawLayer is a snapshot layer pending decode. Loaded stores hold these as
// layer values; DecodeLayer materializes them.
type RawLayer struct {
	codec   codec.Codec
	payload []byte
}

// Save writes the store (matrix, metadata, layer payloads) to path. Layer
// values must be encodable by the configured codec.
func (s *Store) Save(path string, optFns ...func(o *SaveOptions)) error {
	opts := DefaultSaveOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Codec == nil {
		opts.Codec = codec.Default
	}

	s.mu.RLock()
	payload := snapshotPayload{
		Rows:     s.mat.Rows(),
		Cols:     s.mat.Cols(),
		Data:     s.mat.Data(),
		Metadata: s.metadata,
	}
	for _, name := range sortedKeys(s.layers) {
		l := s.layers[name]
		b, err := opts.Codec.Marshal(l.Value)
		if err != nil {
			s.mu.RUnlock()
			return fmt.Errorf("encode layer %q: %w", name, err)
		}
		payload.Layers = append(payload.Layers, snapshotLayer{
			Name:        l.Name,
			Fingerprint: l.Fingerprint,
			Payload:     b,
		})
	}
	s.mu.RUnlock()

	raw, err := opts.Codec.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	packed, err := compress(raw, opts.Compression)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	buf.Write(snapshotMagic[:])
	writeString(&buf, opts.Codec.Name())
	writeString(&buf, string(opts.Compression))

	var hdr [12]byte
	binary.LittleEndian.PutUint32(hdr[:4], hash.CRC32C(packed))
	binary.LittleEndian.PutUint64(hdr[4:], uint64(len(packed)))
	buf.Write(hdr[:])
	buf.Write(packed)

	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// Load reads a snapshot written by Save. Layer values come back as RawLayer;
// use DecodeLayer to materialize them into concrete types.
func Load(path string) (*Store, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	r := bytes.NewReader(b)

	var magic [8]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil || magic != snapshotMagic {
		return nil, &ErrBadSnapshot{Reason: "magic mismatch"}
	}

	codecName, err := readString(r)
	if err != nil {
		return nil, &ErrBadSnapshot{Reason: "truncated codec name"}
	}
	c, ok := codec.ByName(codecName)
	if !ok {
		return nil, &ErrBadSnapshot{Reason: fmt.Sprintf("unknown codec %q", codecName)}
	}

	compName, err := readString(r)
	if err != nil {
		return nil, &ErrBadSnapshot{Reason: "truncated compression name"}
	}

	var hdr [12]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, &ErrBadSnapshot{Reason: "truncated header"}
	}
	sum := binary.LittleEndian.Uint32(hdr[:4])
	size := binary.LittleEndian.Uint64(hdr[4:])

	packed := make([]byte, size)
	if _, err := io.ReadFull(r, packed); err != nil {
		return nil, &ErrBadSnapshot{Reason: "truncated payload"}
	}
	if hash.CRC32C(packed) != sum {
		return nil, &ErrBadSnapshot{Reason: "checksum mismatch"}
	}

	raw, err := decompress(packed, Compression(compName))
	if err != nil {
		return nil, err
	}

	var payload snapshotPayload
	if err := c.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	m, err := matrix.NewDense(payload.Rows, payload.Cols, payload.Data)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot matrix: %w", err)
	}

	s := New(m)
	for k, v := range payload.Metadata {
		s.metadata[k] = v
	}
	for _, l := range payload.Layers {
		s.layers[l.Name] = Layer{
			Name:        l.Name,
			Fingerprint: l.Fingerprint,
			Value:       RawLayer{codec: c, payload: l.Payload},
		}
	}
	return s, nil
}

// DecodeLayer materializes the named layer into out. Works both for layers
// loaded from a snapshot and for in-memory layers whose value is already the
// concrete type (the latter must be re-encoded through the snapshot codec
// first, so prefer type-asserting in-memory values directly).
func (s *Store) DecodeLayer(name string, out any) error {
	l, ok := s.Layer(name)
	if !ok {
		return fmt.Errorf("layer %q not found", name)
	}
	raw, ok := l.Value.(RawLayer)
	if !ok {
		return fmt.Errorf("layer %q is not a snapshot layer", name)
	}
	return raw.codec.Unmarshal(raw.payload, out)
}

func compress(data []byte, c Compression) ([]byte, error) {
	switch c {
	case CompressionNone:
		return data, nil
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(data, nil), nil
	case CompressionLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown compression %q", c)
	}
}

func decompress(data []byte, c Compression) ([]byte, error) {
	switch c {
	case CompressionNone:
		return data, nil
	case CompressionZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return dec.DecodeAll(data, nil)
	case CompressionLZ4:
		return io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
	default:
		return nil, &ErrBadSnapshot{Reason: fmt.Sprintf("unknown compression %q", c)}
	}
}

func writeString(buf *bytes.Buffer, s string) {
	var n [2]byte
	binary.LittleEndian.PutUint16(n[:], uint16(len(s)))
	buf.Write(n[:])
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	var n [2]byte
	if _, err := io.ReadFull(r, n[:]); err != nil {
		return "", err
	}
	b := make([]byte, binary.LittleEndian.Uint16(n[:]))
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func sortedKeys(m map[string]Layer) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
