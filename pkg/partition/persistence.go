package partition

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kass/go-geo-label/pkg/geom"
	"github.com/paulmach/orb"
)

// FormatVersion is bumped whenever the encoded layout changes
const FormatVersion = 1

var ErrIncompatibleSnapshot = errors.New("incompatible tree snapshot")

// Meta describes how a persisted tree was built
type Meta struct {
	Version  int       `json:"version"`
	Kind     string    `json:"kind"`
	MaxDepth int       `json:"max_depth"`
	Bound    orb.Bound `json:"bound"`
	Leaves   int       `json:"leaves"`
	BuiltAt  time.Time `json:"built_at"`
}

// NewMeta fills the build parameters of t under the given label kind
func NewMeta[L comparable](kind string, t *Tree[L]) Meta {
	return Meta{
		Version:  FormatVersion,
		Kind:     kind,
		MaxDepth: t.MaxDepth(),
		Bound:    t.Bound(),
		Leaves:   t.Size(),
		BuiltAt:  time.Now().UTC(),
	}
}

// Compatible reports whether a snapshot with this header can stand in for a
// fresh build of kind at depth
func (m Meta) Compatible(kind string, depth int) bool {
	return m.Version == FormatVersion && m.Kind == kind && m.MaxDepth == depth
}

// Encode writes meta followed by the node tree as two gob values
func Encode[L comparable](w io.Writer, t *Tree[L], meta Meta) error {
	if meta.Version == 0 {
		meta.Version = FormatVersion
	}

	encoder := gob.NewEncoder(w)
	if err := encoder.Encode(meta); err != nil {
		return fmt.Errorf("failed to encode meta: %w", err)
	}
	if err := encoder.Encode(&t.root); err != nil {
		return fmt.Errorf("failed to encode tree: %w", err)
	}
	return nil
}

// Decode reads a tree written by Encode
func Decode[L comparable](r io.Reader) (*Tree[L], Meta, error) {
	decoder := gob.NewDecoder(r)

	var meta Meta
	if err := decoder.Decode(&meta); err != nil {
		return nil, Meta{}, fmt.Errorf("failed to decode meta: %w", err)
	}
	if meta.Version != FormatVersion {
		return nil, meta, fmt.Errorf("%w: version %d, want %d", ErrIncompatibleSnapshot, meta.Version, FormatVersion)
	}

	t := &Tree[L]{
		maxDepth:   meta.MaxDepth,
		predicates: geom.Planar{},
	}
	if err := decoder.Decode(&t.root); err != nil {
		return nil, meta, fmt.Errorf("failed to decode tree: %w", err)
	}
	if !geom.ValidBound(t.root.Bound) {
		return nil, meta, fmt.Errorf("%w: root bound %v", ErrIncompatibleSnapshot, t.root.Bound)
	}
	return t, meta, nil
}

// Marshal encodes t and its header into a byte slice
func Marshal[L comparable](t *Tree[L], meta Meta) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, t, meta); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a byte slice produced by Marshal
func Unmarshal[L comparable](data []byte) (*Tree[L], Meta, error) {
	return Decode[L](bytes.NewReader(data))
}

// SaveToFile writes the tree to a binary file
func SaveToFile[L comparable](filename string, t *Tree[L], meta Meta) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if err := Encode(file, t, meta); err != nil {
		return err
	}
	return file.Sync()
}

// LoadFromFile reads a tree from a binary file
func LoadFromFile[L comparable](filename string) (*Tree[L], Meta, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, Meta{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return Decode[L](file)
}
