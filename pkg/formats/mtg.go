// Package formats provides the binary interchange format for morph targets.
// MTG (Morph Target) container format.
package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Faultbox/facerig/pkg/math"
	"github.com/Faultbox/facerig/pkg/morph"
)

// MTG format errors.
var (
	ErrInvalidMTGMagic       = errors.New("invalid MTG magic: expected 'MTGT'")
	ErrUnsupportedMTGVersion = errors.New("unsupported MTG version")
	ErrTruncatedMTGData      = errors.New("truncated MTG data")
	ErrInvalidTargetCount    = errors.New("invalid MTG target count")
	ErrInvalidEncoding       = errors.New("invalid MTG delta encoding")
)

const (
	mtgMagic      = "MTGT"
	mtgHeaderSize = 4 + 2 + 4 + 4

	maxMTGTargets  = 4096
	maxMTGVertices = 1 << 24
	maxMTGNameLen  = 1024
)

// MTGVersion represents the MTG file version.
type MTGVersion struct {
	Major uint8
	Minor uint8
}

// MTGCurrentVersion is written by WriteMTG.
var MTGCurrentVersion = MTGVersion{Major: 1, Minor: 1}

// String returns the version as "Major.Minor".
func (v MTGVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// AtLeast returns true if version is >= major.minor.
func (v MTGVersion) AtLeast(major, minor uint8) bool {
	if v.Major > major {
		return true
	}
	return v.Major == major && v.Minor >= minor
}

// MTGEncoding selects how a target's deltas are stored.
type MTGEncoding uint8

const (
	MTGDense  MTGEncoding = 0 // One delta per basis vertex
	MTGSparse MTGEncoding = 1 // (index, delta) pairs for non-zero deltas only
)

// String returns a human-readable encoding name.
func (e MTGEncoding) String() string {
	switch e {
	case MTGDense:
		return "Dense"
	case MTGSparse:
		return "Sparse"
	default:
		return fmt.Sprintf("Unknown(%d)", e)
	}
}

// MTGTarget is one morph target in the container.
type MTGTarget struct {
	Name     string
	Encoding MTGEncoding // Encoding found on disk; chosen by density on write
	Weight   float32
	Range    morph.Range // v1.1+; [0, 1] for older files
	Active   bool        // v1.1+; true for older files
	Delta    morph.Displacement
}

// MTG represents a parsed morph target container.
type MTG struct {
	Version     MTGVersion
	VertexCount int
	Targets     []MTGTarget
}

// NewMTG builds a container from store targets.
func NewMTG(vertexCount int, targets []morph.Target) *MTG {
	m := &MTG{Version: MTGCurrentVersion, VertexCount: vertexCount}
	for _, t := range targets {
		m.Targets = append(m.Targets, MTGTarget{
			Name:   t.Name,
			Weight: t.Weight,
			Range:  t.Range,
			Active: t.Active,
			Delta:  t.Delta,
		})
	}
	return m
}

// Options returns the store options that restore t's weight, range and
// activation.
func (t *MTGTarget) Options() []morph.TargetOption {
	opts := []morph.TargetOption{
		morph.WithRange(t.Range.Min, t.Range.Max),
		morph.WithWeight(t.Weight),
	}
	if !t.Active {
		opts = append(opts, morph.Inactive())
	}
	return opts
}

// Store rebuilds a morph target store from the container, in file order.
func (m *MTG) Store() (*morph.Store, error) {
	s := morph.NewStore(m.VertexCount)
	for i := range m.Targets {
		t := &m.Targets[i]
		if _, err := s.Add(t.Name, t.Delta, t.Options()...); err != nil {
			return nil, fmt.Errorf("target %d: %w", i, err)
		}
	}
	return s, nil
}

// GetTargetByName returns the target with the given name, or nil.
func (m *MTG) GetTargetByName(name string) *MTGTarget {
	for i := range m.Targets {
		if m.Targets[i].Name == name {
			return &m.Targets[i]
		}
	}
	return nil
}

// chooseEncoding picks whichever encoding is smaller on disk.
func chooseEncoding(d morph.Displacement) MTGEncoding {
	const denseEntry, sparseEntry = 12, 16
	if 4+d.NonZero()*sparseEntry < len(d)*denseEntry {
		return MTGSparse
	}
	return MTGDense
}

// WriteMTG encodes m at MTGCurrentVersion.
func WriteMTG(w io.Writer, m *MTG) error {
	var buf bytes.Buffer
	le := binary.LittleEndian

	buf.WriteString(mtgMagic)
	buf.WriteByte(MTGCurrentVersion.Major)
	buf.WriteByte(MTGCurrentVersion.Minor)
	binary.Write(&buf, le, uint32(m.VertexCount))
	binary.Write(&buf, le, uint32(len(m.Targets)))

	for i, t := range m.Targets {
		if len(t.Delta) != m.VertexCount {
			return fmt.Errorf("target %q: %w (%d != %d)", t.Name, morph.ErrLengthMismatch, len(t.Delta), m.VertexCount)
		}
		if len(t.Name) > maxMTGNameLen {
			return fmt.Errorf("target %d: name longer than %d bytes", i, maxMTGNameLen)
		}

		binary.Write(&buf, le, uint16(len(t.Name)))
		buf.WriteString(t.Name)

		enc := chooseEncoding(t.Delta)
		buf.WriteByte(byte(enc))
		binary.Write(&buf, le, t.Weight)
		binary.Write(&buf, le, t.Range.Min)
		binary.Write(&buf, le, t.Range.Max)
		active := uint8(0)
		if t.Active {
			active = 1
		}
		buf.WriteByte(active)

		switch enc {
		case MTGSparse:
			entries := t.Delta.Sparse()
			binary.Write(&buf, le, uint32(len(entries)))
			for _, e := range entries {
				binary.Write(&buf, le, uint32(e.Index))
				binary.Write(&buf, le, [3]float32{e.Delta.X, e.Delta.Y, e.Delta.Z})
			}
		default:
			for _, v := range t.Delta {
				binary.Write(&buf, le, [3]float32{v.X, v.Y, v.Z})
			}
		}
	}

	_, err := w.Write(buf.Bytes())
	return err
}

// WriteMTGFile writes m to path.
func WriteMTGFile(path string, m *MTG) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating MTG file: %w", err)
	}
	if err := WriteMTG(f, m); err != nil {
		f.Close()
		return fmt.Errorf("writing MTG file: %w", err)
	}
	return f.Close()
}

// ParseMTG parses MTG data from a byte slice.
func ParseMTG(data []byte) (*MTG, error) {
	if len(data) < mtgHeaderSize {
		return nil, ErrTruncatedMTGData
	}

	r := bytes.NewReader(data)

	// Read magic
	magic := make([]byte, 4)
	r.Read(magic)
	if string(magic) != mtgMagic {
		return nil, ErrInvalidMTGMagic
	}

	m := &MTG{}
	binary.Read(r, binary.LittleEndian, &m.Version.Major)
	binary.Read(r, binary.LittleEndian, &m.Version.Minor)

	// Supported: 1.0 - 1.1
	if m.Version.Major != 1 || m.Version.Minor > 1 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMTGVersion, m.Version)
	}

	var vertexCount, targetCount uint32
	binary.Read(r, binary.LittleEndian, &vertexCount)
	binary.Read(r, binary.LittleEndian, &targetCount)

	if vertexCount == 0 || vertexCount > maxMTGVertices {
		return nil, fmt.Errorf("%w: vertex count %d", ErrTruncatedMTGData, vertexCount)
	}
	if targetCount > maxMTGTargets {
		return nil, ErrInvalidTargetCount
	}
	m.VertexCount = int(vertexCount)

	m.Targets = make([]MTGTarget, targetCount)
	for i := range m.Targets {
		if err := parseMTGTarget(r, m.Version, m.VertexCount, &m.Targets[i]); err != nil {
			return nil, fmt.Errorf("parsing target %d: %w", i, err)
		}
	}

	return m, nil
}

// parseMTGTarget parses a single target from the reader.
func parseMTGTarget(r *bytes.Reader, version MTGVersion, vertexCount int, t *MTGTarget) error {
	le := binary.LittleEndian

	var nameLen uint16
	if err := binary.Read(r, le, &nameLen); err != nil {
		return ErrTruncatedMTGData
	}
	if int(nameLen) > maxMTGNameLen || int(nameLen) > r.Len() {
		return ErrTruncatedMTGData
	}
	t.Name = readName(r, int(nameLen))

	enc, err := r.ReadByte()
	if err != nil {
		return ErrTruncatedMTGData
	}
	t.Encoding = MTGEncoding(enc)
	if err := binary.Read(r, le, &t.Weight); err != nil {
		return ErrTruncatedMTGData
	}

	t.Range = morph.DefaultRange
	t.Active = true
	if version.AtLeast(1, 1) {
		var hdr struct {
			Min, Max float32
			Active   uint8
		}
		if err := binary.Read(r, le, &hdr); err != nil {
			return ErrTruncatedMTGData
		}
		t.Range = morph.Range{Min: hdr.Min, Max: hdr.Max}
		t.Active = hdr.Active != 0
	}

	switch t.Encoding {
	case MTGDense:
		if r.Len() < vertexCount*12 {
			return ErrTruncatedMTGData
		}
		raw := make([][3]float32, vertexCount)
		binary.Read(r, le, raw)
		t.Delta = make(morph.Displacement, vertexCount)
		for i, v := range raw {
			t.Delta[i] = math.Vec3{X: v[0], Y: v[1], Z: v[2]}
		}

	case MTGSparse:
		var count uint32
		if err := binary.Read(r, le, &count); err != nil {
			return ErrTruncatedMTGData
		}
		if int(count) > vertexCount || r.Len() < int(count)*16 {
			return ErrTruncatedMTGData
		}
		entries := make([]morph.SparseDelta, count)
		for i := range entries {
			var e struct {
				Index uint32
				Delta [3]float32
			}
			binary.Read(r, le, &e)
			entries[i] = morph.SparseDelta{
				Index: int(e.Index),
				Delta: math.Vec3{X: e.Delta[0], Y: e.Delta[1], Z: e.Delta[2]},
			}
		}
		d, err := morph.FromSparse(vertexCount, entries)
		if err != nil {
			return err
		}
		t.Delta = d

	default:
		return fmt.Errorf("%w: %d", ErrInvalidEncoding, enc)
	}
	return nil
}

// ParseMTGFile parses an MTG file from disk.
func ParseMTGFile(path string) (*MTG, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading MTG file: %w", err)
	}
	return ParseMTG(data)
}

// readName reads a length-prefixed name. The bytes are taken as is.
func readName(r *bytes.Reader, length int) string {
	buf := make([]byte, length)
	r.Read(buf)
	return string(buf)
}
