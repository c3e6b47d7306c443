// Package mesh provides the immutable basis vertex buffer a rig is authored
// against, plus the mutable buffers produced by evaluation.
package mesh

import (
	"errors"

	"github.com/Faultbox/facerig/pkg/math"
)

// ErrEmptyBasis is returned when a basis is built from zero vertices.
var ErrEmptyBasis = errors.New("basis has no vertices")

// VertexBuffer is an ordered sequence of positions. The index is the vertex identity.
type VertexBuffer []math.Vec3

// Clone returns a copy of the buffer.
func (b VertexBuffer) Clone() VertexBuffer {
	out := make(VertexBuffer, len(b))
	copy(out, b)
	return out
}

// Face is a triangle referencing three vertex indices.
type Face [3]int

// Bounds holds an axis-aligned bounding box.
type Bounds struct {
	Min math.Vec3
	Max math.Vec3
}

// Center returns the midpoint of the box.
func (b Bounds) Center() math.Vec3 {
	return b.Min.Add(b.Max).Scale(0.5)
}

// Size returns the box extents.
func (b Bounds) Size() math.Vec3 {
	return b.Max.Sub(b.Min)
}

// Extend grows the box to include p.
func (b *Bounds) Extend(p math.Vec3) {
	b.Min = b.Min.Min(p)
	b.Max = b.Max.Max(p)
}

// EmptyBounds returns an inverted box that any Extend call will overwrite.
func EmptyBounds() Bounds {
	return Bounds{
		Min: math.Splat(1e10),
		Max: math.Splat(-1e10),
	}
}

// Basis is the rest pose of a mesh. It is immutable after construction:
// the constructor copies its input and accessors never hand out the backing slice.
type Basis struct {
	positions VertexBuffer
	faces     []Face
	bounds    Bounds
}

// NewBasis copies positions (and optional faces) into a new Basis.
func NewBasis(positions []math.Vec3, faces []Face) (*Basis, error) {
	if len(positions) == 0 {
		return nil, ErrEmptyBasis
	}
	b := &Basis{
		positions: make(VertexBuffer, len(positions)),
		bounds:    EmptyBounds(),
	}
	copy(b.positions, positions)
	for _, p := range b.positions {
		b.bounds.Extend(p)
	}
	if len(faces) > 0 {
		b.faces = make([]Face, len(faces))
		copy(b.faces, faces)
	}
	return b, nil
}

// Len returns the vertex count.
func (b *Basis) Len() int {
	return len(b.positions)
}

// At returns the rest position of vertex i. It panics when i is out of range.
func (b *Basis) At(i int) math.Vec3 {
	return b.positions[i]
}

// Positions returns a copy of the rest positions.
func (b *Basis) Positions() VertexBuffer {
	return b.positions.Clone()
}

// Faces returns a copy of the triangle list (may be empty).
func (b *Basis) Faces() []Face {
	out := make([]Face, len(b.faces))
	copy(out, b.faces)
	return out
}

// Bounds returns the bounding box of the rest pose.
func (b *Basis) Bounds() Bounds {
	return b.bounds
}

// Each calls fn for every vertex in index order.
func (b *Basis) Each(fn func(i int, p math.Vec3)) {
	for i, p := range b.positions {
		fn(i, p)
	}
}
