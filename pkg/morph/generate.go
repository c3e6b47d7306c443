package morph

import (
	"github.com/Faultbox/facerig/pkg/math"
	"github.com/Faultbox/facerig/pkg/mesh"
	"github.com/Faultbox/facerig/pkg/region"
)

// Displacement is a full-length buffer of per-vertex deltas relative to the basis.
type Displacement []math.Vec3

// SparseDelta is one non-zero entry of a Displacement.
type SparseDelta struct {
	Index int
	Delta math.Vec3
}

// Sparse returns the non-zero entries in index order.
func (d Displacement) Sparse() []SparseDelta {
	var out []SparseDelta
	for i, v := range d {
		if !v.IsZero() {
			out = append(out, SparseDelta{Index: i, Delta: v})
		}
	}
	return out
}

// NonZero returns the number of displaced vertices.
func (d Displacement) NonZero() int {
	n := 0
	for _, v := range d {
		if !v.IsZero() {
			n++
		}
	}
	return n
}

// FromSparse expands sparse entries into a full-length buffer.
func FromSparse(length int, entries []SparseDelta) (Displacement, error) {
	d := make(Displacement, length)
	for _, e := range entries {
		if e.Index < 0 || e.Index >= length {
			return nil, &BoundsViolationError{Index: e.Index, Len: length}
		}
		d[e.Index] = e.Delta
	}
	return d, nil
}

// Partition is a named sub-region with its own rule, e.g. the upper or lower
// lip inside the mouth region. Pred is tested on rest positions.
type Partition struct {
	Name string
	Pred region.Predicate
	Rule Rule
}

// Generate builds the displacement buffer for one morph target.
//
// Without partitions, rule displaces every vertex in set. With partitions,
// each vertex takes the rule of the first partition whose predicate matches
// and rule is ignored; region vertices matching no partition keep a zero
// delta. Vertices outside set always have a zero delta.
func Generate(basis *mesh.Basis, set region.Set, rule Rule, partitions ...Partition) (Displacement, error) {
	if rule == nil && len(partitions) == 0 {
		return nil, ErrNoRule
	}

	n := basis.Len()
	bounds := mesh.EmptyBounds()
	for _, i := range set {
		if i < 0 || i >= n {
			return nil, &BoundsViolationError{Index: i, Len: n}
		}
		bounds.Extend(basis.At(i))
	}

	out := make(Displacement, n)
	for _, i := range set {
		rest := basis.At(i)
		r := rule
		if len(partitions) > 0 {
			r = nil
			for _, part := range partitions {
				if part.Pred.Contains(rest) {
					r = part.Rule
					break
				}
			}
			if r == nil {
				continue
			}
		}
		ctx := Context{Index: i, Rest: rest, Region: bounds}
		out[i] = r.Displace(rest, ctx).Sub(rest)
	}
	return out, nil
}

// MustGenerate is like Generate but panics on error. It suits authoring code
// where a bounds violation is a programming error.
func MustGenerate(basis *mesh.Basis, set region.Set, rule Rule, partitions ...Partition) Displacement {
	d, err := Generate(basis, set, rule, partitions...)
	if err != nil {
		panic(err)
	}
	return d
}
