package region

import (
	"fmt"

	"github.com/Faultbox/facerig/pkg/math"
	"github.com/Faultbox/facerig/pkg/mesh"
)

// Region is a named predicate over rest positions.
type Region struct {
	Name      string
	Predicate Predicate
}

// EmptyRegionWarning reports that a classification selected no vertices.
// It is an authoring warning, not a failure.
type EmptyRegionWarning struct {
	Region    string
	Predicate string
}

func (w EmptyRegionWarning) String() string {
	return fmt.Sprintf("region %q matched no vertices (%s)", w.Region, w.Predicate)
}

// Classify returns every vertex index whose rest position satisfies pred.
// The result is in ascending index order, so repeated calls are identical.
func Classify(basis *mesh.Basis, pred Predicate) Set {
	var out Set
	basis.Each(func(i int, p math.Vec3) {
		if pred.Contains(p) {
			out = append(out, i)
		}
	})
	return out
}

// Classify evaluates the region against basis. The warning is non-nil when
// the result is empty.
func (r Region) Classify(basis *mesh.Basis) (Set, *EmptyRegionWarning) {
	set := Classify(basis, r.Predicate)
	if len(set) == 0 {
		return set, &EmptyRegionWarning{Region: r.Name, Predicate: r.Predicate.String()}
	}
	return set, nil
}

// ClassifyUnion returns the union of one classification per predicate.
func ClassifyUnion(basis *mesh.Basis, preds ...Predicate) Set {
	var out Set
	for _, p := range preds {
		out = out.Union(Classify(basis, p))
	}
	return out
}

// Stats summarizes a classified region.
type Stats struct {
	Count    int
	Bounds   mesh.Bounds
	Centroid math.Vec3
}

// Describe computes count, bounds and centroid of set over basis.
func Describe(basis *mesh.Basis, set Set) Stats {
	st := Stats{Count: len(set), Bounds: mesh.EmptyBounds()}
	if len(set) == 0 {
		st.Bounds = mesh.Bounds{}
		return st
	}
	var sum math.Vec3
	for _, i := range set {
		p := basis.At(i)
		st.Bounds.Extend(p)
		sum = sum.Add(p)
	}
	st.Centroid = sum.Scale(1 / float32(len(set)))
	return st
}
