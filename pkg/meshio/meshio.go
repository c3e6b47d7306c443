// Package meshio moves basis meshes in and out of the rig: triangle soups from
// OBJ, STL and PLY files are welded into an indexed basis, and deformed
// buffers are written back as STL or rendered to a PNG preview.
package meshio

import (
	"errors"
	"fmt"
	stdmath "math"

	"github.com/fogleman/fauxgl"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/facerig/pkg/math"
	"github.com/Faultbox/facerig/pkg/mesh"
)

// ErrNoFaces is returned when an operation needs triangles and the mesh has none.
var ErrNoFaces = errors.New("mesh has no faces")

// LoadBasis reads a mesh file (format chosen by extension) and welds
// coincident triangle corners into shared vertices. tol is the weld distance;
// zero picks one from the shortest edge.
func LoadBasis(path string, tol float64) (*mesh.Basis, error) {
	m, err := fauxgl.LoadMesh(path)
	if err != nil {
		return nil, fmt.Errorf("loading mesh %s: %w", path, err)
	}
	positions, faces, err := Weld(m.Triangles, tol)
	if err != nil {
		return nil, fmt.Errorf("welding mesh %s: %w", path, err)
	}
	return mesh.NewBasis(positions, faces)
}

// Weld merges triangle corners that fall in the same tol-sized cell.
// Vertex order is first appearance, so reloading a file yields the same indices.
func Weld(tris []*fauxgl.Triangle, tol float64) ([]math.Vec3, []mesh.Face, error) {
	if len(tris) == 0 {
		return nil, nil, ErrNoFaces
	}

	minDist2 := stdmath.MaxFloat64
	maxDist2 := 0.0
	for _, t := range tris {
		corners := corners(t)
		for j := range corners {
			side2 := r3.Norm2(r3.Sub(corners[(j+1)%3], corners[j]))
			if side2 > 0 {
				minDist2 = stdmath.Min(minDist2, side2)
			}
			maxDist2 = stdmath.Max(maxDist2, side2)
		}
	}
	if maxDist2 == 0 {
		return nil, nil, errors.New("all triangles are degenerate")
	}

	suggested := stdmath.Sqrt(minDist2) / 256
	if tol > stdmath.Sqrt(maxDist2)/2 {
		return nil, nil, fmt.Errorf("weld tolerance %g too large, suggested %g", tol, suggested)
	}
	if tol <= 0 {
		tol = suggested
	}

	ri := 1 / tol
	cache := make(map[[3]int64]int)
	var positions []math.Vec3
	faces := make([]mesh.Face, 0, len(tris))
	for _, t := range tris {
		var f mesh.Face
		for j, c := range corners(t) {
			v := r3.Scale(ri, c)
			key := [3]int64{int64(stdmath.Round(v.X)), int64(stdmath.Round(v.Y)), int64(stdmath.Round(v.Z))}
			idx, ok := cache[key]
			if !ok {
				idx = len(positions)
				cache[key] = idx
				positions = append(positions, math.Vec3{X: float32(c.X), Y: float32(c.Y), Z: float32(c.Z)})
			}
			f[j] = idx
		}
		if f[0] == f[1] || f[1] == f[2] || f[0] == f[2] {
			// Collapsed by the weld.
			continue
		}
		faces = append(faces, f)
	}
	return positions, faces, nil
}

func corners(t *fauxgl.Triangle) [3]r3.Vec {
	return [3]r3.Vec{toR3(t.V1.Position), toR3(t.V2.Position), toR3(t.V3.Position)}
}

func toR3(v fauxgl.Vector) r3.Vec {
	return r3.Vec{X: v.X, Y: v.Y, Z: v.Z}
}

func toVector(v math.Vec3) fauxgl.Vector {
	return fauxgl.V(float64(v.X), float64(v.Y), float64(v.Z))
}

// ToMesh builds a fauxgl triangle mesh from indexed geometry.
func ToMesh(positions mesh.VertexBuffer, faces []mesh.Face) (*fauxgl.Mesh, error) {
	if len(faces) == 0 {
		return nil, ErrNoFaces
	}
	tris := make([]*fauxgl.Triangle, 0, len(faces))
	for i, f := range faces {
		for _, idx := range f {
			if idx < 0 || idx >= len(positions) {
				return nil, fmt.Errorf("face %d: vertex index %d out of range [0, %d)", i, idx, len(positions))
			}
		}
		tris = append(tris, fauxgl.NewTriangleForPoints(
			toVector(positions[f[0]]),
			toVector(positions[f[1]]),
			toVector(positions[f[2]]),
		))
	}
	return fauxgl.NewTriangleMesh(tris), nil
}

// SaveSTL writes a deformed buffer with the basis topology.
func SaveSTL(path string, positions mesh.VertexBuffer, faces []mesh.Face) error {
	m, err := ToMesh(positions, faces)
	if err != nil {
		return err
	}
	if err := m.SaveSTL(path); err != nil {
		return fmt.Errorf("saving STL %s: %w", path, err)
	}
	return nil
}
