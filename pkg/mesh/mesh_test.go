package mesh

import (
	"testing"

	"github.com/Faultbox/facerig/pkg/math"
)

func TestNewBasisCopiesInput(t *testing.T) {
	src := []math.Vec3{{X: 1}, {Y: 2}, {Z: 3}}
	b, err := NewBasis(src, nil)
	if err != nil {
		t.Fatalf("NewBasis failed: %v", err)
	}

	src[0] = math.Vec3{X: 99}
	if b.At(0) != (math.Vec3{X: 1}) {
		t.Errorf("basis aliased caller slice: At(0) = %v", b.At(0))
	}

	pos := b.Positions()
	pos[1] = math.Vec3{}
	if b.At(1) != (math.Vec3{Y: 2}) {
		t.Errorf("Positions() leaked backing slice: At(1) = %v", b.At(1))
	}
}

func TestNewBasisEmpty(t *testing.T) {
	if _, err := NewBasis(nil, nil); err != ErrEmptyBasis {
		t.Errorf("expected ErrEmptyBasis, got %v", err)
	}
}

func TestBasisBounds(t *testing.T) {
	b, err := NewBasis([]math.Vec3{{X: -1, Y: 0, Z: 2}, {X: 3, Y: -4, Z: 0}}, []Face{{0, 1, 0}})
	if err != nil {
		t.Fatalf("NewBasis failed: %v", err)
	}
	bounds := b.Bounds()
	if bounds.Min != (math.Vec3{X: -1, Y: -4, Z: 0}) {
		t.Errorf("Min = %v", bounds.Min)
	}
	if bounds.Max != (math.Vec3{X: 3, Y: 0, Z: 2}) {
		t.Errorf("Max = %v", bounds.Max)
	}
	if c := bounds.Center(); c != (math.Vec3{X: 1, Y: -2, Z: 1}) {
		t.Errorf("Center = %v", c)
	}
	if len(b.Faces()) != 1 {
		t.Errorf("expected 1 face, got %d", len(b.Faces()))
	}
}
