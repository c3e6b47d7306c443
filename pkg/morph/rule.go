// Package morph generates morph target displacement buffers from regions and
// stores them alongside their blend weights.
package morph

import (
	"github.com/chewxy/math32"

	"github.com/Faultbox/facerig/pkg/math"
	"github.com/Faultbox/facerig/pkg/mesh"
	"github.com/Faultbox/facerig/pkg/region"
)

// Context is passed to rules for every displaced vertex.
type Context struct {
	// Index is the vertex index in the basis.
	Index int
	// Rest is the basis position. Conditions and falloffs test this, never
	// the partially displaced position.
	Rest math.Vec3
	// Region is the bounding box of the whole region being displaced.
	Region mesh.Bounds
}

// Rule maps a position to its displaced position. Rules must be pure.
type Rule interface {
	Displace(p math.Vec3, ctx Context) math.Vec3
}

// RuleFunc adapts a function to Rule.
type RuleFunc func(p math.Vec3, ctx Context) math.Vec3

// Displace implements Rule.
func (f RuleFunc) Displace(p math.Vec3, ctx Context) math.Vec3 {
	return f(p, ctx)
}

// Offset translates by a fixed delta.
type Offset struct {
	Delta math.Vec3
}

// Displace implements Rule.
func (o Offset) Displace(p math.Vec3, _ Context) math.Vec3 {
	return p.Add(o.Delta)
}

// ScaleAxes scales each component about Pivot. A factor of 1 leaves the axis alone.
type ScaleAxes struct {
	Factors math.Vec3
	Pivot   math.Vec3
}

// Displace implements Rule.
func (s ScaleAxes) Displace(p math.Vec3, _ Context) math.Vec3 {
	return s.Pivot.Add(p.Sub(s.Pivot).Mul(s.Factors))
}

// Chain applies rules in order, each to the output of the previous one.
type Chain []Rule

// Displace implements Rule.
func (c Chain) Displace(p math.Vec3, ctx Context) math.Vec3 {
	for _, r := range c {
		p = r.Displace(p, ctx)
	}
	return p
}

// When applies Rule only to vertices whose rest position satisfies Pred.
type When struct {
	Pred region.Predicate
	Rule Rule
}

// Displace implements Rule.
func (w When) Displace(p math.Vec3, ctx Context) math.Vec3 {
	if w.Pred.Contains(ctx.Rest) {
		return w.Rule.Displace(p, ctx)
	}
	return p
}

// Falloff blends Rule in proportionally along Axis: vertices whose rest
// component is at From are untouched, at To they receive the full effect.
// This avoids a hard edge at the region boundary.
type Falloff struct {
	Rule     Rule
	Axis     math.Axis
	From, To float32
}

// Displace implements Rule.
func (f Falloff) Displace(p math.Vec3, ctx Context) math.Vec3 {
	t := float32(1)
	if f.To != f.From {
		t = (ctx.Rest.Component(f.Axis) - f.From) / (f.To - f.From)
		t = math32.Max(0, math32.Min(1, t))
	}
	if t == 0 {
		return p
	}
	return p.Lerp(f.Rule.Displace(p, ctx), t)
}

// Radial blends Rule by distance from Center: full effect at the center,
// none at Radius and beyond.
type Radial struct {
	Rule   Rule
	Center math.Vec3
	Radius float32
}

// Displace implements Rule.
func (r Radial) Displace(p math.Vec3, ctx Context) math.Vec3 {
	if r.Radius <= 0 {
		return p
	}
	t := 1 - ctx.Rest.Distance(r.Center)/r.Radius
	if t <= 0 {
		return p
	}
	return p.Lerp(r.Rule.Displace(p, ctx), math32.Min(1, t))
}
