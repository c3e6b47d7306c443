// Package region classifies basis vertices into named anatomical regions
// using pure geometric predicates.
package region

import (
	"fmt"
	"strings"

	"github.com/chewxy/math32"

	"github.com/Faultbox/facerig/pkg/math"
)

// Predicate is a pure boolean test over a single rest position.
// Implementations must not consult mutable state.
type Predicate interface {
	Contains(p math.Vec3) bool
	String() string
}

// Unbounded is used for an open interval end.
var Unbounded = math32.Inf(1)

// Interval accepts positions whose component along Axis lies between Min and
// Max. Bounds are inclusive unless Exclusive is set. Use -Unbounded/Unbounded
// for a half-open interval.
type Interval struct {
	Axis      math.Axis
	Min, Max  float32
	Exclusive bool
}

// Contains implements Predicate.
func (iv Interval) Contains(p math.Vec3) bool {
	v := p.Component(iv.Axis)
	if iv.Exclusive {
		return v > iv.Min && v < iv.Max
	}
	return v >= iv.Min && v <= iv.Max
}

func (iv Interval) String() string {
	lo, hi := "[", "]"
	if iv.Exclusive {
		lo, hi = "(", ")"
	}
	return fmt.Sprintf("%s in %s%g, %g%s", iv.Axis, lo, iv.Min, iv.Max, hi)
}

// Below is shorthand for an interval open toward negative infinity.
func Below(axis math.Axis, limit float32) Interval {
	return Interval{Axis: axis, Min: -Unbounded, Max: limit}
}

// Above is shorthand for an interval open toward positive infinity.
func Above(axis math.Axis, limit float32) Interval {
	return Interval{Axis: axis, Min: limit, Max: Unbounded}
}

// Between is shorthand for a closed interval.
func Between(axis math.Axis, min, max float32) Interval {
	return Interval{Axis: axis, Min: min, Max: max}
}

// Abs tests the absolute value of one component, which expresses bilateral
// symmetry around the midline. With Outside set the test is |v| > Limit,
// otherwise |v| < Limit.
type Abs struct {
	Axis    math.Axis
	Limit   float32
	Outside bool
}

// Contains implements Predicate.
func (a Abs) Contains(p math.Vec3) bool {
	v := math32.Abs(p.Component(a.Axis))
	if a.Outside {
		return v > a.Limit
	}
	return v < a.Limit
}

func (a Abs) String() string {
	op := "<"
	if a.Outside {
		op = ">"
	}
	return fmt.Sprintf("|%s| %s %g", a.Axis, op, a.Limit)
}

// Sphere accepts positions within Radius of Center (inclusive).
type Sphere struct {
	Center math.Vec3
	Radius float32
}

// Contains implements Predicate.
func (s Sphere) Contains(p math.Vec3) bool {
	d := p.Sub(s.Center)
	return d.Dot(d) <= s.Radius*s.Radius
}

func (s Sphere) String() string {
	return fmt.Sprintf("dist(%g,%g,%g) <= %g", s.Center.X, s.Center.Y, s.Center.Z, s.Radius)
}

// And is the conjunction of its terms. An empty And accepts everything.
type And []Predicate

// All builds a conjunction.
func All(preds ...Predicate) And {
	return And(preds)
}

// Contains implements Predicate.
func (a And) Contains(p math.Vec3) bool {
	for _, pred := range a {
		if !pred.Contains(p) {
			return false
		}
	}
	return true
}

func (a And) String() string {
	return join(a, " && ")
}

// Or is the disjunction of its terms. It is equivalent to the union of one
// Classify call per term. An empty Or accepts nothing.
type Or []Predicate

// Any builds a disjunction.
func Any(preds ...Predicate) Or {
	return Or(preds)
}

// Contains implements Predicate.
func (o Or) Contains(p math.Vec3) bool {
	for _, pred := range o {
		if pred.Contains(p) {
			return true
		}
	}
	return false
}

func (o Or) String() string {
	return join(o, " || ")
}

// Not negates a predicate.
type Not struct {
	Pred Predicate
}

// Contains implements Predicate.
func (n Not) Contains(p math.Vec3) bool {
	return !n.Pred.Contains(p)
}

func (n Not) String() string {
	return "!(" + n.Pred.String() + ")"
}

// Func adapts a plain function. The function must be pure.
type Func struct {
	Name string
	Fn   func(p math.Vec3) bool
}

// Contains implements Predicate.
func (f Func) Contains(p math.Vec3) bool {
	return f.Fn(p)
}

func (f Func) String() string {
	return f.Name
}

func join(preds []Predicate, sep string) string {
	parts := make([]string, len(preds))
	for i, p := range preds {
		parts[i] = p.String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}
