// Package rigdef reads and writes rig definitions: YAML documents that
// declare regions, parameters, generated targets, bindings, joint drivers and
// timelines, and applies them to a rig.Rig.
package rigdef

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chewxy/math32"

	"github.com/Faultbox/facerig/internal/rig"
	"github.com/Faultbox/facerig/pkg/math"
	"github.com/Faultbox/facerig/pkg/morph"
	"github.com/Faultbox/facerig/pkg/region"
)

// ErrInvalidDefinition is wrapped by every schema error.
var ErrInvalidDefinition = errors.New("invalid rig definition")

// Definition is the root of a rig file.
type Definition struct {
	Name       string         `yaml:"name"`
	Basis      string         `yaml:"basis,omitempty"`
	Regions    []RegionDef    `yaml:"regions"`
	Parameters []ParameterDef `yaml:"parameters,omitempty"`
	Joints     []JointDef     `yaml:"joints,omitempty"`
	Targets    []TargetDef    `yaml:"targets"`
	Bindings   []BindingDef   `yaml:"bindings,omitempty"`
	Timelines  []rig.Timeline `yaml:"timelines,omitempty"`
}

// RegionDef names the conjunction of its Where terms.
type RegionDef struct {
	Name  string         `yaml:"name"`
	Where []PredicateDef `yaml:"where"`
}

// PredicateDef is one predicate term. Exactly one form may be set:
//
//	axis + min/max [+ exclusive]   interval, open where a bound is omitted
//	axis + abs_below | abs_above   |v| < limit or |v| > limit
//	sphere                         distance from a center
//	all | any | not                combinators
type PredicateDef struct {
	Axis      string         `yaml:"axis,omitempty"`
	Min       *float32       `yaml:"min,omitempty"`
	Max       *float32       `yaml:"max,omitempty"`
	Exclusive bool           `yaml:"exclusive,omitempty"`
	AbsBelow  *float32       `yaml:"abs_below,omitempty"`
	AbsAbove  *float32       `yaml:"abs_above,omitempty"`
	Sphere    *SphereDef     `yaml:"sphere,omitempty"`
	All       []PredicateDef `yaml:"all,omitempty"`
	Any       []PredicateDef `yaml:"any,omitempty"`
	Not       *PredicateDef  `yaml:"not,omitempty"`
}

// SphereDef is a ball in rest space.
type SphereDef struct {
	Center Vec     `yaml:"center,flow"`
	Radius float32 `yaml:"radius"`
}

// Vec is written as a flow sequence [x, y, z].
type Vec [3]float32

func (v Vec) vec3() math.Vec3 {
	return math.Vec3{X: v[0], Y: v[1], Z: v[2]}
}

// ParameterDef declares a control parameter.
type ParameterDef struct {
	Name    string  `yaml:"name"`
	Min     float32 `yaml:"min"`
	Max     float32 `yaml:"max"`
	Default float32 `yaml:"default"`
}

// JointDef drives one joint channel from an expression over parameters.
type JointDef struct {
	Joint      string  `yaml:"joint"`
	Channel    string  `yaml:"channel"`
	Expression string  `yaml:"expression"`
	Min        float32 `yaml:"min"`
	Max        float32 `yaml:"max"`
}

// TargetDef generates one morph target. Either Rules or Partitions is set.
type TargetDef struct {
	Name       string         `yaml:"name"`
	Region     string         `yaml:"region"`
	Range      *RangeDef      `yaml:"range,omitempty"`
	Weight     float32        `yaml:"weight,omitempty"`
	Inactive   bool           `yaml:"inactive,omitempty"`
	Rules      []RuleDef      `yaml:"rules,omitempty"`
	Partitions []PartitionDef `yaml:"partitions,omitempty"`
}

// RangeDef is a weight range.
type RangeDef struct {
	Min float32 `yaml:"min"`
	Max float32 `yaml:"max"`
}

// PartitionDef is a sub-region with its own rules. An empty Where matches
// every remaining vertex, which makes it a catch-all when listed last.
type PartitionDef struct {
	Name  string         `yaml:"name"`
	Where []PredicateDef `yaml:"where,omitempty"`
	Rules []RuleDef      `yaml:"rules"`
}

// RuleDef is one displacement step. Exactly one form may be set:
//
//	offset [x, y, z]
//	scale [x, y, z] (+ pivot)
//	when + then     conditional on the rest position
//	falloff         linear blend along an axis
//	radial          blend by distance from a center
type RuleDef struct {
	Offset  *Vec           `yaml:"offset,omitempty,flow"`
	Scale   *Vec           `yaml:"scale,omitempty,flow"`
	Pivot   *Vec           `yaml:"pivot,omitempty,flow"`
	When    []PredicateDef `yaml:"when,omitempty"`
	Then    []RuleDef      `yaml:"then,omitempty"`
	Falloff *FalloffDef    `yaml:"falloff,omitempty"`
	Radial  *RadialDef     `yaml:"radial,omitempty"`
}

// FalloffDef blends Rules in from From to To along Axis.
type FalloffDef struct {
	Axis  string    `yaml:"axis"`
	From  float32   `yaml:"from"`
	To    float32   `yaml:"to"`
	Rules []RuleDef `yaml:"rules"`
}

// RadialDef blends Rules by distance from Center.
type RadialDef struct {
	Center Vec       `yaml:"center,flow"`
	Radius float32   `yaml:"radius"`
	Rules  []RuleDef `yaml:"rules"`
}

// BindingDef binds a target weight to an expression.
type BindingDef struct {
	Target     string `yaml:"target"`
	Expression string `yaml:"expression"`
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidDefinition, fmt.Sprintf(format, args...))
}

// Predicate builds a region predicate from a term list. Several terms are
// combined with And.
func Predicate(terms []PredicateDef) (region.Predicate, error) {
	if len(terms) == 0 {
		return nil, invalid("empty predicate")
	}
	preds := make([]region.Predicate, len(terms))
	for i, t := range terms {
		p, err := t.build()
		if err != nil {
			return nil, err
		}
		preds[i] = p
	}
	if len(preds) == 1 {
		return preds[0], nil
	}
	return region.All(preds...), nil
}

func (d PredicateDef) forms() []string {
	var set []string
	if d.Min != nil || d.Max != nil {
		set = append(set, "min/max")
	}
	if d.AbsBelow != nil {
		set = append(set, "abs_below")
	}
	if d.AbsAbove != nil {
		set = append(set, "abs_above")
	}
	if d.Sphere != nil {
		set = append(set, "sphere")
	}
	if d.All != nil {
		set = append(set, "all")
	}
	if d.Any != nil {
		set = append(set, "any")
	}
	if d.Not != nil {
		set = append(set, "not")
	}
	return set
}

func (d PredicateDef) build() (region.Predicate, error) {
	forms := d.forms()
	switch len(forms) {
	case 0:
		return nil, invalid("predicate has no condition")
	case 1:
	default:
		return nil, invalid("predicate mixes %s", strings.Join(forms, ", "))
	}

	switch {
	case d.Sphere != nil:
		return region.Sphere{Center: d.Sphere.Center.vec3(), Radius: d.Sphere.Radius}, nil
	case d.All != nil:
		return d.combine(d.All, func(p []region.Predicate) region.Predicate { return region.All(p...) })
	case d.Any != nil:
		return d.combine(d.Any, func(p []region.Predicate) region.Predicate { return region.Any(p...) })
	case d.Not != nil:
		inner, err := d.Not.build()
		if err != nil {
			return nil, err
		}
		return region.Not{Pred: inner}, nil
	}

	axis, err := math.ParseAxis(d.Axis)
	if err != nil {
		return nil, invalid("predicate: %v", err)
	}
	switch {
	case d.AbsBelow != nil:
		return region.Abs{Axis: axis, Limit: *d.AbsBelow}, nil
	case d.AbsAbove != nil:
		return region.Abs{Axis: axis, Limit: *d.AbsAbove, Outside: true}, nil
	}

	iv := region.Interval{Axis: axis, Min: -region.Unbounded, Max: region.Unbounded, Exclusive: d.Exclusive}
	if d.Min != nil {
		iv.Min = *d.Min
	}
	if d.Max != nil {
		iv.Max = *d.Max
	}
	if iv.Min > iv.Max {
		return nil, invalid("interval on %s: min %g > max %g", axis, iv.Min, iv.Max)
	}
	return iv, nil
}

func (d PredicateDef) combine(terms []PredicateDef, mk func([]region.Predicate) region.Predicate) (region.Predicate, error) {
	preds := make([]region.Predicate, len(terms))
	for i, t := range terms {
		p, err := t.build()
		if err != nil {
			return nil, err
		}
		preds[i] = p
	}
	return mk(preds), nil
}

// Rule builds a chained rule from a rule list.
func Rule(defs []RuleDef) (morph.Rule, error) {
	if len(defs) == 0 {
		return nil, invalid("empty rule list")
	}
	rules := make(morph.Chain, len(defs))
	for i, d := range defs {
		r, err := d.build()
		if err != nil {
			return nil, err
		}
		rules[i] = r
	}
	if len(rules) == 1 {
		return rules[0], nil
	}
	return rules, nil
}

func (d RuleDef) build() (morph.Rule, error) {
	n := 0
	for _, set := range []bool{d.Offset != nil, d.Scale != nil, d.When != nil, d.Falloff != nil, d.Radial != nil} {
		if set {
			n++
		}
	}
	if n != 1 {
		return nil, invalid("rule must set exactly one of offset, scale, when, falloff, radial")
	}
	if d.Pivot != nil && d.Scale == nil {
		return nil, invalid("pivot without scale")
	}
	if d.Then != nil && d.When == nil {
		return nil, invalid("then without when")
	}

	switch {
	case d.Offset != nil:
		return morph.Offset{Delta: d.Offset.vec3()}, nil

	case d.Scale != nil:
		s := morph.ScaleAxes{Factors: d.Scale.vec3()}
		if d.Pivot != nil {
			s.Pivot = d.Pivot.vec3()
		}
		return s, nil

	case d.When != nil:
		pred, err := Predicate(d.When)
		if err != nil {
			return nil, err
		}
		then, err := Rule(d.Then)
		if err != nil {
			return nil, fmt.Errorf("when %s: %w", pred, err)
		}
		return morph.When{Pred: pred, Rule: then}, nil

	case d.Falloff != nil:
		axis, err := math.ParseAxis(d.Falloff.Axis)
		if err != nil {
			return nil, invalid("falloff: %v", err)
		}
		inner, err := Rule(d.Falloff.Rules)
		if err != nil {
			return nil, err
		}
		return morph.Falloff{Rule: inner, Axis: axis, From: d.Falloff.From, To: d.Falloff.To}, nil

	default:
		if d.Radial.Radius <= 0 || math32.IsNaN(d.Radial.Radius) {
			return nil, invalid("radial radius must be positive")
		}
		inner, err := Rule(d.Radial.Rules)
		if err != nil {
			return nil, err
		}
		return morph.Radial{Rule: inner, Center: d.Radial.Center.vec3(), Radius: d.Radial.Radius}, nil
	}
}

// Spec converts a target definition into a generation recipe.
func (t TargetDef) Spec() (rig.TargetSpec, error) {
	spec := rig.TargetSpec{
		Name:     t.Name,
		Region:   t.Region,
		Weight:   t.Weight,
		Inactive: t.Inactive,
	}
	if t.Range != nil {
		if t.Range.Min > t.Range.Max {
			return spec, invalid("target %q: range min %g > max %g", t.Name, t.Range.Min, t.Range.Max)
		}
		spec.Range = &morph.Range{Min: t.Range.Min, Max: t.Range.Max}
	}

	switch {
	case len(t.Rules) > 0 && len(t.Partitions) > 0:
		return spec, invalid("target %q sets both rules and partitions", t.Name)
	case len(t.Partitions) > 0:
		for _, p := range t.Partitions {
			part, err := p.build()
			if err != nil {
				return spec, fmt.Errorf("target %q partition %q: %w", t.Name, p.Name, err)
			}
			spec.Partitions = append(spec.Partitions, part)
		}
	default:
		r, err := Rule(t.Rules)
		if err != nil {
			return spec, fmt.Errorf("target %q: %w", t.Name, err)
		}
		spec.Rule = r
	}
	return spec, nil
}

func (p PartitionDef) build() (morph.Partition, error) {
	var pred region.Predicate = region.All()
	if len(p.Where) > 0 {
		var err error
		if pred, err = Predicate(p.Where); err != nil {
			return morph.Partition{}, err
		}
	}
	r, err := Rule(p.Rules)
	if err != nil {
		return morph.Partition{}, err
	}
	return morph.Partition{Name: p.Name, Pred: pred, Rule: r}, nil
}
