// Package rig assembles the blendshape pipeline around one basis mesh:
// regions, generated morph targets, control parameters, bindings and the
// composite evaluator. It is the command surface used by rigdef, the console
// and rigtool.
package rig

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/facerig/internal/logger"
	"github.com/Faultbox/facerig/pkg/binding"
	"github.com/Faultbox/facerig/pkg/composite"
	"github.com/Faultbox/facerig/pkg/control"
	"github.com/Faultbox/facerig/pkg/formats"
	"github.com/Faultbox/facerig/pkg/mesh"
	"github.com/Faultbox/facerig/pkg/morph"
	"github.com/Faultbox/facerig/pkg/region"
)

// Rig errors.
var (
	ErrUnknownRegion   = errors.New("unknown region")
	ErrDuplicateRegion = errors.New("region already declared")
	ErrBasisMismatch   = errors.New("new basis has a different vertex count")
)

// TargetSpec is the generation recipe of one morph target. It is kept so the
// target can be rebuilt when the basis changes.
type TargetSpec struct {
	Name       string
	Region     string
	Rule       morph.Rule
	Partitions []morph.Partition
	Range      *morph.Range // nil for [0, 1]
	Weight     float32
	Inactive   bool
}

// RegionInfo describes a declared region and its current classification.
type RegionInfo struct {
	Name      string
	Predicate region.Predicate
	Set       region.Set
	Stats     region.Stats
}

// Option configures a Rig.
type Option func(*Rig)

// WithLogger sets the rig logger. Binding failures go to its "binding" child.
func WithLogger(log *zap.Logger) Option {
	return func(r *Rig) {
		if log != nil {
			r.log = log
		}
	}
}

// WithEvaluator replaces the default composite evaluator.
func WithEvaluator(ev *composite.Evaluator) Option {
	return func(r *Rig) {
		if ev != nil {
			r.eval = ev
		}
	}
}

// Rig owns every piece of rig state. Commands and Evaluate are serialized;
// SetParameter only enqueues and may be called from any goroutine.
type Rig struct {
	mu sync.Mutex

	basis   *mesh.Basis
	regions map[string]*RegionInfo
	order   []string

	store  *morph.Store
	params *control.Set
	queue  *control.Queue
	graph  *binding.Graph
	eval   *composite.Evaluator

	recipes map[morph.TargetID]TargetSpec
	drivers []JointDriver

	log  *zap.Logger
	once *logger.Once
}

// New creates an empty rig over basis.
func New(basis *mesh.Basis, opts ...Option) *Rig {
	r := &Rig{
		basis:   basis,
		regions: make(map[string]*RegionInfo),
		store:   morph.NewStore(basis.Len()),
		params:  control.NewSet(),
		queue:   control.NewQueue(),
		eval:    composite.NewEvaluator(),
		recipes: make(map[morph.TargetID]TargetSpec),
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.once = logger.NewOnce(r.log)
	r.graph = binding.NewGraph(r.store, binding.WithLogger(r.log.Named("binding")))
	return r
}

// Basis returns the current rest mesh.
func (r *Rig) Basis() *mesh.Basis {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.basis
}

// Store exposes the morph target store for read access.
func (r *Rig) Store() *morph.Store { return r.store }

// Params exposes the parameter set for read access.
func (r *Rig) Params() *control.Set { return r.params }

// Graph exposes the binding graph for read access.
func (r *Rig) Graph() *binding.Graph { return r.graph }

// DeclareRegion classifies pred against the basis and stores the result under
// name. An empty result is logged and returned as a warning, not an error.
func (r *Rig) DeclareRegion(name string, pred region.Predicate) (region.Set, *region.EmptyRegionWarning, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.regions[name]; ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrDuplicateRegion, name)
	}
	reg := region.Region{Name: name, Predicate: pred}
	set, warn := reg.Classify(r.basis)
	if warn != nil {
		r.log.Warn("empty region", zap.String("region", name), zap.String("predicate", warn.Predicate))
	}
	r.regions[name] = &RegionInfo{
		Name:      name,
		Predicate: pred,
		Set:       set,
		Stats:     region.Describe(r.basis, set),
	}
	r.order = append(r.order, name)
	r.log.Debug("region declared", zap.String("region", name), zap.Int("vertices", len(set)))
	return set, warn, nil
}

// Region returns a declared region.
func (r *Rig) Region(name string) (RegionInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.regions[name]
	if !ok {
		return RegionInfo{}, false
	}
	return *info, true
}

// Regions returns all regions in declaration order.
func (r *Rig) Regions() []RegionInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RegionInfo, len(r.order))
	for i, name := range r.order {
		out[i] = *r.regions[name]
	}
	return out
}

// GenerateTarget runs spec against its region and stores the result.
func (r *Rig) GenerateTarget(spec TargetSpec) (morph.TargetID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, ok := r.regions[spec.Region]
	if !ok {
		return 0, fmt.Errorf("target %q: %w: %q", spec.Name, ErrUnknownRegion, spec.Region)
	}
	d, err := morph.Generate(r.basis, info.Set, spec.Rule, spec.Partitions...)
	if err != nil {
		return 0, fmt.Errorf("target %q: %w", spec.Name, err)
	}

	opts := []morph.TargetOption{morph.WithWeight(spec.Weight)}
	if spec.Range != nil {
		opts = append(opts, morph.WithRange(spec.Range.Min, spec.Range.Max))
	}
	if spec.Inactive {
		opts = append(opts, morph.Inactive())
	}
	id, err := r.store.Add(spec.Name, d, opts...)
	if err != nil {
		return 0, err
	}
	r.recipes[id] = spec
	r.log.Debug("target generated",
		zap.String("target", spec.Name),
		zap.String("region", spec.Region),
		zap.Int("displaced", d.NonZero()))
	return id, nil
}

// AddTarget stores a precomputed displacement, e.g. one loaded from an MTG
// file. It has no recipe and is left alone by Regenerate.
func (r *Rig) AddTarget(name string, d morph.Displacement, opts ...morph.TargetOption) (morph.TargetID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.Add(name, d, opts...)
}

// ImportTargets adds every target of a parsed MTG container with its weight,
// range and activation. Targets added before a failure stay in the rig.
func (r *Rig) ImportTargets(m *formats.MTG) ([]morph.TargetID, error) {
	if n := r.Basis().Len(); m.VertexCount != n {
		return nil, fmt.Errorf("%w: container has %d vertices, basis %d", ErrBasisMismatch, m.VertexCount, n)
	}
	ids := make([]morph.TargetID, 0, len(m.Targets))
	for _, t := range m.Targets {
		id, err := r.AddTarget(t.Name, t.Delta, t.Options()...)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	r.log.Debug("targets imported", zap.Int("targets", len(ids)))
	return ids, nil
}

// RemoveTarget drops a target. It fails with morph.TargetInUseError while a
// binding drives it.
func (r *Rig) RemoveTarget(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, err := r.lookup(name)
	if err != nil {
		return err
	}
	if err := r.store.Remove(id); err != nil {
		return err
	}
	delete(r.recipes, id)
	return nil
}

// SetTargetWeight writes a weight directly. A bound target is overwritten on
// the next evaluation.
func (r *Rig) SetTargetWeight(name string, w float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, err := r.lookup(name)
	if err != nil {
		return err
	}
	return r.store.SetWeight(id, w)
}

// DeclareParameter adds a control parameter.
func (r *Rig) DeclareParameter(name string, min, max, def float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.params.Declare(name, min, max, def); err != nil {
		return err
	}
	r.once.Reset(paramKey(name))
	return nil
}

// UndeclareParameter removes a control parameter. Bindings reading it fail
// to resolve until it is declared again.
func (r *Rig) UndeclareParameter(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.params.Undeclare(name)
}

// SetParameter enqueues a write applied at the start of the next Evaluate.
func (r *Rig) SetParameter(name string, v float32) {
	r.queue.Push(name, v)
}

// Bind drives target's weight with expr.
func (r *Rig) Bind(target string, expr binding.Expr) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, err := r.lookup(target)
	if err != nil {
		return err
	}
	return r.graph.Bind(id, expr)
}

// BindText parses text and binds it to target.
func (r *Rig) BindText(target, text string) error {
	expr, err := binding.Parse(text)
	if err != nil {
		return fmt.Errorf("binding %q: %w", target, err)
	}
	return r.Bind(target, expr)
}

// Unbind detaches target's binding.
func (r *Rig) Unbind(target string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, err := r.lookup(target)
	if err != nil {
		return err
	}
	return r.graph.Unbind(id)
}

func (r *Rig) lookup(name string) (morph.TargetID, error) {
	id, ok := r.store.Lookup(name)
	if !ok {
		return 0, fmt.Errorf("%w: %q", morph.ErrUnknownTarget, name)
	}
	return id, nil
}

// TargetWeight is one row of a frame's weight table.
type TargetWeight struct {
	Name   string
	Weight float32
	Active bool
}

// Frame is the result of one evaluation.
type Frame struct {
	Positions mesh.VertexBuffer
	Weights   []TargetWeight
	// BindingErrors holds the isolated binding failures of this tick
	// (inspect with multierr.Errors). Their targets kept their last weight.
	BindingErrors error
	// Dropped holds queued writes to undeclared parameters.
	Dropped []error
	// Joints are the samples the bindings saw, driven channels included.
	Joints binding.Joints
}

// Evaluate drains queued parameter writes, poses driven joint channels on top
// of the given samples, runs every binding against one parameter snapshot,
// and composites the result.
// Binding failures do not fail the call; they are reported on the frame.
func (r *Rig) Evaluate(ctx context.Context, joints binding.Joints) (*Frame, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	frame := &Frame{}
	frame.Dropped = r.queue.Drain(r.params)
	for _, err := range frame.Dropped {
		var upe *control.UnknownParameterError
		if errors.As(err, &upe) {
			r.once.Warn(paramKey(upe.Name), "dropping write to undeclared parameter", zap.String("parameter", upe.Name))
		}
	}

	params := r.params.Snapshot()
	posed, err := poseJoints(r.drivers, params, joints)
	for _, e := range multierr.Errors(err) {
		r.once.Error("joint:"+e.Error(), "joint driver failed", zap.Error(e))
	}
	frame.Joints = posed
	frame.BindingErrors = multierr.Append(err, r.graph.Evaluate(params, posed))

	positions, err := r.eval.Evaluate(ctx, r.basis, r.store.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("composite: %w", err)
	}
	frame.Positions = positions
	frame.Weights = r.weights()
	return frame, nil
}

// Weights returns the current weight of every target in insertion order.
func (r *Rig) Weights() []TargetWeight {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.weights()
}

func (r *Rig) weights() []TargetWeight {
	targets := r.store.Targets()
	out := make([]TargetWeight, len(targets))
	for i, t := range targets {
		out[i] = TargetWeight{Name: t.Name, Weight: t.Weight, Active: t.Active}
	}
	return out
}

// Regenerate swaps in an edited basis with the same vertex count, then
// re-classifies every region and rebuilds every generated target from its
// recipe. Weights, ranges and bindings are kept. A nil basis re-runs the
// recipes against the current one.
func (r *Rig) Regenerate(basis *mesh.Basis) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if basis == nil {
		basis = r.basis
	}
	if basis.Len() != r.basis.Len() {
		return fmt.Errorf("%w: %d != %d", ErrBasisMismatch, basis.Len(), r.basis.Len())
	}

	regions := make(map[string]*RegionInfo, len(r.regions))
	for name, info := range r.regions {
		set, warn := region.Region{Name: name, Predicate: info.Predicate}.Classify(basis)
		if warn != nil {
			r.log.Warn("empty region", zap.String("region", name), zap.String("predicate", warn.Predicate))
		}
		regions[name] = &RegionInfo{
			Name:      name,
			Predicate: info.Predicate,
			Set:       set,
			Stats:     region.Describe(basis, set),
		}
	}

	// Build everything before swapping so a failure leaves the rig untouched.
	rebuilt := make(map[morph.TargetID]morph.Displacement, len(r.recipes))
	for id, spec := range r.recipes {
		d, err := morph.Generate(basis, regions[spec.Region].Set, spec.Rule, spec.Partitions...)
		if err != nil {
			return fmt.Errorf("regenerate %q: %w", spec.Name, err)
		}
		rebuilt[id] = d
	}
	for id, d := range rebuilt {
		if err := r.store.ReplaceDisplacement(id, d); err != nil {
			return fmt.Errorf("regenerate %q: %w", r.recipes[id].Name, err)
		}
	}

	r.basis = basis
	r.regions = regions
	r.log.Info("rig regenerated", zap.Int("regions", len(regions)), zap.Int("targets", len(rebuilt)))
	return nil
}

func paramKey(name string) string {
	return "param:" + name
}
