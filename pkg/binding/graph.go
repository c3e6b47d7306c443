package binding

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/facerig/pkg/control"
	"github.com/Faultbox/facerig/pkg/morph"
)

// Binding graph errors.
var (
	ErrAlreadyBound = errors.New("morph target already has a binding")
	ErrNotBound     = errors.New("morph target has no binding")
)

// DuplicateBindingError is returned by Bind when the target is already driven.
type DuplicateBindingError struct {
	Target string
}

func (e *DuplicateBindingError) Error() string {
	return fmt.Sprintf("%v: %q", ErrAlreadyBound, e.Target)
}

func (e *DuplicateBindingError) Is(target error) bool { return target == ErrAlreadyBound }

// Binding drives one morph target weight.
type Binding struct {
	Target morph.TargetID
	Name   string
	Expr   Expr
}

// Entry is one row of the exported driver table.
type Entry struct {
	Target     string `yaml:"target"`
	Expression string `yaml:"expression"`
}

// Inputs is the evaluation environment: a parameter snapshot plus joint samples.
type Inputs struct {
	Params control.Values
	Joints Joints
}

func (in Inputs) Param(name string) (float32, bool) { return in.Params.Lookup(name) }

func (in Inputs) Joint(name string) (JointSample, bool) {
	s, ok := in.Joints[name]
	return s, ok
}

// Option configures a Graph.
type Option func(*Graph)

// WithLogger sets the logger used for binding failures.
func WithLogger(log *zap.Logger) Option {
	return func(g *Graph) {
		if log != nil {
			g.log = log
		}
	}
}

// Graph maps morph targets to expressions. It owns no data besides the
// bindings: weights live in the store, inputs come in per evaluation.
type Graph struct {
	mu       sync.RWMutex
	store    *morph.Store
	order    []*Binding
	byTarget map[morph.TargetID]*Binding

	log     *zap.Logger
	failMu  sync.Mutex
	failing map[morph.TargetID]string
}

// NewGraph creates a graph writing into store and registers it as the
// store's in-use check, so bound targets cannot be removed.
func NewGraph(store *morph.Store, opts ...Option) *Graph {
	g := &Graph{
		store:    store,
		byTarget: make(map[morph.TargetID]*Binding),
		log:      zap.NewNop(),
		failing:  make(map[morph.TargetID]string),
	}
	for _, opt := range opts {
		opt(g)
	}
	store.SetInUseFunc(g.Uses)
	return g
}

// Bind attaches expr to target. References are not checked here; unknown
// inputs surface as UnresolvedReferenceError at evaluation.
func (g *Graph) Bind(target morph.TargetID, expr Expr) error {
	if expr == nil {
		return fmt.Errorf("bind target %d: nil expression", target)
	}
	t, ok := g.store.Get(target)
	if !ok {
		return morph.ErrUnknownTarget
	}

	g.mu.Lock()
	if _, ok := g.byTarget[target]; ok {
		g.mu.Unlock()
		return &DuplicateBindingError{Target: t.Name}
	}
	b := &Binding{Target: target, Name: t.Name, Expr: expr}
	g.order = append(g.order, b)
	g.byTarget[target] = b
	g.mu.Unlock()

	// The store cannot be read under g.mu (Remove calls Uses with the store
	// locked). A Remove that raced the insert either saw the binding and
	// refused, or finished first and the target is gone now.
	if _, ok := g.store.Get(target); !ok {
		g.drop(target)
		return morph.ErrUnknownTarget
	}
	return nil
}

// Unbind detaches the target's binding. The weight keeps its last value.
func (g *Graph) Unbind(target morph.TargetID) error {
	if !g.drop(target) {
		return ErrNotBound
	}
	return nil
}

func (g *Graph) drop(target morph.TargetID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	b, ok := g.byTarget[target]
	if !ok {
		return false
	}
	delete(g.byTarget, target)
	for i, o := range g.order {
		if o == b {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}

	g.failMu.Lock()
	delete(g.failing, target)
	g.failMu.Unlock()
	return true
}

// Uses reports whether a binding drives target.
func (g *Graph) Uses(target morph.TargetID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.byTarget[target]
	return ok
}

// Lookup returns the binding for target.
func (g *Graph) Lookup(target morph.TargetID) (Binding, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	b, ok := g.byTarget[target]
	if !ok {
		return Binding{}, false
	}
	return *b, true
}

// Bindings returns all bindings in registration order.
func (g *Graph) Bindings() []Binding {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]Binding, len(g.order))
	for i, b := range g.order {
		out[i] = *b
	}
	return out
}

// Table exports the bindings as target/expression text pairs.
func (g *Graph) Table() []Entry {
	bindings := g.Bindings()
	out := make([]Entry, len(bindings))
	for i, b := range bindings {
		out[i] = Entry{Target: b.Name, Expression: b.Expr.String()}
	}
	return out
}

// Evaluate computes every binding against one consistent set of inputs and
// writes the results through the store, which clamps them to each target's
// range. A failing binding leaves its weight unchanged; the others still
// run. All failures are returned combined.
func (g *Graph) Evaluate(params control.Values, joints Joints) error {
	// Copy under our lock, write without it: Store.Remove calls Uses while
	// holding the store lock.
	bindings := g.Bindings()
	in := Inputs{Params: params, Joints: joints}

	var errs error
	for _, b := range bindings {
		v, err := b.Expr.Eval(in)
		if err == nil {
			err = g.store.SetWeight(b.Target, v)
		}
		if err != nil {
			err = g.annotate(b, err)
			g.reportFailure(b, err)
			errs = multierr.Append(errs, err)
			continue
		}
		g.reportRecovery(b)
	}
	return errs
}

func (g *Graph) annotate(b Binding, err error) error {
	var ure *UnresolvedReferenceError
	if errors.As(err, &ure) {
		return &UnresolvedReferenceError{Target: b.Name, Ref: ure.Ref}
	}
	return fmt.Errorf("binding %q: %w", b.Name, err)
}

// reportFailure logs once per distinct failure so a broken binding does not
// flood the log every tick.
func (g *Graph) reportFailure(b Binding, err error) {
	msg := err.Error()

	g.failMu.Lock()
	last, seen := g.failing[b.Target]
	g.failing[b.Target] = msg
	g.failMu.Unlock()

	if seen && last == msg {
		return
	}
	g.log.Warn("binding evaluation failed",
		zap.String("target", b.Name),
		zap.String("expression", b.Expr.String()),
		zap.Error(err))
}

func (g *Graph) reportRecovery(b Binding) {
	g.failMu.Lock()
	_, seen := g.failing[b.Target]
	delete(g.failing, b.Target)
	g.failMu.Unlock()

	if seen {
		g.log.Info("binding recovered", zap.String("target", b.Name))
	}
}
