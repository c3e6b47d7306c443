package morph

import (
	"fmt"
	"sync"

	"github.com/chewxy/math32"
)

// TargetID identifies a morph target within one Store.
type TargetID int

// Range is the authored weight range of a target.
type Range struct {
	Min float32 `yaml:"min"`
	Max float32 `yaml:"max"`
}

// DefaultRange is [0, 1].
var DefaultRange = Range{Min: 0, Max: 1}

// Clamp limits v to the range. NaN clamps to Min.
func (r Range) Clamp(v float32) float32 {
	if math32.IsNaN(v) {
		return r.Min
	}
	return math32.Max(r.Min, math32.Min(r.Max, v))
}

// Target is a read-only view of a stored morph target. Delta is shared with
// the store and must not be modified.
type Target struct {
	ID     TargetID
	Name   string
	Delta  Displacement
	Weight float32
	Range  Range
	Active bool
}

// Contribution is one weighted displacement handed to the composite evaluator.
type Contribution struct {
	Delta  Displacement
	Weight float32
}

// TargetOption configures a target on Add.
type TargetOption func(*target)

// WithRange overrides the default [0, 1] weight range. Add rejects
// min > max.
func WithRange(min, max float32) TargetOption {
	return func(t *target) {
		t.rng = Range{Min: min, Max: max}
	}
}

// WithWeight sets the initial weight (clamped to the range).
func WithWeight(w float32) TargetOption {
	return func(t *target) {
		t.weight = w
	}
}

// Inactive adds the target with its activation flag cleared.
func Inactive() TargetOption {
	return func(t *target) {
		t.active = false
	}
}

type target struct {
	id     TargetID
	name   string
	delta  Displacement
	weight float32
	rng    Range
	active bool
}

func (t *target) view() Target {
	return Target{
		ID:     t.id,
		Name:   t.name,
		Delta:  t.delta,
		Weight: t.weight,
		Range:  t.rng,
		Active: t.active,
	}
}

// InUseFunc reports whether a target is referenced by a binding.
type InUseFunc func(id TargetID) bool

// Store is an insertion-ordered collection of named morph targets sharing
// one basis. It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	basisLen int
	order    []*target
	byName   map[string]*target
	byID     map[TargetID]*target
	nextID   TargetID
	inUse    InUseFunc
}

// NewStore creates an empty store for a basis of basisLen vertices.
func NewStore(basisLen int) *Store {
	return &Store{
		basisLen: basisLen,
		byName:   make(map[string]*target),
		byID:     make(map[TargetID]*target),
		nextID:   1,
	}
}

// BasisLen returns the vertex count every displacement must match.
func (s *Store) BasisLen() int {
	return s.basisLen
}

// SetInUseFunc installs the check consulted by Remove.
func (s *Store) SetInUseFunc(fn InUseFunc) {
	s.mu.Lock()
	s.inUse = fn
	s.mu.Unlock()
}

// Add stores a new target. The displacement is owned by the store afterwards.
func (s *Store) Add(name string, d Displacement, opts ...TargetOption) (TargetID, error) {
	if len(d) != s.basisLen {
		return 0, ErrLengthMismatch
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byName[name]; ok {
		return 0, &DuplicateNameError{Name: name}
	}

	t := &target{
		id:     s.nextID,
		name:   name,
		delta:  d,
		rng:    DefaultRange,
		active: true,
	}
	for _, opt := range opts {
		opt(t)
	}
	if !(t.rng.Min <= t.rng.Max) {
		return 0, fmt.Errorf("target %q: %w [%g, %g]", name, ErrInvalidRange, t.rng.Min, t.rng.Max)
	}
	t.weight = t.rng.Clamp(t.weight)

	s.nextID++
	s.order = append(s.order, t)
	s.byName[name] = t
	s.byID[t.id] = t
	return t.id, nil
}

// SetWeight clamps value to the target's range and stores it.
func (s *Store) SetWeight(id TargetID, value float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byID[id]
	if !ok {
		return ErrUnknownTarget
	}
	t.weight = t.rng.Clamp(value)
	return nil
}

// Weight returns the current weight.
func (s *Store) Weight(id TargetID) (float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.byID[id]
	if !ok {
		return 0, ErrUnknownTarget
	}
	return t.weight, nil
}

// SetActive toggles whether the target contributes to evaluation.
func (s *Store) SetActive(id TargetID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byID[id]
	if !ok {
		return ErrUnknownTarget
	}
	t.active = active
	return nil
}

// ReplaceDisplacement swaps in a regenerated buffer, keeping weight, range
// and bindings. Buffers are replaced, never patched.
func (s *Store) ReplaceDisplacement(id TargetID, d Displacement) error {
	if len(d) != s.basisLen {
		return ErrLengthMismatch
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byID[id]
	if !ok {
		return ErrUnknownTarget
	}
	t.delta = d
	return nil
}

// Remove drops a target. It fails with TargetInUseError while a binding
// still references it.
func (s *Store) Remove(id TargetID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byID[id]
	if !ok {
		return ErrUnknownTarget
	}
	if s.inUse != nil && s.inUse(id) {
		return &TargetInUseError{Name: t.name}
	}

	delete(s.byID, id)
	delete(s.byName, t.name)
	for i, o := range s.order {
		if o == t {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Lookup resolves a name to its ID.
func (s *Store) Lookup(name string) (TargetID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.byName[name]
	if !ok {
		return 0, false
	}
	return t.id, true
}

// Get returns a view of one target.
func (s *Store) Get(id TargetID) (Target, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.byID[id]
	if !ok {
		return Target{}, false
	}
	return t.view(), true
}

// Len returns the number of targets.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Targets returns all targets in insertion order.
func (s *Store) Targets() []Target {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Target, len(s.order))
	for i, t := range s.order {
		out[i] = t.view()
	}
	return out
}

// Snapshot captures the active targets and their weights at this instant.
// Targets with weight 0 are included; the evaluator may skip them.
func (s *Store) Snapshot() []Contribution {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Contribution, 0, len(s.order))
	for _, t := range s.order {
		if !t.active {
			continue
		}
		out = append(out, Contribution{Delta: t.delta, Weight: t.weight})
	}
	return out
}
