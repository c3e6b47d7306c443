// Package control holds the named scalar inputs of a rig: mouth open amount,
// vowel intensities, talk intensity and similar, each with a declared range.
package control

import (
	"errors"
	"fmt"
	"sync"

	"github.com/chewxy/math32"
)

// Parameter errors.
var (
	ErrUnknownParameter   = errors.New("unknown control parameter")
	ErrDuplicateParameter = errors.New("control parameter already declared")
	ErrInvalidRange       = errors.New("invalid parameter range")
)

// UnknownParameterError names the parameter that was not declared.
type UnknownParameterError struct {
	Name string
}

func (e *UnknownParameterError) Error() string {
	return fmt.Sprintf("%v: %q", ErrUnknownParameter, e.Name)
}

func (e *UnknownParameterError) Is(target error) bool { return target == ErrUnknownParameter }

// Parameter is a snapshot of one declared input.
type Parameter struct {
	Name    string
	Value   float32
	Min     float32
	Max     float32
	Default float32
}

func (p *Parameter) clamp(v float32) float32 {
	if math32.IsNaN(v) {
		return p.Default
	}
	return math32.Max(p.Min, math32.Min(p.Max, v))
}

// Set is the process-wide parameter table of one rig instance.
type Set struct {
	mu     sync.RWMutex
	params map[string]*Parameter
	order  []string
}

// NewSet creates an empty parameter set.
func NewSet() *Set {
	return &Set{params: make(map[string]*Parameter)}
}

// Declare adds a parameter. The default is clamped into [min, max].
func (s *Set) Declare(name string, min, max, def float32) error {
	if min > max || math32.IsNaN(min) || math32.IsNaN(max) {
		return fmt.Errorf("%w: %q [%g, %g]", ErrInvalidRange, name, min, max)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.params[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateParameter, name)
	}
	p := &Parameter{Name: name, Min: min, Max: max}
	p.Default = math32.Max(min, math32.Min(max, def))
	p.Value = p.Default
	s.params[name] = p
	s.order = append(s.order, name)
	return nil
}

// Undeclare removes a parameter. Bindings that read it fail to resolve on
// their next evaluation.
func (s *Set) Undeclare(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.params[name]; !ok {
		return &UnknownParameterError{Name: name}
	}
	delete(s.params, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Set stores value clamped to the declared range. Clamping is silent so UI
// sliders may overshoot transiently.
func (s *Set) Set(name string, value float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.params[name]
	if !ok {
		return &UnknownParameterError{Name: name}
	}
	p.Value = p.clamp(value)
	return nil
}

// Get returns the current value.
func (s *Set) Get(name string) (float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.params[name]
	if !ok {
		return 0, &UnknownParameterError{Name: name}
	}
	return p.Value, nil
}

// Reset restores every parameter to its default.
func (s *Set) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.params {
		p.Value = p.Default
	}
}

// Parameters returns all parameters in declaration order.
func (s *Set) Parameters() []Parameter {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Parameter, len(s.order))
	for i, n := range s.order {
		out[i] = *s.params[n]
	}
	return out
}

// Snapshot copies the current values. Evaluation reads only the snapshot, so
// a writer cannot tear a tick.
func (s *Set) Snapshot() Values {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v := make(Values, len(s.params))
	for name, p := range s.params {
		v[name] = p.Value
	}
	return v
}

// Values is an immutable-by-convention view of parameter values.
type Values map[string]float32

// Lookup returns the value and whether the parameter exists.
func (v Values) Lookup(name string) (float32, bool) {
	x, ok := v[name]
	return x, ok
}
