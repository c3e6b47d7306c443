package morph

import (
	"errors"
	"fmt"
)

// Morph target errors.
var (
	ErrDuplicateName   = errors.New("duplicate morph target name")
	ErrTargetInUse     = errors.New("morph target is referenced by a binding")
	ErrUnknownTarget   = errors.New("unknown morph target")
	ErrBoundsViolation = errors.New("vertex index out of basis range")
	ErrLengthMismatch  = errors.New("displacement length does not match basis")
	ErrNoRule          = errors.New("no displacement rule")
	ErrInvalidRange    = errors.New("invalid weight range")
)

// DuplicateNameError is returned by Store.Add when the name is taken.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("%v: %q", ErrDuplicateName, e.Name)
}

func (e *DuplicateNameError) Is(target error) bool { return target == ErrDuplicateName }

// TargetInUseError is returned by Store.Remove while a binding still drives the target.
type TargetInUseError struct {
	Name string
}

func (e *TargetInUseError) Error() string {
	return fmt.Sprintf("%v: %q (remove its binding first)", ErrTargetInUse, e.Name)
}

func (e *TargetInUseError) Is(target error) bool { return target == ErrTargetInUse }

// BoundsViolationError reports a region index outside the basis. It is a
// programming error: the region was classified against a different basis.
type BoundsViolationError struct {
	Index int
	Len   int
}

func (e *BoundsViolationError) Error() string {
	return fmt.Sprintf("%v: index %d, basis has %d vertices", ErrBoundsViolation, e.Index, e.Len)
}

func (e *BoundsViolationError) Is(target error) bool { return target == ErrBoundsViolation }
