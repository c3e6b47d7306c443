package rig

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"
	"go.uber.org/multierr"

	"github.com/Faultbox/facerig/pkg/binding"
	"github.com/Faultbox/facerig/pkg/control"
	"github.com/Faultbox/facerig/pkg/math"
)

// ErrDuplicateJointDriver is returned when a joint channel already has a driver.
var ErrDuplicateJointDriver = errors.New("joint channel already driven")

// JointDriver poses one joint channel from control parameters, e.g. the jaw's
// X rotation from jaw_rotation. The value is limited to [Min, Max].
type JointDriver struct {
	Joint   string
	Channel binding.Channel
	Expr    binding.Expr
	Min     float32
	Max     float32
}

// DriveJoint registers a joint driver.
func (r *Rig) DriveJoint(d JointDriver) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d.Min > d.Max {
		return fmt.Errorf("joint %s.%s: limit min %g > max %g", d.Joint, d.Channel, d.Min, d.Max)
	}
	for _, o := range r.drivers {
		if o.Joint == d.Joint && o.Channel == d.Channel {
			return fmt.Errorf("%w: %s.%s", ErrDuplicateJointDriver, d.Joint, d.Channel)
		}
	}
	r.drivers = append(r.drivers, d)
	return nil
}

// JointDrivers returns the registered drivers in order.
func (r *Rig) JointDrivers() []JointDriver {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]JointDriver(nil), r.drivers...)
}

// poseJoints overlays driven channels on the externally supplied samples.
// A failing driver leaves its channel at the external value.
func poseJoints(drivers []JointDriver, params control.Values, external binding.Joints) (binding.Joints, error) {
	if len(drivers) == 0 {
		return external, nil
	}

	type pose struct{ rot, loc math.Vec3 }
	poses := make(map[string]*pose)

	in := binding.Inputs{Params: params, Joints: external}
	var errs error
	for _, d := range drivers {
		v, err := d.Expr.Eval(in)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("joint %s.%s: %w", d.Joint, d.Channel, err))
			continue
		}
		v = math32.Max(d.Min, math32.Min(d.Max, v))

		p, ok := poses[d.Joint]
		if !ok {
			p = &pose{}
			if s, ok := external[d.Joint]; ok {
				p.rot, p.loc = s.Rotation.Euler(), s.Translation
			}
			poses[d.Joint] = p
		}
		switch d.Channel {
		case binding.RotX, binding.RotY, binding.RotZ:
			p.rot = p.rot.With(math.Axis(d.Channel-binding.RotX), v)
		default:
			p.loc = p.loc.With(math.Axis(d.Channel-binding.LocX), v)
		}
	}

	out := make(binding.Joints, len(external)+len(poses))
	for name, s := range external {
		out[name] = s
	}
	for name, p := range poses {
		out[name] = binding.SampleFromEuler(p.rot, p.loc)
	}
	return out, errs
}
