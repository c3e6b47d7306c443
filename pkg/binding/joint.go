package binding

import (
	"fmt"
	"strings"

	"github.com/Faultbox/facerig/pkg/math"
)

// Channel selects one scalar out of a joint sample.
type Channel int

const (
	RotX Channel = iota
	RotY
	RotZ
	LocX
	LocY
	LocZ
)

var channelNames = [...]string{"rot_x", "rot_y", "rot_z", "loc_x", "loc_y", "loc_z"}

func (c Channel) String() string {
	if c >= 0 && int(c) < len(channelNames) {
		return channelNames[c]
	}
	return fmt.Sprintf("Channel(%d)", int(c))
}

// ParseChannel accepts rot_x..loc_z, case-insensitive.
func ParseChannel(s string) (Channel, error) {
	s = strings.ToLower(s)
	for i, n := range channelNames {
		if n == s {
			return Channel(i), nil
		}
	}
	return 0, fmt.Errorf("invalid joint channel %q", s)
}

// JointSample is the local-space pose of one joint, supplied by the skeletal
// layer once per evaluation. The binding graph only reads it.
type JointSample struct {
	Rotation    math.Quat
	Translation math.Vec3
}

// SampleFromMat4 decomposes a local joint matrix.
func SampleFromMat4(m math.Mat4) JointSample {
	return JointSample{Rotation: m.Rotation(), Translation: m.Translation()}
}

// SampleFromEuler builds a sample from XYZ Euler angles (radians) and a translation.
func SampleFromEuler(rot, loc math.Vec3) JointSample {
	return JointSample{Rotation: math.QuatFromEuler(rot), Translation: loc}
}

// Value returns the channel value: Euler angle in radians for rotations,
// local translation for locations.
func (s JointSample) Value(c Channel) float32 {
	switch c {
	case RotX, RotY, RotZ:
		return s.Rotation.Euler().Component(math.Axis(c - RotX))
	default:
		return s.Translation.Component(math.Axis(c - LocX))
	}
}

// Joints maps joint names to their current samples.
type Joints map[string]JointSample
