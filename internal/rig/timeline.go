package rig

import (
	"context"
	"fmt"
	"sort"

	"github.com/Faultbox/facerig/pkg/binding"
	"github.com/Faultbox/facerig/pkg/math"
)

// Key sets parameter values and joint poses at one frame. Parameters and
// joints absent from a key are interpolated between the neighbouring keys
// that do set them.
type Key struct {
	Frame  int                 `yaml:"frame"`
	Values map[string]float32  `yaml:"values,omitempty"`
	Joints map[string]JointKey `yaml:"joints,omitempty"`
}

// JointKey is a keyed joint pose: XYZ Euler angles in radians and a local
// translation.
type JointKey struct {
	Rot math.Vec3 `yaml:"rot"`
	Loc math.Vec3 `yaml:"loc"`
}

// Timeline is a keyframed parameter animation.
type Timeline struct {
	Name      string  `yaml:"name"`
	FrameRate float32 `yaml:"frame_rate"`
	Start     int     `yaml:"start"`
	End       int     `yaml:"end"`
	Keys      []Key   `yaml:"keys"`
}

type keyValue struct {
	frame int
	value float32
}

// Sample returns every parameter value at frame. Values hold before the
// first key and after the last one.
func (tl *Timeline) Sample(frame float32) map[string]float32 {
	tracks := tl.tracks()
	out := make(map[string]float32, len(tracks))
	for name, keys := range tracks {
		out[name] = interpolate(keys, frame)
	}
	return out
}

func (tl *Timeline) tracks() map[string][]keyValue {
	tracks := make(map[string][]keyValue)
	for _, k := range tl.Keys {
		for name, v := range k.Values {
			tracks[name] = append(tracks[name], keyValue{frame: k.Frame, value: v})
		}
	}
	for _, keys := range tracks {
		sort.SliceStable(keys, func(i, j int) bool { return keys[i].frame < keys[j].frame })
	}
	return tracks
}

// bracket finds the keys surrounding frame in a sorted frame list and the
// blend factor between them. prev == next before the first key and at or
// after the last one.
func bracket(n int, frameAt func(i int) int, frame float32) (prev, next int, t float32) {
	for i := 0; i < n; i++ {
		if float32(frameAt(i)) > frame {
			next = i
			break
		}
		prev = i
		next = i
	}
	if prev == next {
		return prev, next, 0
	}
	f0, f1 := frameAt(prev), frameAt(next)
	if f1 != f0 {
		t = (frame - float32(f0)) / float32(f1-f0)
	}
	return prev, next, t
}

// interpolate blends the surrounding keys linearly.
func interpolate(keys []keyValue, frame float32) float32 {
	if len(keys) == 0 {
		return 0
	}
	prev, next, t := bracket(len(keys), func(i int) int { return keys[i].frame }, frame)
	k0, k1 := keys[prev], keys[next]
	return k0.value + t*(k1.value-k0.value)
}

type jointKey struct {
	frame int
	rot   math.Quat
	loc   math.Vec3
}

// SampleJoints returns the keyed joint poses at frame, or nil when the
// timeline keys no joints. Rotations are blended with Slerp, translations
// linearly.
func (tl *Timeline) SampleJoints(frame float32) binding.Joints {
	tracks := make(map[string][]jointKey)
	for _, k := range tl.Keys {
		for name, jk := range k.Joints {
			tracks[name] = append(tracks[name], jointKey{
				frame: k.Frame,
				rot:   math.QuatFromEuler(jk.Rot),
				loc:   jk.Loc,
			})
		}
	}
	if len(tracks) == 0 {
		return nil
	}

	out := make(binding.Joints, len(tracks))
	for name, keys := range tracks {
		sort.SliceStable(keys, func(i, j int) bool { return keys[i].frame < keys[j].frame })
		prev, next, t := bracket(len(keys), func(i int) int { return keys[i].frame }, frame)
		k0, k1 := keys[prev], keys[next]
		out[name] = binding.JointSample{
			Rotation:    k0.rot.Slerp(k1.rot, t),
			Translation: k0.loc.Lerp(k1.loc, t),
		}
	}
	return out
}

// Play evaluates every frame of tl on r, posing any keyed joints, and
// records the resulting weights.
// fn, if set, sees each frame after it is recorded.
func (r *Rig) Play(ctx context.Context, tl *Timeline, rec *Recorder, fn func(frame int, f *Frame) error) error {
	if tl.End < tl.Start {
		return fmt.Errorf("timeline %q: end %d before start %d", tl.Name, tl.End, tl.Start)
	}
	for frame := tl.Start; frame <= tl.End; frame++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		values := tl.Sample(float32(frame))
		names := make([]string, 0, len(values))
		for name := range values {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			r.SetParameter(name, values[name])
		}

		f, err := r.Evaluate(ctx, tl.SampleJoints(float32(frame)))
		if err != nil {
			return fmt.Errorf("frame %d: %w", frame, err)
		}
		if rec != nil {
			rec.Record(f)
		}
		if fn != nil {
			if err := fn(frame, f); err != nil {
				return err
			}
		}
	}
	return nil
}
