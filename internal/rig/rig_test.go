package rig

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Faultbox/facerig/pkg/binding"
	"github.com/Faultbox/facerig/pkg/composite"
	"github.com/Faultbox/facerig/pkg/formats"
	"github.com/Faultbox/facerig/pkg/math"
	"github.com/Faultbox/facerig/pkg/mesh"
	"github.com/Faultbox/facerig/pkg/morph"
	"github.com/Faultbox/facerig/pkg/region"
)

// faceBasis lays a vertex grid over the lower front of a unit head at
// y = -0.6, plus one vertex far behind the face. Grid lines stay clear of the
// mouth box edges.
func faceBasis(t *testing.T) *mesh.Basis {
	t.Helper()
	xs := []float32{-0.3, -0.2, -0.1, 0, 0.1, 0.2, 0.3}
	zs := []float32{-0.4, -0.3, -0.22, -0.17, -0.12, -0.05, 0}
	var pts []math.Vec3
	for _, x := range xs {
		for _, z := range zs {
			pts = append(pts, math.Vec3{X: x, Y: -0.6, Z: z})
		}
	}
	pts = append(pts, math.Vec3{Y: 0.9})
	b, err := mesh.NewBasis(pts, nil)
	require.NoError(t, err)
	return b
}

func mouth() region.Predicate {
	return region.All(
		region.Abs{Axis: math.AxisX, Limit: 0.15},
		region.Below(math.AxisY, -0.5),
		region.Between(math.AxisZ, -0.25, -0.1),
	)
}

func newRig(t *testing.T, opts ...Option) *Rig {
	t.Helper()
	r := New(faceBasis(t), opts...)
	_, warn, err := r.DeclareRegion("mouth", mouth())
	require.NoError(t, err)
	require.Nil(t, warn)
	return r
}

func openSpec() TargetSpec {
	return TargetSpec{
		Name:   "Mouth_Open",
		Region: "mouth",
		Rule: morph.Chain{
			morph.Offset{Delta: math.Vec3{Y: 0.02}},
			morph.When{Pred: region.Below(math.AxisZ, -0.18), Rule: morph.Offset{Delta: math.Vec3{Z: -0.08}}},
		},
	}
}

func TestDeclareRegion(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	r := New(faceBasis(t), WithLogger(zap.New(core)))

	set, warn, err := r.DeclareRegion("mouth", mouth())
	require.NoError(t, err)
	assert.Nil(t, warn)
	// |x| < 0.15 gives 3 columns, z in [-0.25, -0.1] gives 3 rows.
	assert.Equal(t, 9, set.Len())

	_, _, err = r.DeclareRegion("mouth", mouth())
	assert.ErrorIs(t, err, ErrDuplicateRegion)

	set, warn, err = r.DeclareRegion("forehead", region.Above(math.AxisZ, 2))
	require.NoError(t, err)
	require.NotNil(t, warn)
	assert.Equal(t, "forehead", warn.Region)
	assert.Empty(t, set)
	assert.Equal(t, 1, logs.FilterMessage("empty region").Len())

	names := []string{}
	for _, info := range r.Regions() {
		names = append(names, info.Name)
	}
	assert.Equal(t, []string{"mouth", "forehead"}, names)
	info, ok := r.Region("mouth")
	require.True(t, ok)
	assert.Equal(t, 9, info.Stats.Count)
}

func TestGenerateTarget(t *testing.T) {
	r := newRig(t)
	id, err := r.GenerateTarget(openSpec())
	require.NoError(t, err)

	tgt, ok := r.Store().Get(id)
	require.True(t, ok)
	assert.Equal(t, 9, tgt.Delta.NonZero())
	assert.Equal(t, morph.DefaultRange, tgt.Range)

	_, err = r.GenerateTarget(TargetSpec{Name: "Smile", Region: "cheeks", Rule: morph.Offset{}})
	assert.ErrorIs(t, err, ErrUnknownRegion)

	_, err = r.GenerateTarget(openSpec())
	assert.ErrorIs(t, err, morph.ErrDuplicateName)
}

func TestGenerateTargetExplicitRange(t *testing.T) {
	r := newRig(t)
	spec := openSpec()
	spec.Range = &morph.Range{Min: 0, Max: 0}
	spec.Weight = 0.8
	id, err := r.GenerateTarget(spec)
	require.NoError(t, err)
	tgt, ok := r.Store().Get(id)
	require.True(t, ok)
	assert.Equal(t, morph.Range{}, tgt.Range)
	assert.Equal(t, float32(0), tgt.Weight)

	spec = openSpec()
	spec.Name = "Inverted"
	spec.Range = &morph.Range{Min: 1, Max: -1}
	_, err = r.GenerateTarget(spec)
	assert.ErrorIs(t, err, morph.ErrInvalidRange)
}

func TestImportTargets(t *testing.T) {
	src := newRig(t)
	spec := openSpec()
	spec.Range = &morph.Range{Min: -1, Max: 1}
	spec.Weight = -0.25
	_, err := src.GenerateTarget(spec)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, formats.WriteMTG(&buf, formats.NewMTG(src.Basis().Len(), src.Store().Targets())))
	m, err := formats.ParseMTG(buf.Bytes())
	require.NoError(t, err)

	r := New(faceBasis(t))
	ids, err := r.ImportTargets(m)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	got, ok := r.Store().Get(ids[0])
	require.True(t, ok)
	want := src.Store().Targets()[0]
	assert.Equal(t, want.Name, got.Name)
	assert.Equal(t, want.Range, got.Range)
	assert.Equal(t, float32(-0.25), got.Weight)
	assert.Equal(t, want.Delta, got.Delta)

	require.NoError(t, r.DeclareParameter("mouth_open", 0, 1, 0.5))
	require.NoError(t, r.BindText("Mouth_Open", "mouth_open"))
	frame, err := r.Evaluate(context.Background(), nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, frame.Weights[0].Weight, 1e-6)
	require.NoError(t, r.Regenerate(nil), "imported targets have no recipe")

	_, err = r.ImportTargets(m)
	assert.ErrorIs(t, err, morph.ErrDuplicateName)

	short := &formats.MTG{VertexCount: 3}
	_, err = r.ImportTargets(short)
	assert.ErrorIs(t, err, ErrBasisMismatch)
}

func TestSetParameterClampsOnDrain(t *testing.T) {
	r := newRig(t)
	require.NoError(t, r.DeclareParameter("talk_intensity", 0, 2, 1))

	tests := []struct {
		in, want float32
	}{
		{5, 2},
		{-1, 0},
		{1.25, 1.25},
	}
	for _, tt := range tests {
		r.SetParameter("talk_intensity", tt.in)
		v, err := r.Params().Get("talk_intensity")
		require.NoError(t, err)
		assert.NotEqual(t, tt.in, v, "queued writes wait for Evaluate")

		_, err = r.Evaluate(context.Background(), nil)
		require.NoError(t, err)
		v, err = r.Params().Get("talk_intensity")
		require.NoError(t, err)
		assert.Equal(t, tt.want, v, "SetParameter(%g)", tt.in)
	}
}

func TestEvaluateAppliesQueuedParameters(t *testing.T) {
	r := newRig(t)
	_, err := r.GenerateTarget(openSpec())
	require.NoError(t, err)
	require.NoError(t, r.DeclareParameter("mouth_open", 0, 1, 0))
	require.NoError(t, r.DeclareParameter("talk_intensity", 0, 2, 1))
	require.NoError(t, r.BindText("Mouth_Open", "clamp(mouth_open * talk_intensity, 0, 1)"))

	frame, err := r.Evaluate(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, r.Basis().Positions(), frame.Positions, "weight 0 leaves the basis unchanged")

	r.SetParameter("mouth_open", 0.5)
	r.SetParameter("talk_intensity", 2)
	frame, err = r.Evaluate(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, frame.BindingErrors)
	assert.Equal(t, []TargetWeight{{Name: "Mouth_Open", Weight: 1, Active: true}}, frame.Weights)

	set := regionSet(t, r, "mouth")
	basis := r.Basis()
	for i := 0; i < basis.Len(); i++ {
		got := frame.Positions[i]
		if !set.Contains(i) {
			assert.Equal(t, basis.At(i), got, "vertex %d outside the mouth moved", i)
			continue
		}
		assert.InDelta(t, basis.At(i).Y+0.02, got.Y, 1e-6)
	}
}

func TestEvaluateIsolatesBrokenBinding(t *testing.T) {
	r := newRig(t)
	_, err := r.GenerateTarget(openSpec())
	require.NoError(t, err)
	_, err = r.GenerateTarget(TargetSpec{Name: "Smile", Region: "mouth", Rule: morph.Offset{Delta: math.Vec3{Z: 0.04}}})
	require.NoError(t, err)

	require.NoError(t, r.DeclareParameter("smile", 0, 1, 0.5))
	require.NoError(t, r.DeclareParameter("talk_intensity", 0, 2, 1))
	require.NoError(t, r.BindText("Mouth_Open", "mouth_open * talk_intensity"))
	require.NoError(t, r.Bind("Smile", binding.P("smile")))

	frame, err := r.Evaluate(context.Background(), nil)
	require.NoError(t, err)
	errs := multierr.Errors(frame.BindingErrors)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], binding.ErrUnresolvedReference)
	assert.Equal(t, float32(0.5), frame.Weights[1].Weight)
}

func TestDroppedWritesLoggedOnce(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	r := newRig(t, WithLogger(zap.New(core)))

	for i := 0; i < 3; i++ {
		r.SetParameter("vowel_x", 1)
		frame, err := r.Evaluate(context.Background(), nil)
		require.NoError(t, err)
		assert.Len(t, frame.Dropped, 1)
	}
	assert.Equal(t, 1, logs.FilterMessage("dropping write to undeclared parameter").Len())

	require.NoError(t, r.DeclareParameter("vowel_x", 0, 1, 0))
	r.SetParameter("vowel_x", 0.25)
	frame, err := r.Evaluate(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, frame.Dropped)
	v, err := r.Params().Get("vowel_x")
	require.NoError(t, err)
	assert.Equal(t, float32(0.25), v)
}

func TestRemoveTargetNeedsUnbind(t *testing.T) {
	r := newRig(t)
	_, err := r.GenerateTarget(openSpec())
	require.NoError(t, err)
	require.NoError(t, r.BindText("Mouth_Open", "0.5"))

	err = r.RemoveTarget("Mouth_Open")
	var inUse *morph.TargetInUseError
	require.ErrorAs(t, err, &inUse)
	assert.Equal(t, "Mouth_Open", inUse.Name)

	require.NoError(t, r.Unbind("Mouth_Open"))
	require.NoError(t, r.RemoveTarget("Mouth_Open"))
	assert.ErrorIs(t, r.RemoveTarget("Mouth_Open"), morph.ErrUnknownTarget)
}

func TestRegenerate(t *testing.T) {
	r := newRig(t)
	_, err := r.GenerateTarget(openSpec())
	require.NoError(t, err)
	require.NoError(t, r.DeclareParameter("mouth_open", 0, 1, 1))
	require.NoError(t, r.BindText("Mouth_Open", "mouth_open"))

	// Push the whole face forward so the mouth sits in a different z band.
	edited := r.Basis().Positions()
	for i := range edited {
		edited[i].Z -= 0.1
	}
	basis, err := mesh.NewBasis(edited, nil)
	require.NoError(t, err)
	require.NoError(t, r.Regenerate(basis))

	assert.Same(t, basis, r.Basis())
	assert.True(t, r.Graph().Uses(mustLookup(t, r, "Mouth_Open")), "bindings survive regeneration")

	frame, err := r.Evaluate(context.Background(), nil)
	require.NoError(t, err)
	set := regionSet(t, r, "mouth")
	require.NotEmpty(t, set)
	for _, i := range set {
		assert.InDelta(t, basis.At(i).Y+0.02, frame.Positions[i].Y, 1e-6)
	}

	short, err := mesh.NewBasis(edited[:3], nil)
	require.NoError(t, err)
	assert.ErrorIs(t, r.Regenerate(short), ErrBasisMismatch)
}

func TestConcurrentSetParameter(t *testing.T) {
	r := newRig(t, WithEvaluator(&composite.Evaluator{Workers: 2, ChunkSize: 16, SkipZero: true}))
	_, err := r.GenerateTarget(openSpec())
	require.NoError(t, err)
	require.NoError(t, r.DeclareParameter("mouth_open", 0, 1, 0))
	require.NoError(t, r.BindText("Mouth_Open", "mouth_open"))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				r.SetParameter("mouth_open", float32(j)/50)
			}
		}()
	}
	for i := 0; i < 10; i++ {
		_, err := r.Evaluate(context.Background(), nil)
		require.NoError(t, err)
	}
	wg.Wait()

	frame, err := r.Evaluate(context.Background(), nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.98, frame.Weights[0].Weight, 1e-6)
}

func TestRecorder(t *testing.T) {
	rec := NewRecorder(30)
	rec.Record(&Frame{Weights: []TargetWeight{{Name: "A", Weight: 0.1}}})
	rec.Record(&Frame{Weights: []TargetWeight{{Name: "A", Weight: 0.2}, {Name: "B", Weight: 1}}})
	rec.Record(&Frame{Weights: []TargetWeight{{Name: "B", Weight: 0.5}}})

	assert.Equal(t, 3, rec.Frames())
	assert.Equal(t, []WeightTrack{
		{Target: "A", FrameRate: 30, Samples: []float32{0.1, 0.2, 0.2}},
		{Target: "B", FrameRate: 30, Samples: []float32{0, 1, 0.5}},
	}, rec.Tracks())
}

func regionSet(t *testing.T, r *Rig, name string) region.Set {
	t.Helper()
	info, ok := r.Region(name)
	require.True(t, ok)
	return info.Set
}

func mustLookup(t *testing.T, r *Rig, name string) morph.TargetID {
	t.Helper()
	id, ok := r.Store().Lookup(name)
	require.True(t, ok)
	return id
}
