package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Faultbox/facerig/internal/logger"
	"github.com/Faultbox/facerig/internal/rig"
	"github.com/Faultbox/facerig/pkg/binding"
	"github.com/Faultbox/facerig/pkg/math"
	"github.com/Faultbox/facerig/pkg/mesh"
	"github.com/Faultbox/facerig/pkg/morph"
	"github.com/Faultbox/facerig/pkg/region"
)

func TestParseAssignments(t *testing.T) {
	got, err := parseAssignments([]string{"mouth_open=0.5", "smile=1"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float32{"mouth_open": 0.5, "smile": 1}, got)

	for _, bad := range []string{"mouth_open", "=1", "smile=lots"} {
		_, err := parseAssignments([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestParseJoints(t *testing.T) {
	joints, err := parseJoints([]string{"Jaw.rot_x=-0.2", "Jaw.loc_z=0.1", "Head.rot_y=0.3"})
	require.NoError(t, err)
	require.Len(t, joints, 2)
	assert.InDelta(t, -0.2, joints["Jaw"].Value(binding.RotX), 1e-5)
	assert.InDelta(t, 0.1, joints["Jaw"].Value(binding.LocZ), 1e-6)
	assert.InDelta(t, 0.3, joints["Head"].Value(binding.RotY), 1e-5)

	_, err = parseJoints([]string{"Jaw=1"})
	assert.Error(t, err)
	_, err = parseJoints([]string{"Jaw.spin=1"})
	assert.Error(t, err)
}

func TestPlayWarnsOncePerTimeline(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	logger.Set(zap.New(core))
	t.Cleanup(func() { logger.Set(nil) })

	basis, err := mesh.NewBasis([]math.Vec3{{Z: -0.2}, {Z: 0.2}}, nil)
	require.NoError(t, err)
	r := rig.New(basis, rig.WithLogger(zap.New(core)))
	_, _, err = r.DeclareRegion("lower", region.Below(math.AxisZ, 0))
	require.NoError(t, err)
	_, err = r.GenerateTarget(rig.TargetSpec{Name: "Mouth_Open", Region: "lower", Rule: morph.Offset{Delta: math.Vec3{Z: -0.1}}})
	require.NoError(t, err)
	require.NoError(t, r.DeclareParameter("mouth_open", 0, 1, 0))
	require.NoError(t, r.BindText("Mouth_Open", "mouth_open * talk_intensity"))

	tl := &rig.Timeline{Name: "talk", FrameRate: 24, Start: 1, End: 12, Keys: []rig.Key{
		{Frame: 1, Values: map[string]float32{"mouth_open": 0}},
		{Frame: 12, Values: map[string]float32{"mouth_open": 1}},
	}}
	rec, err := playTimeline(context.Background(), r, tl, false)
	require.NoError(t, err)
	assert.Equal(t, 12, rec.Frames())

	assert.Equal(t, 1, logs.FilterMessage("binding evaluation failed").Len())
	summary := logs.FilterMessage("timeline played with binding errors")
	require.Equal(t, 1, summary.Len())
	assert.Equal(t, int64(12), summary.All()[0].ContextMap()["frames"])
	assert.Equal(t, 2, logs.Len())
}
