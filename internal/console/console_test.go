package console

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/Faultbox/facerig/internal/rig"
	"github.com/Faultbox/facerig/internal/rigdef"
	"github.com/Faultbox/facerig/pkg/formats"
	"github.com/Faultbox/facerig/pkg/math"
	"github.com/Faultbox/facerig/pkg/mesh"
	"github.com/Faultbox/facerig/pkg/morph"
)

func newConsole(t *testing.T) (*Console, *rig.Rig, *bytes.Buffer) {
	t.Helper()
	b, err := mesh.NewBasis([]math.Vec3{
		{Z: -1}, {Z: 1}, {X: 1, Z: -1},
	}, nil)
	require.NoError(t, err)
	r := rig.New(b)
	var out bytes.Buffer
	return New(r, &out, nil), r, &out
}

const script = `
# jaw
declare-parameter mouth_open 0 1
declare-region lower '{axis: z, max: 0}'
generate-target Open lower '{offset: [0, 0, -0.1]}'
bind Open mouth_open * 2
set-parameter mouth_open 0.25
evaluate
`

func TestRunScript(t *testing.T) {
	c, r, out := newConsole(t)
	require.NoError(t, c.Run(context.Background(), strings.NewReader(script), false))

	assert.Contains(t, out.String(), "region lower: 2 vertices")
	assert.Contains(t, out.String(), "target Open: 2 vertices displaced")
	assert.Contains(t, out.String(), "0.5000")

	ws := r.Weights()
	require.Len(t, ws, 1)
	assert.Equal(t, float32(0.5), ws[0].Weight)
}

func TestErrorsNameTheTarget(t *testing.T) {
	c, _, _ := newConsole(t)
	ctx := context.Background()
	require.NoError(t, c.Run(ctx, strings.NewReader(script), false))

	err := c.Exec(ctx, "bind Missing mouth_open")
	var ce *CommandError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "Missing", ce.Name)
	assert.ErrorIs(t, err, morph.ErrUnknownTarget)
	assert.Contains(t, err.Error(), `bind "Missing"`)

	err = c.Exec(ctx, "remove-target Open")
	assert.ErrorIs(t, err, morph.ErrTargetInUse)

	require.NoError(t, c.Exec(ctx, "unbind Open"))
	require.NoError(t, c.Exec(ctx, "remove-target Open"))
}

func TestUnknownCommandAndUsage(t *testing.T) {
	c, _, _ := newConsole(t)
	ctx := context.Background()

	assert.ErrorIs(t, c.Exec(ctx, "frobnicate"), ErrUnknownCommand)
	assert.ErrorIs(t, c.Exec(ctx, "declare-parameter x 0"), ErrUsage)
	assert.ErrorIs(t, c.Exec(ctx, "list everything"), ErrUsage)
	assert.Error(t, c.Exec(ctx, "declare-parameter x 0 one"))
	assert.Error(t, c.Exec(ctx, `bind 'unterminated`))
	assert.NoError(t, c.Exec(ctx, "   "))
	assert.NoError(t, c.Exec(ctx, "# comment"))
}

func TestRunKeepGoing(t *testing.T) {
	c, _, out := newConsole(t)
	in := strings.NewReader("declare-parameter a 0 1\nbogus\nset-weight Nope 1\ndeclare-parameter b 0 1\n")

	err := c.Run(context.Background(), in, true)
	require.Error(t, err)
	errs := multierr.Errors(err)
	require.Len(t, errs, 2)

	var ce *CommandError
	require.ErrorAs(t, errs[1], &ce)
	assert.Equal(t, 3, ce.Line)
	assert.Contains(t, out.String(), "error: line 2: bogus")

	require.NoError(t, c.Exec(context.Background(), "list parameters"))
	assert.Contains(t, out.String(), "b")
}

func TestSetParameterUndeclaredWarns(t *testing.T) {
	c, _, out := newConsole(t)
	ctx := context.Background()
	require.NoError(t, c.Exec(ctx, "set-parameter ghost 1"))
	assert.Contains(t, out.String(), "parameter ghost is not declared")

	require.NoError(t, c.Exec(ctx, "evaluate"))
	assert.Contains(t, out.String(), "dropped:")
}

func TestSetJointDrivesBinding(t *testing.T) {
	c, r, _ := newConsole(t)
	ctx := context.Background()
	for _, line := range []string{
		"declare-region lower '{axis: z, max: 0}'",
		"generate-target Open lower '{offset: [0, 0, -0.1]}'",
		`bind Open 'max(0, -joint("Jaw").rot_x * 2)'`,
		"set-joint Jaw rot_x -0.2",
		"evaluate",
	} {
		require.NoError(t, c.Exec(ctx, line), line)
	}
	assert.InDelta(t, 0.4, r.Weights()[0].Weight, 1e-5)

	assert.Error(t, c.Exec(ctx, "set-joint Jaw spin 1"))
}

func TestPoseJoint(t *testing.T) {
	c, r, _ := newConsole(t)
	ctx := context.Background()
	for _, line := range []string{
		"declare-region lower '{axis: z, max: 0}'",
		"generate-target Open lower '{offset: [0, 0, -0.1]}'",
		`bind Open '-joint("Jaw").rot_x + joint("Jaw").loc_y * 10'`,
		"pose-joint Jaw rotate=-0.3,0,0 translate=0,0.02,0 scale=2,2,2",
		"evaluate",
	} {
		require.NoError(t, c.Exec(ctx, line), line)
	}
	assert.InDelta(t, 0.5, r.Weights()[0].Weight, 1e-4)

	assert.ErrorIs(t, c.Exec(ctx, "pose-joint Jaw shear=1,0,0"), ErrUsage)
	assert.Error(t, c.Exec(ctx, "pose-joint Jaw rotate=1,0"))
}

func TestLoadTargets(t *testing.T) {
	c, r, out := newConsole(t)
	ctx := context.Background()

	store := morph.NewStore(3)
	_, err := store.Add("Brow_Up", morph.Displacement{{}, {Z: 0.05}, {}}, morph.WithRange(-1, 1), morph.WithWeight(0.3))
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "brows.mtg")
	require.NoError(t, formats.WriteMTGFile(path, formats.NewMTG(3, store.Targets())))

	require.NoError(t, c.Exec(ctx, "load-targets "+path))
	assert.Contains(t, out.String(), "loaded 1 targets")
	assert.Equal(t, []rig.TargetWeight{{Name: "Brow_Up", Weight: 0.3, Active: true}}, r.Weights())

	err = c.Exec(ctx, "load-targets "+path)
	var ce *CommandError
	require.ErrorAs(t, err, &ce)
	assert.ErrorIs(t, err, morph.ErrDuplicateName)
}

func TestApplyAndList(t *testing.T) {
	c, _, out := newConsole(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "rig.yaml")
	def := &rigdef.Definition{
		Name:    "tiny",
		Regions: []rigdef.RegionDef{{Name: "all", Where: []rigdef.PredicateDef{{Sphere: &rigdef.SphereDef{Radius: 10}}}}},
		Targets: []rigdef.TargetDef{{
			Name:   "Push",
			Region: "all",
			Rules:  []rigdef.RuleDef{{Offset: &rigdef.Vec{1, 0, 0}}},
		}},
	}
	require.NoError(t, rigdef.Save(path, def))
	require.NoError(t, c.Exec(ctx, "apply "+path))
	assert.Contains(t, out.String(), "applied tiny: 1 regions, 1 targets, 0 bindings")

	out.Reset()
	require.NoError(t, c.Exec(ctx, "list regions"))
	assert.Contains(t, out.String(), "all")
	out.Reset()
	require.NoError(t, c.Exec(ctx, "list"))
	assert.Contains(t, out.String(), "Push")
}
