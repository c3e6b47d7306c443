package rigdef

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/Faultbox/facerig/internal/rig"
	"github.com/Faultbox/facerig/pkg/math"
	"github.com/Faultbox/facerig/pkg/mesh"
	"github.com/Faultbox/facerig/pkg/morph"
)

// lowerFace covers both preset regions at y = -0.6 with one vertex behind
// the head. No coordinate falls on a region or partition boundary.
func lowerFace(t *testing.T) *mesh.Basis {
	t.Helper()
	xs := []float32{-0.12, -0.06, 0, 0.06, 0.12}
	zs := []float32{-0.42, -0.38, -0.32, -0.28, -0.2, -0.17, -0.13}
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

func indexOf(t *testing.T, b *mesh.Basis, p math.Vec3) int {
	t.Helper()
	for i, q := range b.Positions() {
		if q == p {
			return i
		}
	}
	t.Fatalf("vertex %v not in basis", p)
	return -1
}

func presetRig(t *testing.T) (*rig.Rig, *Definition) {
	t.Helper()
	def, err := Preset(DefaultPreset)
	require.NoError(t, err)
	r := rig.New(lowerFace(t))
	require.NoError(t, def.Apply(r))
	return r, def
}

func weightOf(t *testing.T, f *rig.Frame, name string) float32 {
	t.Helper()
	for _, w := range f.Weights {
		if w.Name == name {
			return w.Weight
		}
	}
	t.Fatalf("no target %q in frame", name)
	return 0
}

func delta(t *testing.T, r *rig.Rig, target string) morph.Displacement {
	t.Helper()
	id, ok := r.Store().Lookup(target)
	require.True(t, ok, target)
	tgt, ok := r.Store().Get(id)
	require.True(t, ok)
	return tgt.Delta
}

func assertVec(t *testing.T, want, got math.Vec3) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, 1e-6, "x")
	assert.InDelta(t, want.Y, got.Y, 1e-6, "y")
	assert.InDelta(t, want.Z, got.Z, 1e-6, "z")
}

func TestPresetContents(t *testing.T) {
	assert.Contains(t, Presets(), DefaultPreset)

	def, err := Preset(DefaultPreset)
	require.NoError(t, err)
	assert.Len(t, def.Regions, 2)
	assert.Len(t, def.Parameters, 10)
	assert.Len(t, def.Targets, 19)
	assert.Len(t, def.Bindings, 9)
	require.Len(t, def.Joints, 1)

	tl, ok := def.Timeline("Conversation_Sample")
	require.True(t, ok)
	assert.Equal(t, 1, tl.Start)
	assert.Equal(t, 120, tl.End)

	_, err = Preset("nope")
	assert.ErrorIs(t, err, ErrUnknownPreset)
}

func TestPresetMouthOpenPartitions(t *testing.T) {
	r, _ := presetRig(t)
	b := r.Basis()
	d := delta(t, r, "Mouth_Open")

	assertVec(t, math.Vec3{Y: 0.02, Z: -0.08}, d[indexOf(t, b, math.Vec3{X: 0.06, Y: -0.6, Z: -0.2})])
	assertVec(t, math.Vec3{Z: -0.05}, d[indexOf(t, b, math.Vec3{Y: -0.6, Z: -0.17})])
	assertVec(t, math.Vec3{Z: -0.02}, d[indexOf(t, b, math.Vec3{Y: -0.6, Z: -0.13})])
	// Outside the mouth box.
	assertVec(t, math.Vec3{}, d[indexOf(t, b, math.Vec3{Y: -0.6, Z: -0.28})])
	assertVec(t, math.Vec3{}, d[indexOf(t, b, math.Vec3{Y: 0.9})])
}

func TestPresetTalkOpen(t *testing.T) {
	r, _ := presetRig(t)
	b := r.Basis()
	d := delta(t, r, "Talk_Open")

	assertVec(t, math.Vec3{Y: 0.01, Z: -0.03}, d[indexOf(t, b, math.Vec3{X: -0.12, Y: -0.6, Z: -0.42})])
	assertVec(t, math.Vec3{Z: 0.005}, d[indexOf(t, b, math.Vec3{Y: -0.6, Z: -0.2})])
	assertVec(t, math.Vec3{}, d[indexOf(t, b, math.Vec3{Y: -0.6, Z: -0.32})])
	// -0.13 is above the talk box.
	assertVec(t, math.Vec3{}, d[indexOf(t, b, math.Vec3{Y: -0.6, Z: -0.13})])
}

func TestPresetBindings(t *testing.T) {
	r, _ := presetRig(t)
	ctx := context.Background()

	r.SetParameter("mouth_open", 0.4)
	r.SetParameter("smile", 0.7)
	r.SetParameter("jaw_rotation", -0.25)
	f, err := r.Evaluate(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, f.BindingErrors)
	assert.InDelta(t, 0.4, weightOf(t, f, "Talk_Open"), 1e-6)
	assert.InDelta(t, 0.7, weightOf(t, f, "Smile_Subtle"), 1e-6)
	assert.InDelta(t, 0.5, weightOf(t, f, "Mouth_Open"), 1e-5)
	assert.Equal(t, float32(0), weightOf(t, f, "Vowel_A"))

	// Intensity scales the talk set and the target range saturates it.
	r.SetParameter("talk_intensity", 2)
	r.SetParameter("mouth_open", 0.8)
	f, err = r.Evaluate(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, float32(1), weightOf(t, f, "Talk_Open"))
}

func TestPresetPlaysTimeline(t *testing.T) {
	r, def := presetRig(t)
	tl, ok := def.Timeline("Conversation_Sample")
	require.True(t, ok)

	rec := rig.NewRecorder(tl.FrameRate)
	require.NoError(t, r.Play(context.Background(), tl, rec, nil))
	assert.Equal(t, 120, rec.Frames())

	var talk *rig.WeightTrack
	tracks := rec.Tracks()
	for i := range tracks {
		if tracks[i].Target == "Vowel_O_Talk" {
			talk = &tracks[i]
		}
	}
	require.NotNil(t, talk)
	// Frame 10 is index 9.
	assert.InDelta(t, 0.7, talk.Samples[9], 1e-6)
	assert.Equal(t, float32(0), talk.Samples[119])
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty", ""},
		{"unknown key", "name: x\ncolour: red\n"},
		{"mixed predicate", `
regions:
  - name: r
    where: [{axis: x, min: 0, abs_below: 1}]
targets: []
`},
		{"inverted interval", `
regions:
  - name: r
    where: [{axis: x, min: 1, max: 0}]
targets: []
`},
		{"bad axis", `
regions:
  - name: r
    where: [{axis: w, min: 0}]
targets: []
`},
		{"unknown region", `
regions: []
targets:
  - name: t
    region: r
    rules: [{offset: [0, 0, 1]}]
`},
		{"rule with two forms", `
regions:
  - name: r
    where: [{axis: x, min: 0}]
targets:
  - name: t
    region: r
    rules: [{offset: [0, 0, 1], scale: [1, 1, 1]}]
`},
		{"rules and partitions", `
regions:
  - name: r
    where: [{axis: x, min: 0}]
targets:
  - name: t
    region: r
    rules: [{offset: [0, 0, 1]}]
    partitions: [{name: p, rules: [{offset: [0, 0, 1]}]}]
`},
		{"bad expression", `
regions:
  - name: r
    where: [{axis: x, min: 0}]
targets:
  - name: t
    region: r
    rules: [{offset: [0, 0, 1]}]
bindings:
  - {target: t, expression: "a +"}
`},
		{"binding to unknown target", `
regions: []
targets: []
bindings:
  - {target: t, expression: a}
`},
		{"timeline with unknown parameter", `
regions: []
targets: []
timelines:
  - name: tl
    start: 1
    end: 2
    keys: [{frame: 1, values: {a: 1}}]
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	doc := `
regions:
  - name: r
    where: [{axis: x, min: 0}]
  - name: r
    where: [{axis: x, min: 0}]
targets:
  - name: t
    region: missing
    rules: [{offset: [0, 0, 1]}]
`
	_, err := Parse([]byte(doc))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidDefinition)
	assert.Len(t, multierr.Errors(err), 2)
}

func TestMarshalRoundTrip(t *testing.T) {
	def, err := Preset(DefaultPreset)
	require.NoError(t, err)

	data, err := Marshal(def)
	require.NoError(t, err)
	back, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, def, back)
}

func TestLoadAndBasisPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rig.yaml")
	def, err := Preset(DefaultPreset)
	require.NoError(t, err)
	def.Basis = "head.obj"
	require.NoError(t, Save(path, def))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "head.obj"), loaded.BasisPath(path))

	loaded.Basis = "/meshes/head.obj"
	assert.Equal(t, "/meshes/head.obj", loaded.BasisPath(path))
	loaded.Basis = ""
	assert.Equal(t, "", loaded.BasisPath(path))

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestTracksRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracks.yaml")
	tf := &TrackFile{
		Timeline: "Conversation_Sample",
		Tracks: []rig.WeightTrack{
			{Target: "Talk_Open", FrameRate: 24, Samples: []float32{0, 0.25, 0.5}},
		},
	}
	require.NoError(t, SaveTracks(path, tf))
	back, err := LoadTracks(path)
	require.NoError(t, err)
	assert.Equal(t, tf, back)
}

func TestWatchDebounces(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rig.yaml")
	other := filepath.Join(dir, "other.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0644))

	ctx, cancel := context.WithCancel(context.Background())
	var (
		mu    sync.Mutex
		calls [][]string
	)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, []string{path}, 50*time.Millisecond, nil, func(changed []string) {
			mu.Lock()
			calls = append(calls, changed)
			mu.Unlock()
		})
	}()

	// Give the watcher time to register.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(other, []byte("ignored"), 0644))
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(path, []byte{'b', byte('0' + i)}, 0644))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(calls) > 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	abs, err := filepath.Abs(path)
	require.NoError(t, err)
	assert.Equal(t, []string{abs}, calls[0])
}
