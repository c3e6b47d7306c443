package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/facerig/internal/logger"
	"github.com/Faultbox/facerig/internal/rig"
	"github.com/Faultbox/facerig/internal/rigdef"
	"github.com/Faultbox/facerig/pkg/binding"
	"github.com/Faultbox/facerig/pkg/composite"
	"github.com/Faultbox/facerig/pkg/math"
	"github.com/Faultbox/facerig/pkg/mesh"
	"github.com/Faultbox/facerig/pkg/meshio"
)

var errNoBasis = errors.New("no basis mesh: pass --basis or set basis in the rig definition")

// session is a rig built from the configured definition and basis.
type session struct {
	defPath   string
	basisPath string
	def       *rigdef.Definition
	rig       *rig.Rig
}

func openSession() (*session, error) {
	s := &session{defPath: cfg.Paths.Rig}
	def, err := rigdef.Load(s.defPath)
	if err != nil {
		return nil, err
	}
	s.def = def

	s.basisPath = cfg.Paths.Basis
	if s.basisPath == "" {
		s.basisPath = def.BasisPath(s.defPath)
	}
	if s.basisPath == "" {
		return nil, errNoBasis
	}
	basis, err := meshio.LoadBasis(s.basisPath, 0)
	if err != nil {
		return nil, err
	}

	s.rig = rig.New(basis,
		rig.WithLogger(logger.Named("rig")),
		rig.WithEvaluator(evaluator()),
	)
	if err := def.Apply(s.rig); err != nil {
		return nil, err
	}
	logger.Info("rig loaded",
		zap.String("rig", def.Name),
		zap.String("basis", s.basisPath),
		zap.Int("vertices", basis.Len()),
		zap.Int("targets", s.rig.Store().Len()))
	return s, nil
}

func (s *session) name() string {
	if s.def.Name != "" {
		return s.def.Name
	}
	return strings.TrimSuffix(filepath.Base(s.defPath), filepath.Ext(s.defPath))
}

func evaluator() *composite.Evaluator {
	return &composite.Evaluator{
		Workers:   cfg.Evaluate.Workers,
		ChunkSize: cfg.Evaluate.ChunkSize,
		SkipZero:  cfg.Evaluate.SkipZeroWeights,
	}
}

// outputPath joins name onto the output directory, creating it.
func outputPath(name string) (string, error) {
	if err := os.MkdirAll(cfg.Paths.Output, 0755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	return filepath.Join(cfg.Paths.Output, name), nil
}

// parseAssignments parses name=value pairs.
func parseAssignments(list []string) (map[string]float32, error) {
	out := make(map[string]float32, len(list))
	for _, item := range list {
		name, value, ok := strings.Cut(item, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("expected name=value, got %q", item)
		}
		v, err := strconv.ParseFloat(value, 32)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid number %q", name, value)
		}
		out[name] = float32(v)
	}
	return out, nil
}

// parseJoints parses Joint.channel=value pairs into samples.
func parseJoints(list []string) (binding.Joints, error) {
	values, err := parseAssignments(list)
	if err != nil {
		return nil, err
	}
	type pose struct{ rot, loc [3]float32 }
	poses := make(map[string]*pose)
	for key, v := range values {
		joint, chName, ok := strings.Cut(key, ".")
		if !ok {
			return nil, fmt.Errorf("expected Joint.channel=value, got %q", key)
		}
		ch, err := binding.ParseChannel(chName)
		if err != nil {
			return nil, err
		}
		p := poses[joint]
		if p == nil {
			p = &pose{}
			poses[joint] = p
		}
		switch ch {
		case binding.RotX, binding.RotY, binding.RotZ:
			p.rot[ch-binding.RotX] = v
		default:
			p.loc[ch-binding.LocX] = v
		}
	}

	joints := make(binding.Joints, len(poses))
	for name, p := range poses {
		joints[name] = binding.SampleFromEuler(vec(p.rot), vec(p.loc))
	}
	return joints, nil
}

func vec(a [3]float32) math.Vec3 {
	return math.Vec3{X: a[0], Y: a[1], Z: a[2]}
}

// apply enqueues parameter writes in name order.
func apply(r *rig.Rig, values map[string]float32) {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		r.SetParameter(name, values[name])
	}
}

func printFrame(f *rig.Frame) {
	for _, w := range f.Weights {
		state := ""
		if !w.Active {
			state = " (inactive)"
		}
		fmt.Printf("  %-20s %.4f%s\n", w.Name, w.Weight, state)
	}
	for _, err := range f.Dropped {
		fmt.Fprintf(os.Stderr, "Dropped: %v\n", err)
	}
	if f.BindingErrors != nil {
		fmt.Fprintf(os.Stderr, "Binding errors: %v\n", f.BindingErrors)
	}
}

func saveMesh(path string, positions mesh.VertexBuffer, basis *mesh.Basis) error {
	if err := meshio.SaveSTL(path, positions, basis.Faces()); err != nil {
		return err
	}
	fmt.Printf("Wrote: %s\n", path)
	return nil
}
