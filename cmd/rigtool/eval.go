package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Faultbox/facerig/internal/logger"
	"github.com/Faultbox/facerig/internal/rig"
	"github.com/Faultbox/facerig/internal/rigdef"
	"github.com/Faultbox/facerig/pkg/meshio"
)

var (
	evalSet     []string
	evalJoints  []string
	evalTargets []string
	evalSTL     bool
)

func init() {
	for _, c := range []*cobra.Command{evalCmd, previewCmd} {
		c.Flags().StringArrayVarP(&evalSet, "set", "s", nil, "Set a parameter (name=value, repeatable)")
		c.Flags().StringArrayVarP(&evalJoints, "joint", "j", nil, "Pose a joint channel (Joint.rot_x=value, repeatable)")
		c.Flags().StringArrayVarP(&evalTargets, "targets", "t", nil, "Import precomputed targets from an .mtg file (repeatable)")
	}
	evalCmd.Flags().BoolVar(&evalSTL, "stl", true, "Write the deformed mesh as STL")

	playCmd.Flags().Bool("stl", false, "Write one STL per frame")
}

// evaluateOnce imports --targets, applies --set and --joint and runs one
// evaluation.
func evaluateOnce(ctx context.Context, s *session) (*rig.Frame, error) {
	for _, path := range evalTargets {
		if err := importTargets(s, path); err != nil {
			return nil, err
		}
	}
	values, err := parseAssignments(evalSet)
	if err != nil {
		return nil, err
	}
	joints, err := parseJoints(evalJoints)
	if err != nil {
		return nil, err
	}
	apply(s.rig, values)
	return s.rig.Evaluate(ctx, joints)
}

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Evaluate the rig for one set of parameter values",
	Example: `  rigtool eval -s mouth_open=0.6 -s vowel_a=0.4
  rigtool eval -s jaw_rotation=-0.3 --stl=false
  rigtool eval -j Jaw.rot_x=-0.2
  rigtool eval -t brows.mtg -s mouth_open=0.2`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		f, err := evaluateOnce(cmd.Context(), s)
		if err != nil {
			return err
		}
		printFrame(f)
		if !evalSTL {
			return nil
		}
		path, err := outputPath(s.name() + ".stl")
		if err != nil {
			return err
		}
		return saveMesh(path, f.Positions, s.rig.Basis())
	},
}

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Render the evaluated rig to PNG",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		f, err := evaluateOnce(cmd.Context(), s)
		if err != nil {
			return err
		}
		path, err := outputPath(s.name() + ".png")
		if err != nil {
			return err
		}
		if err := meshio.RenderPNG(path, f.Positions, s.rig.Basis().Faces(), renderOptions()); err != nil {
			return err
		}
		fmt.Printf("Wrote: %s\n", path)
		return nil
	},
}

func renderOptions() meshio.RenderOptions {
	opts := meshio.DefaultRenderOptions()
	opts.Width = cfg.Preview.Width
	opts.Height = cfg.Preview.Height
	opts.FovY = cfg.Preview.FovY
	opts.Supersample = cfg.Preview.Supersample
	return opts
}

var playCmd = &cobra.Command{
	Use:   "play [timeline]",
	Short: "Evaluate a timeline and record per-target weight tracks",
	Long: `play evaluates every frame of a timeline from the rig definition and
writes the resulting weight tracks as YAML. Without an argument the first
timeline is played.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		if len(s.def.Timelines) == 0 {
			return fmt.Errorf("rig %q has no timelines", s.name())
		}
		tl := &s.def.Timelines[0]
		if len(args) > 0 {
			var ok bool
			if tl, ok = s.def.Timeline(args[0]); !ok {
				return fmt.Errorf("rig %q has no timeline %q", s.name(), args[0])
			}
		}
		writeSTL, _ := cmd.Flags().GetBool("stl")

		rec, err := playTimeline(cmd.Context(), s.rig, tl, writeSTL)
		if err != nil {
			return err
		}

		path, err := outputPath(tl.Name + "_tracks.yaml")
		if err != nil {
			return err
		}
		if err := rigdef.SaveTracks(path, &rigdef.TrackFile{Timeline: tl.Name, Tracks: rec.Tracks()}); err != nil {
			return err
		}
		fmt.Printf("Wrote: %s (%d frames)\n", path, rec.Frames())
		return nil
	},
}

// playTimeline plays tl on r, optionally writing one STL per frame. Binding
// failures are logged once by the rig; here they only add up to a single
// summary warning.
func playTimeline(ctx context.Context, r *rig.Rig, tl *rig.Timeline, writeSTL bool) (*rig.Recorder, error) {
	rec := rig.NewRecorder(tl.FrameRate)
	basis := r.Basis()
	failed := 0
	err := r.Play(ctx, tl, rec, func(frame int, f *rig.Frame) error {
		if f.BindingErrors != nil {
			failed++
		}
		if !writeSTL {
			return nil
		}
		path, err := outputPath(fmt.Sprintf("%s_%04d.stl", tl.Name, frame))
		if err != nil {
			return err
		}
		return meshio.SaveSTL(path, f.Positions, basis.Faces())
	})
	if err != nil {
		return nil, err
	}
	if failed > 0 {
		logger.Warn("timeline played with binding errors",
			zap.String("timeline", tl.Name), zap.Int("frames", failed))
	}
	return rec, nil
}
