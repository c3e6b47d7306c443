package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Faultbox/facerig/internal/logger"
	"github.com/Faultbox/facerig/pkg/formats"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Generate every target and write an .mtg container",
	Example: `  rigtool build -r rig.yaml -b head.obj -o out
  rigtool build --basis head.stl`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		path, err := outputPath(s.name() + ".mtg")
		if err != nil {
			return err
		}
		return writeContainer(s, path)
	},
}

func writeContainer(s *session, path string) error {
	targets := s.rig.Store().Targets()
	m := formats.NewMTG(s.rig.Basis().Len(), targets)
	if err := formats.WriteMTGFile(path, m); err != nil {
		return err
	}
	fmt.Printf("Wrote: %s (%d targets, %d vertices)\n", path, len(targets), m.VertexCount)
	return nil
}

// importTargets adds the targets of an .mtg container to the session rig.
func importTargets(s *session, path string) error {
	m, err := formats.ParseMTGFile(path)
	if err != nil {
		return err
	}
	ids, err := s.rig.ImportTargets(m)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	logger.Info("targets imported", zap.String("file", path), zap.Int("targets", len(ids)))
	return nil
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <file.mtg>",
	Short: "Summarize an .mtg container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := formats.ParseMTGFile(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Container: %s\n", args[0])
		fmt.Printf("Version:   %s\n", m.Version)
		fmt.Printf("Vertices:  %d\n", m.VertexCount)
		fmt.Printf("Targets:   %d\n", len(m.Targets))
		store, err := m.Store()
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		fmt.Printf("Active:    %d\n", len(store.Snapshot()))
		fmt.Println()
		for _, t := range m.Targets {
			state := ""
			if !t.Active {
				state = " (inactive)"
			}
			fmt.Printf("  %-20s %-6s %.4f  [%g, %g]  %6d displaced%s\n",
				t.Name, t.Encoding, t.Weight, t.Range.Min, t.Range.Max, t.Delta.NonZero(), state)
		}
		return nil
	},
}

var regionsCmd = &cobra.Command{
	Use:   "regions",
	Short: "Show region classification statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		for _, info := range s.rig.Regions() {
			st := info.Stats
			fmt.Printf("%s: %d vertices\n", info.Name, st.Count)
			fmt.Printf("  predicate: %s\n", info.Predicate)
			if st.Count == 0 {
				continue
			}
			fmt.Printf("  bounds:    (%.3f, %.3f, %.3f) - (%.3f, %.3f, %.3f)\n",
				st.Bounds.Min.X, st.Bounds.Min.Y, st.Bounds.Min.Z,
				st.Bounds.Max.X, st.Bounds.Max.Y, st.Bounds.Max.Z)
			fmt.Printf("  centroid:  (%.3f, %.3f, %.3f)\n", st.Centroid.X, st.Centroid.Y, st.Centroid.Z)
		}
		return nil
	},
}
