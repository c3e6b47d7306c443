package main

import (
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Faultbox/facerig/internal/logger"
	"github.com/Faultbox/facerig/internal/rigdef"
	"github.com/Faultbox/facerig/pkg/meshio"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Rebuild the .mtg container whenever the rig or basis changes",
	Long: `watch builds once, then watches the rig definition and the basis mesh.
A basis edit with the same vertex count regenerates every target in place;
any other change reloads the whole rig. Stop with Ctrl-C.`,
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
		if err := writeContainer(s, path); err != nil {
			return err
		}

		log := logger.Named("watch")
		log.Info("watching", zap.String("rig", s.defPath), zap.String("basis", s.basisPath))

		return rigdef.Watch(cmd.Context(), []string{s.defPath, s.basisPath}, cfg.Watch.Debounce, log, func(changed []string) {
			next, err := rebuild(s, changed)
			if err != nil {
				log.Error("rebuild failed", zap.Strings("changed", changed), zap.Error(err))
				return
			}
			s = next
			if err := writeContainer(s, path); err != nil {
				log.Error("write failed", zap.Error(err))
			}
		})
	},
}

// rebuild regenerates s in place when only the basis changed, and reopens
// the session otherwise. On error the previous session stays in use.
func rebuild(s *session, changed []string) (*session, error) {
	if len(changed) == 1 && sameFile(changed[0], s.basisPath) {
		basis, err := meshio.LoadBasis(s.basisPath, 0)
		if err != nil {
			return nil, err
		}
		err = s.rig.Regenerate(basis)
		if err == nil {
			return s, nil
		}
		logger.Info("basis topology changed, reloading rig", zap.Error(err))
	}
	return openSession()
}

func sameFile(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}
