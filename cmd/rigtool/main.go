// rigtool builds, evaluates and previews procedural blendshape rigs.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/Faultbox/facerig/internal/config"
	"github.com/Faultbox/facerig/internal/logger"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "rigtool",
	Short: "Procedural blendshape rig utility",
	Long: `rigtool generates morph targets from a rig definition and a basis mesh,
evaluates bindings against control parameters, and exports the result.

The rig definition (--rig) is YAML; see "rigtool preset" for an example.
The basis mesh (--basis) may be OBJ, STL or PLY and defaults to the one named
in the rig definition.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(*cobra.Command, []string) { logger.Sync() },
}

func init() {
	config.RegisterFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		buildCmd,
		evalCmd,
		previewCmd,
		playCmd,
		inspectCmd,
		regionsCmd,
		consoleCmd,
		watchCmd,
		presetCmd,
	)
}

func setup(*cobra.Command, []string) error {
	c, err := config.Load()
	if err != nil {
		return err
	}
	cfg = c

	opts := logger.Options{
		Level:   cfg.Logging.Level,
		JSON:    cfg.Logging.JSON,
		Console: os.Stderr,
	}
	if cfg.Logging.LogFile != "" {
		opts.File = logger.DefaultFileConfig(cfg.Logging.LogFile)
	}
	return logger.InitWithOptions(opts)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
