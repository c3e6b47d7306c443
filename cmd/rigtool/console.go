package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Faultbox/facerig/internal/console"
	"github.com/Faultbox/facerig/internal/logger"
)

var consoleCmd = &cobra.Command{
	Use:   "console [script...]",
	Short: "Run authoring commands from scripts or stdin",
	Long: `console loads the rig and then executes commands such as
declare-region, generate-target, bind and evaluate. Scripts stop at the first
error; commands read from stdin report errors and continue. Type "help" for
the command list.`,
	Example: `  rigtool console edits.rig
  echo "set-parameter smile 1
evaluate" | rigtool console`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		c := console.New(s.rig, os.Stdout, logger.Named("console"))

		if len(args) == 0 {
			return c.Run(cmd.Context(), os.Stdin, true)
		}
		for _, path := range args {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			err = c.Run(cmd.Context(), f, false)
			f.Close()
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
		}
		return nil
	},
}
