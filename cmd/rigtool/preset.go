package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/Faultbox/facerig/internal/rigdef"
)

var (
	presetList  bool
	presetForce bool
)

func init() {
	presetCmd.Flags().BoolVarP(&presetList, "list", "l", false, "List available presets")
	presetCmd.Flags().BoolVarP(&presetForce, "force", "f", false, "Overwrite an existing rig file")
}

var presetCmd = &cobra.Command{
	Use:   "preset [name]",
	Short: "Write a built-in rig definition to --rig",
	Example: `  rigtool preset --list
  rigtool preset mouth -r mouth.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if presetList {
			for _, name := range rigdef.Presets() {
				fmt.Println(name)
			}
			return nil
		}

		name := rigdef.DefaultPreset
		if len(args) > 0 {
			name = args[0]
		}
		data, err := rigdef.PresetSource(name)
		if err != nil {
			return err
		}

		path := cfg.Paths.Rig
		if _, err := os.Stat(path); err == nil && !presetForce {
			return fmt.Errorf("%s exists, use --force to overwrite", path)
		} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return err
		}
		fmt.Printf("Wrote: %s (preset %s)\n", path, name)
		return nil
	},
}
