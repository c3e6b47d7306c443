package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	configCmd.Flags().Bool("save", false, "Write the effective config to the user config directory")
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long:  "Print the configuration after merging defaults, the config file and flags.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		save, _ := cmd.Flags().GetBool("save")
		if save {
			path, err := cfg.Save()
			if err != nil {
				return err
			}
			fmt.Printf("Wrote: %s\n", path)
			return nil
		}
		data, err := cfg.Marshal()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}
