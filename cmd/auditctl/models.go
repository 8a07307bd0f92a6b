package main

import (
	"fmt"

	"paper-auditor/config"

	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the language models allowed for assisted evaluation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		for _, m := range config.AllowedModels() {
			fmt.Fprintln(cmd.OutOrStdout(), m.ID())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}
