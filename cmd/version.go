package cmd

import (
	"fmt"

	"github.com/newhook/necropolis/internal/outcome"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the necropolis version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "necropolis %s\n", outcome.Version)
	},
}
