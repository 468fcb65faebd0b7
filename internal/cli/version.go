package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/splitpal/splitpal/internal/api"
)

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the splitpal version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "splitpal %s\n", api.Version)
	},
}
