package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// transportctlVersion is set at build time via
// -ldflags "-X .../cmd.transportctlVersion=x.y.z".
var transportctlVersion = "0.1.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show transportctl's version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "transportctl version %s\n", transportctlVersion)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
