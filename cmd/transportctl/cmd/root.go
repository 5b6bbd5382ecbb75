package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// adminAddr is the transportd -admin-addr this CLI talks to for
	// monitor's snapshot polling.
	adminAddr string
	// udpAddr is the transportd -listen address ping sends to directly
	// over the transport wire protocol.
	udpAddr string
)

var rootCmd = &cobra.Command{
	Use:   "transportctl",
	Short: "Operator CLI for a strand-transport node",
	Long: `transportctl talks to a running transportd process: it can send a
one-off ping over the transport wire protocol, or open a live dashboard
onto a node's scheduler and RPC-table state.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&adminAddr, "admin-addr", "http://127.0.0.1:7101", "transportd's admin snapshot HTTP address")
	rootCmd.PersistentFlags().StringVar(&udpAddr, "target", "127.0.0.1:7100", "transportd's UDP listen address")
}
