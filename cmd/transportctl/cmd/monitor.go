package cmd

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/strand-protocol/strand-transport/cmd/transportctl/tui"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Open a live dashboard onto a transportd node's scheduler state",
	Long: `monitor polls a running transportd's admin snapshot endpoint
(--admin-addr) and renders its outstanding-request count, served-RPC
count, active grant count, and dispatch tick count.

Key bindings:
  r          Force an immediate refresh
  q / Ctrl+C Quit`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p := tea.NewProgram(tui.New(adminAddr), tea.WithAltScreen())
		_, err := p.Run()
		return err
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}
