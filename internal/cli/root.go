// Package cli implements the slink command tree.
package cli

import (
	"github.com/spf13/cobra"
)

var version = "0.1.0"

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:     "slink",
	Short:   "A shared-bandwidth link simulator and throttled transfer server",
	Version: version,
	Long: `Slink pushes concurrent byte streams through one shared bandwidth
budget, the way transfers compete on a real link. It runs scripted
scenarios of competing producers, serves throttled downloads over
HTTP, and reports how the budget was split.`,
	Run: func(cmd *cobra.Command, args []string) {
		// If no subcommand is provided, print help
		cmd.Help()
	},
}

// Execute runs the root command. Called by main.main(), which turns a
// returned error into the process exit code.
func Execute() error {
	return RootCmd.Execute()
}

func init() {
	// Add subcommands to root command
	RootCmd.AddCommand(runCmd)
	RootCmd.AddCommand(serveCmd)
	RootCmd.AddCommand(checkCmd)
}
