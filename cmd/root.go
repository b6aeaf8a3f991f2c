// Package cmd contains the CLI commands for the tracker, built using the
// Cobra library.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "repo-traffic-tracker",
	Short: "Collects GitHub repository traffic and republishes it to CloudWatch",
	Long: `repo-traffic-tracker fetches the trailing daily clone and view counts for
a configured set of GitHub repositories and republishes them as CloudWatch
metrics plus a structured audit trail in CloudWatch Logs.`,
}

// Execute runs the root command. It is called once from main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// Verbose output is available to every subcommand.
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose/debug logging")
}
