// Package cmd wires the CLI surface: scan execution, rule linting, and
// version reporting.
package cmd

import (
	"github.com/spf13/cobra"

	"securethread/internal/version"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:           "securethread",
	Short:         "Rule-driven source code vulnerability scanner",
	Long:          "securethread scans a source tree with a compiled rule set, scores the result, and optionally enriches findings through an OpenAI-compatible model.",
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Errors are returned to main for exit-code
// handling rather than printed here.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}
