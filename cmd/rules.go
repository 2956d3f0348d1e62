package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"securethread/internal/logging"
	"securethread/internal/rules"
)

var lintWatch bool

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and validate rule files",
}

var rulesLintCmd = &cobra.Command{
	Use:   "lint <dir>",
	Short: "Compile a rule directory and report diagnostics",
	Long:  "Compiles every .rule file under the directory and prints compile diagnostics. With --watch, stays running and re-lints on file changes.",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesLint,
}

func init() {
	rulesLintCmd.Flags().BoolVarP(&lintWatch, "watch", "w", false, "re-lint whenever a rule file changes")
	rulesCmd.AddCommand(rulesLintCmd)
	rootCmd.AddCommand(rulesCmd)
}

func runRulesLint(cmd *cobra.Command, args []string) error {
	dir := args[0]
	out := cmd.OutOrStdout()
	cache := rules.NewCache()

	if lintWatch {
		log, err := logging.New(verbose)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer func() { _ = log.Sync() }()

		w := rules.NewWatcher(dir, cache, log, func(loaded []rules.Rule, diags []rules.Diagnostic) {
			printLint(cmd, dir, loaded, diags)
		})
		return w.Run(cmd.Context())
	}

	loaded, diags, err := rules.LoadDir(dir, cache)
	if err != nil {
		return err
	}
	printLint(cmd, dir, loaded, diags)
	if len(diags) > 0 {
		return fmt.Errorf("%d diagnostics in %s", len(diags), dir)
	}
	fmt.Fprintf(out, "ok: %d rules compile cleanly\n", len(loaded))
	return nil
}

func printLint(cmd *cobra.Command, dir string, loaded []rules.Rule, diags []rules.Diagnostic) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d rules, %d diagnostics\n", dir, len(loaded), len(diags))
	for _, d := range diags {
		fmt.Fprintf(out, "  %s\n", d.String())
	}
}
