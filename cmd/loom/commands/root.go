// Package commands implements the loom CLI: validate, plan, apply,
// discover and watch over a blueprint workspace.
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
)

// Execute runs the root command.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "loom",
		Short: "Loom - declarative configuration reconciliation",
		Long: `Loom keeps external systems in sync with declarative blueprints.

It merges blueprint fragments into a canonical element set, validates
it, diffs it against the last known state of each system, and applies
the resulting plan through pluggable adapters in dependency order.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newApplyCommand())
	rootCmd.AddCommand(newDiscoverCommand())
	rootCmd.AddCommand(newWatchCommand())
	rootCmd.AddCommand(newPolicyCommand())

	return rootCmd
}
