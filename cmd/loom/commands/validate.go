package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loom-cfg/loom/pkg/blueprint"
	"github.com/loom-cfg/loom/pkg/merge"
	"github.com/loom-cfg/loom/pkg/validate"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Merge and validate the blueprints",
		Long: `Merge all blueprint documents into the canonical element set and
validate it: unresolved references, merge conflicts and policy
violations are reported together. Nothing is planned or applied.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			bps, err := rt.loadBlueprints()
			if err != nil {
				return err
			}

			merged := merge.Merge(blueprint.Flatten(bps))
			errs := validate.Validate(merged.Elements, merged.Conflicts, rt.policy.Rule())
			if len(errs) > 0 {
				for _, e := range errs {
					fmt.Printf("  error: %s\n", e)
				}
				return fmt.Errorf("%d validation error(s)", len(errs))
			}

			fmt.Printf("OK: %d elements from %d documents.\n", len(merged.Elements), len(bps))
			return nil
		},
	}
}
