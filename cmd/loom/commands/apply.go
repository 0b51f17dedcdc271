package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/loom-cfg/loom/pkg/plan"
)

func newApplyCommand() *cobra.Command {
	var autoApprove bool

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply the change plan",
		Long: `Compute the change plan and execute it through the registered
adapters. The plan is shown for confirmation first; independent changes
run concurrently, dependent ones strictly in order. A failed change
stops only its own dependents.`,
		Example: `  # Review and confirm interactively
  loom apply

  # Skip the confirmation prompt
  loom apply --auto-approve`,
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

			onProgress := func(it *plan.Item) {
				fmt.Printf("  %s %s ... done\n", actionGlyphs[it.Action], it.ID)
			}

			p, err := rt.engine.Apply(ctx, bps, fillFromBlueprints,
				confirmPlan, onProgress, autoApprove)
			if err != nil {
				if p != nil {
					printOutcome(p)
				}
				return err
			}

			if p.Empty() {
				fmt.Println("No changes. State matches the blueprints.")
				return nil
			}
			printOutcome(p)
			return nil
		},
	}

	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "apply without asking for confirmation")

	return cmd
}

// confirmPlan shows the plan and asks for an explicit yes.
func confirmPlan(p *plan.Plan) bool {
	renderPlan(os.Stdout, p)
	fmt.Print("\nApply these changes? Only 'yes' is accepted: ")

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	return strings.TrimSpace(line) == "yes"
}

func printOutcome(p *plan.Plan) {
	var committed, failed, blocked, pending int
	for _, it := range p.Items {
		switch it.Status {
		case plan.StatusCommitted:
			committed++
		case plan.StatusFailed:
			failed++
		case plan.StatusBlocked:
			blocked++
		default:
			pending++
		}
	}
	if failed == 0 && blocked == 0 && pending == 0 {
		fmt.Printf("\nApply complete: %d change(s).\n", committed)
		return
	}
	fmt.Printf("\nApply finished: %d committed, %d failed, %d blocked, %d not attempted.\n",
		committed, failed, blocked, pending)
}
