package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPolicyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect loaded policies",
	}
	cmd.AddCommand(newPolicyListCommand())
	return cmd
}

func newPolicyListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List policies and their status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			for _, p := range rt.policy.Policies() {
				status := "enabled"
				if !p.Enabled {
					status = "disabled"
				}
				fmt.Printf("%-20s %-8s %-8s %s\n", p.Name, string(p.Severity), status, p.Description)
			}
			return nil
		},
	}
}
