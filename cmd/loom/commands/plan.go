package commands

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/loom-cfg/loom/pkg/plan"
)

// planDocument is the JSON shape written by --out.
type planDocument struct {
	ID        string         `json:"id"`
	CreatedAt string         `json:"created_at"`
	Summary   plan.Summary   `json:"summary"`
	Items     []planItemView `json:"items"`
}

type planItemView struct {
	ID        string   `json:"id"`
	Action    string   `json:"action"`
	Level     int      `json:"level"`
	DependsOn []string `json:"depends_on,omitempty"`
}

func newPlanCommand() *cobra.Command {
	var outFile string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Compute the change plan",
		Long: `Compare the blueprints with the last known state and print the
ordered set of changes an apply would perform. Read-only: no adapter
is called and state is not modified.`,
		Example: `  # Print the plan
  loom plan

  # Also write it as JSON for review tooling
  loom plan --out plan.json`,
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

			p, err := rt.engine.Plan(ctx, bps)
			if err != nil {
				return err
			}

			renderPlan(os.Stdout, p)

			if outFile != "" {
				if err := writePlanFile(outFile, p); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outFile, "out", "o", "", "write the plan as JSON to this file")

	return cmd
}

func writePlanFile(path string, p *plan.Plan) error {
	doc := planDocument{
		ID:        p.ID,
		CreatedAt: p.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		Summary:   p.Summary,
		Items:     make([]planItemView, 0, len(p.Items)),
	}
	for _, it := range p.Items {
		view := planItemView{
			ID:     it.ID.String(),
			Action: string(it.Action),
			Level:  it.Level,
		}
		for _, dep := range it.DependsOn {
			view.DependsOn = append(view.DependsOn, dep.String())
		}
		doc.Items = append(doc.Items, view)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
