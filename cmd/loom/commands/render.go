package commands

import (
	"fmt"
	"io"

	"github.com/loom-cfg/loom/pkg/plan"
)

var actionGlyphs = map[plan.Action]string{
	plan.ActionAdd:    "+",
	plan.ActionModify: "~",
	plan.ActionRemove: "-",
}

// renderPlan prints a plan in execution order, one line per item,
// grouped by topological level.
func renderPlan(w io.Writer, p *plan.Plan) {
	if p.Empty() {
		fmt.Fprintln(w, "No changes. State matches the blueprints.")
		return
	}

	level := -1
	for _, it := range p.Items {
		if it.Level != level {
			level = it.Level
			fmt.Fprintf(w, "Level %d:\n", level)
		}
		fmt.Fprintf(w, "  %s %s\n", actionGlyphs[it.Action], it.ID)
	}
	fmt.Fprintf(w, "\nPlan: %d to add, %d to change, %d to remove.\n",
		p.Summary.Add, p.Summary.Modify, p.Summary.Remove)
}
