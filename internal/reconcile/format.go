package reconcile

import (
	"fmt"
	"strings"

	"github.com/yuriy-kovalchuk/hostdb/internal/plan"
)

var opSymbols = map[plan.Op]string{
	plan.OpCreate: "+",
	plan.OpUpdate: "~",
	plan.OpDelete: "-",
}

// FormatPlan returns a human-readable representation of a plan.
func FormatPlan(p *plan.Plan) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Plan: %s\n", p.Summary())

	if len(p.Skipped) > 0 {
		fmt.Fprintf(&b, "  Skipped networks (not in IPAM):\n")
		for _, cidr := range p.Skipped {
			fmt.Fprintf(&b, "    - %s\n", cidr)
		}
	}

	if p.Empty() {
		fmt.Fprintf(&b, "  No changes.\n")
		return b.String()
	}

	fmt.Fprintf(&b, "  Actions:\n")
	for _, a := range p.Actions {
		fmt.Fprintf(&b, "    %s %s %s\n", opSymbols[a.Op], a.Type, a.Data)
		if a.OldData != nil {
			fmt.Fprintf(&b, "        was %s\n", a.OldData)
		}
	}

	return b.String()
}
