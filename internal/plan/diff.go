package plan

import (
	"fmt"

	"github.com/yuriy-kovalchuk/hostdb/internal/zone"
)

// stage is an action's slot in the global apply order. Aliases go before the
// hosts they point at, hosts exist before new aliases reference them, and
// ranges are created last.
type stage int

const (
	stageCnameDelete stage = iota
	stageHostDelete
	stageRangeDelete
	stageHostUpdate
	stageHostCreate
	stageCnameCreate
	stageRangeCreate
	numStages
)

// Plan is the result of Compute.
type Plan struct {
	// Actions in apply order.
	Actions []Action
	// Skipped lists target networks that do not exist in the backend yet.
	// Nothing is planned for their hosts or ranges.
	Skipped []string
}

// Empty reports whether there is nothing to apply.
func (p *Plan) Empty() bool { return len(p.Actions) == 0 }

// Summary counts actions per op, for logs.
func (p *Plan) Summary() string {
	counts := map[Op]int{}
	for _, a := range p.Actions {
		counts[a.Op]++
	}
	return fmt.Sprintf("%d to create, %d to update, %d to delete, %d networks skipped",
		counts[OpCreate], counts[OpUpdate], counts[OpDelete], len(p.Skipped))
}

// Compute diffs base (observed) against target (desired). Neither tree is
// modified. Hosts and ranges are only planned for networks present in both
// trees; networks only in base are left alone.
func Compute(base, target *zone.State) *Plan {
	var (
		stages  [numStages][]Action
		skipped []string
	)
	add := func(s stage, a Action) { stages[s] = append(stages[s], a) }

	for _, tn := range target.Networks() {
		cidr := tn.CIDR()
		bn, ok := base.Network(cidr)
		if !ok {
			skipped = append(skipped, cidr)
			continue
		}

		for addr, th := range tn.Hosts() {
			data := HostData{Network: cidr, Address: addr, Host: th}
			bh, ok := bn.Host(addr)
			switch {
			case ok && bh.Equal(th):
			case !ok || bh.IsZero():
				add(stageHostCreate, newAction(OpCreate, data))
			default:
				a := newAction(OpUpdate, data)
				a.OldData = HostData{Network: cidr, Address: addr, Host: bh}
				add(stageHostUpdate, a)
			}
		}
		for addr, bh := range bn.Hosts() {
			if _, ok := tn.Host(addr); !ok {
				add(stageHostDelete, newAction(OpDelete, HostData{Network: cidr, Address: addr, Host: bh}))
			}
		}

		for _, r := range tn.Ranges() {
			if !bn.HasRange(r) {
				add(stageRangeCreate, newAction(OpCreate, RangeData{Network: cidr, Range: r}))
			}
		}
		for _, r := range bn.Ranges() {
			if !tn.HasRange(r) {
				add(stageRangeDelete, newAction(OpDelete, RangeData{Network: cidr, Range: r}))
			}
		}
	}

	for _, c := range target.Cnames() {
		for _, alias := range c.Aliases {
			if !base.HasCname(c.Canonical, alias) {
				add(stageCnameCreate, newAction(OpCreate, CnameData{Canonical: c.Canonical, Alias: alias}))
			}
		}
	}
	for _, c := range base.Cnames() {
		for _, alias := range c.Aliases {
			if !target.HasCname(c.Canonical, alias) {
				add(stageCnameDelete, newAction(OpDelete, CnameData{Canonical: c.Canonical, Alias: alias}))
			}
		}
	}

	p := &Plan{Skipped: skipped}
	for _, actions := range stages {
		p.Actions = append(p.Actions, actions...)
	}
	return p
}
