// Package reconcile drives a backend towards a desired zone state.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/go-logr/logr"

	"github.com/yuriy-kovalchuk/hostdb/internal/ipam"
	"github.com/yuriy-kovalchuk/hostdb/internal/plan"
	"github.com/yuriy-kovalchuk/hostdb/internal/zone"
)

// Reconciler compares zone files with the state held by an IPAM backend and
// applies the difference.
type Reconciler struct {
	Log     logr.Logger
	Backend ipam.Backend
	// Options used to parse the backend dump. They must match the options
	// the desired state was parsed with, or pool and name expansion differ.
	Options zone.Options
}

// Result reports what Sync did.
type Result struct {
	Plan    *plan.Plan
	Applied int
}

// Observe reads the backend state into a tree.
func (r *Reconciler) Observe(ctx context.Context) (*zone.State, error) {
	lines, err := r.Backend.Dump(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading IPAM state: %w", err)
	}
	p := zone.NewParser(r.Options)
	if err := p.Parse(slices.Values(lines)); err != nil {
		return nil, fmt.Errorf("parsing IPAM state: %w", err)
	}
	r.Log.V(1).Info("observed IPAM state", "summary", p.State().Summary())
	return p.State(), nil
}

// Plan computes the actions that turn the backend state into target.
func (r *Reconciler) Plan(ctx context.Context, target *zone.State) (*plan.Plan, error) {
	base, err := r.Observe(ctx)
	if err != nil {
		return nil, err
	}
	p := plan.Compute(base, target)
	for _, cidr := range p.Skipped {
		r.Log.Info("network does not exist in IPAM, skipping its hosts and ranges", "network", cidr)
	}
	r.Log.Info("plan computed", "summary", p.Summary())
	return p, nil
}

// Sync plans and, unless dryRun is set, applies the plan in order. The first
// failing action stops the run; actions applied before it stay applied and
// the backend is still committed so DHCP serves them.
func (r *Reconciler) Sync(ctx context.Context, target *zone.State, dryRun bool) (*Result, error) {
	p, err := r.Plan(ctx, target)
	if err != nil {
		return nil, err
	}
	res := &Result{Plan: p}
	if dryRun || p.Empty() {
		return res, nil
	}

	applyErr := r.apply(ctx, p, res)
	if res.Applied > 0 {
		if err := r.Backend.Commit(context.WithoutCancel(ctx)); err != nil {
			return res, errors.Join(applyErr, fmt.Errorf("committing changes: %w", err))
		}
	}
	if applyErr == nil {
		r.Log.Info("sync complete", "applied", res.Applied)
	}
	return res, applyErr
}

func (r *Reconciler) apply(ctx context.Context, p *plan.Plan, res *Result) error {
	for i, a := range p.Actions {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("stopped after %d of %d actions: %w", i, len(p.Actions), err)
		}
		if err := r.Backend.Apply(ctx, a); err != nil {
			r.Log.Error(err, "action failed", "action", a.String(), "applied", res.Applied, "remaining", len(p.Actions)-i)
			return fmt.Errorf("applying %s: %w", a, err)
		}
		res.Applied++
		r.Log.Info("applied", "action", a.String())
	}
	return nil
}
