// Package ipam defines the interface IPAM backends implement and the
// registry they add themselves to.
package ipam

import (
	"context"

	"github.com/yuriy-kovalchuk/hostdb/internal/plan"
)

// Backend is the interface that IPAM providers must implement.
type Backend interface {
	// Dump returns the observed state as zone-definition lines, with fully
	// qualified names, in the order networks and addresses are listed.
	Dump(ctx context.Context) ([]string, error)

	// Apply performs a single action against the backend.
	Apply(ctx context.Context, action plan.Action) error

	// Commit finishes work deferred by Apply, such as restarting services.
	// It is a no-op when nothing is pending.
	Commit(ctx context.Context) error
}
