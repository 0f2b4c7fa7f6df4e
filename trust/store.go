package trust

import "context"

// Store persists per-origin trust decisions. Implementations must be
// safe for concurrent use.
type Store interface {
	// Trusted reports whether the origin currently holds a grant.
	Trusted(ctx context.Context, origin string) (bool, error)

	// Grant records a trust decision for the origin.
	Grant(ctx context.Context, origin string) error

	// Revoke withdraws the origin's grant. Revoking an origin that holds
	// none is a no-op.
	Revoke(ctx context.Context, origin string) error
}
