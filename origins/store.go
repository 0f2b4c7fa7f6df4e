package origins

import (
	"context"

	"github.com/ethgate-dev/ethgate/jsonrpc"
)

// Store tracks per-origin state owned by the surrounding application:
// which chain each origin currently targets and whether its session is
// live. The gateway consumes it; it never owns the state itself.
type Store interface {
	// UpdateOrigin attaches the identity to the payload and resolves the
	// payload's target chain: the payload's own chainId when declared
	// (preserved byte-for-byte), the origin's selected chain otherwise.
	// The resolved chain is also written back to the payload so every
	// forwarded payload carries one. Handshake messages must not create
	// or refresh origin state.
	UpdateOrigin(ctx context.Context, p *jsonrpc.Payload, identity string, handshake bool) (chainID string, err error)

	// EndSession marks the origin's session ended after idle expiry.
	EndSession(ctx context.Context, identity string) error
}
