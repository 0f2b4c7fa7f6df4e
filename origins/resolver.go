package origins

import (
	"context"
	"fmt"

	"github.com/ethgate-dev/ethgate/jsonrpc"
)

// UnknownExtensionError rejects traffic from an extension missing from
// the allow-list. The gateway answers such messages with a
// permission-denied error naming the extension id; they never resolve
// an identity and never reach the executor.
type UnknownExtensionError struct {
	ID string
}

func (e *UnknownExtensionError) Error() string {
	return fmt.Sprintf("unknown extension: %s", e.ID)
}

// ConnMeta is the handshake metadata identity resolution depends on:
// the raw Origin header and, for extension peers, their descriptor.
type ConnMeta struct {
	RawOrigin string
	Extension *Extension
}

// Resolver derives the identity attached to each inbound message.
type Resolver struct {
	registry Registry
}

// NewResolver builds a Resolver against the given allow-list. A nil
// registry treats every extension as unknown, so extension traffic is
// rejected while plain web connections still resolve.
func NewResolver(registry Registry) *Resolver {
	return &Resolver{registry: registry}
}

// Resolve produces the identity for one message.
//
// Extension connections are checked against the registry first; known
// extensions resolve to the payload's declared target origin when
// present (the override is stripped here, before forwarding) and to the
// ExtensionOrigin sentinel otherwise. Plain connections resolve to
// their parsed web origin.
func (r *Resolver) Resolve(ctx context.Context, meta ConnMeta, p *jsonrpc.Payload) (string, error) {
	if meta.Extension == nil {
		return ParseOrigin(meta.RawOrigin), nil
	}

	known := false
	if r.registry != nil {
		var err error
		known, err = r.registry.ResolveKnownExtension(ctx, *meta.Extension)
		if err != nil {
			return "", fmt.Errorf("resolve extension %q: %w", meta.Extension.ID, err)
		}
	}
	if !known {
		return "", &UnknownExtensionError{ID: meta.Extension.ID}
	}

	if p.FrameOrigin != "" {
		identity := p.FrameOrigin
		p.FrameOrigin = ""
		return identity, nil
	}

	return ExtensionOrigin, nil
}
