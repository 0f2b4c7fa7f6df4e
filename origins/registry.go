package origins

import (
	"context"
	"strings"
)

// Registry answers whether an extension is on the gateway's allow-list.
// Implementations must be safe for concurrent use; the gateway consults
// the registry for every message arriving on an extension connection.
type Registry interface {
	ResolveKnownExtension(ctx context.Context, ext Extension) (bool, error)
}

// StaticRegistry is a fixed allow-list of extension ids. Matching is
// case-insensitive.
type StaticRegistry []string

var _ Registry = (StaticRegistry)(nil)

func (r StaticRegistry) ResolveKnownExtension(_ context.Context, ext Extension) (bool, error) {
	for _, id := range r {
		if strings.EqualFold(id, ext.ID) {
			return true, nil
		}
	}
	return false, nil
}
