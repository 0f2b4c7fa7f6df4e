package gateway

import (
	"encoding/json"
	"sync"
)

// subscription records the owner of one executor-issued subscription id.
// The identity and chain id are captured at registration so that close
// cleanup can tag its unsubscribe calls without re-resolving anything.
type subscription struct {
	conn     *conn
	identity string
	chainID  string
}

// subscriptionRouter maps subscription ids to their owning connections.
// All state is instance-local and mutex-guarded.
type subscriptionRouter struct {
	mu   sync.Mutex
	subs map[string]subscription
}

func newSubscriptionRouter() *subscriptionRouter {
	return &subscriptionRouter{
		subs: make(map[string]subscription),
	}
}

// register installs conn as the owner of subID. A colliding id silently
// overwrites the previous owner, matching the executor's observed
// behavior of never reusing live ids.
func (r *subscriptionRouter) register(subID string, c *conn, identity, chainID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[subID] = subscription{conn: c, identity: identity, chainID: chainID}
}

// unregister removes subID and reports whether it was present.
func (r *subscriptionRouter) unregister(subID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.subs[subID]
	if ok {
		delete(r.subs, subID)
	}
	return ok
}

// routePush delivers raw to the owner of subID, verbatim. It reports
// false when no owner exists or the owner's sink has closed; the entry
// itself is left alone, close cleanup owns removal.
func (r *subscriptionRouter) routePush(subID string, raw json.RawMessage) bool {
	r.mu.Lock()
	sub, ok := r.subs[subID]
	r.mu.Unlock()

	if !ok {
		return false
	}
	return sub.conn.send(raw) == nil
}

// removeConn drops every subscription owned by c and returns the
// removed entries keyed by subscription id, for unsubscribe issuance.
func (r *subscriptionRouter) removeConn(c *conn) map[string]subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := make(map[string]subscription)
	for id, sub := range r.subs {
		if sub.conn == c {
			removed[id] = sub
			delete(r.subs, id)
		}
	}
	return removed
}

// size reports the number of live subscriptions.
func (r *subscriptionRouter) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}
