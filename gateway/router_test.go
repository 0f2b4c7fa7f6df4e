package gateway

import (
	"bytes"
	"encoding/json"
	"sync"
	"testing"

	"github.com/ethgate-dev/ethgate/origins"
)

// frameSink records every frame written to a test connection.
type frameSink struct {
	mu     sync.Mutex
	frames [][]byte
}

func (s *frameSink) write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.frames = append(s.frames, cp)
	return nil
}

func (s *frameSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func (s *frameSink) last() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return nil
	}
	return s.frames[len(s.frames)-1]
}

func sinkConn(sink *frameSink) *conn {
	return newConn(transportWebsocket, origins.ConnMeta{}, sink.write)
}

func TestRouterRoutesPushToOwner(t *testing.T) {
	r := newSubscriptionRouter()

	sink1, sink2 := &frameSink{}, &frameSink{}
	c1, c2 := sinkConn(sink1), sinkConn(sink2)

	r.register("0xabc", c1, "https://one.example", "0x1")
	r.register("0xdef", c2, "https://two.example", "0x1")

	raw := json.RawMessage(`{"jsonrpc":"2.0","method":"eth_subscription","params":{"subscription":"0xabc","result":{"number":"0x10"}}}`)
	if !r.routePush("0xabc", raw) {
		t.Fatal("expected the push to be routed")
	}

	if sink1.count() != 1 || !bytes.Equal(sink1.last(), raw) {
		t.Fatalf("expected the owner to receive the push verbatim, got %s", sink1.last())
	}
	if sink2.count() != 0 {
		t.Fatal("expected the other connection to receive nothing")
	}
}

func TestRouterDropsUnownedPush(t *testing.T) {
	r := newSubscriptionRouter()

	if r.routePush("0xmissing", json.RawMessage(`{}`)) {
		t.Fatal("expected an unowned push to be dropped")
	}
}

func TestRouterUnregister(t *testing.T) {
	r := newSubscriptionRouter()
	c := sinkConn(&frameSink{})

	r.register("0xabc", c, "https://dapp.example", "0x1")

	if !r.unregister("0xabc") {
		t.Fatal("expected unregister to report the entry")
	}
	if r.unregister("0xabc") {
		t.Fatal("expected a second unregister to be a no-op")
	}
	if r.routePush("0xabc", json.RawMessage(`{}`)) {
		t.Fatal("expected pushes after unregister to be dropped")
	}
}

func TestRouterCollisionOverwritesOwner(t *testing.T) {
	r := newSubscriptionRouter()

	sink1, sink2 := &frameSink{}, &frameSink{}
	c1, c2 := sinkConn(sink1), sinkConn(sink2)

	r.register("0xabc", c1, "https://one.example", "0x1")
	r.register("0xabc", c2, "https://two.example", "0x1")

	raw := json.RawMessage(`{"params":{"subscription":"0xabc"}}`)
	if !r.routePush("0xabc", raw) {
		t.Fatal("expected the push to be routed")
	}
	if sink1.count() != 0 {
		t.Fatal("expected the overwritten owner to receive nothing")
	}
	if sink2.count() != 1 {
		t.Fatal("expected the new owner to receive the push")
	}
}

func TestRouterRemoveConn(t *testing.T) {
	r := newSubscriptionRouter()

	c1, c2 := sinkConn(&frameSink{}), sinkConn(&frameSink{})

	r.register("0xa1", c1, "https://one.example", "0x1")
	r.register("0xa2", c1, "https://one.example", "0xa")
	r.register("0xb1", c2, "https://two.example", "0x1")

	removed := r.removeConn(c1)
	if len(removed) != 2 {
		t.Fatalf("expected two removed entries, got %d", len(removed))
	}
	for _, subID := range []string{"0xa1", "0xa2"} {
		sub, ok := removed[subID]
		if !ok {
			t.Fatalf("expected %s to be removed", subID)
		}
		if sub.identity != "https://one.example" {
			t.Fatalf("expected the removed entry to carry its identity, got %q", sub.identity)
		}
	}
	if removed["0xa2"].chainID != "0xa" {
		t.Fatalf("expected the removed entry to carry its chain id, got %q", removed["0xa2"].chainID)
	}

	if r.size() != 1 {
		t.Fatalf("expected the other connection's entry to survive, got %d", r.size())
	}
	if !r.routePush("0xb1", json.RawMessage(`{}`)) {
		t.Fatal("expected the surviving entry to still route")
	}
}

func TestRouterLeavesEntryForClosedOwner(t *testing.T) {
	r := newSubscriptionRouter()

	sink := &frameSink{}
	c := sinkConn(sink)
	r.register("0xabc", c, "https://dapp.example", "0x1")

	c.close()

	if r.routePush("0xabc", json.RawMessage(`{}`)) {
		t.Fatal("expected the push to report undelivered for a closed owner")
	}
	// The entry itself stays; connection teardown owns removal.
	if r.size() != 1 {
		t.Fatalf("expected the entry to remain, got %d", r.size())
	}
	if sink.count() != 0 {
		t.Fatal("expected no frame to reach the closed connection")
	}
}
