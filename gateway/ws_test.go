package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ethgate-dev/ethgate/jsonrpc"
	"github.com/ethgate-dev/ethgate/origins"
	"github.com/ethgate-dev/ethgate/provider/providertest"
)

// startGateway serves s over httptest and starts its push loop.
func startGateway(t *testing.T, s *Server) *httptest.Server {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = s.Run(ctx) }()

	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return srv
}

// dialWS connects a websocket client with the given Origin header.
func dialWS(t *testing.T, srv *httptest.Server, origin string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}

	ws, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("failed to dial gateway: %v", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func writeFrame(t *testing.T, ws *websocket.Conn, raw string) {
	t.Helper()
	if err := ws.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		t.Fatalf("failed to write frame: %v", err)
	}
}

func readFrame(t *testing.T, ws *websocket.Conn) []byte {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, raw, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read frame: %v", err)
	}
	return raw
}

func decodeResponse(t *testing.T, raw []byte) *jsonrpc.Response {
	t.Helper()
	var resp jsonrpc.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("failed to decode response %s: %v", raw, err)
	}
	return &resp
}

func TestWebsocketRoundTrip(t *testing.T) {
	fake := providertest.NewFake()
	fake.StubResult("eth_blockNumber", "0x10")
	s, _ := newTestGateway(t, fake)
	srv := startGateway(t, s)

	ws := dialWS(t, srv, "https://dapp.example")
	writeFrame(t, ws, `{"jsonrpc":"2.0","id":1,"method":"eth_blockNumber"}`)

	resp := decodeResponse(t, readFrame(t, ws))
	if resp.ID.String() != "1" {
		t.Fatalf("expected the response to carry the request id, got %q", resp.ID.String())
	}
	if string(resp.Result) != `"0x10"` {
		t.Fatalf("unexpected result: %s", resp.Result)
	}
}

func TestWebsocketMalformedFramesAreDropped(t *testing.T) {
	fake := providertest.NewFake()
	fake.StubResult("eth_blockNumber", "0x10")
	s, _ := newTestGateway(t, fake)
	srv := startGateway(t, s)

	ws := dialWS(t, srv, "https://dapp.example")

	// Neither frame earns a response; the connection must survive both.
	writeFrame(t, ws, `this is not json`)
	writeFrame(t, ws, `{"jsonrpc":"1.0","id":1,"method":"eth_blockNumber"}`)
	writeFrame(t, ws, `{"jsonrpc":"2.0","id":2,"method":"eth_blockNumber"}`)

	resp := decodeResponse(t, readFrame(t, ws))
	if resp.ID.String() != "2" {
		t.Fatalf("expected only the valid frame to be answered, got id %q", resp.ID.String())
	}
}

func TestWebsocketSubscriptionDelivery(t *testing.T) {
	fake := providertest.NewFake()
	fake.StubResult("eth_subscribe", "0xabc")
	s, _ := newTestGateway(t, fake)
	srv := startGateway(t, s)

	owner := dialWS(t, srv, "https://one.example")
	other := dialWS(t, srv, "https://two.example")

	writeFrame(t, owner, `{"jsonrpc":"2.0","id":1,"method":"eth_subscribe","params":["newHeads"]}`)
	resp := decodeResponse(t, readFrame(t, owner))
	if string(resp.Result) != `"0xabc"` {
		t.Fatalf("unexpected subscribe result: %s", resp.Result)
	}

	fake.EmitSubscriptionEvent("0xabc", map[string]string{"number": "0x10"})

	push := readFrame(t, owner)
	subID, ok := jsonrpc.PushSubscription(push)
	if !ok || subID != "0xabc" {
		t.Fatalf("expected a push for 0xabc, got %s", push)
	}

	// The other connection sees nothing.
	_ = other.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, raw, err := other.ReadMessage(); err == nil {
		t.Fatalf("expected no frame on the non-owner, got %s", raw)
	}
}

func TestWebsocketCloseReleasesSubscriptions(t *testing.T) {
	fake := providertest.NewFake()
	fake.StubResult("eth_subscribe", "0xabc")
	s, _ := newTestGateway(t, fake)
	srv := startGateway(t, s)

	ws := dialWS(t, srv, "https://one.example")
	writeFrame(t, ws, `{"jsonrpc":"2.0","id":1,"method":"eth_subscribe","params":["newHeads"]}`)
	readFrame(t, ws)

	ws.Close()

	deadline := time.Now().Add(2 * time.Second)
	for {
		var unsub *jsonrpc.Payload
		for _, p := range fake.Forwarded() {
			if p.Method == methodUnsubscribe {
				unsub = p
			}
		}
		if unsub != nil {
			if unsub.Origin != "https://one.example" {
				t.Fatalf("expected the unsubscribe to carry the owning identity, got %q", unsub.Origin)
			}
			var ids []string
			if err := json.Unmarshal(unsub.Params, &ids); err != nil || len(ids) != 1 || ids[0] != "0xabc" {
				t.Fatalf("unexpected unsubscribe params: %s", unsub.Params)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected an unsubscribe after close, saw %v", fake.ForwardedMethods())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWebsocketExtensionSummon(t *testing.T) {
	fake := providertest.NewFake()

	summoned := make(chan struct{}, 1)
	s, _ := newTestGateway(t, fake, func(cfg *Config) {
		cfg.Registry = origins.StaticRegistry{"friendly-ext"}
		cfg.Summon = func(context.Context) { summoned <- struct{}{} }
	})
	srv := startGateway(t, s)

	ws := dialWS(t, srv, "chrome-extension://friendly-ext")

	writeFrame(t, ws, `{"jsonrpc":"2.0","id":1,"method":"ethgate_summon"}`)
	select {
	case <-summoned:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the summon callback")
	}

	// Summon wrote nothing: the next frame on the wire answers the
	// chain introspection that follows it.
	writeFrame(t, ws, `{"jsonrpc":"2.0","id":2,"method":"eth_chainId"}`)
	resp := decodeResponse(t, readFrame(t, ws))
	if resp.ID.String() != "2" || string(resp.Result) != `"0x1"` {
		t.Fatalf("expected the chain fast path answer, got %s", mustJSON(t, resp))
	}
	if len(fake.Forwarded()) != 0 {
		t.Fatalf("expected no executor traffic, saw %v", fake.ForwardedMethods())
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}
	return string(data)
}
