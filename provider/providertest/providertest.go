// Package providertest provides a scripted in-memory executor for
// exercising gateway behavior without an upstream node.
package providertest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ethgate-dev/ethgate/jsonrpc"
	"github.com/ethgate-dev/ethgate/provider"
)

// Fake is a scripted provider.Executor. Methods answer with stubbed
// results or errors; every forwarded payload is recorded for later
// inspection. The zero value is not usable; construct with NewFake.
type Fake struct {
	mu        sync.Mutex
	results   map[string]json.RawMessage
	rpcErrors map[string]*jsonrpc.Error
	failure   error
	forwarded []*jsonrpc.Payload

	pushMu sync.RWMutex
	push   provider.PushFunc
}

var _ provider.Executor = (*Fake)(nil)

// NewFake builds an empty scripted executor. Unstubbed methods answer
// with a null result.
func NewFake() *Fake {
	return &Fake{
		results:   make(map[string]json.RawMessage),
		rpcErrors: make(map[string]*jsonrpc.Error),
	}
}

// StubResult scripts a successful result for the given method.
func (f *Fake) StubResult(method string, result any) {
	data, err := json.Marshal(result)
	if err != nil {
		panic(fmt.Sprintf("providertest: cannot marshal stub for %s: %v", method, err))
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[method] = data
	delete(f.rpcErrors, method)
}

// StubError scripts a JSON-RPC error response for the given method.
func (f *Fake) StubError(method string, code jsonrpc.ErrorCode, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rpcErrors[method] = &jsonrpc.Error{Code: code, Message: message}
	delete(f.results, method)
}

// FailWith makes every subsequent Forward return err as a transport
// failure. Pass nil to clear.
func (f *Fake) FailWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failure = err
}

// Forward implements provider.Executor.
func (f *Fake) Forward(ctx context.Context, req *jsonrpc.Payload) (*jsonrpc.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cp := *req
	f.mu.Lock()
	f.forwarded = append(f.forwarded, &cp)
	failure := f.failure
	rpcErr := f.rpcErrors[req.Method]
	result, haveResult := f.results[req.Method]
	f.mu.Unlock()

	if failure != nil {
		return nil, failure
	}
	if rpcErr != nil {
		return jsonrpc.NewErrorResponse(req.ID, rpcErr.Code, rpcErr.Message), nil
	}
	if !haveResult {
		result = json.RawMessage("null")
	}

	return &jsonrpc.Response{
		JSONRPCVersion: jsonrpc.ProtocolVersion,
		Result:         result,
		ID:             req.ID,
	}, nil
}

// OnPush implements provider.Executor.
func (f *Fake) OnPush(fn provider.PushFunc) {
	f.pushMu.Lock()
	defer f.pushMu.Unlock()
	f.push = fn
}

// Push delivers a raw frame to the registered push sink, mimicking an
// unsolicited upstream notification.
func (f *Fake) Push(raw json.RawMessage) {
	f.pushMu.RLock()
	fn := f.push
	f.pushMu.RUnlock()

	if fn != nil {
		fn(raw)
	}
}

// EmitSubscriptionEvent pushes a well-formed eth_subscription
// notification for the given subscription id.
func (f *Fake) EmitSubscriptionEvent(subID string, result any) {
	data, err := json.Marshal(result)
	if err != nil {
		panic(fmt.Sprintf("providertest: cannot marshal event payload: %v", err))
	}

	frame := fmt.Sprintf(
		`{"jsonrpc":"2.0","method":"eth_subscription","params":{"subscription":%q,"result":%s}}`,
		subID, data,
	)
	f.Push(json.RawMessage(frame))
}

// Forwarded returns a snapshot of every payload seen so far, in order.
func (f *Fake) Forwarded() []*jsonrpc.Payload {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*jsonrpc.Payload, len(f.forwarded))
	copy(out, f.forwarded)
	return out
}

// ForwardedMethods returns the method names of every payload seen so
// far, in order.
func (f *Fake) ForwardedMethods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, 0, len(f.forwarded))
	for _, p := range f.forwarded {
		out = append(out, p.Method)
	}
	return out
}
