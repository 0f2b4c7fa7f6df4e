package provider

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/ethgate-dev/ethgate/jsonrpc"
)

var (
	// ErrNotConnected is returned by Forward while no upstream
	// connection is live. Callers surface it to the requesting client
	// rather than queueing the request.
	ErrNotConnected = errors.New("provider: not connected")
)

// PushFunc receives a raw notification frame exactly as the upstream
// sent it. Implementations must not retain raw beyond the call.
type PushFunc func(raw json.RawMessage)

// Executor forwards requests to the upstream node on behalf of gateway
// clients.
//
// Forward sends one request and blocks until the upstream answers, the
// context ends, or the executor's own request timeout elapses. The
// returned response carries the caller's original id even when the
// executor rewrites ids on the wire.
//
// OnPush registers the single sink for unsolicited upstream frames
// (subscription events). It must be called before the executor starts
// reading; later calls replace the sink.
type Executor interface {
	Forward(ctx context.Context, req *jsonrpc.Payload) (*jsonrpc.Response, error)
	OnPush(fn PushFunc)
}
