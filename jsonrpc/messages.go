package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// ProtocolVersion is the supported JSON-RPC protocol version.
const ProtocolVersion = "2.0"

// Payload is an inbound JSON-RPC request frame.
//
// Beyond the JSON-RPC 2.0 envelope it carries the gateway's routing
// fields. ChainID is the hex-prefixed target chain, filled from the
// origin's selected chain when the client does not declare one.
// FrameOrigin is the target-origin override declared by extension
// traffic; it is consumed during origin resolution and stripped before
// the payload is forwarded. ExtensionConnecting flags extension
// connection probes, which must not refresh session timers. Origin is
// the resolved identity, attached by the origin store; every payload
// handed to the executor carries one.
type Payload struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Method         string          `json:"method"`
	Params         json.RawMessage `json:"params,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`

	ChainID             string `json:"chainId,omitempty"`
	FrameOrigin         string `json:"__frameOrigin,omitempty"`
	ExtensionConnecting bool   `json:"__extensionConnecting,omitempty"`
	Origin              string `json:"_origin,omitempty"`
}

// ParsePayload decodes and validates a single request frame. Frames
// that are not valid JSON, carry the wrong protocol version, or name no
// method are rejected; callers are expected to drop such frames without
// responding since no usable id can be assumed.
func ParsePayload(data []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	if p.JSONRPCVersion != ProtocolVersion {
		return nil, fmt.Errorf("invalid JSON-RPC version: expected %q, got %q", ProtocolVersion, p.JSONRPCVersion)
	}

	if p.Method == "" {
		return nil, fmt.Errorf("request names no method")
	}

	return &p, nil
}

// Response represents a JSON-RPC response.
type Response struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          *Error          `json:"error,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// NewResultResponse builds a successful JSON-RPC response object.
func NewResultResponse(id *RequestID, result any) (*Response, error) {
	resultBytes, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	return &Response{
		JSONRPCVersion: ProtocolVersion,
		Result:         resultBytes,
		ID:             id,
	}, nil
}

// NewErrorResponse builds an error JSON-RPC response with the given code.
func NewErrorResponse(id *RequestID, code ErrorCode, message string) *Response {
	return &Response{
		JSONRPCVersion: ProtocolVersion,
		Error: &Error{
			Code:    code,
			Message: message,
		},
		ID: id,
	}
}

// PushSubscription extracts the subscription id from a raw push frame
// (`params.subscription`). It reports false for frames that carry no
// subscription id, which callers treat as unroutable.
func PushSubscription(raw []byte) (string, bool) {
	var probe struct {
		Params struct {
			Subscription string `json:"subscription"`
		} `json:"params"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return "", false
	}
	return probe.Params.Subscription, probe.Params.Subscription != ""
}
