// Package jsonrpc defines the JSON-RPC 2.0 wire types exchanged between
// gateway clients, the gateway, and the upstream request executor.
//
// The request shape is the standard envelope plus the gateway's routing
// fields: a hex-prefixed target chain id, the extension origin override
// and handshake markers, and the resolved origin identity attached to
// every payload before it is forwarded upstream.
package jsonrpc
