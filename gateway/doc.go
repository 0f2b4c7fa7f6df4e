// Package gateway multiplexes untrusted JSON-RPC clients onto one
// upstream executor.
//
// The server accepts websocket connections and single-shot HTTP POSTs
// on the same handler. Every inbound frame runs the same pipeline:
// origin resolution, chain-id validation, session refresh, optional
// rate limiting, extension fast paths, trust enforcement, and finally
// the forward to the executor. Subscription events pushed by the
// executor are routed back to the single connection that owns the
// subscription id.
package gateway
