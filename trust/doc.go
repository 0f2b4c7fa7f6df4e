// Package trust gates protected JSON-RPC methods behind per-origin
// trust decisions.
//
// The gate itself is policy-free: whether an origin is trusted lives in
// a pluggable Store (in-memory and Redis implementations are provided
// under trust/memstore and trust/redistore), and the set of protected
// methods is a static membership test covering the account and signing
// surface. Everything outside that set passes without consulting the
// store.
package trust
