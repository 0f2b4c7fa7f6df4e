// Package provider defines the upstream executor contract.
//
// An Executor forwards JSON-RPC payloads to the single upstream node and
// surfaces the node's unsolicited subscription notifications. Concrete
// implementations live in subpackages; wsprovider speaks websocket to a
// real node, providertest scripts one for tests.
package provider
