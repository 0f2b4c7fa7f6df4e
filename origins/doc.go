// Package origins derives the identity attached to every inbound
// gateway message and defines the collaborator interfaces that track
// per-origin state.
//
// An identity is an opaque string: the normalized web origin of a plain
// connection, the target origin a known browser extension declares per
// message, or the fixed sentinel for extension traffic that declares no
// target. Trust decisions and session lifetimes are keyed by it, so two
// requests with the same identity share both.
package origins
