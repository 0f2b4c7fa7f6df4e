// Package sessions tracks per-origin idle expiry.
//
// Every forwarded request refreshes the origin's sliding idle window;
// when the window elapses with no traffic the tracker invokes the
// configured end callback exactly once and forgets the origin until it
// is seen again.
package sessions
