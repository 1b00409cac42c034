// Package pool implements the pooled WebSocket connection manager.
//
// The pool:
//   - Shares one live socket among all callers of Connect with the
//     same (type, url), tracked by a reference count
//   - Fans inbound frames and lifecycle events out to registered
//     listeners, in registration order
//   - Reconnects dropped sockets with capped, jittered exponential
//     backoff, keeping listeners attached across the swap
package pool
