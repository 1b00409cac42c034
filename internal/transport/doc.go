// Package transport implements the WebSocket session layer.
//
// A Socket owns exactly one underlying WebSocket connection:
//   - Serialized writes with a write deadline
//   - Channel-based delivery of inbound messages and errors
//   - Ping/pong heartbeat with stale-connection detection
//
// Sockets are produced by a Dialer so the pool above can be tested
// against in-memory fakes.
package transport
