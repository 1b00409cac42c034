// Package console turns raw event-stream frames from a pooled
// connection into typed console entries.
//
// The Router subscribes to one connection id, parses each frame's JSON
// envelope (log, progress, status), and feeds entries into a growable
// ring buffer so a slow output sink delays display instead of dropping
// frames. Tail drains that buffer to a writer.
package console
