package console

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/inboxray/wspool/internal/pool"
)

// Router parses frames from one pooled connection into entries.
type Router struct {
	pool   *pool.Pool
	connID string
	logger *slog.Logger
	buf    *Buffer[Entry]
	lid    pool.ListenerID

	mu           sync.Mutex
	received     int64
	routed       int64
	parseErrors  int64
	unknownKinds int64
}

// NewRouter creates a router for the given connection id.
func NewRouter(p *pool.Pool, connID string, bufferSize int, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		pool:   p,
		connID: connID,
		logger: logger,
		buf:    NewBuffer[Entry](bufferSize),
	}
}

// Start subscribes to the connection's message events. The
// subscription survives reconnects of the underlying socket.
func (r *Router) Start() {
	r.lid = r.pool.On(r.connID, pool.EventMessage, r.handle)
}

// Stop detaches from the connection and closes the entry buffer;
// drains in flight finish normally.
func (r *Router) Stop() {
	r.pool.Off(r.connID, pool.EventMessage, r.lid)
	r.buf.Close()
}

// Entries returns the buffer of parsed entries.
func (r *Router) Entries() *Buffer[Entry] {
	return r.buf
}

// Stats returns current statistics.
func (r *Router) Stats() RouterStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RouterStats{
		Received:     r.received,
		Routed:       r.routed,
		ParseErrors:  r.parseErrors,
		UnknownKinds: r.unknownKinds,
		Buffer:       r.buf.Stats(),
	}
}

// handle parses and routes a single frame.
func (r *Router) handle(ev pool.Event) {
	r.mu.Lock()
	r.received++
	r.mu.Unlock()

	var env envelope
	if err := json.Unmarshal(ev.Data, &env); err != nil {
		r.logger.Warn("failed to parse frame", "conn", r.connID, "error", err)
		r.mu.Lock()
		r.parseErrors++
		r.mu.Unlock()
		return
	}

	switch env.Type {
	case KindLog, KindProgress, KindStatus:
	default:
		r.logger.Debug("skipping frame type", "type", env.Type)
		r.mu.Lock()
		r.unknownKinds++
		r.mu.Unlock()
		return
	}

	entry := Entry{
		Kind:       env.Type,
		Stream:     env.Stream,
		Level:      env.Level,
		Message:    env.Message,
		Percent:    env.Percent,
		ReceivedAt: ev.ReceivedAt,
	}
	if env.TS != 0 {
		entry.LoggedAt = time.Unix(env.TS, 0)
	}

	if r.buf.Send(entry) {
		r.mu.Lock()
		r.routed++
		r.mu.Unlock()
	}
}
