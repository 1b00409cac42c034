package pool

import (
	"sync"
	"time"

	"github.com/inboxray/wspool/internal/transport"
)

// connKey identifies entries shared between Connect calls.
type connKey struct {
	typ string
	url string
}

// conn holds the state for one pooled connection. The socket handle is
// exclusively owned here; a reconnect discards the old handle before a
// new one is installed.
type conn struct {
	id  string
	typ string
	url string

	mu         sync.Mutex
	state      State
	sock       transport.Socket
	refs       int
	attempts   int
	retryTimer *time.Timer
	listeners  map[EventKind][]listener
	done       chan struct{}
	ended      bool // done has been closed; entry is being torn down
}

type listener struct {
	id ListenerID
	fn Handler
}

// handlers snapshots the listener list for one event kind, so dispatch
// can run without the lock and handlers may re-enter the pool.
func (c *conn) handlers(kind EventKind) []Handler {
	c.mu.Lock()
	regs := c.listeners[kind]
	hs := make([]Handler, len(regs))
	for i, reg := range regs {
		hs[i] = reg.fn
	}
	c.mu.Unlock()
	return hs
}

func (c *conn) isEnded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ended
}
