package pool

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/inboxray/wspool/internal/transport"
)

// Pool multiplexes many interested parties over a small number of
// actual transport connections, hiding reconnection churn behind a
// stable connection id. Construct one per application (or per test)
// with New; there is no package-level instance.
type Pool struct {
	cfg    Config
	dialer transport.Dialer
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	conns    map[string]*conn
	byKey    map[connKey]string
	nextLID  uint64
	disposed bool
}

// New creates a pool using the given dialer for outbound connections.
func New(cfg Config, dialer transport.Dialer, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReconnectBaseDelay <= 0 {
		cfg.ReconnectBaseDelay = DefaultConfig().ReconnectBaseDelay
	}
	if cfg.ReconnectMaxDelay <= 0 {
		cfg.ReconnectMaxDelay = DefaultConfig().ReconnectMaxDelay
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		cfg:    cfg,
		dialer: dialer,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		conns:  make(map[string]*conn),
		byKey:  make(map[connKey]string),
	}
}

// Connect registers a connection to url under the given category and
// returns its id. The id is valid immediately; the handshake proceeds
// in the background and completion is signaled by an open event.
//
// A second Connect with an identical (type, url) shares the existing
// entry and increments its reference count instead of dialing again.
// The only error is a malformed url; dial failures surface as error
// events and feed the reconnect path.
func (p *Pool) Connect(typ, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}

	key := connKey{typ: typ, url: rawURL}

	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return "", ErrPoolDisposed
	}

	if id, ok := p.byKey[key]; ok {
		c := p.conns[id]
		c.mu.Lock()
		if !c.ended && c.state != StateClosed && c.state != StateClosing {
			c.refs++
			c.mu.Unlock()
			p.mu.Unlock()
			return id, nil
		}
		// Terminal or mid-teardown entry: leave it for its owners to
		// Close, dial fresh.
		c.mu.Unlock()
	}

	c := &conn{
		id:        uuid.NewString(),
		typ:       typ,
		url:       rawURL,
		state:     StateConnecting,
		refs:      1,
		listeners: make(map[EventKind][]listener),
		done:      make(chan struct{}),
	}
	p.conns[c.id] = c
	p.byKey[key] = c.id
	p.mu.Unlock()

	p.logger.Debug("connecting", "conn", c.id, "type", typ, "url", rawURL)

	go p.dial(c)

	return c.id, nil
}

// Send hands data to the connection's transport. It returns true only
// when the transport is open and accepted the payload; messages sent
// while disconnected are dropped, not buffered.
func (p *Pool) Send(id string, data []byte) bool {
	c, ok := p.lookup(id)
	if !ok {
		return false
	}

	c.mu.Lock()
	sock := c.sock
	open := c.state == StateOpen && sock != nil
	c.mu.Unlock()

	if !open {
		return false
	}
	return sock.Send(data) == nil
}

// On registers a handler for one event kind on a connection id and
// returns its registration token. An unknown id is a no-op returning
// the zero token, so callers may subscribe speculatively.
func (p *Pool) On(id string, kind EventKind, h Handler) ListenerID {
	if h == nil {
		return 0
	}

	p.mu.Lock()
	c, ok := p.conns[id]
	if !ok {
		p.mu.Unlock()
		return 0
	}
	p.nextLID++
	lid := ListenerID(p.nextLID)
	p.mu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		return 0
	}
	c.listeners[kind] = append(c.listeners[kind], listener{id: lid, fn: h})
	return lid
}

// Off removes the registration identified by (id, kind, lid). Unknown
// ids and tokens are no-ops.
func (p *Pool) Off(id string, kind EventKind, lid ListenerID) {
	if lid == 0 {
		return
	}
	c, ok := p.lookup(id)
	if !ok {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	regs := c.listeners[kind]
	for i, reg := range regs {
		if reg.id == lid {
			c.listeners[kind] = append(regs[:i:i], regs[i+1:]...)
			return
		}
	}
}

// Close releases one reference to a connection id. The transport
// actually closes, and the entry is removed, only when the last
// reference is released. Closing an unknown or already-closed id is a
// no-op.
func (p *Pool) Close(id string) {
	p.CloseWithStatus(id, transport.CloseNormal, "")
}

// CloseWithStatus is Close with an explicit close frame status.
func (p *Pool) CloseWithStatus(id string, code int, reason string) {
	c, ok := p.lookup(id)
	if !ok {
		return
	}

	c.mu.Lock()
	if c.ended || c.state == StateClosing {
		c.mu.Unlock()
		return
	}
	c.refs--
	if c.refs > 0 {
		c.mu.Unlock()
		return
	}
	// Claim the entry before releasing the lock, so a Connect racing
	// the last Close cannot revive it between the count reaching zero
	// and the teardown.
	c.state = StateClosing
	c.mu.Unlock()

	p.teardown(c, code, reason)

	p.mu.Lock()
	delete(p.conns, c.id)
	key := connKey{typ: c.typ, url: c.url}
	if cur, ok := p.byKey[key]; ok && cur == c.id {
		delete(p.byKey, key)
	}
	p.mu.Unlock()

	p.logger.Debug("connection closed", "conn", c.id, "type", c.typ)
}

// Dispose unconditionally closes every tracked connection and clears
// all pool state. Safe to call multiple times.
func (p *Pool) Dispose() {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return
	}
	p.disposed = true
	conns := make([]*conn, 0, len(p.conns))
	for _, c := range p.conns {
		conns = append(conns, c)
	}
	p.conns = make(map[string]*conn)
	p.byKey = make(map[connKey]string)
	p.mu.Unlock()

	p.cancel()

	for _, c := range conns {
		p.teardown(c, transport.CloseGoingAway, "pool disposed")
	}

	p.logger.Info("pool disposed", "connections", len(conns))
}

// State returns the lifecycle state of a connection id.
func (p *Pool) State(id string) (State, bool) {
	c, ok := p.lookup(id)
	if !ok {
		return "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, true
}

// Stats returns current pool statistics.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	conns := make([]*conn, 0, len(p.conns))
	for _, c := range p.conns {
		conns = append(conns, c)
	}
	p.mu.Unlock()

	stats := PoolStats{Connections: len(conns)}
	for _, c := range conns {
		c.mu.Lock()
		if c.state == StateOpen {
			stats.Open++
		}
		for _, regs := range c.listeners {
			stats.Listeners += len(regs)
		}
		c.mu.Unlock()
	}
	return stats
}

func (p *Pool) lookup(id string) (*conn, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.conns[id]
	return c, ok
}

// teardown ends an entry: cancels any pending retry, discards the
// socket, emits the close event, and clears listeners. Runs at most
// once per entry.
func (p *Pool) teardown(c *conn, code int, reason string) {
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return
	}
	c.ended = true
	c.state = StateClosing
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	sock := c.sock
	c.sock = nil
	close(c.done)
	c.mu.Unlock()

	if sock != nil {
		sock.Close(code, reason)
	}

	p.dispatch(c, Event{ConnID: c.id, Kind: EventClose, Code: code, Reason: reason})

	c.mu.Lock()
	c.state = StateClosed
	c.listeners = make(map[EventKind][]listener)
	c.mu.Unlock()
}

// dial establishes the transport for an entry. Used for the initial
// connect and for every reconnect attempt.
func (p *Pool) dial(c *conn) {
	sock, err := p.dialer.Dial(p.ctx, c.url)
	if err != nil {
		if c.isEnded() {
			return
		}
		p.logger.Warn("dial failed", "conn", c.id, "type", c.typ, "error", err)
		p.dispatch(c, Event{ConnID: c.id, Kind: EventError, Err: err})
		p.scheduleReconnect(c)
		return
	}

	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		sock.Close(transport.CloseGoingAway, "closed during dial")
		return
	}
	c.sock = sock
	c.state = StateOpen
	c.attempts = 0
	c.mu.Unlock()

	p.logger.Info("connection open", "conn", c.id, "type", c.typ)
	p.dispatch(c, Event{ConnID: c.id, Kind: EventOpen})

	go p.run(c, sock)
}

// run pumps one socket's channels into listener dispatch until the
// socket dies or the entry is closed. Per-connection ordering follows
// from the single pump.
func (p *Pool) run(c *conn, sock transport.Socket) {
	for {
		select {
		case <-c.done:
			return

		case err := <-sock.Errors():
			p.logger.Warn("connection error", "conn", c.id, "type", c.typ, "error", err)
			p.dispatch(c, Event{ConnID: c.id, Kind: EventError, Err: err})
			p.lost(c, sock)
			return

		case msg, ok := <-sock.Messages():
			if !ok {
				// Read side ended; surface a pending error first if any.
				select {
				case err := <-sock.Errors():
					p.dispatch(c, Event{ConnID: c.id, Kind: EventError, Err: err})
				default:
				}
				p.lost(c, sock)
				return
			}
			p.dispatch(c, Event{
				ConnID:     c.id,
				Kind:       EventMessage,
				Data:       msg.Data,
				ReceivedAt: msg.ReceivedAt,
			})
		}
	}
}

// lost handles an unexpected socket death: discard the handle, emit
// the close event, and schedule a reconnect.
func (p *Pool) lost(c *conn, sock transport.Socket) {
	sock.Close(transport.CloseGoingAway, "")

	c.mu.Lock()
	if c.ended || c.sock != sock {
		c.mu.Unlock()
		return
	}
	c.sock = nil
	c.state = StateReconnecting
	c.mu.Unlock()

	p.dispatch(c, Event{ConnID: c.id, Kind: EventClose, Code: transport.CloseGoingAway})
	p.scheduleReconnect(c)
}

// scheduleReconnect arms the retry timer for an entry, or gives up and
// emits the terminal error once the attempt cap is reached. The timer
// handle lives on the entry so Close can cancel a pending retry.
func (p *Pool) scheduleReconnect(c *conn) {
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return
	}

	if c.attempts >= p.cfg.MaxRetries {
		c.state = StateClosed
		c.sock = nil
		c.retryTimer = nil
		c.mu.Unlock()

		p.logger.Error("reconnect retries exhausted",
			"conn", c.id,
			"type", c.typ,
			"attempts", p.cfg.MaxRetries,
		)
		p.dispatch(c, Event{ConnID: c.id, Kind: EventError, Err: ErrRetriesExhausted})
		return
	}

	attempt := c.attempts
	c.attempts++
	c.state = StateReconnecting
	delay := retryDelay(attempt, p.cfg.ReconnectBaseDelay, p.cfg.ReconnectMaxDelay)
	c.retryTimer = time.AfterFunc(delay, func() { p.dial(c) })
	c.mu.Unlock()

	p.logger.Info("reconnect scheduled",
		"conn", c.id,
		"type", c.typ,
		"attempt", attempt+1,
		"delay", delay,
	)
}

// dispatch invokes the listeners registered for the event's kind, in
// registration order, against a snapshot so handlers may mutate the
// listener list or re-enter the pool.
func (p *Pool) dispatch(c *conn, ev Event) {
	for _, h := range c.handlers(ev.Kind) {
		h(ev)
	}
}
