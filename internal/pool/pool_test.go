package pool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/inboxray/wspool/internal/transport"
)

var errDialRefused = errors.New("dial refused")

// fakeSocket is an in-memory transport.Socket double.
type fakeSocket struct {
	msgs chan transport.Message
	errs chan error

	mu        sync.Mutex
	sent      [][]byte
	closed    bool
	closeCode int
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		msgs: make(chan transport.Message, 16),
		errs: make(chan error, 1),
	}
}

func (s *fakeSocket) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return transport.ErrNotConnected
	}
	s.sent = append(s.sent, data)
	return nil
}

func (s *fakeSocket) Close(code int, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.closeCode = code
	close(s.msgs)
	return nil
}

func (s *fakeSocket) Messages() <-chan transport.Message { return s.msgs }
func (s *fakeSocket) Errors() <-chan error               { return s.errs }

func (s *fakeSocket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

func (s *fakeSocket) push(data string) {
	s.msgs <- transport.Message{Data: []byte(data), ReceivedAt: time.Now()}
}

func (s *fakeSocket) fail(err error) {
	s.errs <- err
}

func (s *fakeSocket) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSocket) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

// fakeDialer scripts dial outcomes: the first failures dials error out,
// the rest produce fresh fake sockets.
type fakeDialer struct {
	mu       sync.Mutex
	failures int
	dials    int
	socks    []*fakeSocket
	block    chan struct{} // when set, Dial waits here first
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (transport.Socket, error) {
	d.mu.Lock()
	d.dials++
	n := d.dials
	block := d.block
	d.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if n <= d.failures {
		return nil, errDialRefused
	}
	s := newFakeSocket()
	d.socks = append(d.socks, s)
	return s, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) lastSock() *fakeSocket {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.socks) == 0 {
		return nil
	}
	return d.socks[len(d.socks)-1]
}

func (d *fakeDialer) allSocks() []*fakeSocket {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*fakeSocket(nil), d.socks...)
}

func testConfig() Config {
	return Config{
		MaxRetries:         5,
		ReconnectBaseDelay: time.Millisecond,
		ReconnectMaxDelay:  5 * time.Millisecond,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestConnect_Dedupe(t *testing.T) {
	d := &fakeDialer{}
	p := New(testConfig(), d, nil)
	defer p.Dispose()

	id1, err := p.Connect("logs", "wss://x/ws")
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	id2, err := p.Connect("logs", "wss://x/ws")
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if id1 != id2 {
		t.Errorf("ids differ: %q vs %q", id1, id2)
	}

	waitFor(t, "open", func() bool { return p.Stats().Open == 1 })

	if got := d.dialCount(); got != 1 {
		t.Errorf("dials = %d, want 1", got)
	}
	if got := p.Stats().Connections; got != 1 {
		t.Errorf("Connections = %d, want 1", got)
	}
}

func TestConnect_DistinctTypes(t *testing.T) {
	d := &fakeDialer{}
	p := New(testConfig(), d, nil)
	defer p.Dispose()

	id1, _ := p.Connect("logs", "wss://x/ws")
	id2, _ := p.Connect("progress", "wss://x/ws")

	if id1 == id2 {
		t.Error("expected distinct ids for distinct types")
	}

	waitFor(t, "both open", func() bool { return p.Stats().Open == 2 })

	if got := d.dialCount(); got != 2 {
		t.Errorf("dials = %d, want 2", got)
	}
}

func TestConnect_BadURL(t *testing.T) {
	p := New(testConfig(), &fakeDialer{}, nil)
	defer p.Dispose()

	for _, bad := range []string{"http://x/ws", "not a url\x7f://", ""} {
		if _, err := p.Connect("logs", bad); err == nil {
			t.Errorf("Connect(%q) succeeded, want error", bad)
		}
	}
}

func TestSend_BeforeOpen(t *testing.T) {
	d := &fakeDialer{block: make(chan struct{})}
	p := New(testConfig(), d, nil)
	defer p.Dispose()

	id, err := p.Connect("logs", "wss://x/ws")
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if p.Send(id, []byte("early")) {
		t.Error("Send before open returned true")
	}

	close(d.block)
	waitFor(t, "open", func() bool { return p.Stats().Open == 1 })

	if got := d.lastSock().sentCount(); got != 0 {
		t.Errorf("transport saw %d writes before open, want 0", got)
	}

	if !p.Send(id, []byte("now")) {
		t.Error("Send after open returned false")
	}
	if got := d.lastSock().sentCount(); got != 1 {
		t.Errorf("transport writes = %d, want 1", got)
	}
}

func TestSend_UnknownID(t *testing.T) {
	p := New(testConfig(), &fakeDialer{}, nil)
	defer p.Dispose()

	if p.Send("nope", []byte("x")) {
		t.Error("Send to unknown id returned true")
	}
}

func TestOnOff(t *testing.T) {
	d := &fakeDialer{}
	p := New(testConfig(), d, nil)
	defer p.Dispose()

	id, _ := p.Connect("logs", "wss://x/ws")
	waitFor(t, "open", func() bool { return p.Stats().Open == 1 })

	var mu sync.Mutex
	var order []string
	first := p.On(id, EventMessage, func(Event) {
		mu.Lock()
		order = append(order, "first")
		mu.Unlock()
	})
	p.On(id, EventMessage, func(Event) {
		mu.Lock()
		order = append(order, "second")
		mu.Unlock()
	})

	d.lastSock().push(`{"type":"log"}`)
	waitFor(t, "both handlers", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	})

	mu.Lock()
	if order[0] != "first" || order[1] != "second" {
		t.Errorf("dispatch order = %v, want [first second]", order)
	}
	mu.Unlock()

	// Removing one registration leaves the other untouched.
	p.Off(id, EventMessage, first)

	d.lastSock().push(`{"type":"log"}`)
	waitFor(t, "remaining handler", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 3
	})

	mu.Lock()
	if order[2] != "second" {
		t.Errorf("post-Off dispatch = %q, want %q", order[2], "second")
	}
	mu.Unlock()
}

func TestOn_UnknownID(t *testing.T) {
	p := New(testConfig(), &fakeDialer{}, nil)
	defer p.Dispose()

	if lid := p.On("nope", EventMessage, func(Event) {}); lid != 0 {
		t.Errorf("On unknown id = %d, want 0", lid)
	}
	p.Off("nope", EventMessage, 7) // must not panic
}

func TestReconnect_Success(t *testing.T) {
	// Two failed dials, then success: three attempts total, ends open.
	d := &fakeDialer{failures: 2}
	p := New(testConfig(), d, nil)
	defer p.Dispose()

	id, _ := p.Connect("logs", "wss://x/ws")

	waitFor(t, "open after retries", func() bool { return p.Stats().Open == 1 })

	if got := d.dialCount(); got != 3 {
		t.Errorf("dials = %d, want 3", got)
	}
	if st, _ := p.State(id); st != StateOpen {
		t.Errorf("state = %q, want %q", st, StateOpen)
	}
}

func TestReconnect_AfterDrop(t *testing.T) {
	d := &fakeDialer{}
	p := New(testConfig(), d, nil)
	defer p.Dispose()

	id, _ := p.Connect("logs", "wss://x/ws")
	waitFor(t, "open", func() bool { return p.Stats().Open == 1 })

	var mu sync.Mutex
	var got []string
	p.On(id, EventMessage, func(ev Event) {
		mu.Lock()
		got = append(got, string(ev.Data))
		mu.Unlock()
	})

	// Kill the socket; the pool must reconnect and keep the listener
	// attached to the replacement without re-subscription.
	first := d.lastSock()
	first.fail(errors.New("connection reset"))

	waitFor(t, "reconnect", func() bool {
		return d.dialCount() == 2 && p.Stats().Open == 1
	})

	second := d.lastSock()
	if second == first {
		t.Fatal("expected a fresh socket after reconnect")
	}
	if !first.isClosed() {
		t.Error("old socket handle not discarded")
	}

	second.push("after-reconnect")
	waitFor(t, "message on new socket", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1 && got[0] == "after-reconnect"
	})
}

func TestReconnect_Exhausted(t *testing.T) {
	d := &fakeDialer{failures: 1000}
	cfg := testConfig()
	cfg.MaxRetries = 3
	p := New(cfg, d, nil)
	defer p.Dispose()

	id, _ := p.Connect("logs", "wss://x/ws")

	var mu sync.Mutex
	terminal := 0
	p.On(id, EventError, func(ev Event) {
		if errors.Is(ev.Err, ErrRetriesExhausted) {
			mu.Lock()
			terminal++
			mu.Unlock()
		}
	})

	waitFor(t, "terminal error", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return terminal >= 1
	})

	if got := d.dialCount(); got != 4 {
		t.Errorf("dials = %d, want 4 (initial + 3 retries)", got)
	}
	if st, _ := p.State(id); st != StateClosed {
		t.Errorf("state = %q, want %q", st, StateClosed)
	}

	// No stray attempts and no second terminal event afterward.
	time.Sleep(30 * time.Millisecond)
	if got := d.dialCount(); got != 4 {
		t.Errorf("dials after give-up = %d, want 4", got)
	}
	mu.Lock()
	if terminal != 1 {
		t.Errorf("terminal error events = %d, want 1", terminal)
	}
	mu.Unlock()
}

func TestConnect_AfterGiveUp(t *testing.T) {
	d := &fakeDialer{failures: 1}
	cfg := testConfig()
	cfg.MaxRetries = 0
	p := New(cfg, d, nil)
	defer p.Dispose()

	id1, _ := p.Connect("logs", "wss://x/ws")
	waitFor(t, "give up", func() bool {
		st, ok := p.State(id1)
		return ok && st == StateClosed
	})

	// The dead entry must not be shared; a new Connect dials fresh.
	id2, err := p.Connect("logs", "wss://x/ws")
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if id2 == id1 {
		t.Error("expected a fresh id after terminal failure")
	}
	waitFor(t, "second entry open", func() bool { return p.Stats().Open == 1 })
}

func TestClose_DuringBackoff(t *testing.T) {
	d := &fakeDialer{failures: 1000}
	cfg := testConfig()
	cfg.ReconnectBaseDelay = 50 * time.Millisecond
	cfg.ReconnectMaxDelay = time.Second
	p := New(cfg, d, nil)
	defer p.Dispose()

	id, _ := p.Connect("logs", "wss://x/ws")
	waitFor(t, "first dial failure", func() bool { return d.dialCount() == 1 })

	// Close while the retry timer is pending: the scheduled attempt
	// must be cancelled.
	p.Close(id)

	time.Sleep(150 * time.Millisecond)
	if got := d.dialCount(); got != 1 {
		t.Errorf("dials after close = %d, want 1", got)
	}
	if got := p.Stats().Connections; got != 0 {
		t.Errorf("Connections = %d, want 0", got)
	}
}

func TestClose_Refcount(t *testing.T) {
	d := &fakeDialer{}
	p := New(testConfig(), d, nil)
	defer p.Dispose()

	id1, _ := p.Connect("logs", "wss://x/ws")
	id2, _ := p.Connect("logs", "wss://x/ws")
	if id1 != id2 {
		t.Fatalf("expected shared id, got %q and %q", id1, id2)
	}
	waitFor(t, "open", func() bool { return p.Stats().Open == 1 })

	p.Close(id1)
	if d.lastSock().isClosed() {
		t.Error("transport closed while a reference remained")
	}
	if got := p.Stats().Connections; got != 1 {
		t.Errorf("Connections = %d, want 1", got)
	}

	p.Close(id1)
	waitFor(t, "transport closed", func() bool { return d.lastSock().isClosed() })
	if got := p.Stats().Connections; got != 0 {
		t.Errorf("Connections = %d, want 0", got)
	}
}

func TestConnect_WhileClosing(t *testing.T) {
	d := &fakeDialer{}
	p := New(testConfig(), d, nil)
	defer p.Dispose()

	id1, _ := p.Connect("logs", "wss://x/ws")
	waitFor(t, "open", func() bool { return p.Stats().Open == 1 })

	// Mirror the instant where the last Close has claimed the entry
	// but not yet torn it down: dedupe must not revive it.
	c, ok := p.lookup(id1)
	if !ok {
		t.Fatal("entry not tracked")
	}
	c.mu.Lock()
	c.refs = 0
	c.state = StateClosing
	c.mu.Unlock()

	id2, err := p.Connect("logs", "wss://x/ws")
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if id2 == id1 {
		t.Error("Connect shared an entry being torn down")
	}
}

func TestConnect_CloseRace(t *testing.T) {
	d := &fakeDialer{}
	p := New(testConfig(), d, nil)
	defer p.Dispose()

	// Race the last Close of a deduped id against a fresh Connect:
	// whatever interleaving wins, the returned id must be tracked.
	for i := 0; i < 2000; i++ {
		id1, err := p.Connect("logs", "wss://x/ws")
		if err != nil {
			t.Fatalf("iteration %d: Connect failed: %v", i, err)
		}

		var wg sync.WaitGroup
		var id2 string
		wg.Add(2)
		go func() {
			defer wg.Done()
			p.Close(id1)
		}()
		go func() {
			defer wg.Done()
			id2, _ = p.Connect("logs", "wss://x/ws")
		}()
		wg.Wait()

		if _, ok := p.State(id2); !ok {
			t.Fatalf("iteration %d: Connect returned a discarded id", i)
		}
		p.Close(id2)
	}
}

func TestClose_Idempotent(t *testing.T) {
	d := &fakeDialer{}
	p := New(testConfig(), d, nil)
	defer p.Dispose()

	id, _ := p.Connect("logs", "wss://x/ws")
	waitFor(t, "open", func() bool { return p.Stats().Open == 1 })

	p.Close(id)
	p.Close(id)
	p.Close(id)
	p.Close("unknown")

	if got := p.Stats().Connections; got != 0 {
		t.Errorf("Connections = %d, want 0", got)
	}
}

func TestClose_EmitsCloseEvent(t *testing.T) {
	d := &fakeDialer{}
	p := New(testConfig(), d, nil)
	defer p.Dispose()

	id, _ := p.Connect("logs", "wss://x/ws")
	waitFor(t, "open", func() bool { return p.Stats().Open == 1 })

	var mu sync.Mutex
	var closeEv *Event
	p.On(id, EventClose, func(ev Event) {
		mu.Lock()
		closeEv = &ev
		mu.Unlock()
	})

	p.CloseWithStatus(id, transport.CloseGoingAway, "done")
	waitFor(t, "close event", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return closeEv != nil
	})

	mu.Lock()
	if closeEv.Code != transport.CloseGoingAway || closeEv.Reason != "done" {
		t.Errorf("close event = code %d reason %q, want %d %q",
			closeEv.Code, closeEv.Reason, transport.CloseGoingAway, "done")
	}
	mu.Unlock()

	if got := d.lastSock().closeCode; got != transport.CloseGoingAway {
		t.Errorf("transport close code = %d, want %d", got, transport.CloseGoingAway)
	}
}

func TestDispose_Twice(t *testing.T) {
	d := &fakeDialer{}
	p := New(testConfig(), d, nil)

	p.Connect("logs", "wss://x/ws")
	p.Connect("checks", "wss://y/ws")
	waitFor(t, "open", func() bool { return p.Stats().Open == 2 })

	p.Dispose()
	p.Dispose()

	if got := p.Stats().Connections; got != 0 {
		t.Errorf("Connections after dispose = %d, want 0", got)
	}
	for _, s := range d.allSocks() {
		if !s.isClosed() {
			t.Error("socket left open after dispose")
		}
	}
}

func TestDispatch_ReentrantClose(t *testing.T) {
	d := &fakeDialer{}
	p := New(testConfig(), d, nil)
	defer p.Dispose()

	id, _ := p.Connect("logs", "wss://x/ws")
	waitFor(t, "open", func() bool { return p.Stats().Open == 1 })

	// A handler tearing down its own connection must not corrupt or
	// deadlock the pool.
	p.On(id, EventMessage, func(Event) {
		p.Close(id)
	})

	d.lastSock().push("bye")
	waitFor(t, "reentrant close", func() bool { return p.Stats().Connections == 0 })

	if _, err := p.Connect("logs", "wss://x/ws"); err != nil {
		t.Errorf("Connect after reentrant close failed: %v", err)
	}
}
