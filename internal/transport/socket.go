package transport

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// dialer is the gorilla/websocket-backed Dialer.
type dialer struct {
	cfg    Config
	logger *slog.Logger
}

// NewDialer returns a Dialer producing real WebSocket sockets.
func NewDialer(cfg Config, logger *slog.Logger) Dialer {
	if logger == nil {
		logger = slog.Default()
	}
	return &dialer{cfg: cfg, logger: logger}
}

// Dial performs the WebSocket handshake and starts the session loops.
func (d *dialer) Dial(ctx context.Context, url string) (Socket, error) {
	wd := websocket.Dialer{
		HandshakeTimeout: d.cfg.HandshakeTimeout,
	}

	conn, _, err := wd.DialContext(ctx, url, d.cfg.Header)
	if err != nil {
		return nil, err
	}

	s := &socket{
		cfg:        d.cfg,
		logger:     d.logger,
		conn:       conn,
		messages:   make(chan Message, d.cfg.BufferSize),
		errors:     make(chan error, 1),
		done:       make(chan struct{}),
		connected:  true,
		lastPingAt: time.Now(),
	}

	// Server pings are answered with pongs; both directions refresh
	// the staleness clock.
	conn.SetPingHandler(func(data string) error {
		s.touch()
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})
	conn.SetPongHandler(func(string) error {
		s.touch()
		return nil
	})

	go s.readLoop()
	go s.heartbeatLoop()

	d.logger.Debug("websocket connected", "url", url)

	return s, nil
}

// socket implements the Socket interface.
type socket struct {
	cfg    Config
	logger *slog.Logger

	conn *websocket.Conn

	// Output channels
	messages chan Message
	errors   chan error
	done     chan struct{}

	// Write serialization
	writeMu sync.Mutex

	// State
	mu         sync.RWMutex
	connected  bool
	lastPingAt time.Time
	closed     bool
}

// Send writes raw bytes to the connection.
func (s *socket) Send(data []byte) error {
	s.mu.RLock()
	if !s.connected {
		s.mu.RUnlock()
		return ErrNotConnected
	}
	s.mu.RUnlock()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a close frame and tears down the connection.
func (s *socket) Close(code int, reason string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrAlreadyClosed
	}
	s.closed = true
	s.connected = false
	s.mu.Unlock()

	// Signal goroutines to stop
	close(s.done)

	s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(time.Second),
	)
	return s.conn.Close()
}

// Messages returns the messages channel.
func (s *socket) Messages() <-chan Message {
	return s.messages
}

// Errors returns the errors channel.
func (s *socket) Errors() <-chan error {
	return s.errors
}

// Connected returns the current session state.
func (s *socket) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func (s *socket) touch() {
	s.mu.Lock()
	s.lastPingAt = time.Now()
	s.mu.Unlock()
}

// readLoop reads frames from the WebSocket and feeds the messages
// channel. The channel is closed when the loop exits so consumers can
// observe end-of-session.
func (s *socket) readLoop() {
	defer func() {
		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()
		close(s.messages)
	}()

	for {
		select {
		case <-s.done:
			return
		default:
		}

		_, data, err := s.conn.ReadMessage()
		receivedAt := time.Now() // Capture timestamp immediately

		if err != nil {
			// Ignore errors after Close() is called
			select {
			case <-s.done:
				return
			default:
				select {
				case s.errors <- err:
				default:
				}
				return
			}
		}

		msg := Message{
			Data:       data,
			ReceivedAt: receivedAt,
		}

		select {
		case s.messages <- msg:
		case <-s.done:
			return
		default:
			s.logger.Warn("message buffer full, dropping frame")
		}
	}
}

// heartbeatLoop pings the peer and watches for stale sessions.
func (s *socket) heartbeatLoop() {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(s.cfg.WriteTimeout)
			if err := s.conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				s.logger.Debug("failed to send ping", "error", err)
			}

			s.mu.RLock()
			lastPing := s.lastPingAt
			s.mu.RUnlock()

			if time.Since(lastPing) > s.cfg.PingTimeout {
				s.logger.Warn("no ping received, connection stale",
					"last_ping", lastPing,
					"timeout", s.cfg.PingTimeout,
				)
				select {
				case s.errors <- ErrStaleConnection:
				default:
				}
				return
			}
		}
	}
}
