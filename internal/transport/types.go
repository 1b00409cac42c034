package transport

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrAlreadyClosed   = errors.New("already closed")
)

// Close codes forwarded to the peer on shutdown.
const (
	CloseNormal    = websocket.CloseNormalClosure
	CloseGoingAway = websocket.CloseGoingAway
)

// Message wraps raw frame data with a receive timestamp.
type Message struct {
	Data       []byte    // Raw frame bytes from the WebSocket
	ReceivedAt time.Time // Local timestamp when the read returned
}

// Socket is a single live WebSocket session.
type Socket interface {
	// Send writes raw bytes to the connection.
	Send(data []byte) error

	// Close sends a close frame with the given status and tears down
	// the connection. Subsequent calls return ErrAlreadyClosed.
	Close(code int, reason string) error

	// Messages returns the channel of inbound frames. It is closed
	// when the session ends for any reason.
	Messages() <-chan Message

	// Errors returns a channel of session errors.
	Errors() <-chan error

	// Connected reports current session state.
	Connected() bool
}

// Dialer establishes new Sockets.
type Dialer interface {
	Dial(ctx context.Context, url string) (Socket, error)
}

// Config configures dialed sockets.
type Config struct {
	HandshakeTimeout time.Duration // Max time for the opening handshake
	WriteTimeout     time.Duration // Write deadline for sends
	PingInterval     time.Duration // How often to ping the peer
	PingTimeout      time.Duration // Max time without ping/pong before the session is stale
	BufferSize       int           // Message channel buffer size
	Header           http.Header   // Extra handshake headers (e.g. Authorization)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		PingInterval:     15 * time.Second,
		PingTimeout:      60 * time.Second,
		BufferSize:       1000,
	}
}
