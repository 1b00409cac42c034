package pool

import (
	"errors"
	"time"
)

// Errors
var (
	ErrPoolDisposed     = errors.New("pool disposed")
	ErrRetriesExhausted = errors.New("reconnect retries exhausted")
)

// State is the lifecycle state of one pooled connection.
type State string

const (
	StateConnecting   State = "connecting"
	StateOpen         State = "open"
	StateClosing      State = "closing"
	StateClosed       State = "closed"
	StateReconnecting State = "reconnecting"
)

// EventKind identifies the kind of event delivered to listeners.
type EventKind string

const (
	EventMessage EventKind = "message"
	EventOpen    EventKind = "open"
	EventClose   EventKind = "close"
	EventError   EventKind = "error"
)

// Event is delivered to listeners registered via On.
type Event struct {
	ConnID     string
	Kind       EventKind
	Data       []byte    // Payload (message events only)
	Err        error     // Cause (error events only)
	Code       int       // Close status (close events only)
	Reason     string    // Close reason (close events only)
	ReceivedAt time.Time // When the transport read the frame (message events only)
}

// Handler receives events for one connection id.
type Handler func(Event)

// ListenerID is the registration token returned by On and consumed by
// Off. The zero value is never issued and is a safe no-op to Off.
type ListenerID uint64

// Config configures the pool's reconnection behavior.
type Config struct {
	MaxRetries         int           // Reconnect attempts after the initial dial before giving up
	ReconnectBaseDelay time.Duration // First retry delay
	ReconnectMaxDelay  time.Duration // Delay cap
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:         5,
		ReconnectBaseDelay: 1 * time.Second,
		ReconnectMaxDelay:  60 * time.Second,
	}
}

// PoolStats provides statistics about the pool.
type PoolStats struct {
	Connections int // Tracked connection entries
	Open        int // Entries with a live, open transport
	Listeners   int // Listener registrations across all entries
}
