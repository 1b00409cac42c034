package console

import "time"

// Entry kinds.
const (
	KindLog      = "log"
	KindProgress = "progress"
	KindStatus   = "status"
)

// Entry is one parsed event-stream record.
type Entry struct {
	Kind       string    // "log", "progress", or "status"
	Stream     string    // Producing stream, e.g. "smtp-check"
	Level      string    // Severity for log entries ("debug".."error")
	Message    string
	Percent    int       // Completion for progress entries (0-100)
	LoggedAt   time.Time // Server-side timestamp, when present
	ReceivedAt time.Time // When the frame arrived locally
}

// envelope is the wire shape of one frame.
type envelope struct {
	Type    string `json:"type"`
	Stream  string `json:"stream"`
	Level   string `json:"level"`
	Message string `json:"message"`
	Percent int    `json:"percent"`
	TS      int64  `json:"ts"` // Unix timestamp (seconds)
}

// RouterStats contains runtime statistics.
type RouterStats struct {
	Received     int64
	Routed       int64
	ParseErrors  int64
	UnknownKinds int64
	Buffer       BufferStats
}
