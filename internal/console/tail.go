package console

import (
	"fmt"
	"io"
	"strings"
)

// Tail drains console entries to a writer.
type Tail struct {
	buf *Buffer[Entry]
	w   io.Writer
}

// NewTail creates a tail over the given entry buffer.
func NewTail(buf *Buffer[Entry], w io.Writer) *Tail {
	return &Tail{buf: buf, w: w}
}

// Run writes entries until the buffer is closed and drained. It
// returns the first write error, if any.
func (t *Tail) Run() error {
	for {
		entry, ok := t.buf.Receive()
		if !ok {
			return nil
		}
		if _, err := fmt.Fprintln(t.w, formatEntry(entry)); err != nil {
			return fmt.Errorf("write entry: %w", err)
		}
	}
}

func formatEntry(e Entry) string {
	ts := e.ReceivedAt.Format("15:04:05.000")
	switch e.Kind {
	case KindProgress:
		return fmt.Sprintf("%s [%s] %3d%% %s", ts, e.Stream, e.Percent, e.Message)
	case KindStatus:
		return fmt.Sprintf("%s [%s] status: %s", ts, e.Stream, e.Message)
	default:
		level := strings.ToUpper(e.Level)
		if level == "" {
			level = "INFO"
		}
		return fmt.Sprintf("%s [%s] %-5s %s", ts, e.Stream, level, e.Message)
	}
}
