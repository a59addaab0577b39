package siem

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Logger appends SIEM events as JSON lines. The stream is an output
// product of the agent, kept apart from operational logging: it only
// ever carries the event envelope, one object per line.
type Logger struct {
	mu       sync.Mutex
	writer   io.Writer
	closer   io.Closer
	console  io.Writer
	echo     bool
	hostname string
	username string
}

// New opens (or creates) the event log at path in append mode.
func New(path string, echo bool) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}

	l := NewWriter(f, echo)
	l.closer = f
	return l, nil
}

// NewWriter creates a Logger on an arbitrary writer.
func NewWriter(w io.Writer, echo bool) *Logger {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	return &Logger{
		writer:   w,
		console:  os.Stdout,
		echo:     echo,
		hostname: hostname,
		username: currentUsername(),
	}
}

// Emit appends one event. Marshal or write failures fall back to
// stderr; the event stream never brings the agent down.
func (l *Logger) Emit(eventType EventType, severity Severity, data map[string]interface{}) {
	event := Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		EventID:   uuid.New().String(),
		EventType: eventType,
		Severity:  severity,
		Source:    Source,
		Version:   Version,
		Hostname:  l.hostname,
		Username:  l.username,
		Data:      data,
	}

	l.writeJSON(event)

	if l.echo {
		l.echoConsole(event)
	}
}

// Close releases the underlying file, if any.
func (l *Logger) Close() error {
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

// writeJSON writes a JSON line to the output
func (l *Logger) writeJSON(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		// Fallback to stderr if marshal fails
		os.Stderr.WriteString("Failed to marshal event: " + err.Error() + "\n")
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer.Write(data)
	l.writer.Write([]byte("\n"))
}

// echoConsole prints a one-line summary for interactive runs.
func (l *Logger) echoConsole(event Event) {
	target := ""
	if fp, ok := event.Data["filepath"].(string); ok {
		target = " " + fp
	}
	fmt.Fprintf(l.console, "[%s] %s%s\n", event.Severity, event.EventType, target)
}

func currentUsername() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	for _, key := range []string{"USER", "USERNAME"} {
		if name := os.Getenv(key); name != "" {
			return name
		}
	}
	return "unknown"
}
