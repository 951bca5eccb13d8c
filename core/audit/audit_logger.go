package audit

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Event types.
const (
	EventShareIssued        = "ShareIssued"
	EventShareRefreshed     = "ShareRefreshed"
	EventSharePurged        = "SharePurged"
	EventSnapshotRedemption = "SnapshotRedemption"
	EventAuthorization      = "Authorization"
)

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// AuditEvent represents an issuance, redemption or authorization event.
type AuditEvent struct {
	Timestamp time.Time
	EventType string            // e.g., "ShareIssued", "SnapshotRedemption"
	EntityID  string            // e.g., subject id or session id
	Result    string            // "success" or "failure"
	Reason    string            // error message or reason code
	Metadata  map[string]string // any extra details
}

// AuditLogger is the interface for logging audit events.
type AuditLogger interface {
	LogEvent(event AuditEvent)
}

func format(event AuditEvent) string {
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return fmt.Sprintf("[%s] [%s] Entity: %s, Result: %s, Reason: %s, Metadata: %+v\n",
		ts.UTC().Format(time.RFC3339), event.EventType, event.EntityID, event.Result, event.Reason, event.Metadata)
}

// StdoutAuditLogger is a simple implementation that logs to stdout.
type StdoutAuditLogger struct{}

func (l *StdoutAuditLogger) LogEvent(event AuditEvent) {
	fmt.Print(format(event))
}

// NewStdoutAuditLogger returns a new StdoutAuditLogger.
func NewStdoutAuditLogger() AuditLogger {
	return &StdoutAuditLogger{}
}

// FileAuditLogger appends events to a file, one line each.
type FileAuditLogger struct {
	mu sync.Mutex
	w  io.WriteCloser
}

// NewFileAuditLogger opens path for appending, creating it if needed.
func NewFileAuditLogger(path string) (*FileAuditLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, err
	}
	return &FileAuditLogger{w: f}, nil
}

func (l *FileAuditLogger) LogEvent(event AuditEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := io.WriteString(l.w, "[AUDIT] "+format(event)); err != nil {
		fmt.Fprintf(os.Stderr, "[AUDIT] write failed: %v\n", err)
	}
}

func (l *FileAuditLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Close()
}

// Nop discards events.
type Nop struct{}

func (Nop) LogEvent(AuditEvent) {}
