package observability

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// AuditEventType categorizes audit events.
type AuditEventType string

const (
	AuditEventIngestStart    AuditEventType = "ingest.start"
	AuditEventIngestDocument AuditEventType = "ingest.document"
	AuditEventIngestComplete AuditEventType = "ingest.complete"
	AuditEventQuery          AuditEventType = "query"
	AuditEventChat           AuditEventType = "chat"
	AuditEventSummary        AuditEventType = "summary"
	AuditEventLLMError       AuditEventType = "llm.error"
	AuditEventReset          AuditEventType = "index.reset"
	AuditEventWorkflowStart  AuditEventType = "workflow.start"
	AuditEventWorkflowEnd    AuditEventType = "workflow.end"
)

// AuditEvent represents a single audit log entry.
type AuditEvent struct {
	Timestamp   time.Time      `json:"timestamp"`
	EventType   AuditEventType `json:"event_type"`
	SessionID   string         `json:"session_id"`
	Success     bool           `json:"success"`
	Duration    time.Duration  `json:"duration_ms,omitempty"`
	Message     string         `json:"message,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	ErrorDetail string         `json:"error_detail,omitempty"`
}

// AuditLogger writes audit events as JSON lines.
type AuditLogger struct {
	mu        sync.Mutex
	writer    io.Writer
	sessionID string
	enabled   bool
}

// AuditConfig configures the audit logger.
type AuditConfig struct {
	Enabled    bool
	OutputPath string // File path or "stdout"/"stderr"
	SessionID  string
}

// DefaultAuditConfig returns default audit configuration.
func DefaultAuditConfig() *AuditConfig {
	return &AuditConfig{
		Enabled:    true,
		OutputPath: "stdout",
	}
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger(config *AuditConfig) (*AuditLogger, error) {
	if config == nil {
		config = DefaultAuditConfig()
	}

	var writer io.Writer
	switch config.OutputPath {
	case "stdout", "":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		f, err := os.OpenFile(config.OutputPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		writer = f
	}

	sessionID := config.SessionID
	if sessionID == "" {
		sessionID = fmt.Sprintf("session-%d", time.Now().UnixNano())
	}

	return &AuditLogger{
		writer:    writer,
		sessionID: sessionID,
		enabled:   config.Enabled,
	}, nil
}

// Log writes an audit event.
func (l *AuditLogger) Log(event *AuditEvent) error {
	if !l.enabled {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.SessionID == "" {
		event.SessionID = l.sessionID
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	_, err = fmt.Fprintf(l.writer, "%s\n", data)
	return err
}

// LogIngestStart logs the start of a directory ingestion.
func (l *AuditLogger) LogIngestStart(dir string, fileCount int) {
	l.Log(&AuditEvent{
		EventType: AuditEventIngestStart,
		Success:   true,
		Message:   fmt.Sprintf("Ingestion started: %d files", fileCount),
		Details: map[string]any{
			"directory":  dir,
			"file_count": fileCount,
		},
	})
}

// LogIngestDocument logs one document's ingestion outcome.
func (l *AuditLogger) LogIngestDocument(documentID string, chunks int, duration time.Duration, err error) {
	event := &AuditEvent{
		EventType: AuditEventIngestDocument,
		Success:   err == nil,
		Duration:  duration,
		Message:   fmt.Sprintf("Ingested %s", documentID),
		Details: map[string]any{
			"document_id": documentID,
			"chunks":      chunks,
		},
	}
	if err != nil {
		event.Message = fmt.Sprintf("Failed to ingest %s", documentID)
		event.ErrorDetail = err.Error()
	}
	l.Log(event)
}

// LogIngestComplete logs the end of a directory ingestion.
func (l *AuditLogger) LogIngestComplete(succeeded, failed, chunks int, duration time.Duration) {
	l.Log(&AuditEvent{
		EventType: AuditEventIngestComplete,
		Success:   failed == 0,
		Duration:  duration,
		Message:   fmt.Sprintf("Ingestion complete: %d ok, %d failed, %d chunks", succeeded, failed, chunks),
		Details: map[string]any{
			"succeeded": succeeded,
			"failed":    failed,
			"chunks":    chunks,
		},
	})
}

// LogQuery logs a retrieval-augmented answer.
func (l *AuditLogger) LogQuery(eventType AuditEventType, query string, hits, tokens int, duration time.Duration) {
	l.Log(&AuditEvent{
		EventType: eventType,
		Success:   true,
		Duration:  duration,
		Message:   "Answered query",
		Details: map[string]any{
			"query_chars": len(query),
			"hits":        hits,
			"tokens":      tokens,
		},
	})
}

// LogLLMError logs a failed generation.
func (l *AuditLogger) LogLLMError(provider string, err error) {
	l.Log(&AuditEvent{
		EventType:   AuditEventLLMError,
		Success:     false,
		Message:     fmt.Sprintf("LLM error from %s", provider),
		ErrorDetail: err.Error(),
		Details:     map[string]any{"provider": provider},
	})
}

// LogReset logs a collection reset.
func (l *AuditLogger) LogReset(collection string) {
	l.Log(&AuditEvent{
		EventType: AuditEventReset,
		Success:   true,
		Message:   fmt.Sprintf("Collection %s reset", collection),
		Details:   map[string]any{"collection": collection},
	})
}

// LogWorkflowStart logs a durable ingestion workflow start.
func (l *AuditLogger) LogWorkflowStart(workflowID, dir string) {
	l.Log(&AuditEvent{
		EventType: AuditEventWorkflowStart,
		Success:   true,
		Message:   fmt.Sprintf("Workflow %s started", workflowID),
		Details: map[string]any{
			"workflow_id": workflowID,
			"directory":   dir,
		},
	})
}

// LogWorkflowEnd logs a durable ingestion workflow completion.
func (l *AuditLogger) LogWorkflowEnd(workflowID string, success bool, duration time.Duration) {
	l.Log(&AuditEvent{
		EventType: AuditEventWorkflowEnd,
		Success:   success,
		Duration:  duration,
		Message:   fmt.Sprintf("Workflow %s finished", workflowID),
		Details:   map[string]any{"workflow_id": workflowID},
	})
}

// Close closes the audit logger (if using a file).
func (l *AuditLogger) Close() error {
	if closer, ok := l.writer.(io.Closer); ok {
		if closer != os.Stdout && closer != os.Stderr {
			return closer.Close()
		}
	}
	return nil
}

// Global audit logger instance
var globalAuditLogger *AuditLogger
var auditOnce sync.Once

// InitGlobalAuditLogger initializes the global audit logger.
func InitGlobalAuditLogger(config *AuditConfig) error {
	var err error
	auditOnce.Do(func() {
		globalAuditLogger, err = NewAuditLogger(config)
	})
	return err
}

// Audit returns the global audit logger.
func Audit() *AuditLogger {
	if globalAuditLogger == nil {
		return &AuditLogger{enabled: false}
	}
	return globalAuditLogger
}
