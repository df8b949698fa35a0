package observability

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

var errOops = errors.New("oops")

func newBufferLogger() (*AuditLogger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return &AuditLogger{writer: buf, sessionID: "test-session", enabled: true}, buf
}

func TestAuditLogWritesJSONL(t *testing.T) {
	l, buf := newBufferLogger()

	l.LogIngestDocument("report.pdf", 42, time.Second, nil)
	l.LogIngestDocument("broken.pdf", 0, time.Second, errOops)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	var first AuditEvent
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("line 1 is not valid JSON: %v", err)
	}
	if first.EventType != AuditEventIngestDocument || !first.Success {
		t.Errorf("unexpected first event: %+v", first)
	}
	if first.SessionID != "test-session" {
		t.Errorf("session not filled in: %q", first.SessionID)
	}

	var second AuditEvent
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatal(err)
	}
	if second.Success || second.ErrorDetail != "oops" {
		t.Errorf("unexpected failure event: %+v", second)
	}
}

func TestAuditDisabledWritesNothing(t *testing.T) {
	buf := &bytes.Buffer{}
	l := &AuditLogger{writer: buf, enabled: false}

	l.LogReset("company_reports")
	if buf.Len() != 0 {
		t.Fatalf("expected no output when disabled, got %q", buf.String())
	}
}

func TestAuditQueryEvent(t *testing.T) {
	l, buf := newBufferLogger()

	l.LogQuery(AuditEventChat, "what was revenue?", 5, 150, time.Second)

	var event AuditEvent
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &event); err != nil {
		t.Fatal(err)
	}
	if event.EventType != AuditEventChat {
		t.Errorf("expected chat event, got %s", event.EventType)
	}
	if event.Details["hits"].(float64) != 5 {
		t.Errorf("expected 5 hits, got %v", event.Details["hits"])
	}
}

func TestNewAuditLoggerToFile(t *testing.T) {
	path := t.TempDir() + "/audit.jsonl"
	l, err := NewAuditLogger(&AuditConfig{Enabled: true, OutputPath: path})
	if err != nil {
		t.Fatal(err)
	}
	l.LogReset("test")
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
}
