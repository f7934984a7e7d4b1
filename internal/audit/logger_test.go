package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLogNoopForNilLoggerAndEmptyPath(t *testing.T) {
	var nilLogger *Logger
	if err := nilLogger.Log(Event{Operation: "upgrade"}); err != nil {
		t.Fatalf("nil logger should be noop: %v", err)
	}
	if err := New("").Log(Event{Operation: "upgrade"}); err != nil {
		t.Fatalf("empty-path logger should be noop: %v", err)
	}
}

func TestLogWritesJSONLines(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit", "events.log")
	logger := New(logPath)

	first := Event{
		Operation: "upgrade",
		Phase:     "replace",
		Status:    "ok",
		Service:   "StreamAgentController",
		Message:   "executable changed",
	}
	second := Event{Operation: "upgrade", Phase: "commit", Status: "ok"}

	if err := logger.Log(first); err != nil {
		t.Fatalf("log first event: %v", err)
	}
	if err := logger.Log(second); err != nil {
		t.Fatalf("log second event: %v", err)
	}

	blob, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(blob)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d", len(lines))
	}

	var got Event
	if err := json.Unmarshal([]byte(lines[0]), &got); err != nil {
		t.Fatalf("unmarshal first event: %v", err)
	}
	if got.Timestamp == "" {
		t.Fatalf("expected timestamp to be set")
	}
	if _, err := time.Parse(time.RFC3339Nano, got.Timestamp); err != nil {
		t.Fatalf("timestamp should be RFC3339Nano: %v", err)
	}
	if got.Service != first.Service || got.Phase != first.Phase || got.Message != first.Message {
		t.Fatalf("unexpected first event body: %+v", got)
	}
}

func TestLogMkdirAllFailure(t *testing.T) {
	tmp := t.TempDir()
	blockedPath := filepath.Join(tmp, "blocked")
	if err := os.WriteFile(blockedPath, []byte("x"), 0o644); err != nil {
		t.Fatalf("create blocking file: %v", err)
	}
	logger := New(filepath.Join(blockedPath, "events.log"))
	if err := logger.Log(Event{Operation: "upgrade"}); err == nil {
		t.Fatalf("expected mkdir failure")
	}
}
