package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"testing"

	"authgate.org/internal/auth"
	"authgate.org/internal/obs"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	logger := obs.Logger()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(os.Stdout) })
	return &buf
}

func TestLogEvent(t *testing.T) {
	buf := captureLog(t)

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = auth.ContextWithUser(ctx, auth.AuthenticatedUser{Username: "alice"})

	err := LogEvent(ctx, "auth.token.issued", map[string]any{"expires_in": 900})
	if err != nil {
		t.Fatalf("LogEvent: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %q", buf.String())
	}
	if entry["type"] != "audit" || entry["event"] != "auth.token.issued" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if entry["request_id"] != "req-1" {
		t.Fatalf("request_id = %v", entry["request_id"])
	}
	if entry["username"] != "alice" {
		t.Fatalf("username = %v", entry["username"])
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["expires_in"] != float64(900) {
		t.Fatalf("fields = %v", entry["fields"])
	}
	if entry["ts"] == nil {
		t.Fatal("missing ts")
	}
}

func TestLogEventRequiresName(t *testing.T) {
	captureLog(t)

	if err := LogEvent(context.Background(), "   ", nil); err == nil {
		t.Fatal("expected error for empty event name")
	}
}

func TestLogEventWithoutContext(t *testing.T) {
	buf := captureLog(t)

	if err := LogEvent(context.Background(), "users.created", nil); err != nil {
		t.Fatalf("LogEvent: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %q", buf.String())
	}
	if _, ok := entry["request_id"]; ok {
		t.Fatal("request_id present without context")
	}
	if _, ok := entry["username"]; ok {
		t.Fatal("username present without context")
	}
}
