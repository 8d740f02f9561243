package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"
)

func captureEntry(t *testing.T, emit func()) map[string]string {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)

	emit()

	var entry map[string]string
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	return entry
}

func TestRedactEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"john.doe@example.com", "jo***@example.com"},
		{"ab@example.com", "***@example.com"},
		{"a@example.com", "***@example.com"},
		{"not-an-email", "***@***"},
		{"two@at@signs", "***@***"},
	}
	for _, tt := range tests {
		if got := RedactEmail(tt.in); got != tt.want {
			t.Errorf("RedactEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLogRedactsTokens(t *testing.T) {
	entry := captureEntry(t, func() {
		Info("issued", "token", "abcdefghij12")
	})

	if entry["token"] != "***(12)" {
		t.Errorf("token field = %q, want masked with length", entry["token"])
	}
	if strings.Contains(entry["token"], "abcdefghij12") {
		t.Error("raw token leaked into the log")
	}
}

func TestLogRedactsEmailFields(t *testing.T) {
	entry := captureEntry(t, func() {
		Info("dispatched", "email", "john.doe@example.com", "goto", "jane@example.org")
	})

	if entry["email"] != "jo***@example.com" {
		t.Errorf("email field = %q", entry["email"])
	}
	if entry["goto"] != "ja***@example.org" {
		t.Errorf("goto field = %q", entry["goto"])
	}
}

func TestLogRedactsEmbeddedEmails(t *testing.T) {
	entry := captureEntry(t, func() {
		Warn("ban check", "detail", "destination john.doe@example.com refused")
	})

	if strings.Contains(entry["detail"], "john.doe@example.com") {
		t.Errorf("embedded email leaked: %q", entry["detail"])
	}
	if !strings.Contains(entry["detail"], "jo***@example.com") {
		t.Errorf("embedded email not masked: %q", entry["detail"])
	}
}

func TestLogLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)

	SetLevel(WARN)
	defer SetLevel(INFO)

	Info("should be dropped")
	if buf.Len() != 0 {
		t.Errorf("INFO entry emitted below level: %q", buf.String())
	}

	Warn("should pass")
	if buf.Len() == 0 {
		t.Error("WARN entry was dropped")
	}
}
