package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew_JSONFormat(t *testing.T) {
	t.Setenv("GO_ENV", "")
	var buf bytes.Buffer
	l := New(&buf, "info", FormatJSON)
	l.Info("hello", "device", 2)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "hello" {
		t.Errorf("msg = %v, want hello", entry["msg"])
	}
	if entry["device"] != float64(2) {
		t.Errorf("device = %v, want 2", entry["device"])
	}
}

func TestNew_TextFormatAndLevel(t *testing.T) {
	t.Setenv("GO_ENV", "")
	var buf bytes.Buffer
	l := New(&buf, "warn", FormatText)
	l.Info("hidden")
	l.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line should be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, "msg=shown") {
		t.Errorf("expected text handler output, got %q", out)
	}
}

func TestNew_AutoFormatNonFileIsText(t *testing.T) {
	t.Setenv("GO_ENV", "")
	var buf bytes.Buffer
	New(&buf, "info", FormatAuto).Info("x")
	if strings.HasPrefix(buf.String(), "{") {
		t.Errorf("auto format on a buffer should be text, got %q", buf.String())
	}
}

func TestNew_ProductionForcesJSON(t *testing.T) {
	t.Setenv("GO_ENV", "production")
	var buf bytes.Buffer
	New(&buf, "info", FormatText).Info("x")
	if !strings.HasPrefix(buf.String(), "{") {
		t.Errorf("GO_ENV=production should force JSON, got %q", buf.String())
	}
}

func TestOr(t *testing.T) {
	d := Discard()
	if Or(d) != d {
		t.Error("Or should return the provided logger")
	}
	if Or(nil) == nil {
		t.Error("Or(nil) should fall back to the global logger")
	}
}
