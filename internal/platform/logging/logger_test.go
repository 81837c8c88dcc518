package logging

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
)

func TestLogger_WithRunIDAndErrorField(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewJSONWriter(&buf, LevelInfo).WithRunID("run-42")

	logger.Warn("detail fetch exhausted", "detail_ref", "https://example.test/m/1", "error", errors.New("boom"))
	logger.Debug("hidden at info level")
	_ = logger.Sync()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one log line, got %d: %q", len(lines), buf.String())
	}

	var entry map[string]any
	if err := sonic.UnmarshalString(lines[0], &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["run_id"] != "run-42" {
		t.Fatalf("unexpected run_id: %v", entry["run_id"])
	}
	if entry["error"] != "boom" {
		t.Fatalf("unexpected error field: %v", entry["error"])
	}
	if entry["level"] != "WARN" {
		t.Fatalf("unexpected level: %v", entry["level"])
	}
}

func TestLogger_ContextWithoutSpanAddsNoTraceFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewJSONWriter(&buf, LevelDebug)
	logger.InfoContext(context.Background(), "page fetched", "page", 3)

	if strings.Contains(buf.String(), "trace_id") {
		t.Fatalf("expected no trace_id without an active span: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]Level{
		"debug":   LevelDebug,
		"WARNING": LevelWarn,
		" error ": LevelError,
		"":        LevelInfo,
		"verbose": LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}
