package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"chatty":  slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNew_Format(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "info", "json").Info("hello", "rows", 3)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("json handler output is not JSON: %v: %s", err, buf.String())
	}
	if entry["msg"] != "hello" || entry["rows"] != float64(3) {
		t.Errorf("entry = %v", entry)
	}

	buf.Reset()
	New(&buf, "info", "text").Info("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("text output = %q", buf.String())
	}
}

func TestNew_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "warn", "text")
	logger.Info("dropped")
	logger.Warn("kept")

	if strings.Contains(buf.String(), "dropped") {
		t.Error("info entry written at warn level")
	}
	if !strings.Contains(buf.String(), "kept") {
		t.Error("warn entry missing")
	}
}

func TestEnrich(t *testing.T) {
	var buf bytes.Buffer
	base := New(&buf, "info", "json")

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-42")
	ctx = ContextWith(ctx, "ip", "10.0.0.1")
	ctx = ContextWith(ctx, "kind", "product")

	Enrich(ctx, base).Info("validated")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := map[string]string{"request_id": "req-42", "ip": "10.0.0.1", "kind": "product"}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("%s = %v, want %q", k, entry[k], v)
		}
	}
}

func TestContextWith_DoesNotLeakToParent(t *testing.T) {
	parent := ContextWith(context.Background(), "a", 1)
	_ = ContextWith(parent, "b", 2)

	var buf bytes.Buffer
	Enrich(parent, New(&buf, "info", "text")).Info("x")
	if strings.Contains(buf.String(), "b=2") {
		t.Errorf("child field leaked into parent: %s", buf.String())
	}
}

func TestEnrich_NoRequestScope(t *testing.T) {
	var buf bytes.Buffer
	Enrich(context.Background(), New(&buf, "info", "text")).Info("plain")
	if strings.Contains(buf.String(), "request_id") {
		t.Errorf("unexpected request_id: %s", buf.String())
	}
}
