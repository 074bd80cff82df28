package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
)

// captureHandler records every slog record it receives.
type captureHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }
func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	h.records = append(h.records, r)
	h.mu.Unlock()
	return nil
}
func (h *captureHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *captureHandler) WithGroup(string) slog.Handler      { return h }

func (h *captureHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.records)
}

func TestAccessLoggerSuppressesSuccessWithoutDebug(t *testing.T) {
	var debug atomic.Bool
	h := &captureHandler{}
	a := newAccessLoggerWithHandler(h, &debug)

	a.Log(AccessEntry{Method: "GET", Path: "/", Status: 200})
	a.Log(AccessEntry{Method: "GET", Path: "/x", Status: 302})
	if h.count() != 0 {
		t.Fatalf("2xx/3xx entries must be suppressed, got %d records", h.count())
	}
}

func TestAccessLoggerKeepsFailures(t *testing.T) {
	var debug atomic.Bool
	h := &captureHandler{}
	a := newAccessLoggerWithHandler(h, &debug)

	a.Log(AccessEntry{Method: "GET", Path: "/", Status: 404})
	a.Log(AccessEntry{Method: "GET", Path: "/", Status: 200, Error: "connection refused"})
	if h.count() != 2 {
		t.Fatalf("failures must always be recorded, got %d records", h.count())
	}
}

func TestAccessLoggerDebugRecordsEverything(t *testing.T) {
	var debug atomic.Bool
	debug.Store(true)
	h := &captureHandler{}
	a := newAccessLoggerWithHandler(h, &debug)

	a.Log(AccessEntry{Method: "GET", Path: "/", Status: 200})
	if h.count() != 1 {
		t.Fatalf("debug mode must record successes, got %d records", h.count())
	}
}

func TestAccessLoggerDebugToggle(t *testing.T) {
	var debug atomic.Bool
	h := &captureHandler{}
	a := newAccessLoggerWithHandler(h, &debug)

	a.Log(AccessEntry{Status: 200})
	debug.Store(true)
	a.Log(AccessEntry{Status: 200})
	if h.count() != 1 {
		t.Fatalf("toggle must take effect immediately, got %d records", h.count())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"bogus": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q)=%v want %v", in, got, want)
		}
	}
}
