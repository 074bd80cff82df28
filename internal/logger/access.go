package logger

import (
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"
)

// AccessEntry is one structured record per proxied request.
type AccessEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	Status     int       `json:"status"`
	DurationMS int64     `json:"duration_ms"`
	Target     string    `json:"target"`
	Error      string    `json:"error,omitempty"`
}

// AccessLogger records proxied requests to a rotated access log. When debug
// mode is off only failures (status >= 400 or an error) are persisted, so
// log volume stays bounded in normal operation while failures are never
// silently dropped.
type AccessLogger struct {
	log   *slog.Logger
	debug *atomic.Bool
}

// NewAccessLogger writes proxy-access.log under logDir. The debug flag is
// shared with the proxy so toggling it takes effect immediately for
// in-flight requests.
func NewAccessLogger(logDir string, debug *atomic.Bool) *AccessLogger {
	w := Config{Path: filepath.Join(logDir, "proxy-access.log")}.Writer()
	return &AccessLogger{
		log:   slog.New(slog.NewJSONHandler(w, nil)),
		debug: debug,
	}
}

// newAccessLoggerWithHandler is the test seam.
func newAccessLoggerWithHandler(h slog.Handler, debug *atomic.Bool) *AccessLogger {
	return &AccessLogger{log: slog.New(h), debug: debug}
}

// Log applies the gating policy and emits the entry.
func (a *AccessLogger) Log(e AccessEntry) {
	if !a.debug.Load() && e.Status < 400 && e.Error == "" {
		return
	}
	attrs := []any{
		"method", e.Method,
		"path", e.Path,
		"status", e.Status,
		"duration_ms", e.DurationMS,
		"target", e.Target,
	}
	if e.Error != "" {
		attrs = append(attrs, "error", e.Error)
	}
	a.log.Info("proxy access", attrs...)
}
