package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation parameters, lumberjack semantics.
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Config describes a rotated log destination.
type Config struct {
	Path       string // log file path
	MaxSizeMB  int    // megabytes before rotation (default 10)
	MaxBackups int    // number of backups to keep (default 3)
	MaxAgeDays int    // days to keep (default 7)
	Compress   bool   // gzip rotated files
}

// Writer returns a rotating io.WriteCloser for the configured path.
func (c Config) Writer() io.WriteCloser {
	return &lj.Logger{
		Filename:   c.Path,
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}
}

// Setup installs the process-wide slog default: colorized text on stderr
// plus a rotated JSON file under logDir. It returns a closer for the file
// writer.
func Setup(logDir, level string) (io.Closer, error) {
	if err := os.MkdirAll(logDir, 0o750); err != nil {
		return nil, err
	}
	lvl := ParseLevel(level)
	fileW := Config{Path: filepath.Join(logDir, "bb-dui.log")}.Writer()

	console := NewColorTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}, true)
	file := slog.NewJSONHandler(fileW, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(newTeeHandler(console, file)))
	return fileW, nil
}

// ParseLevel maps the config log level string to a slog.Level, defaulting
// to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
