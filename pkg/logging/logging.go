// Package logging builds the slog loggers handed to every mender component.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ParseLevel maps debug, info, warn or error (case-insensitive) onto a slog
// level. An empty string means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("logging: unknown level %q", s)
	}
}

// New returns a text logger writing to w at the given level. Unknown levels
// fall back to info.
func New(level string, w io.Writer) *slog.Logger {
	lvl, _ := ParseLevel(level)

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// Nop returns a logger that discards everything.
func Nop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// FileLogger is a JSON logger appending to a file.
type FileLogger struct {
	Logger *slog.Logger
	Close  func() error
	Path   string
}

// NewFileLogger opens (or creates) path and logs to it as JSON. It is used
// when stdout and stderr belong to another protocol.
func NewFileLogger(path, level string) (FileLogger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return FileLogger{Logger: Nop(), Close: func() error { return nil }}, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec // log directory is user-chosen
		return FileLogger{Logger: Nop(), Close: func() error { return nil }}, err
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) //nolint:gosec // log path is user-chosen
	if err != nil {
		return FileLogger{Logger: Nop(), Close: func() error { return nil }}, err
	}

	handler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: lvl})

	return FileLogger{
		Logger: slog.New(handler),
		Close:  file.Close,
		Path:   path,
	}, nil
}
