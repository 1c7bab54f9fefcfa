package logging

import (
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with SDK-specific helpers.
type Logger struct {
	*slog.Logger
}

// New creates a JSON logger writing to w at the specified level.
// Level is one of "debug", "info", "warn", "error"; anything else
// falls back to info.
func New(level string, w io.Writer) *Logger {
	var logLevel slog.Level

	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	if w == nil {
		w = os.Stdout
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: logLevel})
	return &Logger{Logger: slog.New(handler)}
}

// Default returns an info-level logger writing to stdout.
func Default() *Logger {
	return New("info", os.Stdout)
}

// Component returns a child logger tagged with the SDK component name.
func (l *Logger) Component(name string) *Logger {
	return &Logger{Logger: l.Logger.With("component", name)}
}

// Discard returns a logger that drops everything. Used in tests.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewJSONHandler(io.Discard, nil))}
}
