package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is a structured logger. Calls take a message followed by key/value
// pairs: logger.Info("submission failed", "kind", kind).
type Logger struct {
	*slog.Logger
}

// NewLogger creates a Logger writing to stdout. format is "json" or "text".
func NewLogger(level, format string) *Logger {
	return New(level, format, os.Stdout)
}

// New creates a Logger writing to output.
func New(level, format string, output io.Writer) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if strings.ToLower(format) == "text" {
		handler = slog.NewTextHandler(output, opts)
	} else {
		handler = slog.NewJSONHandler(output, opts)
	}
	return &Logger{Logger: slog.New(handler)}
}

// Discard returns a Logger that drops everything, for tests.
func Discard() *Logger {
	return New("error", "text", io.Discard)
}

// With returns a Logger with additional attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// SetDefault makes l the process-wide slog default.
func SetDefault(l *Logger) {
	slog.SetDefault(l.Logger)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
