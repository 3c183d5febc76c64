// Package logging configures structured logging with log/slog.
//
// Processing entry points derive a run-scoped logger with NewRun so every
// stage of one invocation carries the same run_id.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
)

// Setup configures the global slog logger based on level and format, writing
// to stderr.
//
// Level values: "debug", "info", "warn", "error" (default: "info")
// Format values: "text", "json" (default: "text")
func Setup(level, format string) {
	SetupWriter(os.Stderr, level, format)
}

// SetupWriter is Setup with an explicit destination.
func SetupWriter(w io.Writer, level, format string) {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// ParseLevel converts a string log level to slog.Level.
func ParseLevel(level string) slog.Level {
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

// WithFields returns a logger with additional structured fields.
//
// Usage:
//
//	logger := logging.WithFields(slog.Default(), "stage", "regrid", "channels", 3)
//	logger.Info("spacing chosen", "meters", 0.19)
func WithFields(logger *slog.Logger, args ...any) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(args...)
}

// NewRun returns a logger tagged with a fresh run_id and the operation name,
// together with the id itself.
func NewRun(logger *slog.Logger, operation string) (*slog.Logger, string) {
	id := uuid.NewString()
	return WithFields(logger, "run_id", id, "operation", operation), id
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
