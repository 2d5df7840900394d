// Package logger builds the process-wide structured logger.
package logger

import (
	"io"
	"log/slog"
	"os"
)

// New creates a structured logger. With debug enabled it emits JSON at debug
// level with source positions; otherwise only warnings and errors are written
// as text.
func New(debug bool, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	if debug {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:     slog.LevelDebug,
			AddSource: true,
		}))
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// ForModule tags a logger with the module/layer attributes used across the
// service. A nil base falls back to slog.Default.
func ForModule(base *slog.Logger, module, layer string) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	return base.With("module", module, "layer", layer)
}
