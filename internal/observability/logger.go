// Package observability provides the structured logger and the Prometheus
// instrumentation for the derivation pipeline.
package observability

import (
	"log/slog"
	"os"
)

// ParseLevel maps a config level name to an slog level. Unknown names fall
// back to info.
func ParseLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the process logger writing to stderr.
func NewLogger(level slog.Level, json bool) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}

	return slog.New(handler)
}
