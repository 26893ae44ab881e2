// Package observability provides Talemon's ambient logging, metrics, and
// health-check surface, shared by the scheduler, worker, and extractor
// binaries.
package observability

import (
	"log/slog"
	"os"
)

// NewLogger builds the structured JSON logger every Talemon binary starts
// with. levelName accepts "debug", "info", "warn", "error"; anything else
// falls back to info.
func NewLogger(levelName string) *slog.Logger {
	var level slog.Level
	switch levelName {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
