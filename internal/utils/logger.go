package utils

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds the process logger. Text output is the interactive
// default; JSON is for log shippers.
func NewLogger(level string, json bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if json {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// ScenarioLogger attaches the scenario attribute so every message emitted
// during an analysis unit is attributable to it.
func ScenarioLogger(logger *slog.Logger, scenario string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("scenario", scenario))
}
