package config

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds the text logger shared by every binary. Telemetry runs log at debug.
func NewLogger(cfg *AppConfig) *slog.Logger {
	level := parseLevel(cfg.LogLevel)
	if cfg.Telemetry != nil && cfg.Telemetry.Enabled {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	return slog.New(handler)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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
