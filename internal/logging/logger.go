// Package logging provides slog setup helpers for leasectl.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Output formats accepted by Setup.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Setup initializes the default slog logger with the given level, format
// and output. The daemon logs JSON; one-shot commands use text.
func Setup(level, format string, output io.Writer) *slog.Logger {
	if output == nil {
		output = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
	}

	var handler slog.Handler
	if strings.EqualFold(format, FormatText) {
		handler = slog.NewTextHandler(output, opts)
	} else {
		handler = slog.NewJSONHandler(output, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// ParseLevel converts a string level to slog.Level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "trace", "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
