package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New constructs the service logger. LOG_LEVEL picks the level and LOG_FORMAT=text switches
// from JSON to the human readable handler for local runs.
func New() *slog.Logger {
	return build(os.Stdout, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
}

// NewCLI returns a quiet text logger on stderr for the terminal client.
func NewCLI(verbose bool) *slog.Logger {
	level := "warn"
	if verbose {
		level = "debug"
	}
	return build(os.Stderr, level, "text").With("service", "cashtags-cli")
}

func build(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler).With("service", "cashtags")
}

func parseLevel(level string) slog.Leveler {
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
