// Package log configures the process wide slog logger.
package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel maps a configured level name to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

// NewHandler creates a text or json handler writing to w.
func NewHandler(w io.Writer, level slog.Level, format string) slog.Handler {
	options := &slog.HandlerOptions{Level: level}

	if format == "json" {
		return slog.NewJSONHandler(w, options)
	}

	return slog.NewTextHandler(w, options)
}

// Setup installs the default logger on stderr. Unknown levels fall back to info.
func Setup(logLevel, format string) {
	level, err := ParseLevel(logLevel)

	slog.SetDefault(slog.New(NewHandler(os.Stderr, level, format)))

	if err != nil {
		slog.Warn("falling back to info level", "error", err)
	}
}

// WithModule returns a logger tagged with the component name. It resolves the
// default logger at call time, so loggers created before Setup keep the old handler.
func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}
