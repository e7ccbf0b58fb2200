// Package logging builds the process-wide slog.Logger. JSON output for
// deployments, a colored console handler for local development.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/m-mizutani/clog"
)

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New creates a slog.Logger. format is "json" or "console"; unknown
// formats fall back to JSON.
func New(level, format string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}

	var handler slog.Handler
	if strings.EqualFold(format, "console") {
		handler = clog.New(
			clog.WithWriter(w),
			clog.WithLevel(parseLevel(level)),
			clog.WithTimeFmt("15:04:05"),
			clog.WithSource(false),
		)
	} else {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(level)})
	}

	return slog.New(handler)
}
