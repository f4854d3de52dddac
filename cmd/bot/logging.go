package main

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	charmlog "github.com/charmbracelet/log"
)

// newLogger builds the root logger: json lines for collectors, or the
// colored console handler for people.
func newLogger(w io.Writer, level slog.Level, format string) (*slog.Logger, error) {
	switch format {
	case logFormatJSON:
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})), nil
	case logFormatText, "":
		handler := charmlog.NewWithOptions(w, charmlog.Options{
			ReportTimestamp: true,
			TimeFormat:      time.DateTime,
			Level:           charmlog.Level(level),
			Prefix:          "paimon",
		})
		return slog.New(handler), nil
	default:
		return nil, fmt.Errorf("unsupported log format %q", format)
	}
}
