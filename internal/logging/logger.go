// Package logging defines the structured-logging interface used across the
// server. Two implementations are provided: one over log/slog and one over
// zerolog.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Logger is a context-aware, structured logger.
//
// The variadic args are interpreted as key–value pairs, e.g.:
//
//	log.Info(ctx, "file uploaded", "patient_id", pid, "size", n)
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given key–value pairs.
	With(args ...any) Logger
}

// Supported values for the LogFormat configuration field.
const (
	FormatJSON    = "json"
	FormatText    = "text"
	FormatConsole = "console"
)

// New builds the Logger selected by format, writing to w (stdout when nil).
// Unknown formats fall back to JSON.
func New(format string, w io.Writer) Logger {
	if w == nil {
		w = os.Stdout
	}
	switch format {
	case FormatConsole:
		return NewConsoleLogger(w)
	case FormatText:
		return NewSlogLogger(slog.New(slog.NewTextHandler(w, nil)))
	default:
		return NewSlogLogger(slog.New(slog.NewJSONHandler(w, nil)))
	}
}
