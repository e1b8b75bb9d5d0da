// Package diag provides the runtime's structured logging, built on
// log/slog: none of the tooling this runtime otherwise leans on pulls
// in a third-party structured-logging library, and slog is the
// stdlib's own answer to exactly this ambient concern, so it is used
// directly rather than hand-rolling a formatter or reaching for an
// unneeded dependency.
package diag

import (
	"io"
	"log/slog"
)

// Logger is the runtime's logging handle: a thin wrapper so call sites
// depend on package diag rather than on log/slog directly, and so a
// future swap to a pack-sourced logging library only touches this file.
type Logger struct {
	*slog.Logger
}

// New builds a Logger writing level-filtered, text-formatted records to
// w. A nil w discards everything.
func New(w io.Writer, level slog.Level) *Logger {
	if w == nil {
		return &Logger{slog.New(slog.NewTextHandler(io.Discard, nil))}
	}
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return &Logger{slog.New(h)}
}

// Discard returns a Logger that drops every record, for tests and
// embedders that don't want runtime diagnostics.
func Discard() *Logger {
	return &Logger{slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// WithComponent returns a Logger that tags every record with the given
// component name (e.g. "gc", "lexer", "mem"), following the
// sub-logger-per-subsystem pattern the runtime.State constructor uses
// to wire one diag.Logger into mem, gc, and lexer.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{l.Logger.With("component", name)}
}
