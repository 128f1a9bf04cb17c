// Package logging provides the structured logger handed to the transaction
// coordinator, instead of reaching for the slog
// default logger globally — callers construct one Logger and pass it in,
// mirroring the teacher's injected daemon logger rather than a package-level
// singleton.
package logging

import (
	"log/slog"
	"os"
)

// Logger wraps *slog.Logger with the component name already bound, so call
// sites don't repeat "component" on every log line.
type Logger struct {
	*slog.Logger
}

// New creates a Logger writing structured JSON to stderr, tagged with
// component.
func New(component string) *Logger {
	h := slog.NewJSONHandler(os.Stderr, nil)
	return &Logger{Logger: slog.New(h).With("component", component)}
}

// Nop returns a Logger that discards everything, for tests and callers
// that don't want log output.
func Nop() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(discard{}, nil))}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
