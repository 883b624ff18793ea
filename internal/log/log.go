// Package log is NLER's package-level structured logging seam.
//
// The components that log (queue, pool, timer) accept an optional *Logger
// via a functional option; when
// none is supplied, operations use a package-level default that discards
// everything. This mirrors the teacher event loop's SetStructuredLogger /
// getGlobalLogger split (joeycumines/go-eventloop logging.go), generalized
// from a bespoke Logger/LogEntry facade to the real logiface generic
// facade plus its slog backend, both pulled from the rest of the pack.
package log

import (
	"log/slog"
	"sync"

	"github.com/joeycumines/logiface"
	logifaceslog "github.com/joeycumines/logiface-slog"
)

// Logger is the type every NLER component logs through.
type Logger = logiface.Logger[*logifaceslog.Event]

// New builds a Logger writing to the given slog.Handler.
func New(handler slog.Handler) *Logger {
	return logiface.New[*logifaceslog.Event](logifaceslog.NewLogger(handler))
}

var (
	defaultMu     sync.RWMutex
	defaultLogger *Logger
)

// SetDefault sets the package-level fallback logger used by components
// constructed without an explicit WithLogger option.
func SetDefault(l *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = l
}

// Default returns the package-level fallback logger, creating one on first
// use that writes to a discarding writer.
func Default() *Logger {
	defaultMu.RLock()
	l := defaultLogger
	defaultMu.RUnlock()
	if l != nil {
		return l
	}

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		defaultLogger = New(slog.NewTextHandler(discardWriter{}, nil))
	}
	return defaultLogger
}

// Or returns l if non-nil, else the package default.
func Or(l *Logger) *Logger {
	if l != nil {
		return l
	}
	return Default()
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
