package voxgen

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely, making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	l := newNopLogger()
	loggerPtr.Store(l)
}

// SetLogger configures the logger for voxgen and all its sub-packages.
// By default, voxgen produces no log output. Call SetLogger to enable logging.
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
// Pass nil to disable logging (restore default silent behavior).
//
// Log levels used by voxgen:
//   - [slog.LevelDebug]: internal diagnostics (dispatch sizes, buffer sizes)
//   - [slog.LevelInfo]: important lifecycle events (GPU generator selected)
//   - [slog.LevelWarn]: non-fatal issues (CPU fallback, resource release errors)
//
// Example:
//
//	// Enable info-level logging to stderr:
//	voxgen.SetLogger(slog.Default())
//
//	// Enable debug-level logging for full diagnostics:
//	voxgen.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)

	// Propagate to the registered generator if it supports logging.
	genMu.RLock()
	g := activeGen
	genMu.RUnlock()
	if g != nil {
		propagateLogger(g, l)
	}
}

// Logger returns the current logger used by voxgen.
// Sub-packages (internal/gpu, internal/parallel) call this to share the same
// logger configuration without introducing import cycles.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// loggerSetter is implemented by generators that accept a logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

// propagateLogger passes the logger to a generator if it implements the
// loggerSetter interface. Called from both SetLogger and RegisterGenerator
// to ensure the generator always has the current logger.
func propagateLogger(g Generator, l *slog.Logger) {
	if ls, ok := g.(loggerSetter); ok {
		ls.SetLogger(l)
	}
}
