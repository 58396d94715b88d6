// Package log provides the logging infrastructure shared by every mastt
// component.
//
// It exposes:
//   - A type alias for *slog.Logger used as a DI dependency
//   - Factory functions for stderr, file-backed, and test loggers
//   - A Nop logger for quiet tests
//
// Loggers are injected through constructors, never pulled from globals.
// Components add identity via logger.With("component", ...). Pipeline runs
// additionally log to <output>/logs/ so every run keeps its own trail.
package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Logger is a type alias for *slog.Logger. Components accept log.Logger as a
// dependency; using the standard library type keeps the full slog ecosystem
// (With, Group, LogAttrs) available without adapter interfaces.
type Logger = *slog.Logger

// Config defines logger configuration options.
type Config struct {
	// Level sets the minimum log level. Default: slog.LevelInfo
	Level slog.Level

	// JSON enables JSON format output. Default: false (text format)
	JSON bool

	// AddSource adds source file information to log entries. Default: false
	AddSource bool
}

// New creates a logger writing to os.Stderr.
func New(cfg Config) Logger {
	return NewWithWriter(os.Stderr, cfg)
}

// NewWithWriter creates a logger that writes to w. Used by tests to capture
// output and by the run logger to tee into a file.
func NewWithWriter(w io.Writer, cfg Config) Logger {
	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// NewRunLogger creates a logger that writes to both stderr and a dated log
// file under logDir (created if absent). The returned closer must be called
// when the run finishes.
func NewRunLogger(logDir string, cfg Config) (Logger, io.Closer, error) {
	if err := os.MkdirAll(logDir, 0o750); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	name := fmt.Sprintf("run_%s.log", time.Now().Format("20060102_150405"))
	f, err := os.OpenFile(filepath.Join(logDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, nil, fmt.Errorf("opening run log file: %w", err)
	}

	return NewWithWriter(io.MultiWriter(os.Stderr, f), cfg), f, nil
}

// NewNop creates a logger that discards all output. Test use only; production
// code always wires New or NewRunLogger.
func NewNop() Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
