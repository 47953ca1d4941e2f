// Package plog provides the process-wide structured logger.
//
// It wraps log/slog with a custom NOTICE level (between DEBUG and INFO) used
// for per-file mirror events (COPY, SKIP, DELETE), routes INFO-and-below to
// stdout and WARN-and-above to stderr, and renders with colorized output when
// attached to a terminal.
package plog

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// LevelNotice sits between slog's built-in DEBUG and INFO levels. It carries
// the per-file event stream, which is chattier than INFO but not debug noise.
const LevelNotice = slog.Level(-2)

// TimeFormat is the timestamp layout used by the console handler.
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

// LevelDispatchHandler is a slog.Handler that writes log records to different
// handlers based on the record's level. INFO and below go to one handler,
// while WARNING and above go to another.
type LevelDispatchHandler struct {
	stdoutHandler slog.Handler
	stderrHandler slog.Handler
}

// Enabled checks if the level is enabled for either of the underlying handlers.
func (h *LevelDispatchHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.stdoutHandler.Enabled(ctx, level) || h.stderrHandler.Enabled(ctx, level)
}

// Handle dispatches the record to the appropriate handler.
func (h *LevelDispatchHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelWarn {
		return h.stderrHandler.Handle(ctx, r)
	}
	return h.stdoutHandler.Handle(ctx, r)
}

// WithAttrs returns a new LevelDispatchHandler with the given attributes added.
func (h *LevelDispatchHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LevelDispatchHandler{
		stdoutHandler: h.stdoutHandler.WithAttrs(attrs),
		stderrHandler: h.stderrHandler.WithAttrs(attrs),
	}
}

// WithGroup returns a new LevelDispatchHandler with the given group.
func (h *LevelDispatchHandler) WithGroup(name string) slog.Handler {
	return &LevelDispatchHandler{
		stdoutHandler: h.stdoutHandler.WithGroup(name),
		stderrHandler: h.stderrHandler.WithGroup(name),
	}
}

var (
	mu            sync.RWMutex
	defaultLogger *slog.Logger
	levelVar      = new(slog.LevelVar) // Shared by all handlers; defaults to INFO.
)

// renameCustomLevels maps the numeric representation of LevelNotice to a
// readable label in both the tint and text handlers.
func renameCustomLevels(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey && len(groups) == 0 {
		if level, ok := a.Value.Any().(slog.Level); ok && level == LevelNotice {
			a.Value = slog.StringValue("NOTICE")
		}
	}
	return a
}

func newConsoleHandler(w io.Writer, isTerminal bool) slog.Handler {
	return tint.NewHandler(w, &tint.Options{
		Level:       levelVar,
		TimeFormat:  TimeFormat,
		NoColor:     !isTerminal,
		ReplaceAttr: renameCustomLevels,
	})
}

func init() {
	stdoutHandler := newConsoleHandler(os.Stdout, isatty.IsTerminal(os.Stdout.Fd()))
	stderrHandler := newConsoleHandler(os.Stderr, isatty.IsTerminal(os.Stderr.Fd()))

	defaultLogger = slog.New(&LevelDispatchHandler{
		stdoutHandler: stdoutHandler,
		stderrHandler: stderrHandler,
	})
}

// SetLevel sets the minimum level emitted by the global logger.
func SetLevel(level slog.Level) {
	levelVar.Set(level)
}

// LevelFromString maps a config/flag string to a slog level.
// Unknown strings fall back to INFO.
func LevelFromString(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "notice":
		return LevelNotice
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

// SetOutput redirects all log output to a single writer using a plain text
// handler. Used by tests and by the agent when logging to a file.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       levelVar,
		ReplaceAttr: renameCustomLevels,
	}))
}

func logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

// Debug logs a debug message.
func Debug(msg string, args ...any) {
	logger().Debug(msg, args...)
}

// Notice logs a per-item event message at the NOTICE level.
func Notice(msg string, args ...any) {
	logger().Log(context.Background(), LevelNotice, msg, args...)
}

// Info logs an informational message.
func Info(msg string, args ...any) {
	logger().Info(msg, args...)
}

// Warn logs a warning message.
func Warn(msg string, args ...any) {
	logger().Warn(msg, args...)
}

// Error logs an error message.
func Error(msg string, args ...any) {
	logger().Error(msg, args...)
}
