package filealloc

import (
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with filealloc-specific helpers.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// LogAlloc logs an allocation served by the file-backed path.
func (l *Logger) LogAlloc(addr uintptr, layout Layout, path string, err error) {
	if err != nil {
		l.Error("alloc failed",
			"size", layout.Size,
			"align", layout.Align,
			"error", err,
		)
	} else {
		l.Debug("alloc completed",
			"addr", addr,
			"size", layout.Size,
			"align", layout.Align,
			"path", path,
		)
	}
}

// LogFallbackAlloc logs an allocation routed to the fallback allocator.
func (l *Logger) LogFallbackAlloc(layout Layout, state string) {
	l.Debug("alloc routed to fallback",
		"size", layout.Size,
		"align", layout.Align,
		"guard", state,
	)
}

// LogFree logs a deallocation.
func (l *Logger) LogFree(addr uintptr, layout Layout, path string) {
	l.Debug("free completed",
		"addr", addr,
		"size", layout.Size,
		"path", path,
	)
}

// LogRealloc logs a reallocation.
func (l *Logger) LogRealloc(oldAddr, newAddr uintptr, oldLayout, newLayout Layout, err error) {
	if err != nil {
		l.Error("realloc failed",
			"addr", oldAddr,
			"old_size", oldLayout.Size,
			"new_size", newLayout.Size,
			"error", err,
		)
	} else {
		l.Debug("realloc completed",
			"old_addr", oldAddr,
			"new_addr", newAddr,
			"old_size", oldLayout.Size,
			"new_size", newLayout.Size,
		)
	}
}

// LogDeny logs an allocation vetoed by an interceptor.
func (l *Logger) LogDeny(addr uintptr, layout Layout, path string) {
	l.Warn("allocation denied by interceptor",
		"addr", addr,
		"size", layout.Size,
		"path", path,
	)
}
