package elastigo

import (
	"log/slog"
	"os"

	"github.com/hupe1980/elastigo/table"
)

// Logger wraps slog.Logger with elastigo-specific helpers.
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

// WithKeyLen adds a key length field to the logger. Keys themselves are never
// logged; they are caller data.
func (l *Logger) WithKeyLen(n int) *Logger {
	return &Logger{
		Logger: l.Logger.With("key_len", n),
	}
}

// WithCapacity adds a capacity field to the logger.
func (l *Logger) WithCapacity(capacity uint64) *Logger {
	return &Logger{
		Logger: l.Logger.With("capacity", capacity),
	}
}

// LogInsert logs an insert operation.
func (l *Logger) LogInsert(keyLen, valueLen int, err error) {
	if err != nil {
		l.Error("insert failed",
			"key_len", keyLen,
			"value_len", valueLen,
			"error", err,
		)
	} else {
		l.Debug("insert completed",
			"key_len", keyLen,
			"value_len", valueLen,
		)
	}
}

// LogDelete logs a delete operation.
func (l *Logger) LogDelete(keyLen int, removed bool) {
	l.Debug("delete completed",
		"key_len", keyLen,
		"removed", removed,
	)
}

// LogRebuild logs a completed rebuild.
func (l *Logger) LogRebuild(ev table.RebuildEvent) {
	l.Info("rebuild completed",
		"reason", ev.Reason.String(),
		"old_capacity", ev.OldCapacity,
		"new_capacity", ev.NewCapacity,
		"entries", ev.Entries,
	)
}

// LogSave logs a structure stream write.
func (l *Logger) LogSave(bytes int64, err error) {
	if err != nil {
		l.Error("save failed",
			"error", err,
		)
	} else {
		l.Info("save completed",
			"bytes", bytes,
		)
	}
}

// LogLoad logs a structure stream read.
func (l *Logger) LogLoad(entries uint64, err error) {
	if err != nil {
		l.Error("load failed",
			"error", err,
		)
	} else {
		l.Info("load completed",
			"entries", entries,
		)
	}
}
