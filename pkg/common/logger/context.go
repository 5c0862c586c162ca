package logger

import (
	"context"
	"sync"
)

// LoggerContext wraps a Logger and accumulates key/value pairs over the
// lifetime of a single operation. Fields added via Add are attached to every
// subsequent record written through the context.
type LoggerContext struct {
	mu     sync.Mutex
	base   *Logger
	fields []any
}

// NewLoggerContext creates a LoggerContext on top of the given logger.
func NewLoggerContext(l *Logger) *LoggerContext {
	return &LoggerContext{base: l}
}

// Add appends key/value pairs that will be included in all later records.
func (lc *LoggerContext) Add(args ...any) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.fields = append(lc.fields, args...)
}

// Logger returns a plain Logger carrying everything added so far.
func (lc *LoggerContext) Logger() *Logger {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.base.With(lc.fields...)
}

func (lc *LoggerContext) args(args []any) []any {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	all := make([]any, 0, len(lc.fields)+len(args))
	all = append(all, lc.fields...)
	return append(all, args...)
}

func (lc *LoggerContext) Debug(ctx context.Context, msg string, args ...any) {
	lc.base.write(ctx, LevelDebug, 3, msg, lc.args(args)...)
}

func (lc *LoggerContext) Info(ctx context.Context, msg string, args ...any) {
	lc.base.write(ctx, LevelInfo, 3, msg, lc.args(args)...)
}

func (lc *LoggerContext) Warn(ctx context.Context, msg string, args ...any) {
	lc.base.write(ctx, LevelWarn, 3, msg, lc.args(args)...)
}

func (lc *LoggerContext) Error(ctx context.Context, msg string, args ...any) {
	lc.base.write(ctx, LevelError, 3, msg, lc.args(args)...)
}
