package shardex

import (
	"context"
	"log/slog"
	"os"
)

// Logger is the structured logger of database handles. Every entry about a
// database carries the number of shards it spans.
type Logger struct {
	*slog.Logger
}

// NewLogger wraps handler. A nil handler logs text at info level to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		return NewTextLogger(slog.LevelInfo)
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewJSONLogger logs JSON lines at level and above to stderr.
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewTextLogger logs logfmt-style text at level and above to stderr.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NoopLogger discards everything.
func NoopLogger() *Logger {
	return &Logger{Logger: slog.New(slog.DiscardHandler)}
}

// WithShard returns a logger that tags entries with a shard path.
func (l *Logger) WithShard(name string) *Logger {
	return &Logger{Logger: l.With("shard", name)}
}

// result logs msg at ok level on success, and "<msg> failed" at fail level
// with the error otherwise.
func (l *Logger) result(ctx context.Context, ok, fail slog.Level, msg string, err error, attrs ...any) {
	if err != nil {
		l.Log(ctx, fail, msg+" failed", append(attrs, "error", err)...)
		return
	}
	l.Log(ctx, ok, msg, attrs...)
}

// LogOpen logs opening a database over shards.
func (l *Logger) LogOpen(ctx context.Context, shards int, writable bool, err error) {
	l.result(ctx, slog.LevelInfo, slog.LevelError, "database open", err, "shards", shards, "writable", writable)
}

// LogReopen logs a snapshot refresh.
func (l *Logger) LogReopen(ctx context.Context, shards int, err error) {
	l.result(ctx, slog.LevelDebug, slog.LevelWarn, "database reopen", err, "shards", shards)
}

// LogFlush logs an explicit flush of ops pending operations.
func (l *Logger) LogFlush(ctx context.Context, ops int, err error) {
	l.result(ctx, slog.LevelDebug, slog.LevelError, "flush", err, "ops", ops)
}

// LogTransaction logs a transaction event: "begin", "commit" or "cancel".
func (l *Logger) LogTransaction(ctx context.Context, event string, err error) {
	l.result(ctx, slog.LevelDebug, slog.LevelWarn, "transaction "+event, err)
}

// LogClose logs closing a database handle.
func (l *Logger) LogClose(ctx context.Context, shards int, err error) {
	l.result(ctx, slog.LevelDebug, slog.LevelError, "database close", err, "shards", shards)
}
