// Package logger provides the structured logging facade used across the
// service. It wraps log/slog so call sites depend on a narrow interface
// that tests can replace with a no-op or capturing implementation.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Attr is a typed key/value pair attached to a log record.
type Attr = slog.Attr

// Logger is the logging interface used by all subsystems.
type Logger interface {
	Debug(msg string, attrs ...Attr)
	Info(msg string, attrs ...Attr)
	Warn(msg string, attrs ...Attr)
	Error(msg string, attrs ...Attr)

	// With returns a child logger with the given attrs attached to
	// every record.
	With(attrs ...Attr) Logger
}

// Typed attr constructors, so call sites read as
// log.Info("cache refilled", logger.Int("rows", n)).

func String(key, value string) Attr          { return slog.String(key, value) }
func Int(key string, value int) Attr         { return slog.Int(key, value) }
func Int64(key string, value int64) Attr     { return slog.Int64(key, value) }
func Uint64(key string, value uint64) Attr   { return slog.Uint64(key, value) }
func Float64(key string, value float64) Attr { return slog.Float64(key, value) }
func Bool(key string, value bool) Attr       { return slog.Bool(key, value) }
func Time(key string, value time.Time) Attr  { return slog.Time(key, value) }

func Duration(key string, value time.Duration) Attr {
	return slog.Duration(key, value)
}

// Error wraps an error under the conventional "error" key.
func Error(err error) Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.String("error", err.Error())
}

type slogLogger struct {
	l *slog.Logger
}

// Options controls handler construction in New.
type Options struct {
	// Level is one of "debug", "info", "warn", "error". Empty means info.
	Level string
	// Format is "json" or "text". Empty means json.
	Format string
	// Output defaults to os.Stderr.
	Output io.Writer
}

// New creates a Logger writing structured records per opts.
func New(opts Options) Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	hopts := &slog.HandlerOptions{Level: parseLevel(opts.Level)}
	var h slog.Handler
	if strings.EqualFold(opts.Format, "text") {
		h = slog.NewTextHandler(out, hopts)
	} else {
		h = slog.NewJSONHandler(out, hopts)
	}
	return &slogLogger{l: slog.New(h)}
}

// NewNop returns a logger that discards everything. Used in tests.
func NewNop() Logger {
	return &slogLogger{l: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (s *slogLogger) Debug(msg string, attrs ...Attr) { s.log(slog.LevelDebug, msg, attrs) }
func (s *slogLogger) Info(msg string, attrs ...Attr)  { s.log(slog.LevelInfo, msg, attrs) }
func (s *slogLogger) Warn(msg string, attrs ...Attr)  { s.log(slog.LevelWarn, msg, attrs) }
func (s *slogLogger) Error(msg string, attrs ...Attr) { s.log(slog.LevelError, msg, attrs) }

func (s *slogLogger) log(level slog.Level, msg string, attrs []Attr) {
	args := make([]any, 0, len(attrs))
	for _, a := range attrs {
		args = append(args, a)
	}
	s.l.Log(context.Background(), level, msg, args...)
}

func (s *slogLogger) With(attrs ...Attr) Logger {
	args := make([]any, 0, len(attrs))
	for _, a := range attrs {
		args = append(args, a)
	}
	return &slogLogger{l: s.l.With(args...)}
}
