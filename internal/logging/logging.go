// Package logging is the structured logger shared by the simulator packages.
// Callers depend on the Logger interface; slog and zap provide backends.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"
)

// Logger is the logging surface every component receives. The context is
// forwarded to backends that can use it (slog handlers do).
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Field)
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)
	With(fields ...Field) Logger
}

// Field is one key/value attribute.
type Field struct {
	Key   string
	Value any
}

func String(key, value string) Field             { return Field{Key: key, Value: value} }
func Int(key string, value int) Field            { return Field{Key: key, Value: value} }
func Any(key string, value any) Field            { return Field{Key: key, Value: value} }
func Float64(key string, value float64) Field    { return Field{Key: key, Value: value} }
func Bool(key string, value bool) Field          { return Field{Key: key, Value: value} }
func Duration(key string, v time.Duration) Field { return Field{Key: key, Value: v} }

// Err records err under the "error" key. A nil error yields an empty value.
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: ""}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Level is a backend-neutral severity.
type Level int

const (
	LevelDebug Level = iota - 1
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps debug, info, warn/warning and error onto a Level.
// Anything else is info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Config selects and tunes a backend.
type Config struct {
	Level     string // debug, info, warn, error
	Format    string // text, json, zap or zap-dev
	AddSource bool   // include source locations

	// Output defaults to stdout. It is ignored by the zap backends, which
	// write to stderr.
	Output io.Writer
}

// New builds a Logger for cfg. "zap" and "zap-dev" select zap; if zap
// cannot be built, or for any other format, slog is used.
func New(cfg Config) Logger {
	switch strings.ToLower(cfg.Format) {
	case "zap", "zap-dev":
		if l, err := newZap(cfg); err == nil {
			return l
		}
	}
	return newSlog(cfg)
}

// NewFromEnv reads LOG_LEVEL and LOG_FORMAT.
func NewFromEnv() Logger {
	return New(Config{
		Level:     os.Getenv("LOG_LEVEL"),
		Format:    os.Getenv("LOG_FORMAT"),
		AddSource: true,
	})
}

// Noop returns a logger that drops everything.
func Noop() Logger { return noopLogger{} }

type noopLogger struct{}

func (noopLogger) With(...Field) Logger                    { return noopLogger{} }
func (noopLogger) Debug(context.Context, string, ...Field) {}
func (noopLogger) Info(context.Context, string, ...Field)  {}
func (noopLogger) Warn(context.Context, string, ...Field)  {}
func (noopLogger) Error(context.Context, string, ...Field) {}
