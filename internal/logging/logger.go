// Package logging wraps log/slog with a JSON handler writing to a file or
// stderr. Core game packages never log; the API, store recorder and CLI do.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// FileName is the log file created inside the log directory.
const FileName = "ladders.log"

// Logger is a structured JSON logger. It is safe for concurrent use; child
// loggers share the parent's file.
type Logger struct {
	slog *slog.Logger
	out  *logFile
}

type logFile struct {
	mu sync.Mutex
	f  *os.File
}

// NewLogger writes JSON lines to {dir}/ladders.log, or to stderr when dir is
// empty. Unknown levels fall back to INFO.
func NewLogger(dir, level string) (*Logger, error) {
	var w io.Writer = os.Stderr
	out := &logFile{}
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("logging: create log dir: %w", err)
		}
		f, err := os.OpenFile(filepath.Join(dir, FileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("logging: open log file: %w", err)
		}
		out.f = f
		w = f
	}
	return newLogger(w, level, out), nil
}

// NewWriterLogger logs to w. Tests use it with a bytes.Buffer.
func NewWriterLogger(w io.Writer, level string) *Logger {
	return newLogger(w, level, &logFile{})
}

func newLogger(w io.Writer, level string, out *logFile) *Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(level)})
	return &Logger{slog: slog.New(h), out: out}
}

// Nop discards everything.
func Nop() *Logger {
	return NewWriterLogger(io.Discard, LevelError)
}

func parseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// ValidLevel reports whether level names a known level.
func ValidLevel(level string) bool {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return true
	}
	return false
}

// With returns a child logger carrying extra key/value pairs.
func (l *Logger) With(args ...any) *Logger {
	if len(args) == 0 {
		return l
	}
	return &Logger{slog: l.slog.With(args...), out: l.out}
}

// WithSession tags every entry with a session id.
func (l *Logger) WithSession(id string) *Logger {
	return l.With("session_id", id)
}

// WithComponent tags every entry with the emitting component.
func (l *Logger) WithComponent(name string) *Logger {
	return l.With("component", name)
}

func (l *Logger) Debug(msg string, args ...any) { l.slog.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.slog.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.slog.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.slog.Error(msg, args...) }

// Slog exposes the underlying logger for packages that take *slog.Logger.
func (l *Logger) Slog() *slog.Logger { return l.slog }

// Close syncs and closes the log file. It is a no-op for stderr or writer
// loggers and safe to call more than once.
func (l *Logger) Close() error {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	if l.out.f == nil {
		return nil
	}
	if err := l.out.f.Sync(); err != nil {
		return fmt.Errorf("logging: sync log file: %w", err)
	}
	if err := l.out.f.Close(); err != nil {
		return fmt.Errorf("logging: close log file: %w", err)
	}
	l.out.f = nil
	return nil
}
