// Package debug holds the process-wide log/slog logger used by batis-go.
package debug

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	logger  *slog.Logger
	enabled bool
	mu      sync.RWMutex
)

func init() {
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Init switches debug logging on or off. When on, records at debug level and
// above are written to stderr; when off, everything is discarded.
func Init(enable bool) {
	if enable {
		InitWithWriter(os.Stderr, slog.LevelDebug)
		return
	}
	InitWithWriter(io.Discard, slog.LevelError+1)
}

// InitWithWriter installs a text handler writing to w at the given level.
func InitWithWriter(w io.Writer, level slog.Level) {
	mu.Lock()
	defer mu.Unlock()

	enabled = w != io.Discard && level <= slog.LevelDebug
	logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// SetLogger replaces the process logger. A nil logger is ignored.
func SetLogger(l *slog.Logger) {
	if l == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	logger = l
	enabled = l.Enabled(context.Background(), slog.LevelDebug)
}

// Enabled reports whether debug records are emitted.
func Enabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

func current() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func Debug(msg string, args ...any) { current().Debug(msg, args...) }

func Info(msg string, args ...any) { current().Info(msg, args...) }

func Warn(msg string, args ...any) { current().Warn(msg, args...) }

func Error(msg string, args ...any) { current().Error(msg, args...) }

// With returns the process logger with the given attributes attached.
func With(args ...any) *slog.Logger {
	return current().With(args...)
}

// Logger returns the process logger.
func Logger() *slog.Logger {
	return current()
}

// Or returns l when it is non-nil and the process logger otherwise.
func Or(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return current()
}
