// Package log holds the process-wide slog logger. Packages take a child
// logger with With("component", ...) when they are constructed.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	logger *slog.Logger
	mu     sync.RWMutex
	once   sync.Once
)

// ParseLevel maps "debug", "info", "warn" or "error" to a slog level.
// Anything else is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// NewLogger builds a logger writing to w. Production output is JSON so the
// recorder host can ship it; otherwise it is slog's text format.
func NewLogger(w io.Writer, level string, production bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if production {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Init installs the stdout logger. GO_ENV=production selects JSON. Later
// calls are ignored.
func Init(level string) {
	once.Do(func() {
		install(NewLogger(os.Stdout, level, os.Getenv("GO_ENV") == "production"))
	})
}

// SetOutput replaces the logger with a text logger on w, for tests.
func SetOutput(w io.Writer, level string) {
	once.Do(func() {})
	install(NewLogger(w, level, false))
}

func install(l *slog.Logger) {
	mu.Lock()
	logger = l
	mu.Unlock()
	slog.SetDefault(l)
}

// L returns the process logger, initializing it at info on first use.
func L() *slog.Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l != nil {
		return l
	}
	Init("info")
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// With returns a child logger carrying args.
func With(args ...any) *slog.Logger {
	return L().With(args...)
}
