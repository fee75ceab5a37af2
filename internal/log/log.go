// Package log provides structured logging for go-obbcam.
// It wraps slog with sensible defaults for production use.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

// Output formats accepted by Init.
const (
	FormatAuto = "auto"
	FormatText = "text"
	FormatJSON = "json"
)

var (
	logger *slog.Logger
	once   sync.Once
)

// Init initializes the global logger with the specified level and format.
// Valid levels: "debug", "info", "warn", "error"
// Valid formats: "auto", "text", "json". Auto picks text on a terminal and JSON otherwise.
func Init(level, format string) {
	once.Do(func() {
		logger = New(os.Stdout, level, format)
		slog.SetDefault(logger)
	})
}

// New builds a logger writing to w without touching the global instance.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
	}
	if useJSON(w, format) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel maps a level name to a slog level. Unknown names map to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

func useJSON(w io.Writer, format string) bool {
	// GO_ENV=production always wins
	if os.Getenv("GO_ENV") == "production" {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatJSON:
		return true
	case FormatText:
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return !(isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd))
}

// L returns the global logger instance.
func L() *slog.Logger {
	if logger == nil {
		Init("info", FormatAuto)
	}
	return logger
}

// Or returns l when non-nil and the global logger otherwise.
func Or(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return L()
}

// Component returns a logger tagged with a component name.
func Component(name string) *slog.Logger {
	return L().With("component", name)
}

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	L().Debug(msg, args...)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	L().Info(msg, args...)
}

// Warn logs at warn level.
func Warn(msg string, args ...any) {
	L().Warn(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	L().Error(msg, args...)
}

// With returns a logger with the given attributes.
func With(args ...any) *slog.Logger {
	return L().With(args...)
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
