package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

var Logger = slog.Default()

// Init builds the process logger and makes it the slog default. DEBUG=true
// wins over the configured level.
func Init(level string) *slog.Logger {
	if os.Getenv("DEBUG") == "true" {
		level = "debug"
	}
	Logger = New(os.Stdout, level)
	slog.SetDefault(Logger)
	return Logger
}

// New returns a text logger writing to w.
func New(w io.Writer, level string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

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

// Discard is handy for tests and for components built without a logger.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func Error(msg string, args ...any) {
	Logger.Error(msg, args...)
}
