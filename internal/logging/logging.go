// Package logging builds the process logger: a console handler fanned out to
// an optional rotating JSON file.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Level  string
	Format string // "text" or "json"
	File   string
	// Console defaults to os.Stdout.
	Console io.Writer
}

// New returns the logger and a close func that flushes the rotating file.
func New(opts Options) (*slog.Logger, func() error) {
	level := ParseLevel(opts.Level)
	handlerOpts := &slog.HandlerOptions{Level: level}

	console := opts.Console
	if console == nil {
		console = os.Stdout
	}

	var handlers []slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		handlers = append(handlers, slog.NewJSONHandler(console, handlerOpts))
	} else {
		handlers = append(handlers, slog.NewTextHandler(console, handlerOpts))
	}

	closeFn := func() error { return nil }
	if strings.TrimSpace(opts.File) != "" {
		writer := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    50, // MB
			MaxBackups: 5,
			MaxAge:     14,
			Compress:   true,
		}
		handlers = append(handlers, slog.NewJSONHandler(writer, handlerOpts))
		closeFn = writer.Close
	}

	return slog.New(slogmulti.Fanout(handlers...)), closeFn
}

func ParseLevel(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
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

// Discard is used by tests and by components constructed without a logger.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
