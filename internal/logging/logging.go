package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
)

// Logger writes structured records to the console and, optionally, a file.
type Logger struct {
	*slog.Logger
	closeFn func() error
}

// Options configures NewLogger.
type Options struct {
	Level string
	File  string
}

// NewLogger creates a Logger with text output on stderr. When opts.File is
// set a JSON handler on that file is fanned out alongside it.
func NewLogger(opts Options) *Logger {
	level := ParseLevel(opts.Level)
	console := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})

	if opts.File == "" {
		return &Logger{Logger: slog.New(console), closeFn: func() error { return nil }}
	}

	file, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		l := &Logger{Logger: slog.New(console), closeFn: func() error { return nil }}
		l.Error("failed to open log file, using stderr only", "file", opts.File, "error", err)
		return l
	}

	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})
	return &Logger{
		Logger:  slog.New(slogmulti.Fanout(console, fileHandler)),
		closeFn: file.Close,
	}
}

// NewWithWriters builds a Logger over arbitrary writers (for testing).
func NewWithWriters(text, json io.Writer, level string) *Logger {
	lvl := ParseLevel(level)
	var handlers []slog.Handler
	if text != nil {
		handlers = append(handlers, slog.NewTextHandler(text, &slog.HandlerOptions{Level: lvl}))
	}
	if json != nil {
		handlers = append(handlers, slog.NewJSONHandler(json, &slog.HandlerOptions{Level: lvl}))
	}
	return &Logger{Logger: slog.New(slogmulti.Fanout(handlers...)), closeFn: func() error { return nil }}
}

// NewNop returns a Logger that discards everything.
func NewNop() *Logger {
	return &Logger{
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		closeFn: func() error { return nil },
	}
}

// With returns a child Logger carrying the given attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), closeFn: l.closeFn}
}

// Close releases the log file, if any.
func (l *Logger) Close() error {
	if l == nil || l.closeFn == nil {
		return nil
	}
	return l.closeFn()
}

// ParseLevel maps a config string onto a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
