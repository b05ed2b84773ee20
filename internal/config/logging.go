package config

import (
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// LogOptions describes the logger of one CLI command.
type LogOptions struct {
	Command string
	Level   slog.Level
	// File receives JSON lines next to the stderr text output. Empty means stderr only.
	File string
}

// LogOptions returns the logging setup for command. Only the long-running
// server appends to LOG_FILE; one-shot commands stay on stderr.
func (c Config) LogOptions(command string) LogOptions {
	opts := LogOptions{Command: command, Level: c.LogLevel}
	if command == "serve" {
		opts.File = c.LogFile
	}
	return opts
}

// NewLogger opens the log file, if any, and builds the command logger.
// The returned cleanup closes the file.
func NewLogger(opts LogOptions) (*slog.Logger, func() error) {
	noop := func() error { return nil }
	if opts.File == "" {
		return NewLoggerTo(opts, os.Stderr, nil), noop
	}

	file, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		logger := NewLoggerTo(opts, os.Stderr, nil)
		logger.Error("failed to open log file, using stderr only", "error", err, "file", opts.File)
		return logger, noop
	}
	return NewLoggerTo(opts, os.Stderr, file), file.Close
}

// NewLoggerTo writes text to stderr and, when file is non-nil, JSON to file.
// Every entry carries the command name.
func NewLoggerTo(opts LogOptions, stderr, file io.Writer) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: opts.Level}
	var handler slog.Handler = slog.NewTextHandler(stderr, handlerOpts)
	if file != nil {
		handler = slogmulti.Fanout(handler, slog.NewJSONHandler(file, handlerOpts))
	}

	logger := slog.New(handler)
	if opts.Command != "" {
		logger = logger.With("cmd", opts.Command)
	}
	return logger
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
