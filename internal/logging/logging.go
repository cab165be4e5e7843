// Package logging configures the process-wide slog logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jrick/logrotate/rotator"
)

// Rotation parameters for --log-file: roll at 1 MiB, keep 10 files.
const (
	rotateThresholdKB = 1024
	maxRolls          = 10
)

// Options selects the log level and optional rotating log file.
type Options struct {
	Debug   bool
	LogFile string
	Stderr  io.Writer // defaults to os.Stderr
}

// Logger is the configured slog logger and the sinks it writes to.
type Logger struct {
	*slog.Logger
	rotator *rotator.Rotator
}

// New builds a text-handler logger writing to stderr and, when
// opts.LogFile is set, to a rotating log file as well.
func New(opts Options) (*Logger, error) {
	out := opts.Stderr
	if out == nil {
		out = os.Stderr
	}

	var rot *rotator.Rotator
	if opts.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(opts.LogFile), 0o700); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		var err error
		rot, err = rotator.New(opts.LogFile, rotateThresholdKB, false, maxRolls)
		if err != nil {
			return nil, fmt.Errorf("create file rotator: %w", err)
		}
		out = io.MultiWriter(out, rot)
	}

	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	return &Logger{Logger: slog.New(h), rotator: rot}, nil
}

// Setup builds the logger and installs it as the slog default.
func Setup(opts Options) (*Logger, error) {
	l, err := New(opts)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(l.Logger)
	return l, nil
}

// Close flushes and closes the rotating log file, if any.
func (l *Logger) Close() error {
	if l.rotator == nil {
		return nil
	}
	return l.rotator.Close()
}
