package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options configure the process logger.
type Options struct {
	// Level is a zerolog level name; empty means info.
	Level string
	// Debug forces the debug level.
	Debug bool
	// File switches output to JSON lines appended to this path.
	File string
	// Console is the console destination when File is empty (default stderr).
	Console io.Writer
}

// New builds the process logger. The returned close func releases the log
// file, if any.
func New(opts Options) (zerolog.Logger, func() error, error) {
	noop := func() error { return nil }

	level := zerolog.InfoLevel
	if s := strings.TrimSpace(opts.Level); s != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(s))
		if err != nil {
			return zerolog.Nop(), noop, fmt.Errorf("invalid log level %q: %w", s, err)
		}
		level = l
	}
	if opts.Debug {
		level = zerolog.DebugLevel
	}

	if path := strings.TrimSpace(opts.File); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return zerolog.Nop(), noop, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return zerolog.Nop(), noop, fmt.Errorf("failed to open log file: %w", err)
		}
		logger := zerolog.New(f).Level(level).With().Timestamp().Logger()
		return logger, f.Close, nil
	}

	out := opts.Console
	if out == nil {
		out = os.Stderr
	}
	cw := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	logger := zerolog.New(cw).Level(level).With().Timestamp().Logger()
	return logger, noop, nil
}
