// Package logging builds the zerolog loggers used across workyterm.
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrUnsupportedFormat is returned for a log format other than console or json.
var ErrUnsupportedFormat = errors.New("unsupported log format")

// New constructs a logger writing to out in the given level and format
// ("console" or "json"). It also sets the global level and log.Logger.
func New(level, format string, out io.Writer) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("parse log level: %w", err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if out == nil {
		out = os.Stderr
	}

	var logger zerolog.Logger
	switch strings.ToLower(format) {
	case "", "console":
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	case "json":
		logger = zerolog.New(out).With().Timestamp().Logger()
	default:
		return zerolog.Logger{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	zerolog.SetGlobalLevel(lvl)
	logger = logger.Level(lvl)
	log.Logger = logger
	return logger, nil
}

// Open is New writing to stderr and, when file is non-empty, appending to
// file as well. The returned closer releases the file.
func Open(level, format, file string) (zerolog.Logger, io.Closer, error) {
	if file == "" {
		l, err := New(level, format, os.Stderr)
		return l, nopCloser{}, err
	}
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return zerolog.Logger{}, nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return zerolog.Logger{}, nil, fmt.Errorf("open log file: %w", err)
	}
	l, err := New(level, format, io.MultiWriter(os.Stderr, f))
	if err != nil {
		f.Close()
		return zerolog.Logger{}, nil, err
	}
	return l, f, nil
}

// Component returns a child logger tagged with the component name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
