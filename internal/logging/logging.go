// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options for New.
type Options struct {
	Level string
	// File, when set, receives a copy of every line and is rotated.
	File string
	// Out defaults to os.Stdout.
	Out io.Writer
}

// New returns a JSON logrus logger. The returned closer flushes the rotated
// file, if any.
func New(opts Options) (*logrus.Logger, io.Closer, error) {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	level := logrus.InfoLevel
	if opts.Level != "" {
		parsed, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = parsed
	}
	log.SetLevel(level)

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		file := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    25,
			MaxBackups: 10,
			MaxAge:     14,
			Compress:   true,
		}
		out = io.MultiWriter(out, file)
		closer = file
	}
	log.SetOutput(out)

	return log, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
