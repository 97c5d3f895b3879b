// Package logging configures the process-wide zerolog logger for the
// trainer and the predictor service.
package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects level, output format and an optional rotating log file.
type Options struct {
	Level  string
	Format string // console or json
	File   string
}

// Setup installs the global logger and returns a closer for the log file.
// The closer is a no-op when no file is configured.
func Setup(opts Options) io.Closer {
	return setup(opts, os.Stderr)
}

func setup(opts Options, stderr io.Writer) io.Closer {
	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer = stderr
	if opts.Format != "json" {
		out = zerolog.ConsoleWriter{Out: stderr}
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   filepath.Clean(opts.File),
			MaxSize:    50, // megabytes
			MaxBackups: 3,
			MaxAge:     14, // days
			Compress:   true,
		}
		out = zerolog.MultiLevelWriter(out, rotator)
		closer = rotator
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
