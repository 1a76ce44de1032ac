// logger.go - Structured logging setup for the pool daemon
package main

import (
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// newLogger builds the daemon logger: human-readable console output plus an
// optional JSON log file. The returned closer flushes and closes the file.
func newLogger(level, logFile string) (zerolog.Logger, func() error, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, nil, errors.Wrapf(err, "log level %q", level)
	}

	console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	writers := []io.Writer{console}
	closer := func() error { return nil }

	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return zerolog.Logger{}, nil, errors.Wrap(err, "open log file")
		}
		writers = append(writers, f)
		closer = f.Close
	}

	log := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(lvl).
		With().Timestamp().Logger()
	return log, closer, nil
}
