// Package logging builds the process logger.
package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

// New returns a logger writing to stderr.
func New(level logrus.Level, format string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(level)
	logger.SetFormatter(formatter(format))
	return logger
}

// FileLogger returns a logger writing to stderr and to the file at logPath. An
// empty logPath disables the file sink and the returned file is nil.
func FileLogger(level logrus.Level, format, logPath string) (*os.File, *logrus.Logger, error) {
	logger := New(level, format)
	if logPath == "" {
		return nil, logger, nil
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	logger.SetOutput(io.MultiWriter(os.Stderr, f))
	return f, logger, nil
}

func formatter(format string) logrus.Formatter {
	if format == FormatJSON {
		return &logrus.JSONFormatter{}
	}
	return &logrus.TextFormatter{FullTimestamp: true}
}
