package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	slogmulti "github.com/samber/slog-multi"
)

// SetupLogger builds the logger for c: text records to stderr and JSON
// records to c.LogFile, both at c.LogLevel(). The returned function closes
// the log file.
func SetupLogger(c Config) (*slog.Logger, func() error) {
	return NewLogger(os.Stderr, c.LogLevel(), c.LogFile, c.LogLevel())
}

// NewLogger fans out to stderr and logFile with independent levels. An
// empty or unwritable logFile leaves a stderr-only logger.
func NewLogger(stderr io.Writer, stderrLevel slog.Level, logFile string, fileLevel slog.Level) (*slog.Logger, func() error) {
	text := slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: stderrLevel})
	if logFile == "" {
		return slog.New(text), func() error { return nil }
	}

	file, err := openLogFile(logFile)
	if err != nil {
		logger := slog.New(text)
		logger.Warn("log file unavailable, logging to stderr only", "file", logFile, "error", err)
		return logger, func() error { return nil }
	}
	return slog.New(slogmulti.Fanout(text, slog.NewJSONHandler(file, &slog.HandlerOptions{Level: fileLevel}))), file.Close
}

// NewLoggerWithWriters is NewLogger over arbitrary writers at one level.
func NewLoggerWithWriters(stderr, file io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slogmulti.Fanout(
		slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}),
		slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level}),
	))
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}
