// Package logger configures the process-wide structured logger.
//
// Diagnostics are written to the console and, when a log file is configured,
// duplicated to that file so a run leaves a persistent record behind.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ParseLevel maps a configuration string to a slog.Level.
// Defaults to slog.LevelInfo for empty or unrecognized values.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		slog.Warn("Invalid log level, using INFO", "value", level)
		return slog.LevelInfo
	}
}

// Setup builds a leveled text logger writing to stderr and, when path is not
// empty, to the given log file. It installs the logger as the slog default.
// The returned closer must be called on process exit to close the log file.
func Setup(level string, path string) (*slog.Logger, func(), error) {
	writers := []io.Writer{os.Stderr}
	closer := func() {}

	if path != "" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
			}
		}
		// Append so repeated runs accumulate in one file
		file, err := os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		writers = append(writers, file)
		closer = func() { _ = file.Close() }
	}

	handler := slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{
		Level: ParseLevel(level),
	})
	log := slog.New(handler)
	slog.SetDefault(log)

	return log, closer, nil
}
