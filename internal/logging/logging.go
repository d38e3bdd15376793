// Package logging provides structured logging using slog.
// Logs are written to .necropolis/debug.log in append mode so CI steps keep
// their stdout free for the human-readable summaries.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	// LogFileName is the name of the debug log file.
	LogFileName = "debug.log"
	// StateDir is the directory that holds the debug log.
	StateDir = ".necropolis"
)

var (
	defaultLogger *slog.Logger
	logFile       *os.File
	mu            sync.RWMutex
)

// Init initializes the logger under root. If root is empty, or the state
// directory cannot be created, logging is disabled (writes to io.Discard).
func Init(root string, level slog.Level) {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}

	var w io.Writer = io.Discard
	if root != "" {
		dir := filepath.Join(root, StateDir)
		if err := os.MkdirAll(dir, 0755); err == nil {
			f, err := os.OpenFile(filepath.Join(dir, LogFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err == nil {
				logFile = f
				w = f
			}
		}
	}

	defaultLogger = slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// ParseLevel converts "debug", "info", "warn" or "error" to a slog.Level.
// Unknown strings map to debug.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}

// Close closes the log file.
func Close() error {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		err := logFile.Close()
		logFile = nil
		return err
	}
	return nil
}

// Logger returns the default logger.
// If not initialized, returns a no-op logger.
func Logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()

	if defaultLogger == nil {
		return slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return defaultLogger
}

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	Logger().Debug(msg, args...)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	Logger().Info(msg, args...)
}

// Warn logs at warning level.
func Warn(msg string, args ...any) {
	Logger().Warn(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	Logger().Error(msg, args...)
}

// With returns a logger with the given attributes.
func With(args ...any) *slog.Logger {
	return Logger().With(args...)
}
