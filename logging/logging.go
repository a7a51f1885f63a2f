package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

var (
	logger  = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	logFile *os.File
	debug   bool
	mu      sync.Mutex
)

// SetupLogger routes log output to logFilePath (stderr when empty). Debug
// lines are only written when debugMode is set.
func SetupLogger(logFilePath string, debugMode bool) error {
	mu.Lock()
	defer mu.Unlock()

	closeLocked()

	var out io.Writer = os.Stderr
	if logFilePath != "" {
		f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		logFile = f
		out = f
	}

	level := slog.LevelInfo
	if debugMode {
		level = slog.LevelDebug
	} else if logFilePath == "" {
		// Keep the terminal for progress output unless asked otherwise
		level = slog.LevelWarn
	}

	debug = debugMode
	logger = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	logger.Info("log started", "at", time.Now().Format(time.RFC3339), "debug", debugMode)
	return nil
}

// CloseLogger closes the log file, if any, and restores the stderr logger
func CloseLogger() {
	mu.Lock()
	defer mu.Unlock()

	closeLocked()
	debug = false
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func closeLocked() {
	if logFile != nil {
		logger.Info("log closed", "at", time.Now().Format(time.RFC3339))
		logFile.Close()
		logFile = nil
	}
}

// Logger returns the current structured logger
func Logger() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return logger
}

// DebugEnabled reports whether debug logging is on
func DebugEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return debug
}

// LogInfo logs an information message
func LogInfo(format string, args ...interface{}) {
	Logger().Info(fmt.Sprintf(format, args...))
}

// DebugLog logs a message if debug mode is enabled
func DebugLog(format string, args ...interface{}) {
	Logger().Debug(fmt.Sprintf(format, args...))
}

// LogError logs an error message
func LogError(format string, args ...interface{}) {
	Logger().Error(fmt.Sprintf(format, args...))
}

// LogWarning logs a warning message
func LogWarning(format string, args ...interface{}) {
	Logger().Warn(fmt.Sprintf(format, args...))
}

// LogImageProcessed logs when an image is processed
func LogImageProcessed(path string, success bool, err error) {
	if success {
		Logger().Debug("processed", "path", path)
		return
	}
	Logger().Warn("failed", "path", path, "error", err)
}
