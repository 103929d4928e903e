package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FileLogger writes the run transcript to a timestamped log file in the
// station log directory. It creates CT1-<timestamp>-<serial>.log per run
// (CT1-<timestamp>.log when no serial number is known) and maintains a
// latest.log symlink pointing to the most recent run. It is thread-safe and
// implements the Logger interface.
type FileLogger struct {
	logDir   string
	runLog   *os.File
	runFile  string
	logLevel string
	mu       sync.Mutex
}

// NewFileLogger creates a FileLogger writing to logDir, creating the
// directory if needed. serialNumber becomes part of the transcript filename
// so factory records can be matched to a unit; it may be empty. runID is
// recorded in the transcript header.
func NewFileLogger(logDir, serialNumber, runID, logLevel string) (*FileLogger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	// Transcript filename: CT1-20060102_150405-<serial>.log
	ts := time.Now().Format("20060102_150405")
	var name string
	if serialNumber != "" {
		name = fmt.Sprintf("CT1-%s-%s.log", ts, serialNumber)
	} else {
		name = fmt.Sprintf("CT1-%s.log", ts)
	}
	runFile := filepath.Join(logDir, name)

	file, err := os.OpenFile(runFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create run log file: %w", err)
	}

	// Create/update latest.log symlink. Best effort: some filesystems
	// (and Windows without privileges) refuse symlinks.
	symlinkPath := filepath.Join(logDir, "latest.log")
	if _, err := os.Lstat(symlinkPath); err == nil {
		os.Remove(symlinkPath)
	}
	os.Symlink(filepath.Base(runFile), symlinkPath)

	fl := &FileLogger{
		logDir:   logDir,
		runLog:   file,
		runFile:  runFile,
		logLevel: normalizeLogLevel(logLevel),
	}

	fl.write("=== CT1 Run Log ===\n")
	fl.write(fmt.Sprintf("Started at: %s\n", time.Now().Format(time.RFC3339)))
	if runID != "" {
		fl.write(fmt.Sprintf("Run ID: %s\n", runID))
	}
	fl.write("\n")

	return fl, nil
}

// Path returns the path of the transcript file for this run.
func (fl *FileLogger) Path() string {
	return fl.runFile
}

// shouldLog checks if a message at the given level should be logged.
func (fl *FileLogger) shouldLog(messageLevel string) bool {
	return logLevelToInt(messageLevel) >= logLevelToInt(fl.logLevel)
}

// Debugf logs a debug-level message to the transcript.
func (fl *FileLogger) Debugf(format string, args ...interface{}) {
	fl.logWithLevel("DEBUG", fmt.Sprintf(format, args...))
}

// Infof logs an info-level message to the transcript.
func (fl *FileLogger) Infof(format string, args ...interface{}) {
	fl.logWithLevel("INFO", fmt.Sprintf(format, args...))
}

// Warnf logs a warning-level message to the transcript.
func (fl *FileLogger) Warnf(format string, args ...interface{}) {
	fl.logWithLevel("WARN", fmt.Sprintf(format, args...))
}

// Errorf logs an error-level message to the transcript.
func (fl *FileLogger) Errorf(format string, args ...interface{}) {
	fl.logWithLevel("ERROR", fmt.Sprintf(format, args...))
}

// logWithLevel logs a message at the specified level if filtering allows it.
func (fl *FileLogger) logWithLevel(level string, message string) {
	if !fl.shouldLog(strings.ToLower(level)) {
		return
	}
	fl.write(fmt.Sprintf("[%s] [%s] %s\n", timestamp(), level, message))
}

// write appends raw text to the run log file under the mutex.
func (fl *FileLogger) write(text string) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.runLog == nil {
		return
	}
	fl.runLog.WriteString(text)
}

// Close flushes and closes the transcript file. The logger must not be used
// after Close.
func (fl *FileLogger) Close() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.runLog == nil {
		return nil
	}
	err := fl.runLog.Close()
	fl.runLog = nil
	return err
}
