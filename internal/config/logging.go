package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LogLevel represents logging verbosity levels.
type LogLevel int

// Log level constants.
const (
	LogLevelOff LogLevel = iota
	LogLevelError
	LogLevelDebug
)

// ParseLogLevel parses a log level string.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "none":
		return LogLevelOff
	case "error":
		return LogLevelError
	case "debug":
		return LogLevelDebug
	default:
		return LogLevelError
	}
}

// String returns the string representation of a log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelOff:
		return "off"
	case LogLevelError:
		return "error"
	case LogLevelDebug:
		return "debug"
	default:
		return "error"
	}
}

func (l LogLevel) slogLevel() slog.Level {
	if l == LogLevelDebug {
		return slog.LevelDebug
	}
	return slog.LevelError
}

// Logger handles logging to a file.
// Printf-style lines and slog records share the same file and mutex.
type Logger struct {
	mu       sync.Mutex
	level    LogLevel
	file     *os.File
	filePath string
	json     bool
	slogger  *slog.Logger
}

// NewLogger creates a new logger.
func NewLogger(level LogLevel, filePath string) (*Logger, error) {
	logger := &Logger{
		level:    level,
		filePath: filePath,
	}

	if level == LogLevelOff || filePath == "" {
		return logger, nil
	}

	filePath = ExpandHome(filePath)

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}

	// #nosec G304 -- log file path is from validated config
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	logger.file = f
	logger.filePath = filePath
	logger.rebuildStructured()

	return logger, nil
}

// NewStructuredLogger creates a logger whose structured output is JSON.
func NewStructuredLogger(level LogLevel, filePath string) (*Logger, error) {
	logger, err := NewLogger(level, filePath)
	if err != nil {
		return nil, err
	}
	logger.SetJSONOutput(true)
	return logger, nil
}

// Close closes the log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// SetLevel changes the log level.
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
	l.rebuildStructured()
}

// Level returns the current log level.
func (l *Logger) Level() LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// SetJSONOutput switches the structured logger between text and JSON records.
func (l *Logger) SetJSONOutput(enabled bool) {
	l.mu.Lock()
	l.json = enabled
	l.mu.Unlock()
	l.rebuildStructured()
}

// Structured returns a slog.Logger writing to the log file, or nil when
// the logger has no file.
func (l *Logger) Structured() *slog.Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.slogger
}

func (l *Logger) rebuildStructured() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		l.slogger = nil
		return
	}

	opts := &slog.HandlerOptions{Level: l.level.slogLevel()}
	w := &lockedFile{logger: l}
	if l.json {
		l.slogger = slog.New(slog.NewJSONHandler(w, opts))
		return
	}
	l.slogger = slog.New(slog.NewTextHandler(w, opts))
}

// Debug logs a debug message.
func (l *Logger) Debug(format string, args ...any) {
	l.log(LogLevelDebug, format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...any) {
	l.log(LogLevelError, format, args...)
}

// DebugAttrs logs a debug message with structured attributes.
func (l *Logger) DebugAttrs(msg string, attrs ...slog.Attr) {
	l.logAttrs(LogLevelDebug, msg, attrs...)
}

// ErrorAttrs logs an error message with structured attributes.
func (l *Logger) ErrorAttrs(msg string, attrs ...slog.Attr) {
	l.logAttrs(LogLevelError, msg, attrs...)
}

// Writer returns an io.Writer that writes to the logger at the specified level.
func (l *Logger) Writer(level LogLevel) io.Writer {
	return &logWriter{logger: l, level: level}
}

func (l *Logger) enabled(level LogLevel) bool {
	return l.level != LogLevelOff && level <= l.level && l.file != nil
}

// log writes a log message if the level is appropriate.
func (l *Logger) log(level LogLevel, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled(level) {
		return
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	levelStr := strings.ToUpper(level.String())
	msg := fmt.Sprintf(format, args...)

	_, _ = fmt.Fprintf(l.file, "%s [%s] %s\n", timestamp, levelStr, msg)
}

func (l *Logger) logAttrs(level LogLevel, msg string, attrs ...slog.Attr) {
	slogger := l.Structured()
	if slogger == nil {
		return
	}
	slogger.LogAttrs(context.Background(), level.slogLevel(), msg, attrs...)
}

// lockedFile serializes slog handler writes with the printf-style writer.
type lockedFile struct {
	logger *Logger
}

func (w *lockedFile) Write(p []byte) (int, error) {
	w.logger.mu.Lock()
	defer w.logger.mu.Unlock()

	if w.logger.file == nil || w.logger.level == LogLevelOff {
		return len(p), nil
	}
	return w.logger.file.Write(p)
}

// logWriter implements io.Writer for the logger.
type logWriter struct {
	logger *Logger
	level  LogLevel
}

func (w *logWriter) Write(p []byte) (n int, err error) {
	w.logger.log(w.level, "%s", strings.TrimSpace(string(p)))
	return len(p), nil
}

// NullLogger returns a logger that discards all output.
func NullLogger() *Logger {
	return &Logger{level: LogLevelOff}
}
