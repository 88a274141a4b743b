package logger

import (
	"io"
	"os"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Level represents logging level
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns string representation of Level
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a level name ("debug", "info", "warn", "error") to a Level.
func ParseLevel(s string) (Level, error) {
	lvl, err := logrus.ParseLevel(s)
	if err != nil {
		return LevelInfo, err
	}
	return fromLogrus(lvl), nil
}

func (l Level) logrus() logrus.Level {
	switch l {
	case LevelDebug:
		return logrus.DebugLevel
	case LevelWarn:
		return logrus.WarnLevel
	case LevelError:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

func fromLogrus(l logrus.Level) Level {
	switch {
	case l >= logrus.DebugLevel:
		return LevelDebug
	case l == logrus.InfoLevel:
		return LevelInfo
	case l == logrus.WarnLevel:
		return LevelWarn
	default:
		return LevelError
	}
}

// Logger is the interface for logging
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
	SetLevel(level Level)
}

// DefaultLogger writes through a logrus entry so every line carries the
// fields of the component that owns it.
type DefaultLogger struct {
	base  *logrus.Logger
	entry *logrus.Entry
}

// NewDefaultLogger creates a new default logger writing to stdout
func NewDefaultLogger(level Level) *DefaultLogger {
	return NewLoggerWithOutput(os.Stdout, level)
}

// NewLoggerWithOutput creates a default logger writing to w
func NewLoggerWithOutput(w io.Writer, level Level) *DefaultLogger {
	base := logrus.New()
	base.SetOutput(w)
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	base.SetLevel(level.logrus())
	return &DefaultLogger{base: base, entry: logrus.NewEntry(base)}
}

// With returns a logger that adds the key/value field to every line.
// The returned logger shares output and level with its parent.
func (l *DefaultLogger) With(key string, value interface{}) *DefaultLogger {
	return &DefaultLogger{base: l.base, entry: l.entry.WithField(key, value)}
}

// Debug logs debug message
func (l *DefaultLogger) Debug(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

// Info logs info message
func (l *DefaultLogger) Info(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

// Warn logs warning message
func (l *DefaultLogger) Warn(format string, args ...interface{}) {
	l.entry.Warnf(format, args...)
}

// Error logs error message
func (l *DefaultLogger) Error(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}

// SetLevel sets the logging level
func (l *DefaultLogger) SetLevel(level Level) {
	l.base.SetLevel(level.logrus())
}

// NoOpLogger is a logger that doesn't log anything
type NoOpLogger struct{}

// NewNoOpLogger creates a logger that doesn't log
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

// Debug does nothing
func (l *NoOpLogger) Debug(format string, args ...interface{}) {}

// Info does nothing
func (l *NoOpLogger) Info(format string, args ...interface{}) {}

// Warn does nothing
func (l *NoOpLogger) Warn(format string, args ...interface{}) {}

// Error does nothing
func (l *NoOpLogger) Error(format string, args ...interface{}) {}

// SetLevel does nothing
func (l *NoOpLogger) SetLevel(level Level) {}

// WithComponent tags log with a component field when it is a
// DefaultLogger and returns it unchanged otherwise.
func WithComponent(log Logger, component string) Logger {
	if log == nil {
		return NewNoOpLogger()
	}
	if dl, ok := log.(*DefaultLogger); ok {
		return dl.With("component", component)
	}
	return log
}

// Global default logger
var defaultLogger Logger = NewDefaultLogger(LevelInfo)

var frameDebug atomic.Bool

// SetDefault sets the default logger
func SetDefault(logger Logger) {
	defaultLogger = logger
}

// GetDefault returns the default logger
func GetDefault() Logger {
	return defaultLogger
}

// SetFrameDebug enables tracing of every raw and transport data frame.
func SetFrameDebug(enabled bool) {
	frameDebug.Store(enabled)
}

// FrameDebug reports whether per-frame tracing is enabled.
func FrameDebug() bool {
	return frameDebug.Load()
}

// Debug logs debug message using default logger
func Debug(format string, args ...interface{}) {
	defaultLogger.Debug(format, args...)
}

// Info logs info message using default logger
func Info(format string, args ...interface{}) {
	defaultLogger.Info(format, args...)
}

// Warn logs warning message using default logger
func Warn(format string, args ...interface{}) {
	defaultLogger.Warn(format, args...)
}

// Error logs error message using default logger
func Error(format string, args ...interface{}) {
	defaultLogger.Error(format, args...)
}
