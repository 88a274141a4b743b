package isobus

import (
	"agisostack/isobus-go/pkg/internal/logger"
)

// Logger is the levelled logger every stack component accepts
type Logger = logger.Logger

// NewLogger creates a logrus backed logger for a level name such as
// "debug" or "warn".
func NewLogger(level string) (Logger, error) {
	lvl, err := logger.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return logger.NewDefaultLogger(lvl), nil
}

// SetLogLevel replaces the package default logger with one at level
func SetLogLevel(level string) error {
	l, err := NewLogger(level)
	if err != nil {
		return err
	}
	logger.SetDefault(l)
	return nil
}

// EnableFrameDebug enables or disables a trace line per raw frame and per
// transport data frame
func EnableFrameDebug(enable bool) {
	logger.SetFrameDebug(enable)
}
