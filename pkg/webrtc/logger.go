package webrtc

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pion/logging"
)

// levelTrace sits below slog's debug level; pion traces every packet.
const levelTrace = slog.LevelDebug - 4

type loggerFactory struct {
	logger *slog.Logger
}

// NewLoggerFactory routes pion's internal logging into slog.
func NewLoggerFactory(logger *slog.Logger) logging.LoggerFactory {
	return &loggerFactory{logger: logger}
}

func (f *loggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return &leveledLogger{logger: f.logger.With("pion", scope)}
}

type leveledLogger struct {
	logger *slog.Logger
}

func (l *leveledLogger) log(level slog.Level, msg string) {
	l.logger.Log(context.Background(), level, msg)
}

func (l *leveledLogger) Trace(msg string) { l.log(levelTrace, msg) }
func (l *leveledLogger) Tracef(format string, args ...interface{}) {
	l.log(levelTrace, fmt.Sprintf(format, args...))
}
func (l *leveledLogger) Debug(msg string) { l.log(slog.LevelDebug, msg) }
func (l *leveledLogger) Debugf(format string, args ...interface{}) {
	l.log(slog.LevelDebug, fmt.Sprintf(format, args...))
}
func (l *leveledLogger) Info(msg string) { l.log(slog.LevelInfo, msg) }
func (l *leveledLogger) Infof(format string, args ...interface{}) {
	l.log(slog.LevelInfo, fmt.Sprintf(format, args...))
}
func (l *leveledLogger) Warn(msg string) { l.log(slog.LevelWarn, msg) }
func (l *leveledLogger) Warnf(format string, args ...interface{}) {
	l.log(slog.LevelWarn, fmt.Sprintf(format, args...))
}
func (l *leveledLogger) Error(msg string) { l.log(slog.LevelError, msg) }
func (l *leveledLogger) Errorf(format string, args ...interface{}) {
	l.log(slog.LevelError, fmt.Sprintf(format, args...))
}
