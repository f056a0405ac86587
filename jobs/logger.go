package jobs

import (
	"fmt"
	"log/slog"
	"os"
)

// queueLogger routes asynq's internal logging through slog.
type queueLogger struct {
	logger *slog.Logger
}

func newQueueLogger(logger *slog.Logger) *queueLogger {
	return &queueLogger{logger: logger.With(slog.String("component", "asynq"))}
}

func (l *queueLogger) Debug(args ...interface{}) { l.logger.Debug(fmt.Sprint(args...)) }
func (l *queueLogger) Info(args ...interface{})  { l.logger.Info(fmt.Sprint(args...)) }
func (l *queueLogger) Warn(args ...interface{})  { l.logger.Warn(fmt.Sprint(args...)) }
func (l *queueLogger) Error(args ...interface{}) { l.logger.Error(fmt.Sprint(args...)) }

func (l *queueLogger) Fatal(args ...interface{}) {
	l.logger.Error(fmt.Sprint(args...))
	os.Exit(1)
}
