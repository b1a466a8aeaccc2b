package logging

import (
	"go.temporal.io/sdk/log"
	"go.uber.org/zap"
)

// TemporalLogger implements log.Logger and log.WithLogger over zap.
type TemporalLogger struct {
	z *zap.SugaredLogger
}

var (
	_ log.Logger     = (*TemporalLogger)(nil)
	_ log.WithLogger = (*TemporalLogger)(nil)
)

// Temporal adapts z for client.Options.Logger. The SDK adds one frame of its own.
func Temporal(z *zap.Logger) *TemporalLogger {
	return &TemporalLogger{z: z.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (l *TemporalLogger) Debug(msg string, keyvals ...interface{}) { l.z.Debugw(msg, keyvals...) }
func (l *TemporalLogger) Info(msg string, keyvals ...interface{})  { l.z.Infow(msg, keyvals...) }
func (l *TemporalLogger) Warn(msg string, keyvals ...interface{})  { l.z.Warnw(msg, keyvals...) }
func (l *TemporalLogger) Error(msg string, keyvals ...interface{}) { l.z.Errorw(msg, keyvals...) }

func (l *TemporalLogger) With(keyvals ...interface{}) log.Logger {
	return &TemporalLogger{z: l.z.With(keyvals...)}
}
