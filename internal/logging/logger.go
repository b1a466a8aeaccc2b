// Package logging builds the zap logger used by every process and adapts it to the
// Temporal SDK logger interface.
package logging

import (
	"errors"
	"fmt"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json or console
}

func (c Config) Validate() error {
	if _, err := zapcore.ParseLevel(levelOrDefault(c.Level)); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	switch strings.ToLower(c.Format) {
	case "", "json", "console":
		return nil
	}
	return fmt.Errorf("log format %q: must be json or console", c.Format)
}

// New creates a logger writing to stderr.
func New(cfg Config) (*zap.Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	level, _ := zapcore.ParseLevel(levelOrDefault(cfg.Level))

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.EncoderConfig = newEncoderConfig()
	zcfg.Sampling = nil
	if strings.EqualFold(cfg.Format, "console") {
		zcfg.Encoding = "console"
	}
	return zcfg.Build(zap.AddCaller())
}

func newEncoderConfig() zapcore.EncoderConfig {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return encoderCfg
}

func levelOrDefault(level string) string {
	if level == "" {
		return "info"
	}
	return level
}

// Sync flushes the logger, ignoring the harmless EINVAL/ENOTTY returned for stderr on Linux.
func Sync(l *zap.Logger) error {
	err := l.Sync()
	var errno syscall.Errno
	if errors.As(err, &errno) && (errno == syscall.EINVAL || errno == syscall.ENOTTY) {
		return nil
	}
	return err
}
