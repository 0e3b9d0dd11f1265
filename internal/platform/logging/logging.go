// Package logging builds the structured loggers used by taskworker processes.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a JSON logger at level tagged with the service name. An empty
// level means info.
func New(service, level string) (*zap.Logger, error) {
	atomic, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	config := zap.NewProductionConfig()
	config.Level = atomic
	config.EncoderConfig.TimeKey = "time"
	config.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	if service = strings.TrimSpace(service); service != "" {
		logger = logger.With(zap.String("service", service))
	}
	return logger, nil
}

// ParseLevel parses a zap level name such as "debug" or "warn".
func ParseLevel(level string) (zap.AtomicLevel, error) {
	level = strings.TrimSpace(level)
	if level == "" {
		return zap.NewAtomicLevelAt(zapcore.InfoLevel), nil
	}
	atomic, err := zap.ParseAtomicLevel(strings.ToLower(level))
	if err != nil {
		return zap.AtomicLevel{}, fmt.Errorf("parse log level %q: %w", level, err)
	}
	return atomic, nil
}

// Printf adapts a logger to the printf-style hooks taken by platform helpers.
func Printf(logger *zap.Logger) func(string, ...any) {
	if logger == nil {
		return func(string, ...any) {}
	}
	sugar := logger.WithOptions(zap.AddCallerSkip(1)).Sugar()
	return sugar.Infof
}
