// Package logging provides zap logger helpers for the prerender gateway.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap.Logger configured for development or production. The
// core's own level floor is always Debug; ForLevel is what actually raises
// the effective floor, since zap.IncreaseLevel can only tighten a level, not
// loosen one set by the base config.
func New(development bool) (*zap.Logger, error) {
	if development {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		logger, err := cfg.Build()
		if err != nil {
			return nil, fmt.Errorf("build dev logger: %w", err)
		}
		return logger, nil
	}
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = false
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build prod logger: %w", err)
	}
	return logger, nil
}

// ForLevel maps the configured GlobalConfig.Logs value (none|ssr|all) onto
// logger.level: none raises the floor to errors only, ssr is the default
// (info and above), all keeps the base Debug floor so every classified
// request logs.
func ForLevel(logger *zap.Logger, logs string) *zap.Logger {
	switch logs {
	case "none":
		return logger.WithOptions(zap.IncreaseLevel(zap.ErrorLevel))
	case "all":
		return logger
	default:
		return logger.WithOptions(zap.IncreaseLevel(zap.InfoLevel))
	}
}
