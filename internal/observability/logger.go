package observability

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/piwi3910/nfvacct/internal/config"
)

// loggerContextKey is the context key for storing logger instances.
type loggerContextKey struct{}

// NewLogger creates a structured logger based on configuration.
func NewLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := ParseLogLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var loggerCfg zap.Config
	if cfg.Development {
		// Development mode - console output with colors
		loggerCfg = zap.NewDevelopmentConfig()
		loggerCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		loggerCfg = zap.NewProductionConfig()
		loggerCfg.EncoderConfig.TimeKey = "timestamp"
		loggerCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		loggerCfg.DisableCaller = !cfg.EnableCaller
		loggerCfg.DisableStacktrace = !cfg.EnableStacktrace

		if cfg.Format == "console" {
			loggerCfg.Encoding = "console"
		} else {
			loggerCfg.Encoding = "json"
		}
	}

	loggerCfg.Level = level
	if len(cfg.OutputPaths) > 0 {
		loggerCfg.OutputPaths = cfg.OutputPaths
	}
	if len(cfg.ErrorOutputPaths) > 0 {
		loggerCfg.ErrorOutputPaths = cfg.ErrorOutputPaths
	}

	logger, err := loggerCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return logger, nil
}

// ParseLogLevel converts a log level string to an atomic zap level.
func ParseLogLevel(level string) (zap.AtomicLevel, error) {
	if level == "" {
		return zap.NewAtomicLevelAt(zap.InfoLevel), nil
	}

	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return zap.AtomicLevel{}, fmt.Errorf("invalid log level: %w", err)
	}
	return zap.NewAtomicLevelAt(l), nil
}

// ContextWithLogger adds the logger to the context.
func ContextWithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, logger)
}

// LoggerFromContext retrieves the logger from context, falling back to the given logger.
func LoggerFromContext(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if logger, ok := ctx.Value(loggerContextKey{}).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return fallback
}
