// Package logging builds the zap logger shared by every component.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

// New returns a logger for env. An empty level keeps the env default:
// debug for local and dev, info for prod.
func New(env, level string) (*zap.Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(env) {
	case EnvLocal, "":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	case EnvDev:
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case EnvProd:
		cfg = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("logging: unknown env %q", env)
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("logging: %w", err)
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	log, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: build: %w", err)
	}
	return log.With(zap.String("env", envOrLocal(env))), nil
}

func envOrLocal(env string) string {
	if env == "" {
		return EnvLocal
	}
	return strings.ToLower(env)
}
