// Package logger builds the zap loggers used by the API server and the worker.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a zap logger tuned for the given environment.
// Production logs JSON with ISO-8601 timestamps; development logs
// colorized console output.
func New(env string) (*zap.Logger, error) {
	var cfg zap.Config
	if env == "production" {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return cfg.Build()
}

// Must panics if the logger cannot be initialized. Useful in main().
func Must(env string) *zap.Logger {
	log, err := New(env)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	return log
}
