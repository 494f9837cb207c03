package logger

import (
	"sync"

	"go.uber.org/zap"
)

var (
	once     sync.Once
	instance *zap.Logger
)

// Init initializes the singleton logger. Idempotent: only the first call
// has any effect. Call it early in main.
func Init(cfg Config) {
	once.Do(func() {
		instance = build(cfg)
	})
}

// L returns the singleton logger. If Init was never called it falls back
// to a dev logger at info level.
func L() *zap.Logger {
	if instance == nil {
		Init(Config{Env: "dev", Level: "info"})
	}
	return instance
}

// With returns a logger with extra persistent fields.
func With(fields ...zap.Field) *zap.Logger {
	return L().With(fields...)
}

// Sync flushes any buffered entries. Defer it in main.
func Sync() error {
	if instance != nil {
		return instance.Sync()
	}
	return nil
}
