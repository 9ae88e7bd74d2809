// Package xlog provides the module-scoped structured logger used across
// AutoMine, in the style of the teacher's log.NewModuleLogger/logger.NewWith
// convention (see common/cache.go, storage/database/db_manager.go).
package xlog

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	baseOnce sync.Once
	base     *zap.Logger
)

func rootLogger() *zap.Logger {
	baseOnce.Do(func() {
		cfg := zap.NewProductionEncoderConfig()
		cfg.TimeKey = "ts"
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder := zapcore.NewConsoleEncoder(cfg)
		core := zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), zap.NewAtomicLevelAt(zap.InfoLevel))
		base = zap.New(core)
	})
	return base
}

// Logger is a contextual, module-scoped logger. Keys/values are passed as
// alternating pairs, matching the teacher's log.Logger call convention
// ("msg", "key1", val1, "key2", val2, ...).
type Logger struct {
	module string
	sugar  *zap.SugaredLogger
}

// NewModuleLogger returns a Logger scoped to the named component.
func NewModuleLogger(module string) Logger {
	return Logger{module: module, sugar: rootLogger().Sugar().With("module", module)}
}

// NewWith returns a derived logger with additional fixed key/value context.
func (l Logger) NewWith(kv ...interface{}) Logger {
	return Logger{module: l.module, sugar: l.sugar.With(kv...)}
}

func (l Logger) Trace(msg string, kv ...interface{}) { l.sugar.Debugw(msg, kv...) }
func (l Logger) Debug(msg string, kv ...interface{}) { l.sugar.Debugw(msg, kv...) }
func (l Logger) Info(msg string, kv ...interface{})  { l.sugar.Infow(msg, kv...) }
func (l Logger) Warn(msg string, kv ...interface{})  { l.sugar.Warnw(msg, kv...) }
func (l Logger) Error(msg string, kv ...interface{}) { l.sugar.Errorw(msg, kv...) }
func (l Logger) Crit(msg string, kv ...interface{})  { l.sugar.Fatalw(msg, kv...) }
