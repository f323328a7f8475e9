// Package logger wraps zap with a process-wide sugared logger.
package logger

import (
	"io"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	global *zap.SugaredLogger
)

// Options controls logger construction.
type Options struct {
	Level string
	Env   string
	// Output overrides the configured sink, used by stdio transport where stdout is reserved.
	Output io.Writer
}

// Init builds the global logger. Unknown levels fall back to info.
func Init(opts Options) error {
	lvl := zapcore.InfoLevel
	if err := lvl.UnmarshalText([]byte(opts.Level)); err != nil {
		lvl = zapcore.InfoLevel
	}

	var l *zap.Logger
	if opts.Output != nil {
		encCfg := zap.NewDevelopmentEncoderConfig()
		if opts.Env == "production" {
			encCfg = zap.NewProductionEncoderConfig()
		}
		core := zapcore.NewCore(encoderFor(opts.Env, encCfg), zapcore.AddSync(opts.Output), lvl)
		l = zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	} else {
		cfg := zap.NewDevelopmentConfig()
		if opts.Env == "production" {
			cfg = zap.NewProductionConfig()
		} else {
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)

		var err error
		l, err = cfg.Build(zap.AddStacktrace(zapcore.ErrorLevel))
		if err != nil {
			return err
		}
	}

	mu.Lock()
	global = l.Sugar()
	mu.Unlock()

	return nil
}

func encoderFor(env string, cfg zapcore.EncoderConfig) zapcore.Encoder {
	if env == "production" {
		return zapcore.NewJSONEncoder(cfg)
	}
	return zapcore.NewConsoleEncoder(cfg)
}

// Get returns the global logger, creating a no-op one if Init was never called.
func Get() *zap.SugaredLogger {
	mu.RLock()
	l := global
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if global == nil {
		global = zap.NewNop().Sugar()
	}
	return global
}

// Sync flushes buffered entries.
func Sync() {
	_ = Get().Sync()
}
