// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package commons

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the structured logger shared by every package of the service.
type Logger interface {
	Debug(args ...interface{})
	Debugf(template string, args ...interface{})
	Debugw(msg string, keysAndValues ...interface{})
	Info(args ...interface{})
	Infof(template string, args ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warn(args ...interface{})
	Warnf(template string, args ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Error(args ...interface{})
	Errorf(template string, args ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
	Fatalf(template string, args ...interface{})

	// Benchmark logs how long the named operation took.
	Benchmark(functionName string, duration time.Duration)
	Sync() error
}

type loggerOptions struct {
	name       string
	path       string
	level      string
	maxSizeMB  int
	maxBackups int
	maxAgeDays int
	console    bool
}

type Option func(*loggerOptions)

func Name(name string) Option {
	return func(o *loggerOptions) { o.name = name }
}

func Path(path string) Option {
	return func(o *loggerOptions) { o.path = path }
}

func Level(level string) Option {
	return func(o *loggerOptions) { o.level = level }
}

// EnableConsole mirrors every entry to stdout in addition to the rotated file.
func EnableConsole() Option {
	return func(o *loggerOptions) { o.console = true }
}

type applicationLogger struct {
	*zap.SugaredLogger
}

// NewApplicationLogger builds a zap sugared logger that writes JSON lines to
// a lumberjack-rotated file under path. Defaults: name "interview-api",
// path os.TempDir(), level "debug".
func NewApplicationLogger(opts ...Option) (Logger, error) {
	o := &loggerOptions{
		name:       "interview-api",
		path:       os.TempDir(),
		level:      "debug",
		maxSizeMB:  100,
		maxBackups: 5,
		maxAgeDays: 14,
	}
	for _, opt := range opts {
		opt(o)
	}

	level, err := zapcore.ParseLevel(o.level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", o.level, err)
	}

	if err := os.MkdirAll(o.path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", o.path, err)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(o.path, o.name+".log"),
		MaxSize:    o.maxSizeMB,
		MaxBackups: o.maxBackups,
		MaxAge:     o.maxAgeDays,
		Compress:   true,
	}

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(rotator), level),
	}
	if o.console {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderConfig),
			zapcore.Lock(os.Stdout),
			level,
		))
	}

	base := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1)).Named(o.name)
	return &applicationLogger{SugaredLogger: base.Sugar()}, nil
}

func (l *applicationLogger) Benchmark(functionName string, duration time.Duration) {
	l.SugaredLogger.Debugw("benchmark", "function", functionName, "duration", duration.String())
}
