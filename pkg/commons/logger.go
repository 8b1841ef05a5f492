// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package commons

import (
	"time"

	"go.uber.org/zap"
)

// Logger is the minimal structured-logging contract shared across the
// module. Every package takes a Logger instead of reaching for the global
// zap logger directly, so tests can swap in a silent implementation.
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

	// Benchmark logs a stage name and its elapsed duration at debug level.
	Benchmark(stage string, elapsed time.Duration)
}

type zapLogger struct {
	*zap.SugaredLogger
}

// NewApplicationLogger builds the default production Logger backed by zap.
func NewApplicationLogger() (Logger, error) {
	z, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return &zapLogger{SugaredLogger: z.Sugar()}, nil
}

// NewDevelopmentLogger builds a human-readable Logger for local use and
// tests, never returning an error.
func NewDevelopmentLogger() Logger {
	z, err := zap.NewDevelopment()
	if err != nil {
		z = zap.NewNop()
	}
	return &zapLogger{SugaredLogger: z.Sugar()}
}

func (l *zapLogger) Benchmark(stage string, elapsed time.Duration) {
	l.Debugf("benchmark: %s took %s", stage, elapsed)
}

// NewNopLogger returns a Logger that discards everything, for tests that
// don't care about log output.
func NewNopLogger() Logger {
	return &zapLogger{SugaredLogger: zap.NewNop().Sugar()}
}
