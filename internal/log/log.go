// Package log is the process-wide structured logger, a thin layer over a
// zap SugaredLogger.
package log

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
)

var (
	mu    sync.Mutex
	sugar *zap.SugaredLogger
	base  *zap.Logger
)

// Init replaces the package logger. Debug mode gets the human friendly
// development encoder and debug level output.
func Init(debug bool) error {
	var l *zap.Logger
	var err error

	if debug {
		l, err = zap.NewDevelopment(zap.AddCallerSkip(1))
	} else {
		l, err = zap.NewProduction(zap.AddCallerSkip(1))
	}
	if err != nil {
		return fmt.Errorf("can't initialize zap logger: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	base = l
	sugar = l.Sugar()
	return nil
}

func get() *zap.SugaredLogger {
	mu.Lock()
	defer mu.Unlock()
	if sugar == nil {
		base, _ = zap.NewProduction(zap.AddCallerSkip(1))
		sugar = base.Sugar()
	}
	return sugar
}

// With returns a child logger carrying the given key/value pairs, e.g. a run id.
func With(keysAndValues ...interface{}) *zap.SugaredLogger {
	return get().Desugar().WithOptions(zap.AddCallerSkip(-1)).Sugar().With(keysAndValues...)
}

// Sync flushes any buffered log entries
func Sync() {
	mu.Lock()
	defer mu.Unlock()
	if sugar != nil {
		_ = sugar.Sync()
	}
}

func Debugf(template string, args ...interface{}) { get().Debugf(template, args...) }
func Debugw(msg string, kv ...interface{})         { get().Debugw(msg, kv...) }
func Infof(template string, args ...interface{})  { get().Infof(template, args...) }
func Infow(msg string, kv ...interface{})          { get().Infow(msg, kv...) }
func Warnf(template string, args ...interface{})  { get().Warnf(template, args...) }
func Warnw(msg string, kv ...interface{})          { get().Warnw(msg, kv...) }
func Errorf(template string, args ...interface{}) { get().Errorf(template, args...) }
func Errorw(msg string, kv ...interface{})         { get().Errorw(msg, kv...) }

func Fatalf(template string, args ...interface{}) {
	get().Errorf(template, args...)
	Sync()
	os.Exit(1)
}
