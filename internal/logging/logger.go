// Package logging provides categorized structured logging for fabula.
// Each category writes to its own file under <data-dir>/logs/ via a shared
// zap core. When logging is disabled every call is a cheap no-op.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBoot     Category = "boot"     // Startup and configuration
	CategoryTick     Category = "tick"     // Tick orchestration
	CategoryPhase    Category = "phase"    // Phase execution
	CategoryProvider Category = "provider" // Generative provider calls
	CategoryChain    Category = "chain"    // Response chain management
	CategoryUsage    Category = "usage"    // Token usage accounting
	CategorySnapshot Category = "snapshot" // World snapshot persistence
	CategoryObserver Category = "observer" // Observer notifications
)

var (
	mu       sync.RWMutex
	loggers  = make(map[Category]*zap.SugaredLogger)
	logsDir  string
	enabled  bool
	minLevel zapcore.Level = zapcore.InfoLevel
	nop                    = zap.NewNop().Sugar()
)

// Initialize sets up the logging directory. Until this is called (or when
// debug is false) all loggers are no-ops.
func Initialize(dataDir string, debug bool, level string) error {
	mu.Lock()
	defer mu.Unlock()

	enabled = debug
	if !enabled {
		return nil
	}
	if dataDir == "" {
		return fmt.Errorf("data dir required")
	}

	logsDir = filepath.Join(dataDir, "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	switch level {
	case "debug":
		minLevel = zapcore.DebugLevel
	case "warn", "warning":
		minLevel = zapcore.WarnLevel
	case "error":
		minLevel = zapcore.ErrorLevel
	default:
		minLevel = zapcore.InfoLevel
	}
	loggers = make(map[Category]*zap.SugaredLogger)
	return nil
}

// Get returns (or creates) the logger for a category.
func Get(category Category) *zap.SugaredLogger {
	mu.RLock()
	if !enabled || logsDir == "" {
		mu.RUnlock()
		return nop
	}
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	date := time.Now().Format("2006-01-02")
	path := filepath.Join(logsDir, fmt.Sprintf("%s_%s.log", date, category))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] could not open %s: %v\n", path, err)
		return nop
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(file), minLevel)
	l := zap.New(core).Sugar().With("category", string(category))
	loggers[category] = l
	return l
}

// Sync flushes all open loggers. Call at shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	for _, l := range loggers {
		_ = l.Sync()
	}
}

// Convenience helpers for the hot categories.

func Tick(format string, args ...interface{})     { Get(CategoryTick).Infof(format, args...) }
func Phase(format string, args ...interface{})    { Get(CategoryPhase).Infof(format, args...) }
func Provider(format string, args ...interface{}) { Get(CategoryProvider).Infof(format, args...) }
func Usage(format string, args ...interface{})    { Get(CategoryUsage).Infof(format, args...) }

func ProviderDebug(format string, args ...interface{}) {
	Get(CategoryProvider).Debugf(format, args...)
}

func ProviderWarn(format string, args ...interface{}) {
	Get(CategoryProvider).Warnf(format, args...)
}

// Timer helps measure operation duration.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration at debug level.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debugf("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs a warning if duration exceeds threshold.
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warnf("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debugf("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
