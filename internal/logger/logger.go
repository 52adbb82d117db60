package logger

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel constants
const (
	LogLevelError = "error"
	LogLevelWarn  = "warn"
	LogLevelInfo  = "info"
	LogLevelDebug = "debug"
	LogLevelTrace = "trace"
)

// LoggingConfig represents the logging configuration
type LoggingConfig struct {
	Level   string `yaml:"level"`
	Format  string `yaml:"format"` // "json" or "console"
	File    string `yaml:"file"`
	Service string `yaml:"service"`
}

// GlobalLogging holds the configuration the package-level helpers were initialized with
var GlobalLogging *LoggingConfig

type loggers struct {
	base    *zap.Logger
	sugar   *zap.SugaredLogger
	startup *zap.SugaredLogger
	trace   bool
}

var current atomic.Pointer[loggers]

func init() {
	nop := zap.NewNop()
	current.Store(&loggers{base: nop, sugar: nop.Sugar(), startup: nop.Sugar()})
}

// zapLevel maps a configured level name onto a zap level.
// zap has no trace level, trace runs at debug with trace helpers enabled.
func zapLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case LogLevelError:
		return zapcore.ErrorLevel
	case LogLevelWarn:
		return zapcore.WarnLevel
	case LogLevelDebug, LogLevelTrace:
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

// NewLogger builds a zap logger for the given configuration
func NewLogger(config *LoggingConfig) (*zap.Logger, error) {
	var cfg zap.Config
	if strings.ToLower(config.Format) == "console" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel(config.Level))
	cfg.DisableStacktrace = true

	if config.File != "" {
		cfg.OutputPaths = []string{config.File}
	} else {
		cfg.OutputPaths = []string{"stdout"}
	}
	cfg.ErrorOutputPaths = []string{"stderr"}

	base, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	if config.Service != "" {
		base = base.With(zap.String("service_name", config.Service))
	}
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		base = base.With(zap.String("hostname", hostname))
	}

	return base, nil
}

// Init builds the global logger used by the package-level helpers
func Init(config *LoggingConfig) error {
	base, err := NewLogger(config)
	if err != nil {
		return err
	}
	Use(base, config)
	return nil
}

// Use installs an already built zap logger behind the package-level helpers
func Use(base *zap.Logger, config *LoggingConfig) {
	startup := base.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return alwaysEnabled{core}
	}))

	level := ""
	if config != nil {
		level = strings.ToLower(config.Level)
	}

	current.Store(&loggers{
		base:    base,
		sugar:   base.Sugar(),
		startup: startup.Sugar(),
		trace:   level == LogLevelTrace,
	})
	GlobalLogging = config
}

// Sync flushes buffered log entries
func Sync() {
	_ = current.Load().base.Sync()
}

// L returns the structured logger for call sites that want typed fields
func L() *zap.Logger {
	return current.Load().base
}

// alwaysEnabled lets startup messages through regardless of the configured level
type alwaysEnabled struct {
	zapcore.Core
}

func (c alwaysEnabled) Enabled(zapcore.Level) bool { return true }

func (c alwaysEnabled) With(fields []zapcore.Field) zapcore.Core {
	return alwaysEnabled{c.Core.With(fields)}
}

func (c alwaysEnabled) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	return ce.AddCore(entry, c)
}

// LogStartup logs startup messages that should always be visible regardless of log level
func LogStartup(format string, args ...interface{}) {
	current.Load().startup.Infof("🔧 "+format, args...)
}

// Helper functions for global logging
func LogError(format string, args ...interface{}) {
	current.Load().sugar.Errorf("❌ "+format, args...)
}

func LogWarn(format string, args ...interface{}) {
	current.Load().sugar.Warnf("⚠️ "+format, args...)
}

func LogInfo(format string, args ...interface{}) {
	current.Load().sugar.Infof("ℹ️ "+format, args...)
}

func LogDebug(format string, args ...interface{}) {
	current.Load().sugar.Debugf("🔧 "+format, args...)
}

func LogTrace(format string, args ...interface{}) {
	l := current.Load()
	if l.trace {
		l.sugar.Debugf("🔍 "+format, args...)
	}
}

// IsDebugEnabled checks if debug logging is enabled
func IsDebugEnabled() bool {
	return current.Load().base.Core().Enabled(zapcore.DebugLevel)
}

// IsTraceEnabled checks if trace logging is enabled
func IsTraceEnabled() bool {
	return current.Load().trace
}
