package logger

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ILogger is the logging surface components take as a dependency
type ILogger interface {
	LogInfo(format string, args ...interface{})
	LogWarn(format string, args ...interface{})
	LogError(format string, args ...interface{})
	LogDebug(format string, args ...interface{})
}

// StandardLogger forwards to the package-level helpers
type StandardLogger struct{}

// NewStandardLogger returns an ILogger backed by the global logger
func NewStandardLogger() ILogger {
	return StandardLogger{}
}

func (StandardLogger) LogInfo(format string, args ...interface{})  { LogInfo(format, args...) }
func (StandardLogger) LogWarn(format string, args ...interface{})  { LogWarn(format, args...) }
func (StandardLogger) LogError(format string, args ...interface{}) { LogError(format, args...) }
func (StandardLogger) LogDebug(format string, args ...interface{}) { LogDebug(format, args...) }

// ComponentLogger tags every entry with a component field
type ComponentLogger struct {
	sugar *zap.SugaredLogger
}

// NewComponentLogger binds to the logger installed by Init at call time
func NewComponentLogger(component string) *ComponentLogger {
	return &ComponentLogger{sugar: L().With(zap.String("component", component)).Sugar()}
}

func (c *ComponentLogger) LogInfo(format string, args ...interface{})  { c.sugar.Infof(format, args...) }
func (c *ComponentLogger) LogWarn(format string, args ...interface{})  { c.sugar.Warnf(format, args...) }
func (c *ComponentLogger) LogError(format string, args ...interface{}) { c.sugar.Errorf(format, args...) }
func (c *ComponentLogger) LogDebug(format string, args ...interface{}) { c.sugar.Debugf(format, args...) }

// Record is one entry captured by MockLogger
type Record struct {
	Level   zapcore.Level
	Message string
}

// MockLogger records formatted entries for assertions. Safe for concurrent use.
type MockLogger struct {
	mu      sync.Mutex
	records []Record
}

// NewMockLogger creates an empty recorder
func NewMockLogger() *MockLogger {
	return &MockLogger{}
}

func (m *MockLogger) add(level zapcore.Level, format string, args []interface{}) {
	m.mu.Lock()
	m.records = append(m.records, Record{Level: level, Message: fmt.Sprintf(format, args...)})
	m.mu.Unlock()
}

func (m *MockLogger) LogInfo(format string, args ...interface{})  { m.add(zapcore.InfoLevel, format, args) }
func (m *MockLogger) LogWarn(format string, args ...interface{})  { m.add(zapcore.WarnLevel, format, args) }
func (m *MockLogger) LogError(format string, args ...interface{}) { m.add(zapcore.ErrorLevel, format, args) }
func (m *MockLogger) LogDebug(format string, args ...interface{}) { m.add(zapcore.DebugLevel, format, args) }

// Records returns a copy of everything logged so far
func (m *MockLogger) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.records...)
}

// Messages returns the messages logged at level
func (m *MockLogger) Messages(level zapcore.Level) []string {
	var out []string
	for _, r := range m.Records() {
		if r.Level == level {
			out = append(out, r.Message)
		}
	}
	return out
}

func (m *MockLogger) Reset() {
	m.mu.Lock()
	m.records = nil
	m.mu.Unlock()
}

func (m *MockLogger) HasWarnMessage() bool  { return len(m.Messages(zapcore.WarnLevel)) > 0 }
func (m *MockLogger) HasErrorMessage() bool { return len(m.Messages(zapcore.ErrorLevel)) > 0 }

// Contains reports whether any message at any level contains substr
func (m *MockLogger) Contains(substr string) bool {
	for _, r := range m.Records() {
		if strings.Contains(r.Message, substr) {
			return true
		}
	}
	return false
}
