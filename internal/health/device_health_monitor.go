package health

import (
	"sync"
	"time"

	"valve-gateway/internal/recovery"
)

// statsWindow bounds the success/error counters reported to /health
const statsWindow = 5 * time.Minute

// DeviceHealthMonitor tracks whether the valve controller is answering and reporting.
// Telemetry and command replies count as successes, timeouts and transport errors as errors.
type DeviceHealthMonitor struct {
	isOnline          bool
	lastSuccessTime   time.Time
	lastTelemetryTime time.Time
	lastErrorTime     time.Time
	errorManager      *recovery.ErrorRecoveryManager

	windowStart  time.Time
	successCount int
	errorCount   int

	mu sync.RWMutex
}

// NewDeviceHealthMonitor creates a monitor; the device starts offline until it reports
func NewDeviceHealthMonitor(gracePeriod time.Duration) *DeviceHealthMonitor {
	return &DeviceHealthMonitor{
		errorManager: recovery.NewErrorRecoveryManager(gracePeriod),
		windowStart:  time.Now(),
	}
}

func (m *DeviceHealthMonitor) rollWindow(now time.Time) {
	if now.Sub(m.windowStart) >= statsWindow {
		m.windowStart = now
		m.successCount = 0
		m.errorCount = 0
	}
}

// RecordTelemetry records a parsed telemetry sample
func (m *DeviceHealthMonitor) RecordTelemetry() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	m.lastTelemetryTime = now
	m.recordSuccessLocked(now)
}

// RecordSuccess records a command that got an answer
func (m *DeviceHealthMonitor) RecordSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recordSuccessLocked(time.Now())
}

func (m *DeviceHealthMonitor) recordSuccessLocked(now time.Time) {
	m.rollWindow(now)
	m.successCount++
	m.lastSuccessTime = now
	m.errorManager.RecordSuccess()
	m.isOnline = true
}

// RecordError records a device error and returns whether it should be marked offline
func (m *DeviceHealthMonitor) RecordError() (shouldMarkOffline bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	m.rollWindow(now)
	m.errorCount++
	m.lastErrorTime = now
	m.errorManager.RecordError()

	return m.errorManager.ShouldMarkOffline()
}

// MarkOffline explicitly marks the device as offline
func (m *DeviceHealthMonitor) MarkOffline() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.isOnline = false
	m.errorManager.MarkAsOffline()
}

// MarkOnline explicitly marks the device as online
func (m *DeviceHealthMonitor) MarkOnline() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.isOnline = true
	m.errorManager.Reset()
}

// IsOnline returns whether the device is currently considered online
func (m *DeviceHealthMonitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isOnline
}

// GetLastSuccessTime returns the time of the last telemetry or answered command
func (m *DeviceHealthMonitor) GetLastSuccessTime() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSuccessTime
}

// GetLastTelemetryTime returns the time of the last telemetry sample
func (m *DeviceHealthMonitor) GetLastTelemetryTime() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastTelemetryTime
}

// GetErrorCount returns errors in the current window
func (m *DeviceHealthMonitor) GetErrorCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.errorCount
}

// GetSuccessCount returns successes in the current window
func (m *DeviceHealthMonitor) GetSuccessCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.successCount
}

// GetConsecutiveErrors returns the current count of consecutive errors
func (m *DeviceHealthMonitor) GetConsecutiveErrors() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.errorManager.GetConsecutiveErrors()
}

// IsInGracePeriod returns true if currently in error grace period
func (m *DeviceHealthMonitor) IsInGracePeriod() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.errorManager.IsInGracePeriod()
}
