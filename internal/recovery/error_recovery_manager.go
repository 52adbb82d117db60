package recovery

import (
	"time"
)

// ErrorRecoveryManager tracks a run of consecutive device errors against a grace period.
// Not safe for concurrent use; the health monitor serializes access.
type ErrorRecoveryManager struct {
	consecutiveErrors  int
	firstErrorTime     time.Time
	gracePeriod        time.Duration
	statusSetToOffline bool
	now                func() time.Time
}

// NewErrorRecoveryManager creates a new error recovery manager
func NewErrorRecoveryManager(gracePeriod time.Duration) *ErrorRecoveryManager {
	if gracePeriod == 0 {
		gracePeriod = 15 * time.Second
	}
	return &ErrorRecoveryManager{gracePeriod: gracePeriod, now: time.Now}
}

// RecordError records an error and reports whether the grace period has expired
func (m *ErrorRecoveryManager) RecordError() bool {
	m.consecutiveErrors++
	if m.firstErrorTime.IsZero() {
		m.firstErrorTime = m.now()
	}
	return m.now().Sub(m.firstErrorTime) >= m.gracePeriod
}

// RecordSuccess ends the current error run
func (m *ErrorRecoveryManager) RecordSuccess() {
	m.Reset()
}

// GetConsecutiveErrors returns the current count of consecutive errors
func (m *ErrorRecoveryManager) GetConsecutiveErrors() int {
	return m.consecutiveErrors
}

// ShouldMarkOffline is true once per error run, after the grace period expired
func (m *ErrorRecoveryManager) ShouldMarkOffline() bool {
	if m.statusSetToOffline || m.firstErrorTime.IsZero() {
		return false
	}
	return m.now().Sub(m.firstErrorTime) >= m.gracePeriod
}

// MarkAsOffline suppresses repeated offline transitions for the current run
func (m *ErrorRecoveryManager) MarkAsOffline() {
	m.statusSetToOffline = true
}

// IsInGracePeriod returns true between the first error of a run and the end of the grace period
func (m *ErrorRecoveryManager) IsInGracePeriod() bool {
	if m.firstErrorTime.IsZero() {
		return false
	}
	return m.now().Sub(m.firstErrorTime) < m.gracePeriod
}

// Reset resets all error tracking state
func (m *ErrorRecoveryManager) Reset() {
	m.consecutiveErrors = 0
	m.firstErrorTime = time.Time{}
	m.statusSetToOffline = false
}
