package health

import (
	"testing"
	"time"
)

func TestMonitorStartsOfflineUntilTelemetry(t *testing.T) {
	m := NewDeviceHealthMonitor(time.Minute)
	if m.IsOnline() {
		t.Fatal("Expected monitor to start offline")
	}

	m.RecordTelemetry()
	if !m.IsOnline() {
		t.Fatal("Expected telemetry to mark the device online")
	}
	if m.GetLastTelemetryTime().IsZero() || m.GetLastSuccessTime().IsZero() {
		t.Error("Expected telemetry and success timestamps to be set")
	}
	if m.GetSuccessCount() != 1 {
		t.Errorf("Expected 1 success, got %d", m.GetSuccessCount())
	}
}

func TestMonitorErrorsWithinGracePeriod(t *testing.T) {
	m := NewDeviceHealthMonitor(time.Hour)
	m.RecordSuccess()

	if m.RecordError() {
		t.Error("Must not mark offline inside the grace period")
	}
	if !m.IsInGracePeriod() {
		t.Error("Expected grace period to be active")
	}
	if m.GetConsecutiveErrors() != 1 || m.GetErrorCount() != 1 {
		t.Errorf("Expected 1 error, got consecutive=%d window=%d", m.GetConsecutiveErrors(), m.GetErrorCount())
	}

	m.RecordSuccess()
	if m.GetConsecutiveErrors() != 0 {
		t.Error("Expected success to reset consecutive errors")
	}
}

func TestMonitorMarkOfflineOnline(t *testing.T) {
	m := NewDeviceHealthMonitor(time.Nanosecond)
	m.RecordSuccess()

	m.RecordError()
	time.Sleep(time.Millisecond)
	if !m.RecordError() {
		t.Fatal("Expected offline signal after the grace period")
	}
	m.MarkOffline()
	if m.IsOnline() {
		t.Error("Expected offline")
	}
	if m.RecordError() {
		t.Error("Offline signal must fire once per error run")
	}

	m.MarkOnline()
	if !m.IsOnline() || m.GetConsecutiveErrors() != 0 {
		t.Error("Expected MarkOnline to reset state")
	}
}
