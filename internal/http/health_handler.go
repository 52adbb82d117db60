package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HealthStatus represents the health check response
type HealthStatus struct {
	Status          string    `json:"status"` // "healthy", "degraded", "unhealthy"
	Timestamp       time.Time `json:"timestamp"`
	Uptime          string    `json:"uptime"`
	DeviceConnected bool      `json:"device_connected"`
	DeviceOnline    bool      `json:"device_online"`
	LastTelemetry   string    `json:"last_telemetry"`
	ErrorCount      int       `json:"error_count"`
	SuccessCount    int       `json:"success_count"`
	StoreReachable  bool      `json:"store_reachable"`
	Version         string    `json:"version,omitempty"`
}

// HealthChecker provides device health information
type HealthChecker interface {
	IsOnline() bool
	GetLastTelemetryTime() time.Time
	GetErrorCount() int
	GetSuccessCount() int
}

// HealthHandler serves /health
type HealthHandler struct {
	startTime     time.Time
	healthChecker HealthChecker
	link          LinkStatus
	store         Pinger
	version       string
}

// NewHealthHandler creates a new health check handler
func NewHealthHandler(healthChecker HealthChecker, link LinkStatus, store Pinger, version string) *HealthHandler {
	return &HealthHandler{
		startTime:     time.Now(),
		healthChecker: healthChecker,
		link:          link,
		store:         store,
		version:       version,
	}
}

// ServeHTTP implements http.Handler for /health
func (hh *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := hh.getHealthStatus(r)

	w.Header().Set("Content-Type", "application/json")

	statusCode := http.StatusOK
	if status.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}
	w.WriteHeader(statusCode)

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(status); err != nil {
		http.Error(w, fmt.Sprintf("Failed to encode health status: %v", err), http.StatusInternalServerError)
	}
}

func (hh *HealthHandler) getHealthStatus(r *http.Request) HealthStatus {
	now := time.Now()

	connected := hh.link.IsConnected()
	isOnline := hh.healthChecker.IsOnline()
	errorCount := hh.healthChecker.GetErrorCount()
	successCount := hh.healthChecker.GetSuccessCount()

	lastTelemetry := "never"
	if last := hh.healthChecker.GetLastTelemetryTime(); !last.IsZero() {
		lastTelemetry = formatAgo(now.Sub(last))
	}

	storeOK := hh.store == nil || hh.store.Ping(r.Context()) == nil

	// Disconnected link or silent device is unhealthy; errors and a lost store degrade
	status := "healthy"
	if !connected || !isOnline {
		status = "unhealthy"
	} else if !storeOK {
		status = "degraded"
	} else if total := errorCount + successCount; errorCount > 0 && total > 0 {
		errorRate := float64(errorCount) / float64(total) * 100.0
		if errorRate > 50.0 {
			status = "unhealthy"
		} else if errorRate > 20.0 {
			status = "degraded"
		}
	}

	return HealthStatus{
		Status:          status,
		Timestamp:       now,
		Uptime:          formatDuration(now.Sub(hh.startTime)),
		DeviceConnected: connected,
		DeviceOnline:    isOnline,
		LastTelemetry:   lastTelemetry,
		ErrorCount:      errorCount,
		SuccessCount:    successCount,
		StoreReachable:  storeOK,
		Version:         hh.version,
	}
}

func formatAgo(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%d seconds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%d minutes ago", int(d.Minutes()))
	default:
		return fmt.Sprintf("%d hours ago", int(d.Hours()))
	}
}

// formatDuration formats a duration in human-readable form
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%d seconds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%d minutes", int(d.Minutes()))
	} else if d < 24*time.Hour {
		hours := int(d.Hours())
		minutes := int(d.Minutes()) % 60
		return fmt.Sprintf("%d hours %d minutes", hours, minutes)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%d days %d hours", days, hours)
}
