package services

import (
	"context"
	"fmt"
	"time"

	"valve-gateway/internal/cache"
	"valve-gateway/internal/config"
	gwerrors "valve-gateway/internal/errors"
	"valve-gateway/internal/health"
	"valve-gateway/internal/logger"
	"valve-gateway/internal/metrics"
)

// LinkState reports whether the serial link is up
type LinkState interface {
	IsConnected() bool
}

// WatchdogService marks the device offline when telemetry stops arriving.
// It also mirrors the link state into the cache and the metrics gauge.
type WatchdogService struct {
	link          LinkState
	healthMonitor *health.DeviceHealthMonitor
	cache         cache.Cache
	diagnostics   gwerrors.DiagnosticPublisher
	metrics       metrics.MetricsCollector
	settings      config.WatchdogSettings
	startedAt     time.Time
	now           func() time.Time
}

// NewWatchdogService creates a watchdog. diagnostics may be nil.
func NewWatchdogService(
	link LinkState,
	healthMonitor *health.DeviceHealthMonitor,
	c cache.Cache,
	diagnostics gwerrors.DiagnosticPublisher,
	m metrics.MetricsCollector,
	settings config.WatchdogSettings,
) *WatchdogService {
	if m == nil {
		m = metrics.NewNullMetrics()
	}
	return &WatchdogService{
		link:          link,
		healthMonitor: healthMonitor,
		cache:         c,
		diagnostics:   diagnostics,
		metrics:       m,
		settings:      settings,
		startedAt:     time.Now(),
		now:           time.Now,
	}
}

// Start runs the check loop until ctx is done
func (w *WatchdogService) Start(ctx context.Context) {
	ticker := time.NewTicker(w.settings.CheckInterval)
	defer ticker.Stop()

	logger.LogInfo("🐕 Watchdog started (check every %v, grace %v)", w.settings.CheckInterval, w.settings.GracePeriod)

	for {
		select {
		case <-ctx.Done():
			logger.LogDebug("🐕 Watchdog stopped")
			return
		case <-ticker.C:
			w.Check(ctx)
		}
	}
}

// Check runs one staleness check and reports whether the device is considered online
func (w *WatchdogService) Check(ctx context.Context) bool {
	connected := w.link.IsConnected()
	w.metrics.SetDeviceConnected(connected)
	if w.cache != nil {
		if err := w.cache.SetConnected(ctx, connected); err != nil {
			logger.LogDebug("Could not cache link state: %v", err)
		}
	}

	last := w.healthMonitor.GetLastTelemetryTime()
	if last.IsZero() {
		// nothing received yet, measure from startup
		last = w.startedAt
	}
	silence := w.now().Sub(last)

	if silence <= w.settings.GracePeriod {
		return w.healthMonitor.IsOnline()
	}
	if !w.healthMonitor.IsOnline() {
		return false
	}

	w.healthMonitor.MarkOffline()
	msg := fmt.Sprintf("No telemetry for %s", silence.Truncate(time.Second))
	logger.LogWarn("🐕 %s, marking device offline", msg)

	if w.diagnostics != nil {
		if err := w.diagnostics.PublishDiagnostic(ctx, gwerrors.CodeConnectivity, msg); err != nil {
			logger.LogDebug("Failed to publish watchdog diagnostic: %v", err)
		}
	}
	return false
}
