package services

import (
	"context"
	"time"

	gwerrors "valve-gateway/internal/errors"
	"valve-gateway/internal/health"
	"valve-gateway/internal/logger"
)

// StatusPublisher is the part of the MQTT publisher the background services use
type StatusPublisher interface {
	PublishStatus(ctx context.Context, online bool) error
	PublishDiagnostic(ctx context.Context, code int, message string) error
}

// HeartbeatService refreshes the retained online status while the device is healthy
type HeartbeatService struct {
	publisher     StatusPublisher
	healthMonitor *health.DeviceHealthMonitor
	interval      time.Duration
}

// NewHeartbeatService creates a new heartbeat service
func NewHeartbeatService(
	publisher StatusPublisher,
	healthMonitor *health.DeviceHealthMonitor,
	interval time.Duration,
) *HeartbeatService {
	return &HeartbeatService{
		publisher:     publisher,
		healthMonitor: healthMonitor,
		interval:      interval,
	}
}

// Start runs the heartbeat loop until ctx is done
func (s *HeartbeatService) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logger.LogInfo("💓 Heartbeat service started with interval: %v", s.interval)

	for {
		select {
		case <-ctx.Done():
			logger.LogDebug("🔇 Heartbeat service stopped")
			return
		case <-ticker.C:
			s.SendHeartbeat(ctx)
		}
	}
}

// SendHeartbeat publishes one heartbeat if the device is online
func (s *HeartbeatService) SendHeartbeat(ctx context.Context) {
	if !s.healthMonitor.IsOnline() {
		logger.LogDebug("💔 Skipping heartbeat - device is offline")
		return
	}

	if err := s.publisher.PublishStatus(ctx, true); err != nil {
		logger.LogError("⚠️ Heartbeat failed: %v", err)
		return
	}

	logger.LogDebug("💓 Heartbeat sent: online")

	if diagErr := s.publisher.PublishDiagnostic(ctx, gwerrors.CodeOK, "Valve gateway running"); diagErr != nil {
		logger.LogDebug("⚠️ Diagnostic heartbeat failed: %v", diagErr)
	}
}
