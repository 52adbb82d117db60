package alerts

import (
	"context"
	"fmt"
	"time"

	"valve-gateway/internal/logger"
	"valve-gateway/internal/metrics"
	"valve-gateway/internal/models"
	"valve-gateway/internal/rules"
	"valve-gateway/internal/store"
)

const (
	DefaultUnacknowledgedLimit = 50
	DefaultRecentHours         = 24
	DefaultRecentLimit         = 100
)

// Service creates and queries system alerts
type Service struct {
	store   store.Store
	metrics metrics.MetricsCollector
	now     func() time.Time
}

// NewService creates an alert service on top of st
func NewService(st store.Store, m metrics.MetricsCollector) *Service {
	if m == nil {
		m = metrics.NewNullMetrics()
	}
	return &Service{store: st, metrics: m, now: time.Now}
}

// Raise stores an alert with the priority implied by its type
func (s *Service) Raise(ctx context.Context, alertType, message string, metadata map[string]any) (models.Alert, error) {
	return s.create(ctx, alertType, message, rules.PriorityFor(alertType), metadata)
}

// RaiseEmergency stores a CRITICAL EMERGENCY alert for one violation
func (s *Service) RaiseEmergency(ctx context.Context, violationType, details string, sample *models.TelemetrySample) (models.Alert, error) {
	metadata := map[string]any{
		"violation_type": violationType,
		"details":        details,
	}
	if sample != nil {
		metadata["telemetry"] = *sample
	}
	message := fmt.Sprintf("EMERGENCY: %s - %s", violationType, details)
	return s.create(ctx, models.AlertTypeEmergency, message, models.PriorityCritical, metadata)
}

func (s *Service) create(ctx context.Context, alertType, message string, priority models.Priority, metadata map[string]any) (models.Alert, error) {
	a, err := s.store.SaveAlert(ctx, models.Alert{
		Timestamp: s.now().UTC().Truncate(time.Second),
		Type:      alertType,
		Message:   message,
		Priority:  priority,
		Metadata:  metadata,
	})
	if err != nil {
		return models.Alert{}, err
	}

	s.metrics.IncAlerts(string(priority))
	logger.LogWarn("🚨 Alert created: [%s] %s - %s", priority, alertType, message)
	return a, nil
}

// Acknowledge marks an alert as handled. Returns store.ErrNotFound for unknown ids.
func (s *Service) Acknowledge(ctx context.Context, id int64) error {
	if err := s.store.AcknowledgeAlert(ctx, id); err != nil {
		logger.LogError("Alert %d not acknowledged: %v", id, err)
		return err
	}
	logger.LogInfo("Alert %d acknowledged", id)
	return nil
}

// Unacknowledged returns open alerts, newest first
func (s *Service) Unacknowledged(ctx context.Context, limit int) ([]models.Alert, error) {
	if limit <= 0 {
		limit = DefaultUnacknowledgedLimit
	}
	return s.store.Alerts(ctx, models.AlertQuery{UnacknowledgedOnly: true, Limit: limit})
}

// Recent returns alerts raised in the last hours, newest first
func (s *Service) Recent(ctx context.Context, hours, limit int) ([]models.Alert, error) {
	if hours <= 0 {
		hours = DefaultRecentHours
	}
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	since := s.now().Add(-time.Duration(hours) * time.Hour)
	return s.store.Alerts(ctx, models.AlertQuery{Since: since, Limit: limit})
}
