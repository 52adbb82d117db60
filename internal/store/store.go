package store

import (
	"context"
	"errors"

	"valve-gateway/internal/models"
)

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = errors.New("not found")

// Store persists telemetry, command results and alerts.
// Timestamps are kept at second resolution.
type Store interface {
	SaveTelemetry(ctx context.Context, s models.TelemetrySample) error
	// LatestTelemetry returns ErrNotFound before the first sample
	LatestTelemetry(ctx context.Context) (models.TelemetrySample, error)
	// TelemetryHistory returns up to limit samples, newest first
	TelemetryHistory(ctx context.Context, limit int) ([]models.TelemetrySample, error)
	// TelemetryRange returns samples with from <= t <= to, oldest first
	TelemetryRange(ctx context.Context, from, to int64) ([]models.TelemetrySample, error)

	SaveCommandResult(ctx context.Context, r models.CommandResult) error
	CommandResult(ctx context.Context, id string) (models.CommandResult, error)
	// RecentCommandResults returns up to limit results, newest first
	RecentCommandResults(ctx context.Context, limit int) ([]models.CommandResult, error)

	// SaveAlert assigns the alert ID
	SaveAlert(ctx context.Context, a models.Alert) (models.Alert, error)
	// Alerts returns matching alerts, newest first
	Alerts(ctx context.Context, q models.AlertQuery) ([]models.Alert, error)
	AcknowledgeAlert(ctx context.Context, id int64) error

	Ping(ctx context.Context) error
	Close() error
}
