package metrics

import (
	"net/http"
	"time"
)

// MetricsCollector defines the interface for collecting gateway metrics.
//
// Implementations:
//   - PrometheusMetrics: prometheus client_golang collectors on a private registry
//   - NullMetrics: no-op implementation when metrics are disabled
type MetricsCollector interface {
	// IncTelemetryReceived counts a successfully parsed telemetry sample
	IncTelemetryReceived()

	// IncTelemetryParseErrors counts a dropped malformed telemetry line
	IncTelemetryParseErrors()

	// IncCommand counts an issued command by name and outcome
	IncCommand(command, outcome string)

	// ObserveCommandDuration records the device round trip of a command
	ObserveCommandDuration(command string, duration time.Duration)

	// IncAlerts counts a raised alert by priority
	IncAlerts(priority string)

	// SetDeviceConnected sets the current link state
	SetDeviceConnected(connected bool)

	// IncReconnects counts connect attempts made by the read loop
	IncReconnects()

	// SetSubscribers sets the number of registered hub subscribers
	SetSubscribers(count int)

	// IncDeliveryFailures counts subscribers dropped after a failed send
	IncDeliveryFailures()

	// ObserveBroadcastDuration records one publish sweep
	ObserveBroadcastDuration(eventType string, duration time.Duration)

	// IncMQTTPublishes counts mirrored events
	IncMQTTPublishes()

	// IncMQTTErrors counts failed mirror publishes
	IncMQTTErrors()

	// Handler exposes the metrics over HTTP (nil when there is nothing to expose)
	Handler() http.Handler
}

// Compile-time verification that PrometheusMetrics implements MetricsCollector
var _ MetricsCollector = (*PrometheusMetrics)(nil)
