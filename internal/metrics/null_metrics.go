package metrics

import (
	"net/http"
	"time"
)

// NullMetrics is a no-op implementation of MetricsCollector, used when metrics.enabled is false
type NullMetrics struct{}

// NewNullMetrics creates a new NullMetrics instance
func NewNullMetrics() *NullMetrics {
	return &NullMetrics{}
}

func (nm *NullMetrics) IncTelemetryReceived()                                      {}
func (nm *NullMetrics) IncTelemetryParseErrors()                                   {}
func (nm *NullMetrics) IncCommand(command, outcome string)                         {}
func (nm *NullMetrics) ObserveCommandDuration(command string, d time.Duration)     {}
func (nm *NullMetrics) IncAlerts(priority string)                                  {}
func (nm *NullMetrics) SetDeviceConnected(connected bool)                          {}
func (nm *NullMetrics) IncReconnects()                                             {}
func (nm *NullMetrics) SetSubscribers(count int)                                   {}
func (nm *NullMetrics) IncDeliveryFailures()                                       {}
func (nm *NullMetrics) ObserveBroadcastDuration(eventType string, d time.Duration) {}
func (nm *NullMetrics) IncMQTTPublishes()                                          {}
func (nm *NullMetrics) IncMQTTErrors()                                             {}

// Handler returns nil, there is nothing to expose
func (nm *NullMetrics) Handler() http.Handler { return nil }

// Compile-time verification that NullMetrics implements MetricsCollector
var _ MetricsCollector = (*NullMetrics)(nil)
