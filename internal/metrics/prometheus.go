package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "valve_gateway"

// PrometheusMetrics collects gateway metrics on its own registry
type PrometheusMetrics struct {
	registry *prometheus.Registry

	telemetryReceived    prometheus.Counter
	telemetryParseErrors prometheus.Counter
	commands             *prometheus.CounterVec
	commandDuration      *prometheus.HistogramVec
	alerts               *prometheus.CounterVec
	deviceConnected      prometheus.Gauge
	reconnects           prometheus.Counter
	subscribers          prometheus.Gauge
	deliveryFailures     prometheus.Counter
	broadcastDuration    *prometheus.HistogramVec
	mqttPublishes        prometheus.Counter
	mqttErrors           prometheus.Counter
}

// NewPrometheusMetrics registers all collectors, plus the Go and process collectors
func NewPrometheusMetrics() *PrometheusMetrics {
	m := &PrometheusMetrics{
		registry: prometheus.NewRegistry(),
		telemetryReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_received_total",
			Help:      "Telemetry samples parsed from the device.",
		}),
		telemetryParseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_parse_errors_total",
			Help:      "Telemetry lines dropped because they could not be parsed.",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Valve commands issued, by command and outcome.",
		}, []string{"command", "outcome"}),
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Device round trip of a command.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		}, []string{"command"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alerts raised, by priority.",
		}, []string{"priority"}),
		deviceConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "device_connected",
			Help:      "1 when the serial link is connected.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_connect_attempts_total",
			Help:      "Connect attempts made by the read loop.",
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hub_subscribers",
			Help:      "Websocket subscribers currently registered.",
		}),
		deliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hub_delivery_failures_total",
			Help:      "Subscribers dropped after a failed send.",
		}),
		broadcastDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "hub_broadcast_duration_seconds",
			Help:      "Duration of one publish sweep.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"type"}),
		mqttPublishes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mqtt_publishes_total",
			Help:      "Events mirrored to MQTT.",
		}),
		mqttErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mqtt_errors_total",
			Help:      "Failed MQTT mirror publishes.",
		}),
	}

	m.registry.MustRegister(
		m.telemetryReceived, m.telemetryParseErrors,
		m.commands, m.commandDuration, m.alerts,
		m.deviceConnected, m.reconnects,
		m.subscribers, m.deliveryFailures, m.broadcastDuration,
		m.mqttPublishes, m.mqttErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func (m *PrometheusMetrics) IncTelemetryReceived()    { m.telemetryReceived.Inc() }
func (m *PrometheusMetrics) IncTelemetryParseErrors() { m.telemetryParseErrors.Inc() }

func (m *PrometheusMetrics) IncCommand(command, outcome string) {
	m.commands.WithLabelValues(command, outcome).Inc()
}

func (m *PrometheusMetrics) ObserveCommandDuration(command string, d time.Duration) {
	m.commandDuration.WithLabelValues(command).Observe(d.Seconds())
}

func (m *PrometheusMetrics) IncAlerts(priority string) {
	m.alerts.WithLabelValues(priority).Inc()
}

func (m *PrometheusMetrics) SetDeviceConnected(connected bool) {
	if connected {
		m.deviceConnected.Set(1)
		return
	}
	m.deviceConnected.Set(0)
}

func (m *PrometheusMetrics) IncReconnects()           { m.reconnects.Inc() }
func (m *PrometheusMetrics) SetSubscribers(count int) { m.subscribers.Set(float64(count)) }
func (m *PrometheusMetrics) IncDeliveryFailures()     { m.deliveryFailures.Inc() }

func (m *PrometheusMetrics) ObserveBroadcastDuration(eventType string, d time.Duration) {
	m.broadcastDuration.WithLabelValues(eventType).Observe(d.Seconds())
}

func (m *PrometheusMetrics) IncMQTTPublishes() { m.mqttPublishes.Inc() }
func (m *PrometheusMetrics) IncMQTTErrors()    { m.mqttErrors.Inc() }

// Handler serves the registry in the Prometheus exposition format
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests and additional collectors
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}
