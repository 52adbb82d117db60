package hub

import (
	"encoding/json"
	"time"

	"valve-gateway/internal/models"
)

// Event types streamed to subscribers
const (
	EventTelemetry = "telemetry"
	EventAlert     = "alert"
	EventValve     = "valve_event"
)

// Unicast message types
const (
	MessageAuthSuccess = "auth_success"
	MessageAuthError   = "auth_error"
	MessagePong        = "pong"
	MessageHeartbeat   = "heartbeat"
)

// Event is the envelope for everything published through the hub
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Encode marshals the event once for all subscribers
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// SafetyAlert bundles all violations found in one sample. Timestamp is unix seconds.
type SafetyAlert struct {
	Type       string                 `json:"type"`
	Violations []string               `json:"violations"`
	Telemetry  models.TelemetrySample `json:"telemetry"`
	Timestamp  int64                  `json:"timestamp"`
}

// ValveEvent reports the result of a command. Timestamp is unix seconds.
type ValveEvent struct {
	Command   models.CommandName `json:"command"`
	User      string             `json:"user"`
	Result    models.Outcome     `json:"result"`
	Message   string             `json:"message"`
	Timestamp int64              `json:"timestamp"`
}

// NewTelemetryEvent wraps a sample
func NewTelemetryEvent(s models.TelemetrySample) Event {
	return Event{Type: EventTelemetry, Data: s}
}

// NewSafetyAlertEvent wraps the violations of one sample
func NewSafetyAlertEvent(violations []string, s models.TelemetrySample, at time.Time) Event {
	return Event{Type: EventAlert, Data: SafetyAlert{
		Type:       models.AlertTypeSafetyViolation,
		Violations: violations,
		Telemetry:  s,
		Timestamp:  at.Unix(),
	}}
}

// NewAlertEvent wraps a stored alert, e.g. FORCE_OPEN
func NewAlertEvent(a models.Alert) Event {
	return Event{Type: EventAlert, Data: a}
}

// NewValveEvent wraps a command result
func NewValveEvent(r models.CommandResult) Event {
	return Event{Type: EventValve, Data: ValveEvent{
		Command:   r.Command,
		User:      r.Principal,
		Result:    r.Outcome,
		Message:   r.Message,
		Timestamp: r.Timestamp.Unix(),
	}}
}

// control is a unicast message without data. Timestamps are unix seconds.
type control struct {
	Type      string `json:"type"`
	User      string `json:"user,omitempty"`
	Message   string `json:"message,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// ControlMessage encodes a unicast reply such as pong or heartbeat
func ControlMessage(msgType, message string, at time.Time) []byte {
	b, _ := json.Marshal(control{Type: msgType, Message: message, Timestamp: at.Unix()})
	return b
}

// AuthSuccessMessage acknowledges an authenticated subscriber
func AuthSuccessMessage(user string, at time.Time) []byte {
	b, _ := json.Marshal(control{
		Type:      MessageAuthSuccess,
		User:      user,
		Message:   "Authenticated successfully",
		Timestamp: at.Unix(),
	})
	return b
}
