package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ValveState is the reported position of the valve
type ValveState string

const (
	ValveOpen   ValveState = "OPEN"
	ValveClosed ValveState = "CLOSED"
)

// ParseValveState validates a state string from the device
func ParseValveState(s string) (ValveState, error) {
	switch ValveState(s) {
	case ValveOpen, ValveClosed:
		return ValveState(s), nil
	default:
		return "", fmt.Errorf("unknown valve state %q", s)
	}
}

// TelemetrySample is one status report parsed from a device line.
// Pressures are in bar.
type TelemetrySample struct {
	Timestamp int64      `json:"t"`
	Valve     ValveState `json:"valve"`
	P1        float64    `json:"p1"`
	P2        float64    `json:"p2"`
	CSrc      float64    `json:"c_src"`
	CDst      float64    `json:"c_dst"`
	Emergency bool       `json:"em"`
	RawLine   string     `json:"raw_line,omitempty"`
}

type telemetryFields TelemetrySample

// MarshalJSON writes em as 0/1, the way the firmware reports it
func (s TelemetrySample) MarshalJSON() ([]byte, error) {
	em := 0
	if s.Emergency {
		em = 1
	}
	return json.Marshal(struct {
		telemetryFields
		Emergency int `json:"em"`
	}{telemetryFields(s), em})
}

// UnmarshalJSON accepts em as 0/1 or a boolean
func (s *TelemetrySample) UnmarshalJSON(data []byte) error {
	aux := struct {
		*telemetryFields
		Emergency json.RawMessage `json:"em"`
	}{telemetryFields: (*telemetryFields)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	switch string(bytes.TrimSpace(aux.Emergency)) {
	case "", "null", "0", "false":
		s.Emergency = false
	case "1", "true":
		s.Emergency = true
	default:
		return fmt.Errorf("em must be 0, 1 or a boolean, got %s", string(aux.Emergency))
	}
	return nil
}

// ConnectionState of the device link
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
)

// String returns the string representation of the connection state
func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "DISCONNECTED"
	case Connecting:
		return "CONNECTING"
	case Connected:
		return "CONNECTED"
	default:
		return "UNKNOWN"
	}
}

// SafetyVerdict is derived from one sample and never persisted
type SafetyVerdict struct {
	Safe       bool     `json:"safe"`
	Violations []string `json:"violations"`
}
