package device

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	gwerrors "valve-gateway/internal/errors"
	"valve-gateway/internal/models"
)

// Line prefixes used by the controller firmware
const (
	TelemetryPrefix = "TELEMETRY:"
	EchoPrefix      = "COMMAND_RECEIVED:"
)

// telemetryPayload mirrors the JSON object after TELEMETRY:.
// Pointers distinguish a missing key from a zero reading.
type telemetryPayload struct {
	T     *float64        `json:"t"`
	Valve *string         `json:"valve"`
	P1    *float64        `json:"p1"`
	P2    *float64        `json:"p2"`
	CSrc  *float64        `json:"c_src"`
	CDst  *float64        `json:"c_dst"`
	Em    json.RawMessage `json:"em"`
}

// IsTelemetry reports whether a trimmed line carries telemetry
func IsTelemetry(line string) bool {
	return strings.HasPrefix(line, TelemetryPrefix)
}

// IsEcho reports whether a trimmed line is the firmware acknowledging receipt of a command
func IsEcho(line string) bool {
	return strings.HasPrefix(line, EchoPrefix)
}

// ParseTelemetry parses one TELEMETRY: line. A missing t is filled from now.
func ParseTelemetry(line string, now time.Time) (models.TelemetrySample, error) {
	if !IsTelemetry(line) {
		return models.TelemetrySample{}, gwerrors.NewParseError(fmt.Errorf("missing %s prefix", TelemetryPrefix), line)
	}

	var p telemetryPayload
	if err := json.Unmarshal([]byte(strings.TrimPrefix(line, TelemetryPrefix)), &p); err != nil {
		return models.TelemetrySample{}, gwerrors.NewParseError(err, line)
	}

	missing := make([]string, 0)
	if p.Valve == nil {
		missing = append(missing, "valve")
	}
	if p.P1 == nil {
		missing = append(missing, "p1")
	}
	if p.P2 == nil {
		missing = append(missing, "p2")
	}
	if p.CSrc == nil {
		missing = append(missing, "c_src")
	}
	if p.CDst == nil {
		missing = append(missing, "c_dst")
	}
	if len(p.Em) == 0 {
		missing = append(missing, "em")
	}
	if len(missing) > 0 {
		return models.TelemetrySample{}, gwerrors.NewParseError(fmt.Errorf("missing fields: %s", strings.Join(missing, ", ")), line)
	}

	valve, err := models.ParseValveState(*p.Valve)
	if err != nil {
		return models.TelemetrySample{}, gwerrors.NewParseError(err, line)
	}

	em, err := parseFlag(p.Em)
	if err != nil {
		return models.TelemetrySample{}, gwerrors.NewParseError(err, line)
	}

	ts := now.Unix()
	if p.T != nil {
		if ts, err = parseTimestamp(*p.T); err != nil {
			return models.TelemetrySample{}, gwerrors.NewParseError(err, line)
		}
	}

	return models.TelemetrySample{
		Timestamp: ts,
		Valve:     valve,
		P1:        *p.P1,
		P2:        *p.P2,
		CSrc:      *p.CSrc,
		CDst:      *p.CDst,
		Emergency: em,
		RawLine:   line,
	}, nil
}

// parseTimestamp accepts whole, non-negative unix seconds that fit in int64
func parseTimestamp(t float64) (int64, error) {
	if math.IsNaN(t) || math.IsInf(t, 0) || t < 0 || t >= math.MaxInt64 || t != math.Trunc(t) {
		return 0, fmt.Errorf("t must be whole unix seconds, got %v", t)
	}
	return int64(t), nil
}

// parseFlag accepts 0/1 as the firmware sends it, and JSON booleans
func parseFlag(raw json.RawMessage) (bool, error) {
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n != 0, nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, nil
	}
	return false, fmt.Errorf("em must be 0, 1 or a boolean, got %s", string(raw))
}
