package models

import "time"

// Priority of a system alert
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// Alert types raised by the gateway
const (
	AlertTypeEmergency       = "EMERGENCY"
	AlertTypeForceOpen       = "FORCE_OPEN"
	AlertTypeSafetyViolation = "SAFETY_VIOLATION"
)

// Alert is a persisted system alert
type Alert struct {
	ID           int64          `json:"id"`
	Timestamp    time.Time      `json:"ts_utc"`
	Type         string         `json:"alert_type"`
	Message      string         `json:"message"`
	Priority     Priority       `json:"priority"`
	Acknowledged bool           `json:"acknowledged"`
	Metadata     map[string]any `json:"alert_metadata,omitempty"`
}

// AlertQuery filters alert listings
type AlertQuery struct {
	UnacknowledgedOnly bool
	Since              time.Time
	Limit              int
}
