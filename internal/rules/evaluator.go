package rules

import (
	"fmt"
	"strconv"
	"strings"

	"valve-gateway/internal/models"
)

// Thresholds configures the safety checks
type Thresholds struct {
	MaxPressure                 float64 `yaml:"max_pressure"`           // bar
	CriticalConcentration       float64 `yaml:"critical_concentration"` // units
	MinSourceConcentration      float64 `yaml:"min_src_concentration"`
	MaxDestinationConcentration float64 `yaml:"max_dst_concentration"`
}

// DefaultThresholds returns the factory thresholds
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxPressure:                 6.0,
		CriticalConcentration:       500.0,
		MinSourceConcentration:      10.0,
		MaxDestinationConcentration: 400.0,
	}
}

// Evaluator classifies telemetry samples against fixed thresholds.
// It holds no mutable state and is safe for concurrent use.
type Evaluator struct {
	t Thresholds
}

// NewEvaluator creates an evaluator
func NewEvaluator(t Thresholds) *Evaluator {
	return &Evaluator{t: t}
}

// Thresholds returns the configured thresholds
func (e *Evaluator) Thresholds() Thresholds {
	return e.t
}

// Evaluate checks p1, p2, c_src and c_dst in that order, one violation per breached check
func (e *Evaluator) Evaluate(s models.TelemetrySample) models.SafetyVerdict {
	violations := make([]string, 0, 4)

	if s.P1 > e.t.MaxPressure {
		violations = append(violations, fmt.Sprintf("Pressure sensor 1 exceeds limit: %s > %s bar",
			formatReading(s.P1), formatReading(e.t.MaxPressure)))
	}
	if s.P2 > e.t.MaxPressure {
		violations = append(violations, fmt.Sprintf("Pressure sensor 2 exceeds limit: %s > %s bar",
			formatReading(s.P2), formatReading(e.t.MaxPressure)))
	}
	if s.CSrc > e.t.CriticalConcentration {
		violations = append(violations, fmt.Sprintf("Source concentration critical: %s > %s units",
			formatReading(s.CSrc), formatReading(e.t.CriticalConcentration)))
	}
	if s.CDst > e.t.CriticalConcentration {
		violations = append(violations, fmt.Sprintf("Destination concentration critical: %s > %s units",
			formatReading(s.CDst), formatReading(e.t.CriticalConcentration)))
	}

	return models.SafetyVerdict{
		Safe:       len(violations) == 0,
		Violations: violations,
	}
}

// CanOpen reports whether opening the valve is allowed for the sample.
// Only the first failing reason is returned.
func (e *Evaluator) CanOpen(s models.TelemetrySample) (bool, string) {
	if s.Emergency {
		return false, "System in emergency mode"
	}

	if verdict := e.Evaluate(s); !verdict.Safe {
		return false, "Safety violations: " + strings.Join(verdict.Violations, "; ")
	}

	if s.CSrc < e.t.MinSourceConcentration {
		return false, fmt.Sprintf("Source concentration too low: %s < %s",
			formatReading(s.CSrc), formatReading(e.t.MinSourceConcentration))
	}

	if s.CDst > e.t.MaxDestinationConcentration {
		return false, fmt.Sprintf("Destination concentration too high: %s > %s",
			formatReading(s.CDst), formatReading(e.t.MaxDestinationConcentration))
	}

	return true, "All checks passed"
}

// PriorityFor classifies an alert or violation type
func PriorityFor(violationType string) models.Priority {
	lower := strings.ToLower(violationType)
	for _, keyword := range []string{"pressure", "critical", "emergency"} {
		if strings.Contains(lower, keyword) {
			return models.PriorityCritical
		}
	}
	return models.PriorityHigh
}

// formatReading renders a value with at least one decimal, e.g. 6 -> "6.0", 7.25 -> "7.25"
func formatReading(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}
