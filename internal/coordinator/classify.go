package coordinator

import (
	"strings"

	"valve-gateway/internal/models"
)

// Classification is how a device reply maps onto a command outcome
type Classification struct {
	Outcome models.Outcome
	// Detail is persisted and broadcast with the result
	Detail string
	// Reply is returned to the caller
	Reply      string
	ValveState *models.ValveState
}

// Success reports whether the outcome is SUCCESS
func (c Classification) Success() bool {
	return c.Outcome == models.OutcomeSuccess
}

// Classify matches a reply against the markers the firmware uses for each command
func Classify(cmd models.CommandName, response string) Classification {
	unexpected := Classification{
		Outcome: models.OutcomeUnknown,
		Detail:  response,
		Reply:   "Unexpected response: " + response,
	}

	switch cmd {
	case models.CmdOpen:
		switch {
		case strings.Contains(response, "VALVE_OPENED"):
			return success("Valve opened successfully", "Valve opened successfully", models.ValveOpen)
		case strings.Contains(response, "ERROR") || strings.Contains(strings.ToLower(response), "emergency"):
			return Classification{Outcome: models.OutcomeRejected, Detail: response, Reply: response}
		}
		return unexpected

	case models.CmdClose:
		if strings.Contains(response, "VALVE_CLOSED") || strings.Contains(response, "ALREADY_CLOSED") {
			return success("Valve closed successfully", "Valve closed successfully", models.ValveClosed)
		}
		return unexpected

	case models.CmdForceOpen:
		if strings.Contains(response, "VALVE_OPENED") {
			return success("Valve force-opened", "Valve force-opened (bypassed safety)", models.ValveOpen)
		}
		return Classification{Outcome: models.OutcomeFailed, Detail: response, Reply: response}

	case models.CmdResetEmergency:
		if strings.Contains(strings.ToLower(response), "reset successfully") || strings.Contains(response, "EVENT") {
			return success("Emergency mode reset", "Emergency mode reset successfully", "")
		}
		return Classification{Outcome: models.OutcomeUnknown, Detail: response, Reply: response}

	case models.CmdTestModeOn:
		return success("Test mode enabled", "Test mode enabled - using mock sensor values", "")

	case models.CmdTestModeOff:
		return success("Test mode disabled", "Test mode disabled - using real sensor values", "")

	case models.CmdPing:
		if strings.Contains(response, "PONG") {
			return success("Device responded", "Device responded", "")
		}
		return unexpected
	}

	return unexpected
}

func success(detail, reply string, state models.ValveState) Classification {
	c := Classification{Outcome: models.OutcomeSuccess, Detail: detail, Reply: reply}
	if state != "" {
		c.ValveState = &state
	}
	return c
}
