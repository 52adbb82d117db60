package models

import "time"

// CommandName is a device command word
type CommandName string

const (
	CmdPing           CommandName = "PING"
	CmdOpen           CommandName = "OPEN"
	CmdClose          CommandName = "CLOSE"
	CmdForceOpen      CommandName = "FORCE_OPEN"
	CmdResetEmergency CommandName = "RESET_EMERGENCY"
	CmdTestModeOn     CommandName = "TEST_MODE_ON"
	CmdTestModeOff    CommandName = "TEST_MODE_OFF"
	CmdInfo           CommandName = "INFO"
	CmdStatus         CommandName = "STATUS"
)

// KnownCommands lists every command word the device firmware accepts
var KnownCommands = []CommandName{
	CmdPing, CmdOpen, CmdClose, CmdForceOpen, CmdResetEmergency,
	CmdTestModeOn, CmdTestModeOff, CmdInfo, CmdStatus,
}

// IsKnownCommand checks a configured command word
func IsKnownCommand(name string) bool {
	for _, c := range KnownCommands {
		if string(c) == name {
			return true
		}
	}
	return false
}

// Outcome of an issued command
type Outcome string

const (
	OutcomeSuccess  Outcome = "SUCCESS"
	OutcomeFailed   Outcome = "FAILED"
	OutcomeRejected Outcome = "REJECTED"
	OutcomeUnknown  Outcome = "UNKNOWN"
)

// CommandResult records one issued command. Built once, never mutated.
type CommandResult struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Command   CommandName `json:"command"`
	Principal string      `json:"user"`
	Outcome   Outcome     `json:"result"`
	Message   string      `json:"message"`
}

// CommandResponse is the synchronous answer handed back to the façade
type CommandResponse struct {
	Success    bool        `json:"success"`
	Message    string      `json:"message"`
	ValveState *ValveState `json:"valve_state,omitempty"`
}
