package model

import "time"

// Command types the control plane sends to devices.
const (
	CommandPumpOn     = "PUMP_ON"
	CommandPumpOff    = "PUMP_OFF"
	CommandResetWiFi  = "RESET_WIFI"
	CommandRegistered = "DEVICE_REGISTERED"
	CommandReregister = "REREGISTER"
)

// CommandStatus is the audit lifecycle of an outbound command.
type CommandStatus string

const (
	CommandPending  CommandStatus = "pending"
	CommandSent     CommandStatus = "sent"
	CommandExecuted CommandStatus = "executed"
	CommandFailed   CommandStatus = "failed"
)

// CommandRecord is the persisted audit entry for one outbound actuation.
// Debounce-suppressed triggers never reach record creation.
type CommandRecord struct {
	ID          string                 `json:"id"`
	DeviceID    string                 `json:"device_id"`
	CommandType string                 `json:"command_type"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
	Status      CommandStatus          `json:"status"`
	CreatedAt   time.Time              `json:"created_at"`
	ExecutedAt  *time.Time             `json:"executed_at,omitempty"`
}

// CommandPatch carries partial updates for UpdateCommandRecord.
type CommandPatch struct {
	Status     *CommandStatus
	ExecutedAt *time.Time
}
