package messages

import (
	"encoding/json"
	"fmt"
)

// CommandPayload is the message the control plane publishes on
// <ns>/<id>/command. Duration is seconds and only meaningful for PUMP_ON.
type CommandPayload struct {
	Command   string `json:"command"`
	Duration  int    `json:"duration,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Source    string `json:"source,omitempty"`
	CommandID string `json:"commandId"`
	Timestamp int64  `json:"timestamp"`
}

// AckPayload is the device's answer on <ns>/<id>/ack after applying (or
// failing to apply) a command. PumpState, when present, is authoritative.
type AckPayload struct {
	DeviceID  string `json:"deviceId"`
	CommandID string `json:"commandId"`
	Command   string `json:"command"`
	Status    string `json:"status"` // "ok" | "error"
	PumpState *int   `json:"pumpState,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// StatusPayload is the retained online/offline announcement on
// <ns>/<id>/status (the device's LWT on the same topic carries "offline").
type StatusPayload struct {
	DeviceID  string `json:"deviceId"`
	Status    string `json:"status"` // "online" | "offline"
	Timestamp int64  `json:"timestamp"`
}

// ParseAckPayload decodes one acknowledgement message.
func ParseAckPayload(raw []byte) (AckPayload, error) {
	var p AckPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return AckPayload{}, fmt.Errorf("decode ack payload: %w", err)
	}
	if p.CommandID == "" {
		return AckPayload{}, fmt.Errorf("ack payload: missing commandId")
	}
	return p, nil
}

// ParseStatusPayload decodes one status message.
func ParseStatusPayload(raw []byte) (StatusPayload, error) {
	var p StatusPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return StatusPayload{}, fmt.Errorf("decode status payload: %w", err)
	}
	return p, nil
}
