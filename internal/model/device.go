package model

import "time"

// WateringMode selects which control path is allowed to actuate the pump.
type WateringMode string

const (
	ModeAuto     WateringMode = "auto"
	ModeManual   WateringMode = "manual"
	ModeSchedule WateringMode = "schedule"
)

// DeviceStatus is the last retained online/offline announcement from the device.
type DeviceStatus string

const (
	StatusOnline  DeviceStatus = "online"
	StatusOffline DeviceStatus = "offline"
	StatusUnknown DeviceStatus = "unknown"
)

// DeviceState is the persisted per-device record the control plane reads and
// patches through the persistence port. ActualPumpOn mirrors the pump state
// the device itself last reported; actuation decisions must use it, never a
// locally cached "last command sent" flag.
type DeviceState struct {
	DeviceID              string               `json:"device_id"`
	WateringMode          WateringMode         `json:"watering_mode"`
	ActualPumpOn          bool                 `json:"actual_pump_on"`
	LastCommand           string               `json:"last_command,omitempty"`
	LastCommandAt         time.Time            `json:"last_command_at,omitempty"`
	RegistrationConfirmed bool                 `json:"registration_confirmed"`
	Status                DeviceStatus         `json:"status,omitempty"`
	LastSeenAt            time.Time            `json:"last_seen_at,omitempty"`
	Calibrations          []CalibrationProfile `json:"calibrations,omitempty"`
	CustomThresholds      *ThresholdProfile    `json:"custom_thresholds,omitempty"`
	Plant                 PlantProfile         `json:"plant,omitempty"`
	Schedules             []ScheduleSlot       `json:"schedules,omitempty"`
	ScheduleState         ScheduleState        `json:"schedule_state"`
}

// ScheduleSlot is one time-of-day watering rule. Time is "HH:MM" local,
// DaysOfWeek uses time.Weekday numbering (0=Sunday).
type ScheduleSlot struct {
	ID              string     `json:"id"`
	Time            string     `json:"time"`
	DurationSeconds int        `json:"duration_seconds"`
	DaysOfWeek      []int      `json:"days_of_week"`
	IsActive        bool       `json:"is_active"`
	LastExecution   *time.Time `json:"last_execution,omitempty"`
}

// ScheduleState tracks execution bookkeeping for schedule mode.
type ScheduleState struct {
	Enabled         bool       `json:"enabled"`
	Paused          bool       `json:"paused"`
	LastExecutedAt  *time.Time `json:"last_executed_at,omitempty"`
	NextScheduledAt *time.Time `json:"next_scheduled_at,omitempty"`
	ExecutionCount  int        `json:"execution_count"`
}

// RunsOnDay reports whether the slot fires on the given weekday.
func (s ScheduleSlot) RunsOnDay(d time.Weekday) bool {
	for _, day := range s.DaysOfWeek {
		if day == int(d) {
			return true
		}
	}
	return false
}

// DevicePatch carries partial updates for UpsertDevice. Nil fields are left
// untouched.
type DevicePatch struct {
	WateringMode          *WateringMode
	ActualPumpOn          *bool
	LastCommand           *string
	LastCommandAt         *time.Time
	RegistrationConfirmed *bool
	Status                *DeviceStatus
	LastSeenAt            *time.Time
	Schedules             *[]ScheduleSlot
	ScheduleState         *ScheduleState
}

// Apply copies the non-nil patch fields onto the state.
func (p DevicePatch) Apply(d *DeviceState) {
	if p.WateringMode != nil {
		d.WateringMode = *p.WateringMode
	}
	if p.ActualPumpOn != nil {
		d.ActualPumpOn = *p.ActualPumpOn
	}
	if p.LastCommand != nil {
		d.LastCommand = *p.LastCommand
	}
	if p.LastCommandAt != nil {
		d.LastCommandAt = *p.LastCommandAt
	}
	if p.RegistrationConfirmed != nil {
		d.RegistrationConfirmed = *p.RegistrationConfirmed
	}
	if p.Status != nil {
		d.Status = *p.Status
	}
	if p.LastSeenAt != nil {
		d.LastSeenAt = *p.LastSeenAt
	}
	if p.Schedules != nil {
		d.Schedules = *p.Schedules
	}
	if p.ScheduleState != nil {
		d.ScheduleState = *p.ScheduleState
	}
}
