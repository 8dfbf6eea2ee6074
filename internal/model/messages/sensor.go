package messages

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ADC range of the device's moisture inputs.
const (
	ADCMin = 0
	ADCMax = 4095
)

// SensorPayload is the telemetry a device publishes on <ns>/<id>/sensor.
// Zones are pointers so missing fields can be told apart from zero readings;
// out-of-range values are rejected here, not clamped (clamping belongs to
// calibration math only).
type SensorPayload struct {
	DeviceID  string `json:"deviceId"`
	Zone1     *int   `json:"zone1"`
	Zone2     *int   `json:"zone2"`
	Zone3     *int   `json:"zone3"`
	Timestamp int64  `json:"timestamp"`
	RSSI      *int   `json:"rssi,omitempty"`
	PumpState *int   `json:"pumpState,omitempty"`
}

// ParseSensorPayload decodes and validates one telemetry message.
func ParseSensorPayload(raw []byte) (SensorPayload, error) {
	var p SensorPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return SensorPayload{}, fmt.Errorf("decode sensor payload: %w", err)
	}
	if err := p.Validate(); err != nil {
		return SensorPayload{}, err
	}
	return p, nil
}

// Validate enforces the hard ingestion rules: deviceId and all three zones
// present, every zone inside the ADC range.
func (p SensorPayload) Validate() error {
	if p.DeviceID == "" {
		return errors.New("sensor payload: missing deviceId")
	}
	zones := []*int{p.Zone1, p.Zone2, p.Zone3}
	for i, z := range zones {
		if z == nil {
			return fmt.Errorf("sensor payload: missing zone%d", i+1)
		}
		if *z < ADCMin || *z > ADCMax {
			return fmt.Errorf("sensor payload: zone%d value %d outside [%d,%d]", i+1, *z, ADCMin, ADCMax)
		}
	}
	if p.PumpState != nil && *p.PumpState != 0 && *p.PumpState != 1 {
		return fmt.Errorf("sensor payload: pumpState %d not 0|1", *p.PumpState)
	}
	return nil
}

// Zones returns the three validated raw readings in zone order.
func (p SensorPayload) Zones() [3]int {
	return [3]int{*p.Zone1, *p.Zone2, *p.Zone3}
}
