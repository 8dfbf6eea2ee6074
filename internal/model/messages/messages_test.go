package messages

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSensorPayloadValid(t *testing.T) {
	raw := []byte(`{"deviceId":"dev-1","zone1":1800,"zone2":1850,"zone3":1820,"timestamp":1757000000,"rssi":-61,"pumpState":0}`)
	p, err := ParseSensorPayload(raw)
	require.NoError(t, err)
	assert.Equal(t, "dev-1", p.DeviceID)
	assert.Equal(t, [3]int{1800, 1850, 1820}, p.Zones())
	require.NotNil(t, p.PumpState)
	assert.Equal(t, 0, *p.PumpState)
}

func TestParseSensorPayloadRejections(t *testing.T) {
	cases := map[string]string{
		"not json":          `{`,
		"missing device id": `{"zone1":1,"zone2":2,"zone3":3}`,
		"missing zone":      `{"deviceId":"d","zone1":1,"zone2":2}`,
		"zone below range":  `{"deviceId":"d","zone1":-1,"zone2":2,"zone3":3}`,
		"zone above range":  `{"deviceId":"d","zone1":1,"zone2":4096,"zone3":3}`,
		"bad pump state":    `{"deviceId":"d","zone1":1,"zone2":2,"zone3":3,"pumpState":2}`,
	}
	for name, raw := range cases {
		_, err := ParseSensorPayload([]byte(raw))
		assert.Error(t, err, name)
	}
}

func TestSensorPayloadZeroReadingIsValid(t *testing.T) {
	// a real zero ADC reading must not look like a missing field
	p, err := ParseSensorPayload([]byte(`{"deviceId":"d","zone1":0,"zone2":4095,"zone3":2000}`))
	require.NoError(t, err)
	assert.Equal(t, [3]int{0, 4095, 2000}, p.Zones())
}

func TestParseAckPayload(t *testing.T) {
	p, err := ParseAckPayload([]byte(`{"deviceId":"dev-1","commandId":"c-1","command":"PUMP_ON","status":"ok","pumpState":1}`))
	require.NoError(t, err)
	assert.Equal(t, "c-1", p.CommandID)
	assert.Equal(t, "ok", p.Status)
	require.NotNil(t, p.PumpState)
	assert.Equal(t, 1, *p.PumpState)

	_, err = ParseAckPayload([]byte(`{"deviceId":"dev-1","status":"ok"}`))
	assert.Error(t, err)
}

func TestParseStatusPayload(t *testing.T) {
	p, err := ParseStatusPayload([]byte(`{"deviceId":"dev-1","status":"offline","timestamp":1757000000}`))
	require.NoError(t, err)
	assert.Equal(t, "offline", p.Status)
}
