package connectivity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopicsBuild(t *testing.T) {
	tp := Topics{Namespace: "irrigation"}
	assert.Equal(t, "irrigation/dev-1/command", tp.CommandTopic("dev-1"))
	assert.Equal(t, "irrigation/control-plane/status", tp.ServiceStatusTopic())
	assert.Equal(t, []string{
		"irrigation/+/sensor",
		"irrigation/+/ack",
		"irrigation/+/status",
	}, tp.SubscriptionPatterns())
}

func TestTopicsParse(t *testing.T) {
	tp := Topics{Namespace: "irrigation"}

	cases := []struct {
		topic  string
		device string
		kind   Kind
		ok     bool
	}{
		{"irrigation/dev-1/sensor", "dev-1", KindSensor, true},
		{"irrigation/dev-1/ack", "dev-1", KindAck, true},
		{"irrigation/dev-1/status", "dev-1", KindStatus, true},
		{"irrigation/dev-1/command", "", "", false},
		{"irrigation/dev-1", "", "", false},
		{"irrigation/dev-1/sensor/extra", "", "", false},
		{"irrigation//sensor", "", "", false},
		{"other/dev-1/sensor", "", "", false},
		{"irrigation", "", "", false},
	}
	for _, c := range cases {
		device, kind, ok := tp.Parse(c.topic)
		assert.Equal(t, c.ok, ok, c.topic)
		assert.Equal(t, c.device, device, c.topic)
		assert.Equal(t, c.kind, kind, c.topic)
	}
}
