package connectivity

import (
	"fmt"
	"strings"
)

// Kind distinguishes the three inbound device topics.
type Kind string

const (
	KindSensor Kind = "sensor"
	KindAck    Kind = "ack"
	KindStatus Kind = "status"
)

// Topics builds and parses the fleet topic layout under one namespace:
// <ns>/<deviceId>/{sensor,command,ack,status}.
type Topics struct {
	Namespace string
}

func (t Topics) CommandTopic(deviceID string) string {
	return fmt.Sprintf("%s/%s/command", t.Namespace, deviceID)
}

func (t Topics) ServiceStatusTopic() string {
	return t.Namespace + "/control-plane/status"
}

// SubscriptionPatterns are the wildcard filters for device→cloud traffic.
func (t Topics) SubscriptionPatterns() []string {
	return []string{
		t.Namespace + "/+/sensor",
		t.Namespace + "/+/ack",
		t.Namespace + "/+/status",
	}
}

// Parse splits an inbound topic into device id and kind. The second return
// is false for topics outside the device layout.
func (t Topics) Parse(topic string) (deviceID string, kind Kind, ok bool) {
	rest, found := strings.CutPrefix(topic, t.Namespace+"/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" {
		return "", "", false
	}
	switch Kind(parts[1]) {
	case KindSensor, KindAck, KindStatus:
		return parts[0], Kind(parts[1]), true
	}
	return "", "", false
}
