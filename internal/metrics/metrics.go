// Package metrics holds the prometheus instrumentation for the control
// plane. Collectors are registered on the default registry and exposed by
// the ops HTTP server at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	InboundMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "controlplane_inbound_messages_total",
		Help: "Inbound MQTT messages by kind (sensor, ack, status).",
	}, []string{"kind"})

	InvalidPayloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "controlplane_invalid_payloads_total",
		Help: "Inbound messages discarded at the validation boundary.",
	}, []string{"kind"})

	Publishes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "controlplane_publishes_total",
		Help: "Outbound MQTT publishes handed to the broker.",
	})

	PublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "controlplane_publish_failures_total",
		Help: "Outbound publish attempts that returned a transport error.",
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "controlplane_offline_queue_depth",
		Help: "Messages currently waiting in the offline publish queue.",
	})

	QueueDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "controlplane_offline_queue_drops_total",
		Help: "Messages dropped from the offline queue (overflow or retry budget).",
	})

	CommandsIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "controlplane_commands_issued_total",
		Help: "Commands issued to devices by type.",
	}, []string{"type"})

	DebounceSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "controlplane_debounce_suppressed_total",
		Help: "Commands suppressed by the per-device debounce window.",
	})

	WatchdogFired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "controlplane_watchdog_fired_total",
		Help: "Provisioning watchdogs that expired and triggered a WiFi reset.",
	})

	ScheduleFired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "controlplane_schedule_slots_fired_total",
		Help: "Schedule slots that matched a tick and issued a watering.",
	})
)
