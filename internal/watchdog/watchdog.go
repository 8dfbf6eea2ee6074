// Package watchdog is the provisioning safety net: a device that received
// WiFi credentials but never confirmed registration gets its credentials
// reset after a timeout, so it can never be stranded unreachable.
package watchdog

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hydrosense/control-plane/internal/connectivity"
	"github.com/hydrosense/control-plane/internal/metrics"
	"github.com/hydrosense/control-plane/internal/model"
	"github.com/hydrosense/control-plane/internal/model/messages"
)

// DefaultTimeout is how long a device may sit mid-provisioning before the
// reset fires.
const DefaultTimeout = 30 * time.Minute

type entry struct {
	startedAt time.Time
	deadline  time.Time
	timer     *time.Timer
}

// Registry tracks at most one live provisioning timer per device id. State
// is in-memory only: a restart drops in-flight watchdogs, which is a
// documented limitation, not an error to mask.
type Registry struct {
	pub     connectivity.Publisher
	topics  connectivity.Topics
	timeout time.Duration
	log     *zap.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

func NewRegistry(pub connectivity.Publisher, topics connectivity.Topics, timeout time.Duration, log *zap.Logger) *Registry {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Registry{
		pub:     pub,
		topics:  topics,
		timeout: timeout,
		log:     log,
		entries: make(map[string]*entry),
	}
}

// StartTracking arms the timer for a device entering provisioning. A new
// cycle for the same id always replaces the previous timer.
func (r *Registry) StartTracking(deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.entries[deviceID]; ok {
		prev.timer.Stop()
	}
	now := time.Now()
	e := &entry{startedAt: now, deadline: now.Add(r.timeout)}
	// The callback carries its own entry so a stale timer from a replaced
	// cycle, already expired and waiting on the mutex, cannot fire against
	// the fresh one.
	e.timer = time.AfterFunc(r.timeout, func() { r.fire(deviceID, e) })
	r.entries[deviceID] = e
	r.log.Info("provisioning watchdog armed",
		zap.String("device", deviceID), zap.Time("deadline", e.deadline))
}

// StopTracking cancels the timer when registration is confirmed. Idempotent:
// returns false when no entry was live.
func (r *Registry) StopTracking(deviceID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[deviceID]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(r.entries, deviceID)
	r.log.Info("provisioning watchdog cancelled", zap.String("device", deviceID))
	return true
}

// Deadline reports the live entry's deadline, if any.
func (r *Registry) Deadline(deviceID string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[deviceID]
	if !ok {
		return time.Time{}, false
	}
	return e.deadline, true
}

// StopAll cancels every live timer, for graceful shutdown.
func (r *Registry) StopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.entries {
		e.timer.Stop()
		delete(r.entries, id)
	}
}

// fire publishes the WiFi reset. Best-effort: when the broker is down the
// connectivity manager queues the command instead of dropping it silently.
func (r *Registry) fire(deviceID string, from *entry) {
	r.mu.Lock()
	if cur, ok := r.entries[deviceID]; !ok || cur != from {
		// cancelled, or replaced by a newer cycle, between expiry and firing
		r.mu.Unlock()
		return
	}
	delete(r.entries, deviceID)
	r.mu.Unlock()

	metrics.WatchdogFired.Inc()
	cmd := messages.CommandPayload{
		Command:   model.CommandResetWiFi,
		Reason:    "provisioning not confirmed within timeout",
		CommandID: uuid.NewString(),
		Timestamp: time.Now().Unix(),
	}
	payload, _ := json.Marshal(cmd)
	r.pub.Publish(r.topics.CommandTopic(deviceID), payload, false)
	r.log.Warn("provisioning watchdog fired, resetting device WiFi",
		zap.String("device", deviceID))
}
