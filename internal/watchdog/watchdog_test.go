package watchdog

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hydrosense/control-plane/internal/connectivity"
	"github.com/hydrosense/control-plane/internal/model"
	"github.com/hydrosense/control-plane/internal/model/messages"
)

type capturingPublisher struct {
	mu        sync.Mutex
	published []string // topics
	payloads  []messages.CommandPayload
}

func (c *capturingPublisher) Publish(topic string, payload []byte, _ bool) {
	var cmd messages.CommandPayload
	_ = json.Unmarshal(payload, &cmd)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, topic)
	c.payloads = append(c.payloads, cmd)
}

func (c *capturingPublisher) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.published)
}

func newTestRegistry(timeout time.Duration) (*Registry, *capturingPublisher) {
	pub := &capturingPublisher{}
	r := NewRegistry(pub, connectivity.Topics{Namespace: "irrigation"}, timeout, zap.NewNop())
	return r, pub
}

func TestWatchdogFiresResetOnTimeout(t *testing.T) {
	r, pub := newTestRegistry(20 * time.Millisecond)
	r.StartTracking("dev-1")

	require.Eventually(t, func() bool { return pub.count() == 1 },
		time.Second, 5*time.Millisecond)

	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.Equal(t, "irrigation/dev-1/command", pub.published[0])
	assert.Equal(t, model.CommandResetWiFi, pub.payloads[0].Command)
	assert.NotEmpty(t, pub.payloads[0].Reason)
	assert.NotEmpty(t, pub.payloads[0].CommandID)
}

func TestStopTrackingBeforeDeadlinePreventsReset(t *testing.T) {
	r, pub := newTestRegistry(30 * time.Millisecond)
	r.StartTracking("dev-1")
	assert.True(t, r.StopTracking("dev-1"))

	time.Sleep(80 * time.Millisecond)
	assert.Zero(t, pub.count())
}

func TestStopTrackingAfterFireIsSafeNoOp(t *testing.T) {
	r, pub := newTestRegistry(10 * time.Millisecond)
	r.StartTracking("dev-1")

	require.Eventually(t, func() bool { return pub.count() == 1 },
		time.Second, 5*time.Millisecond)
	assert.False(t, r.StopTracking("dev-1"))
}

func TestStopTrackingWithoutEntryReturnsFalse(t *testing.T) {
	r, _ := newTestRegistry(time.Minute)
	assert.False(t, r.StopTracking("never-seen"))
}

func TestRestartReplacesPreviousTimer(t *testing.T) {
	r, pub := newTestRegistry(40 * time.Millisecond)
	r.StartTracking("dev-1")
	time.Sleep(25 * time.Millisecond)
	r.StartTracking("dev-1") // new provisioning cycle resets the clock

	// the original deadline passes without a fire
	time.Sleep(25 * time.Millisecond)
	assert.Zero(t, pub.count())

	// only one timer is live, so exactly one reset eventually fires
	require.Eventually(t, func() bool { return pub.count() >= 1 },
		time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, pub.count())
}

func TestStaleTimerFromReplacedCycleCannotFire(t *testing.T) {
	r, pub := newTestRegistry(time.Minute)
	r.StartTracking("dev-1")
	r.mu.Lock()
	stale := r.entries["dev-1"]
	r.mu.Unlock()

	// new cycle replaces the entry while the old timer's callback is still
	// pending; the callback must recognize it lost the race
	r.StartTracking("dev-1")
	r.fire("dev-1", stale)

	assert.Zero(t, pub.count())
	_, ok := r.Deadline("dev-1")
	assert.True(t, ok, "fresh cycle keeps its entry")
}

func TestDeadlineReporting(t *testing.T) {
	r, _ := newTestRegistry(time.Minute)
	_, ok := r.Deadline("dev-1")
	assert.False(t, ok)

	r.StartTracking("dev-1")
	deadline, ok := r.Deadline("dev-1")
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 2*time.Second)
}
