package engine

import (
	"sync"
	"time"
)

// DefaultDebounceWindow suppresses repeated identical-direction commands to
// one device.
const DefaultDebounceWindow = 30 * time.Second

type debounceEntry struct {
	lastCommandType string
	lastSentAt      time.Time
}

// Debouncer tracks the last command sent per device. It is the single
// shared guard between the sensor-triggered and schedule-triggered control
// paths, so two paths cannot double-fire the same command inside the
// window. State is in-memory only and restarts empty.
type Debouncer struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[string]debounceEntry
	now     func() time.Time
}

func NewDebouncer(window time.Duration) *Debouncer {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	return &Debouncer{
		window:  window,
		entries: make(map[string]debounceEntry),
		now:     time.Now,
	}
}

// ShouldSend reports whether a command of this type may go to the device
// now, i.e. the same type was not sent within the window.
func (d *Debouncer) ShouldSend(deviceID, commandType string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[deviceID]
	if !ok {
		return true
	}
	if e.lastCommandType != commandType {
		return true
	}
	return d.now().Sub(e.lastSentAt) >= d.window
}

// MarkSent overwrites the device's entry after a successful send.
func (d *Debouncer) MarkSent(deviceID, commandType string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[deviceID] = debounceEntry{lastCommandType: commandType, lastSentAt: d.now()}
}
