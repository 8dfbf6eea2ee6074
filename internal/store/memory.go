package store

import (
	"context"
	"sync"

	"github.com/hydrosense/control-plane/internal/model"
)

// Memory is an in-process Store used by tests and broker-less local runs.
type Memory struct {
	mu       sync.RWMutex
	devices  map[string]model.DeviceState
	commands map[string]model.CommandRecord
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		devices:  make(map[string]model.DeviceState),
		commands: make(map[string]model.CommandRecord),
	}
}

// SeedDevice inserts a full device record, replacing any previous state.
func (m *Memory) SeedDevice(d model.DeviceState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[d.DeviceID] = d
}

func (m *Memory) GetDevice(_ context.Context, id string) (model.DeviceState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.devices[id]
	if !ok {
		return model.DeviceState{}, ErrDeviceNotFound
	}
	return d, nil
}

func (m *Memory) UpsertDevice(_ context.Context, id string, patch model.DevicePatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok {
		d = model.DeviceState{DeviceID: id}
	}
	patch.Apply(&d)
	m.devices[id] = d
	return nil
}

func (m *Memory) CreateCommandRecord(_ context.Context, rec model.CommandRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands[rec.ID] = rec
	return nil
}

func (m *Memory) UpdateCommandRecord(_ context.Context, id string, patch model.CommandPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.commands[id]
	if !ok {
		return ErrCommandNotFound
	}
	if patch.Status != nil {
		rec.Status = *patch.Status
	}
	if patch.ExecutedAt != nil {
		rec.ExecutedAt = patch.ExecutedAt
	}
	m.commands[id] = rec
	return nil
}

func (m *Memory) ListDevicesInScheduleMode(_ context.Context) ([]model.DeviceState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.DeviceState
	for _, d := range m.devices {
		if d.WateringMode == model.ModeSchedule {
			out = append(out, d)
		}
	}
	return out, nil
}

// Commands returns a snapshot of the audit records, for tests.
func (m *Memory) Commands() []model.CommandRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.CommandRecord, 0, len(m.commands))
	for _, rec := range m.commands {
		out = append(out, rec)
	}
	return out
}
