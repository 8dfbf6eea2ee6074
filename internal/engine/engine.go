// Package engine is the sole authority for pump actuation: it fuses
// telemetry into a decision, gates on mode and real pump state, sizes the
// watering, and funnels every outbound command (sensor-triggered or
// schedule-triggered) through one debounced entry point.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hydrosense/control-plane/internal/connectivity"
	"github.com/hydrosense/control-plane/internal/fusion"
	"github.com/hydrosense/control-plane/internal/history"
	"github.com/hydrosense/control-plane/internal/metrics"
	"github.com/hydrosense/control-plane/internal/model"
	"github.com/hydrosense/control-plane/internal/model/messages"
	"github.com/hydrosense/control-plane/internal/store"
)

// Duration of the connectivity-test watering sent once during registration.
const registrationTestSeconds = 5

const opTimeout = 5 * time.Second

// Engine wires fusion, persistence and connectivity together.
type Engine struct {
	store    store.Store
	pub      connectivity.Publisher
	topics   connectivity.Topics
	sink     history.Sink
	debounce *Debouncer
	log      *zap.Logger
	now      func() time.Time

	// invoked after a device completes the registration handshake, used to
	// cancel the provisioning watchdog
	onRegistered func(deviceID string)

	// armed when a device is sent back into provisioning
	tracker ProvisioningTracker

	regMu       sync.Mutex
	registering map[string]bool
}

// Option tweaks an Engine at construction.
type Option func(*Engine)

// WithSink attaches the diagnostics history sink.
func WithSink(s history.Sink) Option { return func(e *Engine) { e.sink = s } }

// WithDebounceWindow overrides the default 30s window.
func WithDebounceWindow(w time.Duration) Option {
	return func(e *Engine) { e.debounce = NewDebouncer(w) }
}

// WithRegistrationHook sets the callback fired when a device confirms
// registration.
func WithRegistrationHook(fn func(deviceID string)) Option {
	return func(e *Engine) { e.onRegistered = fn }
}

// ProvisioningTracker arms the watchdog for a device sent back into
// provisioning.
type ProvisioningTracker interface {
	StartTracking(deviceID string)
}

// WithProvisioningTracker attaches the watchdog registry.
func WithProvisioningTracker(t ProvisioningTracker) Option {
	return func(e *Engine) { e.tracker = t }
}

func New(st store.Store, pub connectivity.Publisher, topics connectivity.Topics, log *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:       st,
		pub:         pub,
		topics:      topics,
		debounce:    NewDebouncer(DefaultDebounceWindow),
		log:         log,
		now:         time.Now,
		registering: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HandleMessage is registered with the connectivity manager and runs on its
// dispatcher goroutine, so per-device processing keeps arrival order.
func (e *Engine) HandleMessage(msg connectivity.Message) {
	switch msg.Kind {
	case connectivity.KindSensor:
		e.handleSensor(msg)
	case connectivity.KindAck:
		e.handleAck(msg)
	case connectivity.KindStatus:
		e.handleStatus(msg)
	}
}

func (e *Engine) handleSensor(msg connectivity.Message) {
	payload, err := messages.ParseSensorPayload(msg.Payload)
	if err != nil {
		metrics.InvalidPayloads.WithLabelValues(string(connectivity.KindSensor)).Inc()
		e.log.Warn("discarding malformed telemetry", zap.String("device", msg.DeviceID), zap.Error(err))
		return
	}
	if payload.DeviceID != msg.DeviceID {
		metrics.InvalidPayloads.WithLabelValues(string(connectivity.KindSensor)).Inc()
		e.log.Warn("telemetry deviceId does not match topic",
			zap.String("topic_device", msg.DeviceID), zap.String("payload_device", payload.DeviceID))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	device, err := e.store.GetDevice(ctx, payload.DeviceID)
	if errors.Is(err, store.ErrDeviceNotFound) {
		e.log.Warn("telemetry from unknown device, requesting re-registration",
			zap.String("device", payload.DeviceID))
		e.notifyReregister(payload.DeviceID)
		return
	}
	if err != nil {
		e.log.Error("load device failed", zap.String("device", payload.DeviceID), zap.Error(err))
		return
	}

	now := e.now()
	seen := model.DevicePatch{LastSeenAt: &now}
	// Device-reported pump state is authoritative; sync on divergence.
	if payload.PumpState != nil {
		reported := *payload.PumpState == 1
		if reported != device.ActualPumpOn {
			e.log.Info("pump state diverged, syncing from device",
				zap.String("device", device.DeviceID),
				zap.Bool("reported", reported), zap.Bool("cached", device.ActualPumpOn))
			seen.ActualPumpOn = &reported
		}
		device.ActualPumpOn = reported
	}
	if err := e.store.UpsertDevice(ctx, device.DeviceID, seen); err != nil {
		e.log.Warn("device state sync failed", zap.String("device", device.DeviceID), zap.Error(err))
	}

	if !device.RegistrationConfirmed {
		e.confirmRegistration(ctx, device)
	}

	thresholds, fellBack := ResolveThresholds(device)
	if fellBack {
		e.log.Warn("no threshold entry for plant profile, using defaults",
			zap.String("device", device.DeviceID),
			zap.String("soil", string(device.Plant.SoilType)),
			zap.String("sun", string(device.Plant.SunExposure)),
			zap.String("stage", string(device.Plant.GrowthStage)))
	}

	raws := payload.Zones()
	readings := make([]fusion.ZoneReading, 0, len(raws))
	for i, raw := range raws {
		readings = append(readings, fusion.NewZoneReading(i, raw, device.CalibrationFor(i), thresholds))
	}
	result := fusion.Fuse(readings)

	// Readings are recorded for diagnostics even when no actuation follows.
	if e.sink != nil {
		e.sink.WriteReading(device.DeviceID, readings, result, now)
	}

	if result.ValidSensorCount < 2 {
		e.log.Warn("too few valid zones for a majority, skipping actuation",
			zap.String("device", device.DeviceID),
			zap.Int("valid", result.ValidSensorCount),
			zap.String("health", string(result.SensorHealth)))
		return
	}
	if device.WateringMode != model.ModeAuto {
		return
	}

	switch {
	case result.MajorityDry && !device.ActualPumpOn:
		duration := ComputeDuration(result.AvgMoisture, thresholds.DryPercent, device.Plant)
		e.IssueCommand(ctx, device.DeviceID, model.CommandPumpOn, map[string]interface{}{
			"duration": duration,
		}, "majority of zones below dry threshold", "sensor")
	case result.WetVotes >= 2 && device.ActualPumpOn:
		e.IssueCommand(ctx, device.DeviceID, model.CommandPumpOff, nil,
			"majority of zones above wet threshold", "sensor")
	}
}

// IssueCommand is the single shared actuation primitive for the sensor and
// schedule paths. Debounce short-circuits before any CommandRecord exists;
// an audit-write failure is logged but never blocks the publish.
func (e *Engine) IssueCommand(ctx context.Context, deviceID, commandType string, params map[string]interface{}, reason, source string) bool {
	if !e.debounce.ShouldSend(deviceID, commandType) {
		metrics.DebounceSuppressed.Inc()
		e.log.Info("command suppressed by debounce",
			zap.String("device", deviceID), zap.String("command", commandType))
		return false
	}

	now := e.now()
	commandID := uuid.NewString()
	rec := model.CommandRecord{
		ID:          commandID,
		DeviceID:    deviceID,
		CommandType: commandType,
		Parameters:  params,
		Status:      model.CommandPending,
		CreatedAt:   now,
	}
	if err := e.store.CreateCommandRecord(ctx, rec); err != nil {
		e.log.Warn("command audit write failed", zap.String("device", deviceID), zap.Error(err))
	}

	cmd := messages.CommandPayload{
		Command:   commandType,
		Reason:    reason,
		Source:    source,
		CommandID: commandID,
		Timestamp: now.Unix(),
	}
	if d, ok := params["duration"].(int); ok {
		cmd.Duration = d
	}
	payload, _ := json.Marshal(cmd)
	e.pub.Publish(e.topics.CommandTopic(deviceID), payload, false)
	e.debounce.MarkSent(deviceID, commandType)
	metrics.CommandsIssued.WithLabelValues(commandType).Inc()

	sent := model.CommandSent
	if err := e.store.UpdateCommandRecord(ctx, commandID, model.CommandPatch{Status: &sent}); err != nil {
		e.log.Warn("command status update failed", zap.String("command_id", commandID), zap.Error(err))
	}
	if err := e.store.UpsertDevice(ctx, deviceID, model.DevicePatch{
		LastCommand:   &commandType,
		LastCommandAt: &now,
	}); err != nil {
		e.log.Warn("device last-command update failed", zap.String("device", deviceID), zap.Error(err))
	}

	e.log.Info("command issued",
		zap.String("device", deviceID), zap.String("command", commandType),
		zap.String("source", source), zap.String("reason", reason),
		zap.String("command_id", commandID))
	return true
}

// confirmRegistration runs the one-time handshake for a device that was
// provisioned but never confirmed: tell it registration succeeded (which
// cancels its on-device provisioning timer), run a short connectivity-test
// watering, then mark it confirmed and cancel our watchdog.
func (e *Engine) confirmRegistration(ctx context.Context, device model.DeviceState) {
	e.regMu.Lock()
	if e.registering[device.DeviceID] {
		e.regMu.Unlock()
		return
	}
	e.registering[device.DeviceID] = true
	e.regMu.Unlock()

	e.log.Info("confirming device registration", zap.String("device", device.DeviceID))
	e.IssueCommand(ctx, device.DeviceID, model.CommandRegistered, nil, "registration confirmed", "registration")
	e.IssueCommand(ctx, device.DeviceID, model.CommandPumpOn, map[string]interface{}{
		"duration": registrationTestSeconds,
	}, "registration connectivity test", "registration")

	confirmed := true
	if err := e.store.UpsertDevice(ctx, device.DeviceID, model.DevicePatch{
		RegistrationConfirmed: &confirmed,
	}); err != nil {
		e.log.Error("marking registration confirmed failed",
			zap.String("device", device.DeviceID), zap.Error(err))
	}
	if e.onRegistered != nil {
		e.onRegistered(device.DeviceID)
	}
}

// notifyReregister asks a device the store does not know about to go through
// provisioning again, arming the watchdog so a device that never completes
// gets its credentials reset. No audit record: there is no device row to
// hang it on.
func (e *Engine) notifyReregister(deviceID string) {
	if !e.debounce.ShouldSend(deviceID, model.CommandReregister) {
		return
	}
	cmd := messages.CommandPayload{
		Command:   model.CommandReregister,
		Reason:    "device unknown to control plane",
		CommandID: uuid.NewString(),
		Timestamp: e.now().Unix(),
	}
	payload, _ := json.Marshal(cmd)
	e.pub.Publish(e.topics.CommandTopic(deviceID), payload, false)
	e.debounce.MarkSent(deviceID, model.CommandReregister)
	if e.tracker != nil {
		e.tracker.StartTracking(deviceID)
	}
}

func (e *Engine) handleAck(msg connectivity.Message) {
	ack, err := messages.ParseAckPayload(msg.Payload)
	if err != nil {
		metrics.InvalidPayloads.WithLabelValues(string(connectivity.KindAck)).Inc()
		e.log.Warn("discarding malformed ack", zap.String("device", msg.DeviceID), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if _, err := e.store.GetDevice(ctx, msg.DeviceID); err != nil {
		if errors.Is(err, store.ErrDeviceNotFound) {
			e.log.Warn("discarding ack from unknown device", zap.String("device", msg.DeviceID))
		} else {
			e.log.Error("load device failed", zap.String("device", msg.DeviceID), zap.Error(err))
		}
		return
	}

	now := e.now()
	status := model.CommandExecuted
	if ack.Status != "ok" {
		status = model.CommandFailed
	}
	if err := e.store.UpdateCommandRecord(ctx, ack.CommandID, model.CommandPatch{
		Status:     &status,
		ExecutedAt: &now,
	}); err != nil {
		e.log.Warn("ack audit update failed",
			zap.String("command_id", ack.CommandID), zap.Error(err))
	}

	patch := model.DevicePatch{LastSeenAt: &now}
	if ack.PumpState != nil {
		pumpOn := *ack.PumpState == 1
		patch.ActualPumpOn = &pumpOn
	}
	if err := e.store.UpsertDevice(ctx, msg.DeviceID, patch); err != nil {
		e.log.Warn("ack device sync failed", zap.String("device", msg.DeviceID), zap.Error(err))
	}
	e.log.Debug("command acknowledged",
		zap.String("device", msg.DeviceID),
		zap.String("command_id", ack.CommandID),
		zap.String("status", string(status)))
}

func (e *Engine) handleStatus(msg connectivity.Message) {
	st, err := messages.ParseStatusPayload(msg.Payload)
	if err != nil {
		metrics.InvalidPayloads.WithLabelValues(string(connectivity.KindStatus)).Inc()
		e.log.Warn("discarding malformed status", zap.String("device", msg.DeviceID), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if _, err := e.store.GetDevice(ctx, msg.DeviceID); err != nil {
		if errors.Is(err, store.ErrDeviceNotFound) {
			e.log.Warn("discarding status from unknown device", zap.String("device", msg.DeviceID))
		} else {
			e.log.Error("load device failed", zap.String("device", msg.DeviceID), zap.Error(err))
		}
		return
	}

	now := e.now()
	status := model.StatusOffline
	if st.Status == "online" {
		status = model.StatusOnline
	}
	if err := e.store.UpsertDevice(ctx, msg.DeviceID, model.DevicePatch{
		Status:     &status,
		LastSeenAt: &now,
	}); err != nil {
		e.log.Warn("status sync failed", zap.String("device", msg.DeviceID), zap.Error(err))
	}
}
