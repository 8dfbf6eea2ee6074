// Package scheduler fires time-of-day waterings independent of live sensor
// data. One process-wide ticker scans schedule-mode devices once per minute
// and matches slots at minute granularity: a tick missed to downtime or
// clock drift skips that occurrence, there is no windowing.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hydrosense/control-plane/internal/metrics"
	"github.com/hydrosense/control-plane/internal/model"
	"github.com/hydrosense/control-plane/internal/store"
)

// CommandIssuer is the engine's shared actuation primitive; going through it
// keeps schedule firings inside the same per-device debounce as the sensor
// path.
type CommandIssuer interface {
	IssueCommand(ctx context.Context, deviceID, commandType string, params map[string]interface{}, reason, source string) bool
}

// Executor is the schedule executor.
type Executor struct {
	store    store.Store
	issuer   CommandIssuer
	loc      *time.Location
	interval time.Duration
	log      *zap.Logger
}

func NewExecutor(st store.Store, issuer CommandIssuer, loc *time.Location, log *zap.Logger) *Executor {
	if loc == nil {
		loc = time.Local
	}
	return &Executor{
		store:    st,
		issuer:   issuer,
		loc:      loc,
		interval: time.Minute,
		log:      log,
	}
}

// Run ticks once per minute until the context is cancelled.
func (e *Executor) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	e.log.Info("schedule executor started", zap.String("timezone", e.loc.String()))
	for {
		select {
		case <-ctx.Done():
			e.log.Info("schedule executor stopped")
			return
		case now := <-ticker.C:
			e.Tick(ctx, now.In(e.loc))
		}
	}
}

// Tick processes one minute. A failure on one device never stops the rest
// of the tick.
func (e *Executor) Tick(ctx context.Context, now time.Time) {
	now = now.In(e.loc)
	devices, err := e.store.ListDevicesInScheduleMode(ctx)
	if err != nil {
		e.log.Error("schedule scan failed", zap.Error(err))
		return
	}
	day := now.Weekday()
	hhmm := now.Format("15:04")
	for _, device := range devices {
		if err := e.processDevice(ctx, device, now, day, hhmm); err != nil {
			e.log.Error("schedule tick failed for device",
				zap.String("device", device.DeviceID), zap.Error(err))
		}
	}
}

func (e *Executor) processDevice(ctx context.Context, device model.DeviceState, now time.Time, day time.Weekday, hhmm string) error {
	if device.WateringMode != model.ModeSchedule {
		return nil
	}
	st := device.ScheduleState
	if !st.Enabled || st.Paused || len(device.Schedules) == 0 {
		return nil
	}

	fired := false
	for i := range device.Schedules {
		slot := &device.Schedules[i]
		if !slot.IsActive || slot.Time != hhmm || !slot.RunsOnDay(day) {
			continue
		}
		issued := e.issuer.IssueCommand(ctx, device.DeviceID, model.CommandPumpOn, map[string]interface{}{
			"duration": slot.DurationSeconds,
		}, fmt.Sprintf("schedule slot %s", slot.ID), "schedule")
		if !issued {
			continue
		}
		metrics.ScheduleFired.Inc()
		fired = true
		ts := now
		slot.LastExecution = &ts
		st.LastExecutedAt = &ts
		st.ExecutionCount++
		e.log.Info("schedule slot fired",
			zap.String("device", device.DeviceID),
			zap.String("slot", slot.ID),
			zap.Int("duration_s", slot.DurationSeconds))
	}
	if !fired {
		return nil
	}

	st.NextScheduledAt = NextRun(device.Schedules, now)
	patch := model.DevicePatch{
		Schedules:     &device.Schedules,
		ScheduleState: &st,
	}
	if err := e.store.UpsertDevice(ctx, device.DeviceID, patch); err != nil {
		return fmt.Errorf("persist schedule state: %w", err)
	}
	return nil
}

// NextRun computes the nearest future (day, time) across all active slots at
// minute granularity, wrapping forward by up to seven days. A slot time that
// already passed today (the current minute included) lands seven days out.
func NextRun(slots []model.ScheduleSlot, now time.Time) *time.Time {
	var best *time.Time
	for _, slot := range slots {
		if !slot.IsActive {
			continue
		}
		hour, minute, ok := parseHHMM(slot.Time)
		if !ok {
			continue
		}
		for offset := 0; offset <= 7; offset++ {
			day := now.AddDate(0, 0, offset)
			if !slot.RunsOnDay(day.Weekday()) {
				continue
			}
			candidate := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, now.Location())
			if !candidate.After(now) {
				continue
			}
			if best == nil || candidate.Before(*best) {
				c := candidate
				best = &c
			}
			break
		}
	}
	return best
}

func parseHHMM(s string) (hour, minute int, ok bool) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, false
	}
	return t.Hour(), t.Minute(), true
}
