package store

import (
	"context"

	"github.com/sony/gobreaker"

	"github.com/hydrosense/control-plane/internal/model"
)

// Breaker wraps a Store with a circuit breaker so a dead database fails fast
// instead of stalling the dispatch loop on every message. Not-found results
// are ordinary answers, not failures, and must not trip the breaker.
type Breaker struct {
	inner Store
	cb    *gobreaker.CircuitBreaker
}

var _ Store = (*Breaker)(nil)

func NewBreaker(inner Store, settings gobreaker.Settings) *Breaker {
	if settings.Name == "" {
		settings.Name = "store"
	}
	if settings.IsSuccessful == nil {
		settings.IsSuccessful = func(err error) bool {
			return err == nil || err == ErrDeviceNotFound || err == ErrCommandNotFound
		}
	}
	return &Breaker{inner: inner, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (b *Breaker) GetDevice(ctx context.Context, id string) (model.DeviceState, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.GetDevice(ctx, id)
	})
	if err != nil {
		return model.DeviceState{}, err
	}
	return v.(model.DeviceState), nil
}

func (b *Breaker) UpsertDevice(ctx context.Context, id string, patch model.DevicePatch) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.inner.UpsertDevice(ctx, id, patch)
	})
	return err
}

func (b *Breaker) CreateCommandRecord(ctx context.Context, rec model.CommandRecord) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.inner.CreateCommandRecord(ctx, rec)
	})
	return err
}

func (b *Breaker) UpdateCommandRecord(ctx context.Context, id string, patch model.CommandPatch) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.inner.UpdateCommandRecord(ctx, id, patch)
	})
	return err
}

func (b *Breaker) ListDevicesInScheduleMode(ctx context.Context) ([]model.DeviceState, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.ListDevicesInScheduleMode(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]model.DeviceState), nil
}
