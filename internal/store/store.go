// Package store is the narrow persistence port the control plane consumes.
// The core never issues storage queries beyond this contract; the record
// tables themselves belong to the surrounding CRUD service.
package store

import (
	"context"
	"errors"

	"github.com/hydrosense/control-plane/internal/model"
)

// ErrDeviceNotFound is returned by GetDevice for an unknown device id.
var ErrDeviceNotFound = errors.New("device not found")

// ErrCommandNotFound is returned by UpdateCommandRecord for an unknown id.
var ErrCommandNotFound = errors.New("command record not found")

// Store is the persistence port.
type Store interface {
	GetDevice(ctx context.Context, id string) (model.DeviceState, error)
	UpsertDevice(ctx context.Context, id string, patch model.DevicePatch) error
	CreateCommandRecord(ctx context.Context, rec model.CommandRecord) error
	UpdateCommandRecord(ctx context.Context, id string, patch model.CommandPatch) error
	ListDevicesInScheduleMode(ctx context.Context) ([]model.DeviceState, error)
}
