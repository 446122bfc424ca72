package authz

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/homegate/server/internal/apperr"
	"github.com/homegate/server/internal/model"
	"github.com/homegate/server/internal/repo"
)

// CheckDevice loads a device and verifies p owns it. Missing devices fail with NotFound first.
func CheckDevice(ctx context.Context, devices repo.DeviceRepo, p Principal, deviceID string) (model.Device, error) {
	d, err := devices.GetByID(ctx, deviceID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.Device{}, apperr.NotFound("Device not found")
		}
		return model.Device{}, apperr.Internal("device lookup failed", err)
	}
	if err := Authorize(p, d.UserID, "device"); err != nil {
		return model.Device{}, err
	}
	return d, nil
}

// CheckRoom loads a room and verifies p owns it. Missing rooms fail with NotFound first.
func CheckRoom(ctx context.Context, rooms repo.RoomRepo, p Principal, roomID uuid.UUID) (model.Room, error) {
	r, err := rooms.GetByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.Room{}, apperr.NotFound("Room not found")
		}
		return model.Room{}, apperr.Internal("room lookup failed", err)
	}
	if err := Authorize(p, r.UserID, "room"); err != nil {
		return model.Room{}, err
	}
	return r, nil
}
