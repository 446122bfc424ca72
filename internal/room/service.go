// Package room groups a user's devices into named rooms.
package room

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/homegate/server/internal/apperr"
	"github.com/homegate/server/internal/audit"
	"github.com/homegate/server/internal/authz"
	"github.com/homegate/server/internal/model"
	"github.com/homegate/server/internal/repo"
)

const maxNameLength = 255

// Service implements room operations
type Service struct {
	rooms   repo.RoomRepo
	devices repo.DeviceRepo
	audit   audit.Recorder
}

// NewService creates a new room service
func NewService(rooms repo.RoomRepo, devices repo.DeviceRepo, recorder audit.Recorder) *Service {
	return &Service{rooms: rooms, devices: devices, audit: recorder}
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return "", apperr.Validation("Room name must be between 1 and 255 characters")
	}
	return name, nil
}

func cleanDescription(description *string) *string {
	if description == nil {
		return nil
	}
	d := strings.TrimSpace(*description)
	if d == "" {
		return nil
	}
	return &d
}

func (s *Service) Create(ctx context.Context, p authz.Principal, name string, description *string, meta audit.Meta) (model.Room, error) {
	name, err := cleanName(name)
	if err != nil {
		return model.Room{}, err
	}
	rm, err := s.rooms.Create(ctx, p.Owner(), name, cleanDescription(description))
	if err != nil {
		return model.Room{}, apperr.Internal("create room failed", err)
	}

	s.audit.Record(audit.Entry(p.Owner(), "", "room_created", meta, map[string]any{
		"roomId": rm.ID.String(),
		"name":   rm.Name,
	}))
	slog.Info("room created", "roomId", rm.ID, "userId", p.Owner())
	return rm, nil
}

func (s *Service) List(ctx context.Context, p authz.Principal) ([]model.Room, error) {
	rooms, err := s.rooms.ListByUser(ctx, p.Owner())
	if err != nil {
		return nil, apperr.Internal("list rooms failed", err)
	}
	return rooms, nil
}

func (s *Service) Get(ctx context.Context, p authz.Principal, roomID uuid.UUID) (model.Room, error) {
	return authz.CheckRoom(ctx, s.rooms, p, roomID)
}

// Update renames the room and replaces its description. A nil name keeps the current one.
func (s *Service) Update(ctx context.Context, p authz.Principal, roomID uuid.UUID, name *string, description *string) (model.Room, error) {
	current, err := authz.CheckRoom(ctx, s.rooms, p, roomID)
	if err != nil {
		return model.Room{}, err
	}
	newName := current.Name
	if name != nil {
		if newName, err = cleanName(*name); err != nil {
			return model.Room{}, err
		}
	}
	updated, err := s.rooms.Update(ctx, roomID, newName, cleanDescription(description))
	if err != nil {
		return model.Room{}, apperr.Internal("update room failed", err)
	}
	slog.Info("room updated", "roomId", roomID, "userId", p.Owner())
	return updated, nil
}

// Delete removes the room. Member devices are detached, never deleted.
func (s *Service) Delete(ctx context.Context, p authz.Principal, roomID uuid.UUID) error {
	if _, err := authz.CheckRoom(ctx, s.rooms, p, roomID); err != nil {
		return err
	}
	if err := s.rooms.Delete(ctx, roomID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return apperr.NotFound("Room not found")
		}
		return apperr.Internal("delete room failed", err)
	}
	slog.Info("room deleted", "roomId", roomID, "userId", p.Owner())
	return nil
}

// AddDevice puts one of the principal's devices into one of its rooms. Adding twice is a no-op.
func (s *Service) AddDevice(ctx context.Context, p authz.Principal, roomID uuid.UUID, deviceID string) error {
	if deviceID == "" {
		return apperr.Validation("Device ID is required")
	}
	if _, err := authz.CheckRoom(ctx, s.rooms, p, roomID); err != nil {
		return err
	}
	if _, err := authz.CheckDevice(ctx, s.devices, p, deviceID); err != nil {
		return err
	}
	if err := s.rooms.AddDevice(ctx, roomID, deviceID); err != nil {
		return apperr.Internal("add device to room failed", err)
	}
	slog.Info("device added to room", "roomId", roomID, "deviceId", deviceID, "userId", p.Owner())
	return nil
}

func (s *Service) RemoveDevice(ctx context.Context, p authz.Principal, roomID uuid.UUID, deviceID string) error {
	if _, err := authz.CheckRoom(ctx, s.rooms, p, roomID); err != nil {
		return err
	}
	if err := s.rooms.RemoveDevice(ctx, roomID, deviceID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return apperr.NotFound("Device is not in this room")
		}
		return apperr.Internal("remove device from room failed", err)
	}
	slog.Info("device removed from room", "roomId", roomID, "deviceId", deviceID, "userId", p.Owner())
	return nil
}

func (s *Service) Devices(ctx context.Context, p authz.Principal, roomID uuid.UUID) ([]model.Device, error) {
	if _, err := authz.CheckRoom(ctx, s.rooms, p, roomID); err != nil {
		return nil, err
	}
	devices, err := s.rooms.ListDevices(ctx, roomID)
	if err != nil {
		return nil, apperr.Internal("list room devices failed", err)
	}
	return devices, nil
}
