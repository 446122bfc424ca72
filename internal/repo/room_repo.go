package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/homegate/server/internal/model"
)

// RoomRepo defines the interface for rooms and room membership
type RoomRepo interface {
	Create(ctx context.Context, userID uuid.UUID, name string, description *string) (model.Room, error)
	GetByID(ctx context.Context, id uuid.UUID) (model.Room, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Room, error)
	Update(ctx context.Context, id uuid.UUID, name string, description *string) (model.Room, error)
	// Delete removes the room and its membership rows, never the devices.
	Delete(ctx context.Context, id uuid.UUID) error
	AddDevice(ctx context.Context, roomID uuid.UUID, deviceID string) error
	RemoveDevice(ctx context.Context, roomID uuid.UUID, deviceID string) error
	ListDevices(ctx context.Context, roomID uuid.UUID) ([]model.Device, error)
}

type roomRepo struct {
	db *sql.DB
}

// NewRoomRepo creates a new RoomRepo instance
func NewRoomRepo(db *sql.DB) RoomRepo {
	return &roomRepo{db: db}
}

const roomColumns = `id, user_id, name, description, created_at, updated_at`

func scanRoom(row interface{ Scan(...any) error }) (model.Room, error) {
	var rm model.Room
	err := row.Scan(&rm.ID, &rm.UserID, &rm.Name, &rm.Description, &rm.CreatedAt, &rm.UpdatedAt)
	return rm, err
}

// Create inserts a room
func (r *roomRepo) Create(ctx context.Context, userID uuid.UUID, name string, description *string) (model.Room, error) {
	rm, err := scanRoom(r.db.QueryRowContext(ctx, `
		INSERT INTO rooms (user_id, name, description)
		VALUES ($1, $2, $3)
		RETURNING `+roomColumns, userID, name, description))
	if err != nil {
		return model.Room{}, mapErr("insert room", err)
	}
	return rm, nil
}

// GetByID retrieves a room
func (r *roomRepo) GetByID(ctx context.Context, id uuid.UUID) (model.Room, error) {
	rm, err := scanRoom(r.db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = $1`, id))
	if err != nil {
		return model.Room{}, mapErr("query room", err)
	}
	return rm, nil
}

// ListByUser returns the user's rooms, newest first
func (r *roomRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Room, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+roomColumns+` FROM rooms WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, mapErr("list rooms", err)
	}
	defer rows.Close()
	rooms := make([]model.Room, 0)
	for rows.Next() {
		rm, err := scanRoom(rows)
		if err != nil {
			return nil, mapErr("scan room", err)
		}
		rooms = append(rooms, rm)
	}
	return rooms, mapErr("iterate rooms", rows.Err())
}

// Update sets name and description
func (r *roomRepo) Update(ctx context.Context, id uuid.UUID, name string, description *string) (model.Room, error) {
	rm, err := scanRoom(r.db.QueryRowContext(ctx, `
		UPDATE rooms SET name = $1, description = $2, updated_at = now()
		WHERE id = $3
		RETURNING `+roomColumns, name, description, id))
	if err != nil {
		return model.Room{}, mapErr("update room", err)
	}
	return rm, nil
}

// Delete removes a room; room_devices rows cascade
func (r *roomRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM rooms WHERE id = $1`, id)
	if err != nil {
		return mapErr("delete room", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("delete room: %w", ErrNotFound)
	}
	return nil
}

// AddDevice links a device to a room. Adding twice is a no-op.
func (r *roomRepo) AddDevice(ctx context.Context, roomID uuid.UUID, deviceID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO room_devices (room_id, device_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, roomID, deviceID)
	return mapErr("add device to room", err)
}

// RemoveDevice unlinks a device from a room
func (r *roomRepo) RemoveDevice(ctx context.Context, roomID uuid.UUID, deviceID string) error {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM room_devices WHERE room_id = $1 AND device_id = $2
	`, roomID, deviceID)
	if err != nil {
		return mapErr("remove device from room", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("remove device from room: %w", ErrNotFound)
	}
	return nil
}

// ListDevices returns the devices linked to a room
func (r *roomRepo) ListDevices(ctx context.Context, roomID uuid.UUID) ([]model.Device, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT d.id, d.user_id, d.name, d.type, d.traits, d.attributes, d.room, d.is_online, d.last_seen, d.created_at, d.updated_at
		FROM devices d
		JOIN room_devices rd ON d.id = rd.device_id
		WHERE rd.room_id = $1
		ORDER BY rd.added_at
	`, roomID)
	if err != nil {
		return nil, mapErr("list room devices", err)
	}
	defer rows.Close()
	devices := make([]model.Device, 0)
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, mapErr("scan room device", err)
		}
		devices = append(devices, d)
	}
	return devices, mapErr("iterate room devices", rows.Err())
}
