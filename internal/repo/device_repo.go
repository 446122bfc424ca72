package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/homegate/server/internal/model"
)

// DeviceRepo defines the interface for device registry operations
type DeviceRepo interface {
	Create(ctx context.Context, d model.Device) (model.Device, error)
	GetByID(ctx context.Context, id string) (model.Device, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Device, error)
	UpdateMetadata(ctx context.Context, id, name string, room *string) (model.Device, error)
	MarkSeen(ctx context.Context, id string, online bool) error
	Delete(ctx context.Context, id string) error
}

type deviceRepo struct {
	db *sql.DB
}

// NewDeviceRepo creates a new DeviceRepo instance
func NewDeviceRepo(db *sql.DB) DeviceRepo {
	return &deviceRepo{db: db}
}

const deviceColumns = `id, user_id, name, type, traits, attributes, room, is_online, last_seen, created_at, updated_at`

func scanDevice(row interface{ Scan(...any) error }) (model.Device, error) {
	var d model.Device
	var traits, attrs []byte
	var room sql.NullString
	if err := row.Scan(&d.ID, &d.UserID, &d.Name, &d.Type, &traits, &attrs, &room, &d.IsOnline, &d.LastSeen, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return model.Device{}, err
	}
	if err := json.Unmarshal(traits, &d.Traits); err != nil {
		return model.Device{}, fmt.Errorf("decode traits: %w", err)
	}
	if err := json.Unmarshal(attrs, &d.Attributes); err != nil {
		return model.Device{}, fmt.Errorf("decode attributes: %w", err)
	}
	if d.Traits == nil {
		d.Traits = []string{}
	}
	if d.Attributes == nil {
		d.Attributes = map[string]any{}
	}
	if room.Valid {
		d.Room = &room.String
	}
	return d, nil
}

// Create inserts a device; a reused id yields ErrDuplicate
func (r *deviceRepo) Create(ctx context.Context, d model.Device) (model.Device, error) {
	traits, err := marshalJSON(d.Traits)
	if err != nil {
		return model.Device{}, fmt.Errorf("encode traits: %w", err)
	}
	attrs, err := marshalJSON(d.Attributes)
	if err != nil {
		return model.Device{}, fmt.Errorf("encode attributes: %w", err)
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO devices (id, user_id, name, type, traits, attributes, room, is_online)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+deviceColumns,
		d.ID, d.UserID, d.Name, d.Type, traits, attrs, d.Room, d.IsOnline)
	out, err := scanDevice(row)
	if err != nil {
		return model.Device{}, mapErr("insert device", err)
	}
	return out, nil
}

// GetByID retrieves a device by id
func (r *deviceRepo) GetByID(ctx context.Context, id string) (model.Device, error) {
	d, err := scanDevice(r.db.QueryRowContext(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = $1`, id))
	if err != nil {
		return model.Device{}, mapErr("query device", err)
	}
	return d, nil
}

// ListByUser returns the user's devices, newest first
func (r *deviceRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Device, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+deviceColumns+`
		FROM devices
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, mapErr("list devices", err)
	}
	defer rows.Close()
	devices := make([]model.Device, 0)
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, mapErr("scan device", err)
		}
		devices = append(devices, d)
	}
	return devices, mapErr("iterate devices", rows.Err())
}

// UpdateMetadata sets name and room hint
func (r *deviceRepo) UpdateMetadata(ctx context.Context, id, name string, room *string) (model.Device, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE devices SET name = $1, room = $2, updated_at = now()
		WHERE id = $3
		RETURNING `+deviceColumns, name, room, id)
	d, err := scanDevice(row)
	if err != nil {
		return model.Device{}, mapErr("update device", err)
	}
	return d, nil
}

// MarkSeen sets the online flag and refreshes last_seen
func (r *deviceRepo) MarkSeen(ctx context.Context, id string, online bool) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE devices SET is_online = $1, last_seen = now(), updated_at = now()
		WHERE id = $2
	`, online, id)
	if err != nil {
		return mapErr("mark device seen", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("mark device seen: %w", ErrNotFound)
	}
	return nil
}

// Delete removes a device. State, tokens and room membership cascade.
func (r *deviceRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM devices WHERE id = $1`, id)
	if err != nil {
		return mapErr("delete device", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("delete device: %w", ErrNotFound)
	}
	return nil
}
