package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/homegate/server/internal/model"
)

// DeviceTokenRepo defines the interface for per-device access tokens
type DeviceTokenRepo interface {
	Create(ctx context.Context, deviceID, tokenHash, name string, expiresAt *time.Time) (model.DeviceAccessToken, error)
	// ListByDevice returns every token of the device, revoked ones included.
	ListByDevice(ctx context.Context, deviceID string) ([]model.DeviceAccessToken, error)
	// Revoke revokes tokenID; ErrNotFound unless it belongs to deviceID.
	Revoke(ctx context.Context, deviceID string, tokenID uuid.UUID) error
}

type deviceTokenRepo struct {
	db *sql.DB
}

// NewDeviceTokenRepo creates a new DeviceTokenRepo instance
func NewDeviceTokenRepo(db *sql.DB) DeviceTokenRepo {
	return &deviceTokenRepo{db: db}
}

const deviceTokenColumns = `id, device_id, token_hash, name, created_at, expires_at, revoked`

func scanDeviceToken(row interface{ Scan(...any) error }) (model.DeviceAccessToken, error) {
	var t model.DeviceAccessToken
	err := row.Scan(&t.ID, &t.DeviceID, &t.TokenHash, &t.Name, &t.CreatedAt, &t.ExpiresAt, &t.Revoked)
	return t, err
}

// Create stores a new token hash
func (r *deviceTokenRepo) Create(ctx context.Context, deviceID, tokenHash, name string, expiresAt *time.Time) (model.DeviceAccessToken, error) {
	t, err := scanDeviceToken(r.db.QueryRowContext(ctx, `
		INSERT INTO device_access_tokens (device_id, token_hash, name, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING `+deviceTokenColumns, deviceID, tokenHash, name, expiresAt))
	if err != nil {
		return model.DeviceAccessToken{}, mapErr("insert device token", err)
	}
	return t, nil
}

// ListByDevice returns all tokens of a device, oldest first
func (r *deviceTokenRepo) ListByDevice(ctx context.Context, deviceID string) ([]model.DeviceAccessToken, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+deviceTokenColumns+`
		FROM device_access_tokens
		WHERE device_id = $1
		ORDER BY created_at
	`, deviceID)
	if err != nil {
		return nil, mapErr("list device tokens", err)
	}
	defer rows.Close()
	tokens := make([]model.DeviceAccessToken, 0)
	for rows.Next() {
		t, err := scanDeviceToken(rows)
		if err != nil {
			return nil, mapErr("scan device token", err)
		}
		tokens = append(tokens, t)
	}
	return tokens, mapErr("iterate device tokens", rows.Err())
}

// Revoke sets revoked for a token scoped to its device
func (r *deviceTokenRepo) Revoke(ctx context.Context, deviceID string, tokenID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE device_access_tokens SET revoked = true
		WHERE id = $1 AND device_id = $2
	`, tokenID, deviceID)
	if err != nil {
		return mapErr("revoke device token", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("revoke device token: %w", ErrNotFound)
	}
	return nil
}
