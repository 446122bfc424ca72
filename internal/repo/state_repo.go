package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/homegate/server/internal/model"
)

// StateRepo is the device state store: one document per device.
type StateRepo interface {
	// Get returns the stored state; found is false when the device never reported.
	Get(ctx context.Context, deviceID string) (state model.DeviceState, found bool, err error)
	// Upsert replaces the whole document and refreshes both timestamps.
	Upsert(ctx context.Context, deviceID string, doc model.StateDoc) (model.DeviceState, error)
}

type stateRepo struct {
	db *sql.DB
}

// NewStateRepo creates a new StateRepo instance
func NewStateRepo(db *sql.DB) StateRepo {
	return &stateRepo{db: db}
}

func scanState(row interface{ Scan(...any) error }) (model.DeviceState, error) {
	var s model.DeviceState
	var raw []byte
	if err := row.Scan(&s.DeviceID, &raw, &s.UpdatedAt, &s.ReportedAt); err != nil {
		return model.DeviceState{}, err
	}
	if err := json.Unmarshal(raw, &s.State); err != nil {
		return model.DeviceState{}, fmt.Errorf("decode state: %w", err)
	}
	if s.State == nil {
		s.State = model.StateDoc{}
	}
	return s, nil
}

// Get retrieves the current state document
func (r *stateRepo) Get(ctx context.Context, deviceID string) (model.DeviceState, bool, error) {
	s, err := scanState(r.db.QueryRowContext(ctx, `
		SELECT device_id, state, updated_at, reported_at
		FROM device_states
		WHERE device_id = $1
	`, deviceID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.DeviceState{}, false, nil
		}
		return model.DeviceState{}, false, mapErr("query device state", err)
	}
	return s, true, nil
}

// Upsert inserts or overwrites the state document. Last writer wins.
func (r *stateRepo) Upsert(ctx context.Context, deviceID string, doc model.StateDoc) (model.DeviceState, error) {
	if doc == nil {
		doc = model.StateDoc{}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return model.DeviceState{}, fmt.Errorf("encode state: %w", err)
	}
	s, err := scanState(r.db.QueryRowContext(ctx, `
		INSERT INTO device_states (device_id, state, updated_at, reported_at)
		VALUES ($1, $2, now(), now())
		ON CONFLICT (device_id) DO UPDATE
		SET state = EXCLUDED.state, updated_at = now(), reported_at = now()
		RETURNING device_id, state, updated_at, reported_at
	`, deviceID, raw))
	if err != nil {
		return model.DeviceState{}, mapErr("upsert device state", err)
	}
	return s, nil
}
