package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/homegate/server/internal/model"
)

// AuditRepo is the append-only audit log
type AuditRepo interface {
	Append(ctx context.Context, e model.AuditLogEntry) error
}

type auditRepo struct {
	db *sql.DB
}

// NewAuditRepo creates a new AuditRepo instance
func NewAuditRepo(db *sql.DB) AuditRepo {
	return &auditRepo{db: db}
}

// Append inserts one entry
func (r *auditRepo) Append(ctx context.Context, e model.AuditLogEntry) error {
	meta, err := marshalJSON(e.Metadata)
	if err != nil {
		return fmt.Errorf("encode audit metadata: %w", err)
	}
	var ip, ua *string
	if e.IPAddress != "" {
		ip = &e.IPAddress
	}
	if e.UserAgent != "" {
		ua = &e.UserAgent
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO audit_logs (user_id, device_id, action, ip_address, user_agent, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.UserID, e.DeviceID, e.Action, ip, ua, meta)
	return mapErr("insert audit log", err)
}
