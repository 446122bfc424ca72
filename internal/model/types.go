package model

import (
	"time"

	"github.com/google/uuid"
)

// StateDoc is an opaque device state document.
type StateDoc map[string]any

// User represents an account holder
type User struct {
	ID            uuid.UUID
	Email         string
	PasswordHash  string
	Name          string
	IsActive      bool
	EmailVerified bool
	CreatedAt     time.Time
}

// Device represents a smart-home device owned by a user
type Device struct {
	ID         string
	UserID     uuid.UUID
	Name       string
	Type       string
	Traits     []string
	Attributes map[string]any
	Room       *string
	IsOnline   bool
	LastSeen   *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DeviceState is the last known state of a device
type DeviceState struct {
	DeviceID   string
	State      StateDoc
	UpdatedAt  time.Time
	ReportedAt time.Time
}

// DeviceAccessToken is a long-lived device-to-cloud credential. Only the hash is stored.
type DeviceAccessToken struct {
	ID        uuid.UUID
	DeviceID  string
	TokenHash string
	Name      string
	CreatedAt time.Time
	ExpiresAt *time.Time
	Revoked   bool
}

// Usable reports whether the token may still authenticate at now.
func (t DeviceAccessToken) Usable(now time.Time) bool {
	if t.Revoked {
		return false
	}
	return t.ExpiresAt == nil || now.Before(*t.ExpiresAt)
}

// Room groups devices for a user
type Room struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Name        string
	Description *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OAuthToken is the server-side record of an issued user session
type OAuthToken struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	AccessTokenHash  string
	RefreshTokenHash string
	ClientID         string
	Scope            string
	ExpiresAt        time.Time
	Revoked          bool
	CreatedAt        time.Time
}

// AuditLogEntry is an immutable audit record
type AuditLogEntry struct {
	ID        uuid.UUID
	UserID    *uuid.UUID
	DeviceID  *string
	Action    string
	IPAddress string
	UserAgent string
	Metadata  map[string]any
	CreatedAt time.Time
}
