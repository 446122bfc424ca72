// Package authz decides whether an authenticated principal may act on an owned entity.
package authz

import (
	"github.com/google/uuid"
	"github.com/homegate/server/internal/apperr"
)

// Principal is the authenticated actor attached to a request.
type Principal interface {
	// Owner returns the user on whose behalf the principal acts.
	Owner() uuid.UUID
}

// UserPrincipal is produced by a valid user session token.
type UserPrincipal struct {
	UserID   uuid.UUID
	ClientID string
	Scope    string
}

func (p UserPrincipal) Owner() uuid.UUID { return p.UserID }

// DevicePrincipal is produced by a valid device access token.
type DevicePrincipal struct {
	DeviceID string
	TokenID  uuid.UUID
	// OwnerID is the user the device belongs to.
	OwnerID uuid.UUID
}

func (p DevicePrincipal) Owner() uuid.UUID { return p.OwnerID }

// Allowed reports whether p may act on an entity owned by ownerID.
func Allowed(p Principal, ownerID uuid.UUID) bool {
	if p == nil || ownerID == uuid.Nil {
		return false
	}
	return p.Owner() == ownerID
}

// Authorize returns an AuthorizationError when p does not own the entity.
// Callers must resolve the entity first so a missing entity yields NotFound.
func Authorize(p Principal, ownerID uuid.UUID, entity string) error {
	if !Allowed(p, ownerID) {
		return apperr.Authorization("You do not have access to this " + entity)
	}
	return nil
}
