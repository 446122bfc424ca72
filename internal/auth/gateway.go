package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/homegate/server/internal/apperr"
	"github.com/homegate/server/internal/authz"
	"github.com/homegate/server/internal/metrics"
	"github.com/homegate/server/internal/repo"
)

// Gateway verifies user session tokens and device access tokens
type Gateway struct {
	jwt          *JWTService
	oauthRepo    repo.OAuthTokenRepo
	deviceRepo   repo.DeviceRepo
	deviceTokens repo.DeviceTokenRepo
	now          func() time.Time
}

// NewGateway creates a new authentication gateway
func NewGateway(jwt *JWTService, oauthRepo repo.OAuthTokenRepo, deviceRepo repo.DeviceRepo, deviceTokens repo.DeviceTokenRepo) *Gateway {
	return &Gateway{
		jwt:          jwt,
		oauthRepo:    oauthRepo,
		deviceRepo:   deviceRepo,
		deviceTokens: deviceTokens,
		now:          time.Now,
	}
}

func userFailure(msg string) error {
	metrics.AuthFailuresTotal.WithLabelValues("user").Inc()
	return apperr.Authentication(msg)
}

func deviceFailure(msg string) error {
	metrics.AuthFailuresTotal.WithLabelValues("device").Inc()
	return apperr.Authentication(msg)
}

// AuthenticateUser checks the stored token record and then the signature.
// Both must pass: the record allows revocation, the signature rules out forgery.
func (g *Gateway) AuthenticateUser(ctx context.Context, rawToken string) (authz.UserPrincipal, error) {
	if rawToken == "" {
		return authz.UserPrincipal{}, userFailure("No token provided")
	}

	record, err := g.oauthRepo.FindByAccessHash(ctx, HashToken(rawToken))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return authz.UserPrincipal{}, userFailure("Invalid token")
		}
		return authz.UserPrincipal{}, apperr.Internal("token lookup failed", err)
	}

	if !g.now().Before(record.ExpiresAt) {
		return authz.UserPrincipal{}, userFailure("Token expired")
	}

	claims, err := g.jwt.VerifyToken(rawToken)
	if err != nil {
		slog.Warn("user token signature rejected", "tokenId", record.ID, "error", err)
		return authz.UserPrincipal{}, userFailure("Invalid token signature")
	}

	userID, err := claims.UserID()
	if err != nil || userID != record.UserID {
		return authz.UserPrincipal{}, userFailure("Invalid token signature")
	}

	return authz.UserPrincipal{
		UserID:   userID,
		ClientID: claims.ClientID,
		Scope:    claims.Scope,
	}, nil
}

// AuthenticateDevice finds a usable token record of deviceID whose hash matches rawToken.
func (g *Gateway) AuthenticateDevice(ctx context.Context, rawToken, deviceID string) (authz.DevicePrincipal, error) {
	if rawToken == "" {
		return authz.DevicePrincipal{}, deviceFailure("No device token provided")
	}
	if deviceID == "" {
		return authz.DevicePrincipal{}, deviceFailure("Device ID required")
	}

	tokens, err := g.deviceTokens.ListByDevice(ctx, deviceID)
	if err != nil {
		return authz.DevicePrincipal{}, apperr.Internal("device token lookup failed", err)
	}

	hash := HashToken(rawToken)
	now := g.now()
	expired := false
	for _, t := range tokens {
		if t.Revoked || !hashesEqual(t.TokenHash, hash) {
			continue
		}
		if !t.Usable(now) {
			expired = true
			continue
		}
		device, err := g.deviceRepo.GetByID(ctx, deviceID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return authz.DevicePrincipal{}, deviceFailure("Invalid device token")
			}
			return authz.DevicePrincipal{}, apperr.Internal("device lookup failed", fmt.Errorf("device %s: %w", deviceID, err))
		}
		return authz.DevicePrincipal{DeviceID: deviceID, TokenID: t.ID, OwnerID: device.UserID}, nil
	}

	if expired {
		return authz.DevicePrincipal{}, deviceFailure("Device token expired")
	}
	return authz.DevicePrincipal{}, deviceFailure("Invalid device token")
}
