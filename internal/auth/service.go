package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/homegate/server/internal/apperr"
	"github.com/homegate/server/internal/audit"
	"github.com/homegate/server/internal/model"
	"github.com/homegate/server/internal/repo"
)

const (
	DefaultClientID = "default-client"
	DefaultScope    = "openid profile email"
)

// invalidCredentials is shared by every login failure so callers cannot probe which emails exist
const invalidCredentials = "Invalid email or password"

// PublicUser is the user shape returned by signup and login
type PublicUser struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
	Name  string    `json:"name"`
}

// Profile is the user shape returned by /me
type Profile struct {
	ID            uuid.UUID `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	EmailVerified bool      `json:"emailVerified"`
	IsActive      bool      `json:"isActive"`
	CreatedAt     time.Time `json:"createdAt"`
}

// LoginResult carries the issued credentials
type LoginResult struct {
	AccessToken  string     `json:"accessToken"`
	RefreshToken string     `json:"refreshToken"`
	ExpiresIn    int        `json:"expiresIn"`
	User         PublicUser `json:"user"`
}

// LoginInput is a login attempt; empty ClientID and Scope take the defaults
type LoginInput struct {
	Email    string
	Password string
	ClientID string
	Scope    string
}

// Service orchestrates account operations
type Service struct {
	jwtService *JWTService
	hasher     PasswordHasher
	userRepo   repo.UserRepo
	oauthRepo  repo.OAuthTokenRepo
	audit      audit.Recorder
}

// NewService creates a new auth service
func NewService(
	jwtService *JWTService,
	hasher PasswordHasher,
	userRepo repo.UserRepo,
	oauthRepo repo.OAuthTokenRepo,
	recorder audit.Recorder,
) *Service {
	return &Service{
		jwtService: jwtService,
		hasher:     hasher,
		userRepo:   userRepo,
		oauthRepo:  oauthRepo,
		audit:      recorder,
	}
}

func toPublic(u model.User) PublicUser {
	return PublicUser{ID: u.ID, Email: u.Email, Name: u.Name}
}

// Signup validates and creates an account
func (s *Service) Signup(ctx context.Context, email, password, name string, meta audit.Meta) (PublicUser, error) {
	email = NormalizeEmail(email)
	name = strings.TrimSpace(name)
	if err := ValidateSignup(email, password, name); err != nil {
		return PublicUser{}, err
	}

	_, err := s.userRepo.GetByEmail(ctx, email)
	if err == nil {
		return PublicUser{}, apperr.Conflict("Email already registered")
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return PublicUser{}, apperr.Internal("user lookup failed", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return PublicUser{}, apperr.Internal("password hashing failed", err)
	}

	user, err := s.userRepo.Create(ctx, email, hash, name)
	if err != nil {
		// A concurrent signup can pass the lookup above
		if errors.Is(err, repo.ErrDuplicate) {
			return PublicUser{}, apperr.Conflict("Email already registered")
		}
		slog.Error("signup failed", "email", email, "error", err)
		return PublicUser{}, apperr.Internal("user creation failed", err)
	}

	s.audit.Record(audit.Entry(user.ID, "", "signup", meta, map[string]any{"email": email}))
	slog.Info("user signed up", "userId", user.ID, "email", email)

	return toPublic(user), nil
}

// Login verifies credentials and issues a session token plus a refresh token
func (s *Service) Login(ctx context.Context, in LoginInput, meta audit.Meta) (*LoginResult, error) {
	email := NormalizeEmail(in.Email)
	if err := ValidateLogin(email, in.Password); err != nil {
		return nil, err
	}
	clientID := in.ClientID
	if clientID == "" {
		clientID = DefaultClientID
	}
	scope := in.Scope
	if scope == "" {
		scope = DefaultScope
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			slog.Info("login rejected", "email", email, "reason", "unknown email")
			return nil, apperr.Authentication(invalidCredentials)
		}
		return nil, apperr.Internal("user lookup failed", err)
	}

	ok, err := s.hasher.Verify(in.Password, user.PasswordHash)
	if err != nil {
		return nil, apperr.Internal("password verification failed", err)
	}
	if !ok || !user.IsActive {
		slog.Info("login rejected", "userId", user.ID, "reason", "bad credentials or inactive")
		return nil, apperr.Authentication(invalidCredentials)
	}

	accessToken, claims, err := s.jwtService.SignAccessToken(user.ID, clientID, scope)
	if err != nil {
		return nil, apperr.Internal("token signing failed", err)
	}
	refreshToken, refreshHash, err := GenerateOpaqueToken()
	if err != nil {
		return nil, apperr.Internal("refresh token generation failed", err)
	}

	_, err = s.oauthRepo.Create(ctx, model.OAuthToken{
		UserID:           user.ID,
		AccessTokenHash:  HashToken(accessToken),
		RefreshTokenHash: refreshHash,
		ClientID:         clientID,
		Scope:            scope,
		ExpiresAt:        claims.ExpiresAt.Time,
	})
	if err != nil {
		return nil, apperr.Internal("token persistence failed", fmt.Errorf("user %s: %w", user.ID, err))
	}

	s.audit.Record(audit.Entry(user.ID, "", "login", meta, map[string]any{"clientId": clientID}))
	slog.Info("user logged in", "userId", user.ID, "clientId", clientID)

	return &LoginResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(AccessTokenTTL / time.Second),
		User:         toPublic(user),
	}, nil
}

// CurrentUser returns the profile of the authenticated user
func (s *Service) CurrentUser(ctx context.Context, userID uuid.UUID) (Profile, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return Profile{}, apperr.NotFound("User not found")
		}
		return Profile{}, apperr.Internal("user lookup failed", err)
	}
	return Profile{
		ID:            user.ID,
		Email:         user.Email,
		Name:          user.Name,
		EmailVerified: user.EmailVerified,
		IsActive:      user.IsActive,
		CreatedAt:     user.CreatedAt,
	}, nil
}

// Logout only records the event; the stored token stays valid until it expires
func (s *Service) Logout(ctx context.Context, userID uuid.UUID) {
	slog.InfoContext(ctx, "user logged out", "userId", userID)
}
