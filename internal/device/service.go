// Package device manages registered devices, their state documents and their access tokens.
package device

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
	"github.com/homegate/server/internal/auth"
	"github.com/homegate/server/internal/authz"
	"github.com/homegate/server/internal/homegraph"
	"github.com/homegate/server/internal/metrics"
	"github.com/homegate/server/internal/model"
	"github.com/homegate/server/internal/repo"
)

// DefaultTokenTTL is the lifetime of a newly issued device token
const DefaultTokenTTL = 365 * 24 * time.Hour

// Sources label state writes in metrics and logs
const (
	SourceUser   = "user"
	SourceDevice = "device"
	SourceReport = "report"
)

const maxIDAttempts = 3

// RegisterInput describes a device to register
type RegisterInput struct {
	Name       string
	Type       string
	Traits     []string
	Attributes map[string]any
	Room       *string
}

// State is a device's current state; timestamps are nil before the first report
type State struct {
	DeviceID   string
	State      model.StateDoc
	UpdatedAt  *time.Time
	ReportedAt *time.Time
}

// IssuedToken is a freshly created device token. Token is only available here.
type IssuedToken struct {
	ID        uuid.UUID
	Token     string
	Name      string
	ExpiresAt *time.Time
}

// Service implements device operations. Every device-scoped call resolves the
// device first and then checks ownership.
type Service struct {
	devices  repo.DeviceRepo
	states   repo.StateRepo
	tokens   repo.DeviceTokenRepo
	audit    audit.Recorder
	notifier homegraph.Notifier
	tokenTTL time.Duration
	now      func() time.Time
}

// NewService creates a device service; a non-positive tokenTTL means DefaultTokenTTL
func NewService(
	devices repo.DeviceRepo,
	states repo.StateRepo,
	tokens repo.DeviceTokenRepo,
	recorder audit.Recorder,
	notifier homegraph.Notifier,
	tokenTTL time.Duration,
) *Service {
	if tokenTTL <= 0 {
		tokenTTL = DefaultTokenTTL
	}
	return &Service{
		devices:  devices,
		states:   states,
		tokens:   tokens,
		audit:    recorder,
		notifier: notifier,
		tokenTTL: tokenTTL,
		now:      time.Now,
	}
}

// NewID builds a device id from the last segment of the type taxonomy and a random suffix,
// e.g. action.devices.types.LIGHT -> device-LIGHT-1a2b3c4d
func NewID(deviceType string) string {
	segment := deviceType
	if i := strings.LastIndex(deviceType, "."); i >= 0 {
		segment = deviceType[i+1:]
	}
	return fmt.Sprintf("device-%s-%s", segment, uuid.NewString()[:8])
}

// Register creates a device for the principal. New devices start online.
func (s *Service) Register(ctx context.Context, p authz.Principal, in RegisterInput, meta audit.Meta) (model.Device, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Type = strings.TrimSpace(in.Type)
	if in.Name == "" || in.Type == "" {
		return model.Device{}, apperr.Validation("Name and type are required")
	}
	if in.Traits == nil {
		in.Traits = []string{}
	}
	if in.Attributes == nil {
		in.Attributes = map[string]any{}
	}

	userID := p.Owner()
	var (
		created model.Device
		err     error
	)
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		created, err = s.devices.Create(ctx, model.Device{
			ID:         NewID(in.Type),
			UserID:     userID,
			Name:       in.Name,
			Type:       in.Type,
			Traits:     in.Traits,
			Attributes: in.Attributes,
			Room:       in.Room,
			IsOnline:   true,
		})
		if !errors.Is(err, repo.ErrDuplicate) {
			break
		}
		slog.Warn("device id collision, retrying", "userId", userID, "attempt", attempt+1)
	}
	if err != nil {
		slog.Error("device registration failed", "userId", userID, "error", err)
		return model.Device{}, apperr.Internal("device registration failed", err)
	}

	s.audit.Record(audit.Entry(userID, created.ID, "device_registered", meta, map[string]any{
		"name": created.Name,
		"type": created.Type,
	}))
	slog.Info("device registered", "deviceId", created.ID, "userId", userID, "type", created.Type)

	return created, nil
}

// List returns the principal's devices, newest first
func (s *Service) List(ctx context.Context, p authz.Principal) ([]model.Device, error) {
	devices, err := s.devices.ListByUser(ctx, p.Owner())
	if err != nil {
		return nil, apperr.Internal("list devices failed", err)
	}
	return devices, nil
}

func (s *Service) Get(ctx context.Context, p authz.Principal, deviceID string) (model.Device, error) {
	return authz.CheckDevice(ctx, s.devices, p, deviceID)
}

// Update renames the device and replaces its room hint. A nil name keeps the current one.
func (s *Service) Update(ctx context.Context, p authz.Principal, deviceID string, name *string, room *string) (model.Device, error) {
	current, err := authz.CheckDevice(ctx, s.devices, p, deviceID)
	if err != nil {
		return model.Device{}, err
	}

	newName := current.Name
	if name != nil {
		newName = strings.TrimSpace(*name)
		if newName == "" {
			return model.Device{}, apperr.Validation("Name cannot be empty")
		}
	}

	updated, err := s.devices.UpdateMetadata(ctx, deviceID, newName, room)
	if err != nil {
		return model.Device{}, apperr.Internal("update device failed", err)
	}
	slog.Info("device updated", "deviceId", deviceID, "userId", p.Owner())
	return updated, nil
}

// Delete removes the device along with its state, tokens and room memberships
func (s *Service) Delete(ctx context.Context, p authz.Principal, deviceID string, meta audit.Meta) error {
	if _, err := authz.CheckDevice(ctx, s.devices, p, deviceID); err != nil {
		return err
	}
	if err := s.devices.Delete(ctx, deviceID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return apperr.NotFound("Device not found")
		}
		return apperr.Internal("delete device failed", err)
	}

	s.audit.Record(audit.Entry(p.Owner(), deviceID, "device_deleted", meta, nil))
	slog.Info("device deleted", "deviceId", deviceID, "userId", p.Owner())
	return nil
}

func toState(st model.DeviceState) State {
	updated, reported := st.UpdatedAt, st.ReportedAt
	return State{DeviceID: st.DeviceID, State: st.State, UpdatedAt: &updated, ReportedAt: &reported}
}

// GetState returns the stored document, or an empty one if the device never reported
func (s *Service) GetState(ctx context.Context, p authz.Principal, deviceID string) (State, error) {
	if _, err := authz.CheckDevice(ctx, s.devices, p, deviceID); err != nil {
		return State{}, err
	}
	st, found, err := s.states.Get(ctx, deviceID)
	if err != nil {
		return State{}, apperr.Internal("get device state failed", err)
	}
	if !found {
		return State{DeviceID: deviceID, State: model.StateDoc{}}, nil
	}
	return toState(st), nil
}

func (s *Service) upsert(ctx context.Context, deviceID string, doc model.StateDoc, source string) (model.DeviceState, error) {
	if doc == nil {
		return model.DeviceState{}, apperr.Validation("State is required")
	}
	st, err := s.states.Upsert(ctx, deviceID, doc)
	if err != nil {
		return model.DeviceState{}, apperr.Internal("update device state failed", err)
	}
	metrics.DeviceStateUpsertsTotal.WithLabelValues(source).Inc()
	slog.Info("device state updated", "deviceId", deviceID, "source", source)
	return st, nil
}

// SetState replaces the state document on behalf of the owner
func (s *Service) SetState(ctx context.Context, p authz.Principal, deviceID string, doc model.StateDoc) (State, error) {
	if _, err := authz.CheckDevice(ctx, s.devices, p, deviceID); err != nil {
		return State{}, err
	}
	st, err := s.upsert(ctx, deviceID, doc, SourceUser)
	if err != nil {
		return State{}, err
	}
	return toState(st), nil
}

// ReportState stores the document and publishes it to the home graph
func (s *Service) ReportState(ctx context.Context, p authz.Principal, deviceID string, doc model.StateDoc) error {
	if deviceID == "" {
		return apperr.Validation("Device ID is required")
	}
	if _, err := authz.CheckDevice(ctx, s.devices, p, deviceID); err != nil {
		return err
	}
	if _, err := s.upsert(ctx, deviceID, doc, SourceReport); err != nil {
		return err
	}
	s.notify(ctx, p.Owner(), deviceID, doc)
	return nil
}

// ReportFromDevice handles a push from the device itself, marking it online
func (s *Service) ReportFromDevice(ctx context.Context, p authz.DevicePrincipal, doc model.StateDoc, meta audit.Meta) (State, error) {
	st, err := s.upsert(ctx, p.DeviceID, doc, SourceDevice)
	if err != nil {
		return State{}, err
	}
	if err := s.devices.MarkSeen(ctx, p.DeviceID, true); err != nil {
		slog.Warn("mark device seen failed", "deviceId", p.DeviceID, "error", err)
	}
	s.notify(ctx, p.OwnerID, p.DeviceID, doc)
	s.audit.Record(audit.Entry(p.OwnerID, p.DeviceID, "device_state_reported", meta, map[string]any{"tokenId": p.TokenID.String()}))
	return toState(st), nil
}

func (s *Service) notify(ctx context.Context, owner uuid.UUID, deviceID string, doc model.StateDoc) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.ReportState(ctx, owner.String(), deviceID, doc); err != nil {
		slog.Warn("report state notification failed", "deviceId", deviceID, "error", err)
	}
}

// CreateToken issues a new device token. The raw value is returned once and only its hash is stored.
func (s *Service) CreateToken(ctx context.Context, p authz.Principal, deviceID, name string, meta audit.Meta) (IssuedToken, error) {
	if _, err := authz.CheckDevice(ctx, s.devices, p, deviceID); err != nil {
		return IssuedToken{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "default"
	}

	raw, hash, err := auth.GenerateOpaqueToken()
	if err != nil {
		return IssuedToken{}, apperr.Internal("token generation failed", err)
	}
	expiresAt := s.now().Add(s.tokenTTL)
	record, err := s.tokens.Create(ctx, deviceID, hash, name, &expiresAt)
	if err != nil {
		return IssuedToken{}, apperr.Internal("create device token failed", err)
	}

	s.audit.Record(audit.Entry(p.Owner(), deviceID, "device_token_created", meta, map[string]any{"tokenId": record.ID.String()}))
	slog.Info("device token generated", "deviceId", deviceID, "userId", p.Owner(), "tokenId", record.ID)

	return IssuedToken{ID: record.ID, Token: raw, Name: record.Name, ExpiresAt: record.ExpiresAt}, nil
}

// ListTokens returns the device's tokens including revoked ones
func (s *Service) ListTokens(ctx context.Context, p authz.Principal, deviceID string) ([]model.DeviceAccessToken, error) {
	if _, err := authz.CheckDevice(ctx, s.devices, p, deviceID); err != nil {
		return nil, err
	}
	tokens, err := s.tokens.ListByDevice(ctx, deviceID)
	if err != nil {
		return nil, apperr.Internal("list device tokens failed", err)
	}
	return tokens, nil
}

// RevokeToken revokes one token of the device. Tokens of other devices are reported as missing.
func (s *Service) RevokeToken(ctx context.Context, p authz.Principal, deviceID string, tokenID uuid.UUID, meta audit.Meta) error {
	if _, err := authz.CheckDevice(ctx, s.devices, p, deviceID); err != nil {
		return err
	}
	if err := s.tokens.Revoke(ctx, deviceID, tokenID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return apperr.NotFound("Token not found")
		}
		return apperr.Internal("revoke device token failed", err)
	}

	s.audit.Record(audit.Entry(p.Owner(), deviceID, "device_token_revoked", meta, map[string]any{"tokenId": tokenID.String()}))
	slog.Info("device token revoked", "deviceId", deviceID, "userId", p.Owner(), "tokenId", tokenID)
	return nil
}
