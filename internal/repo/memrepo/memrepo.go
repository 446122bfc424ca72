// Package memrepo provides in-memory implementations of the repository interfaces.
package memrepo

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/homegate/server/internal/model"
	"github.com/homegate/server/internal/repo"
)

// Store holds every table behind one lock.
type Store struct {
	mu          sync.RWMutex
	now         func() time.Time
	users       map[uuid.UUID]model.User
	emails      map[string]uuid.UUID
	oauth       map[uuid.UUID]model.OAuthToken
	devices     map[string]model.Device
	states      map[string]model.DeviceState
	tokens      map[uuid.UUID]model.DeviceAccessToken
	rooms       map[uuid.UUID]model.Room
	members     map[uuid.UUID][]string
	audit       []model.AuditLogEntry
	auditFail   error
	deviceOrder int64
}

// New returns an empty store
func New() *Store {
	return &Store{
		now:     time.Now,
		users:   make(map[uuid.UUID]model.User),
		emails:  make(map[string]uuid.UUID),
		oauth:   make(map[uuid.UUID]model.OAuthToken),
		devices: make(map[string]model.Device),
		states:  make(map[string]model.DeviceState),
		tokens:  make(map[uuid.UUID]model.DeviceAccessToken),
		rooms:   make(map[uuid.UUID]model.Room),
		members: make(map[uuid.UUID][]string),
	}
}

func (s *Store) Users() repo.UserRepo               { return userRepo{s} }
func (s *Store) OAuthTokens() repo.OAuthTokenRepo   { return oauthRepo{s} }
func (s *Store) Devices() repo.DeviceRepo           { return deviceRepo{s} }
func (s *Store) States() repo.StateRepo             { return stateRepo{s} }
func (s *Store) DeviceTokens() repo.DeviceTokenRepo { return tokenRepo{s} }
func (s *Store) Rooms() repo.RoomRepo               { return roomRepo{s} }
func (s *Store) Audit() repo.AuditRepo              { return auditRepo{s} }

// AuditEntries returns a copy of the appended audit log.
func (s *Store) AuditEntries() []model.AuditLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.AuditLogEntry(nil), s.audit...)
}

// FailAudit makes every later Append return err (nil restores).
func (s *Store) FailAudit(err error) {
	s.mu.Lock()
	s.auditFail = err
	s.mu.Unlock()
}

// UserCount returns the number of stored users.
func (s *Store) UserCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

func notFound(op string) error { return fmt.Errorf("%s: %w", op, repo.ErrNotFound) }

// cloneDoc deep-copies JSON-shaped values so callers never share maps with the store.
func cloneDoc[T any](in T) T {
	var out T
	raw, err := json.Marshal(in)
	if err != nil {
		return in
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return in
	}
	return out
}

func cloneDevice(d model.Device) model.Device {
	d.Traits = append([]string{}, d.Traits...)
	d.Attributes = cloneDoc(d.Attributes)
	if d.Attributes == nil {
		d.Attributes = map[string]any{}
	}
	if d.Room != nil {
		room := *d.Room
		d.Room = &room
	}
	return d
}

type userRepo struct{ s *Store }

func (r userRepo) Create(_ context.Context, email, passwordHash, name string) (model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, taken := r.s.emails[email]; taken {
		return model.User{}, fmt.Errorf("insert user: %w", repo.ErrDuplicate)
	}
	u := model.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: passwordHash,
		Name:         name,
		IsActive:     true,
		CreatedAt:    r.s.now(),
	}
	r.s.users[u.ID] = u
	r.s.emails[email] = u.ID
	return u, nil
}

func (r userRepo) GetByID(_ context.Context, id uuid.UUID) (model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return model.User{}, notFound("query user")
	}
	return u, nil
}

func (r userRepo) GetByEmail(_ context.Context, email string) (model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	id, ok := r.s.emails[email]
	if !ok {
		return model.User{}, notFound("query user by email")
	}
	return r.s.users[id], nil
}

type oauthRepo struct{ s *Store }

func (r oauthRepo) Create(_ context.Context, t model.OAuthToken) (model.OAuthToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.oauth {
		if existing.AccessTokenHash == t.AccessTokenHash || existing.RefreshTokenHash == t.RefreshTokenHash {
			return model.OAuthToken{}, fmt.Errorf("insert oauth token: %w", repo.ErrDuplicate)
		}
	}
	t.ID = uuid.New()
	t.CreatedAt = r.s.now()
	r.s.oauth[t.ID] = t
	return t, nil
}

func (r oauthRepo) FindByAccessHash(_ context.Context, accessHash string) (model.OAuthToken, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, t := range r.s.oauth {
		if t.AccessTokenHash == accessHash && !t.Revoked {
			return t, nil
		}
	}
	return model.OAuthToken{}, notFound("find oauth token")
}

func (r oauthRepo) Revoke(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.oauth[id]
	if !ok {
		return notFound("revoke oauth token")
	}
	t.Revoked = true
	r.s.oauth[id] = t
	return nil
}

type deviceRepo struct{ s *Store }

func (r deviceRepo) Create(_ context.Context, d model.Device) (model.Device, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, taken := r.s.devices[d.ID]; taken {
		return model.Device{}, fmt.Errorf("insert device: %w", repo.ErrDuplicate)
	}
	// Nanosecond offsets keep newest-first ordering stable for same-instant inserts.
	r.s.deviceOrder++
	now := r.s.now().Add(time.Duration(r.s.deviceOrder))
	d.CreatedAt = now
	d.UpdatedAt = now
	d = cloneDevice(d)
	r.s.devices[d.ID] = d
	return cloneDevice(d), nil
}

func (r deviceRepo) GetByID(_ context.Context, id string) (model.Device, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	d, ok := r.s.devices[id]
	if !ok {
		return model.Device{}, notFound("query device")
	}
	return cloneDevice(d), nil
}

func (r deviceRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]model.Device, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]model.Device, 0)
	for _, d := range r.s.devices {
		if d.UserID == userID {
			out = append(out, cloneDevice(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r deviceRepo) UpdateMetadata(_ context.Context, id, name string, room *string) (model.Device, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.devices[id]
	if !ok {
		return model.Device{}, notFound("update device")
	}
	d.Name = name
	d.Room = room
	d.UpdatedAt = r.s.now()
	d = cloneDevice(d)
	r.s.devices[id] = d
	return cloneDevice(d), nil
}

func (r deviceRepo) MarkSeen(_ context.Context, id string, online bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.devices[id]
	if !ok {
		return notFound("mark device seen")
	}
	now := r.s.now()
	d.IsOnline = online
	d.LastSeen = &now
	d.UpdatedAt = now
	r.s.devices[id] = d
	return nil
}

func (r deviceRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.devices[id]; !ok {
		return notFound("delete device")
	}
	delete(r.s.devices, id)
	delete(r.s.states, id)
	for tid, t := range r.s.tokens {
		if t.DeviceID == id {
			delete(r.s.tokens, tid)
		}
	}
	for roomID, ids := range r.s.members {
		r.s.members[roomID] = without(ids, id)
	}
	return nil
}

func without(ids []string, id string) []string {
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

type stateRepo struct{ s *Store }

func (r stateRepo) Get(_ context.Context, deviceID string) (model.DeviceState, bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	st, ok := r.s.states[deviceID]
	if !ok {
		return model.DeviceState{}, false, nil
	}
	st.State = cloneDoc(st.State)
	return st, true, nil
}

func (r stateRepo) Upsert(_ context.Context, deviceID string, doc model.StateDoc) (model.DeviceState, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.devices[deviceID]; !ok {
		return model.DeviceState{}, notFound("upsert device state")
	}
	if doc == nil {
		doc = model.StateDoc{}
	}
	now := r.s.now()
	st := model.DeviceState{DeviceID: deviceID, State: cloneDoc(doc), UpdatedAt: now, ReportedAt: now}
	r.s.states[deviceID] = st
	st.State = cloneDoc(st.State)
	return st, nil
}

type tokenRepo struct{ s *Store }

func (r tokenRepo) Create(_ context.Context, deviceID, tokenHash, name string, expiresAt *time.Time) (model.DeviceAccessToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.devices[deviceID]; !ok {
		return model.DeviceAccessToken{}, notFound("insert device token")
	}
	t := model.DeviceAccessToken{
		ID:        uuid.New(),
		DeviceID:  deviceID,
		TokenHash: tokenHash,
		Name:      name,
		CreatedAt: r.s.now(),
		ExpiresAt: expiresAt,
	}
	r.s.tokens[t.ID] = t
	return t, nil
}

func (r tokenRepo) ListByDevice(_ context.Context, deviceID string) ([]model.DeviceAccessToken, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]model.DeviceAccessToken, 0)
	for _, t := range r.s.tokens {
		if t.DeviceID == deviceID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r tokenRepo) Revoke(_ context.Context, deviceID string, tokenID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tokens[tokenID]
	if !ok || t.DeviceID != deviceID {
		return notFound("revoke device token")
	}
	t.Revoked = true
	r.s.tokens[tokenID] = t
	return nil
}

type roomRepo struct{ s *Store }

func (r roomRepo) Create(_ context.Context, userID uuid.UUID, name string, description *string) (model.Room, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now()
	rm := model.Room{ID: uuid.New(), UserID: userID, Name: name, Description: description, CreatedAt: now, UpdatedAt: now}
	r.s.rooms[rm.ID] = rm
	return rm, nil
}

func (r roomRepo) GetByID(_ context.Context, id uuid.UUID) (model.Room, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rm, ok := r.s.rooms[id]
	if !ok {
		return model.Room{}, notFound("query room")
	}
	return rm, nil
}

func (r roomRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]model.Room, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]model.Room, 0)
	for _, rm := range r.s.rooms {
		if rm.UserID == userID {
			out = append(out, rm)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r roomRepo) Update(_ context.Context, id uuid.UUID, name string, description *string) (model.Room, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rm, ok := r.s.rooms[id]
	if !ok {
		return model.Room{}, notFound("update room")
	}
	rm.Name = name
	rm.Description = description
	rm.UpdatedAt = r.s.now()
	r.s.rooms[id] = rm
	return rm, nil
}

func (r roomRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.rooms[id]; !ok {
		return notFound("delete room")
	}
	delete(r.s.rooms, id)
	delete(r.s.members, id)
	return nil
}

func (r roomRepo) AddDevice(_ context.Context, roomID uuid.UUID, deviceID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.rooms[roomID]; !ok {
		return notFound("add device to room")
	}
	if _, ok := r.s.devices[deviceID]; !ok {
		return notFound("add device to room")
	}
	for _, id := range r.s.members[roomID] {
		if id == deviceID {
			return nil
		}
	}
	r.s.members[roomID] = append(r.s.members[roomID], deviceID)
	return nil
}

func (r roomRepo) RemoveDevice(_ context.Context, roomID uuid.UUID, deviceID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ids := r.s.members[roomID]
	kept := without(ids, deviceID)
	if len(kept) == len(ids) {
		return notFound("remove device from room")
	}
	r.s.members[roomID] = kept
	return nil
}

func (r roomRepo) ListDevices(_ context.Context, roomID uuid.UUID) ([]model.Device, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]model.Device, 0)
	for _, id := range r.s.members[roomID] {
		if d, ok := r.s.devices[id]; ok {
			out = append(out, cloneDevice(d))
		}
	}
	return out, nil
}

type auditRepo struct{ s *Store }

func (r auditRepo) Append(_ context.Context, e model.AuditLogEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.auditFail != nil {
		return r.s.auditFail
	}
	e.ID = uuid.New()
	e.CreatedAt = r.s.now()
	r.s.audit = append(r.s.audit, e)
	return nil
}
