package device

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/homegate/server/internal/apperr"
	"github.com/homegate/server/internal/audit"
	"github.com/homegate/server/internal/auth"
	"github.com/homegate/server/internal/authz"
	"github.com/homegate/server/internal/homegraph"
	"github.com/homegate/server/internal/model"
	"github.com/homegate/server/internal/repo/memrepo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store    *memrepo.Store
	audit    *audit.Memory
	notifier *homegraph.Recorder
	svc      *Service
	owner    authz.UserPrincipal
	stranger authz.UserPrincipal
}

func newFixture() *fixture {
	store := memrepo.New()
	rec := &audit.Memory{}
	notifier := &homegraph.Recorder{}
	return &fixture{
		store:    store,
		audit:    rec,
		notifier: notifier,
		svc:      NewService(store.Devices(), store.States(), store.DeviceTokens(), rec, notifier, time.Hour),
		owner:    authz.UserPrincipal{UserID: uuid.New()},
		stranger: authz.UserPrincipal{UserID: uuid.New()},
	}
}

func (f *fixture) register(t *testing.T, name string) model.Device {
	t.Helper()
	d, err := f.svc.Register(context.Background(), f.owner, RegisterInput{Name: name, Type: "action.devices.types.LIGHT"}, audit.Meta{})
	require.NoError(t, err)
	return d
}

func TestNewID(t *testing.T) {
	assert.Regexp(t, regexp.MustCompile(`^device-LIGHT-[0-9a-f]{8}$`), NewID("action.devices.types.LIGHT"))
	assert.Regexp(t, regexp.MustCompile(`^device-thermostat-[0-9a-f]{8}$`), NewID("thermostat"))
}

func TestRegister(t *testing.T) {
	f := newFixture()
	room := "Kitchen"
	d, err := f.svc.Register(context.Background(), f.owner, RegisterInput{
		Name:   "  Lamp ",
		Type:   "action.devices.types.LIGHT",
		Traits: []string{"action.devices.traits.OnOff"},
		Room:   &room,
	}, audit.Meta{IP: "10.0.0.9"})
	require.NoError(t, err)

	assert.Equal(t, "Lamp", d.Name)
	assert.True(t, d.IsOnline)
	assert.Equal(t, f.owner.UserID, d.UserID)
	assert.Equal(t, []string{"action.devices.traits.OnOff"}, d.Traits)
	assert.Equal(t, map[string]any{}, d.Attributes)
	require.NotNil(t, d.Room)
	assert.Equal(t, "Kitchen", *d.Room)

	entries := f.audit.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "device_registered", entries[0].Action)
	assert.Equal(t, d.ID, *entries[0].DeviceID)
	assert.Equal(t, "10.0.0.9", entries[0].IPAddress)
}

func TestRegister_requiresNameAndType(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Register(context.Background(), f.owner, RegisterInput{Name: "Lamp"}, audit.Meta{})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestGet_existenceBeforeOwnership(t *testing.T) {
	f := newFixture()
	d := f.register(t, "Lamp")
	ctx := context.Background()

	_, err := f.svc.Get(ctx, f.stranger, "device-LIGHT-00000000")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = f.svc.Get(ctx, f.stranger, d.ID)
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	got, err := f.svc.Get(ctx, f.owner, d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.ID, got.ID)
}

func TestUpdate(t *testing.T) {
	f := newFixture()
	d := f.register(t, "Lamp")
	ctx := context.Background()
	room := "Office"

	updated, err := f.svc.Update(ctx, f.owner, d.ID, nil, &room)
	require.NoError(t, err)
	assert.Equal(t, "Lamp", updated.Name)
	assert.Equal(t, "Office", *updated.Room)

	blank := " "
	_, err = f.svc.Update(ctx, f.owner, d.ID, &blank, nil)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.svc.Update(ctx, f.stranger, d.ID, nil, nil)
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))
}

func TestState_defaultsToEmptyAndReplaces(t *testing.T) {
	f := newFixture()
	d := f.register(t, "Lamp")
	ctx := context.Background()

	st, err := f.svc.GetState(ctx, f.owner, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateDoc{}, st.State)
	assert.Nil(t, st.UpdatedAt)

	_, err = f.svc.SetState(ctx, f.owner, d.ID, model.StateDoc{"on": true, "brightness": 30.0})
	require.NoError(t, err)
	_, err = f.svc.SetState(ctx, f.owner, d.ID, model.StateDoc{"on": false})
	require.NoError(t, err)

	st, err = f.svc.GetState(ctx, f.owner, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateDoc{"on": false}, st.State)
	assert.NotNil(t, st.ReportedAt)

	_, err = f.svc.SetState(ctx, f.stranger, d.ID, model.StateDoc{"on": true})
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))
}

func TestReportState_notifiesHomeGraph(t *testing.T) {
	f := newFixture()
	d := f.register(t, "Lamp")
	ctx := context.Background()

	require.NoError(t, f.svc.ReportState(ctx, f.owner, d.ID, model.StateDoc{"on": true}))
	sent := f.notifier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, d.ID, sent[0].DeviceID)
	assert.Equal(t, f.owner.UserID.String(), sent[0].AgentUserID)

	err := f.svc.ReportState(ctx, f.stranger, d.ID, model.StateDoc{"on": false})
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))
	assert.Len(t, f.notifier.Sent(), 1)
}

func TestReportFromDevice_marksOnline(t *testing.T) {
	f := newFixture()
	d := f.register(t, "Lamp")
	ctx := context.Background()
	require.NoError(t, f.store.Devices().MarkSeen(ctx, d.ID, false))

	p := authz.DevicePrincipal{DeviceID: d.ID, TokenID: uuid.New(), OwnerID: f.owner.UserID}
	st, err := f.svc.ReportFromDevice(ctx, p, model.StateDoc{"on": true}, audit.Meta{})
	require.NoError(t, err)
	assert.Equal(t, model.StateDoc{"on": true}, st.State)

	got, err := f.store.Devices().GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.True(t, got.IsOnline)
	assert.NotNil(t, got.LastSeen)
	assert.Contains(t, f.audit.Actions(), "device_state_reported")
}

func TestTokens_lifecycle(t *testing.T) {
	f := newFixture()
	d := f.register(t, "Lamp")
	ctx := context.Background()

	meta := audit.Meta{IP: "10.0.0.5", UserAgent: "hub-client/1.0"}
	issued, err := f.svc.CreateToken(ctx, f.owner, d.ID, "hub", meta)
	require.NoError(t, err)
	assert.NotEmpty(t, issued.Token)
	require.NotNil(t, issued.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(time.Hour), *issued.ExpiresAt, time.Minute)

	tokens, err := f.svc.ListTokens(ctx, f.owner, d.ID)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, auth.HashToken(issued.Token), tokens[0].TokenHash)
	assert.NotEqual(t, issued.Token, tokens[0].TokenHash)

	other := f.register(t, "Switch")
	err = f.svc.RevokeToken(ctx, f.owner, other.ID, issued.ID, meta)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	require.NoError(t, f.svc.RevokeToken(ctx, f.owner, d.ID, issued.ID, meta))
	tokens, err = f.svc.ListTokens(ctx, f.owner, d.ID)
	require.NoError(t, err)
	assert.True(t, tokens[0].Revoked)

	for _, e := range f.audit.Entries() {
		if e.Action == "device_token_created" || e.Action == "device_token_revoked" {
			assert.Equal(t, "10.0.0.5", e.IPAddress, e.Action)
			assert.Equal(t, "hub-client/1.0", e.UserAgent, e.Action)
		}
	}
	assert.Subset(t, f.audit.Actions(), []string{"device_token_created", "device_token_revoked"})

	_, err = f.svc.CreateToken(ctx, f.stranger, d.ID, "hub", audit.Meta{})
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))
}

func TestDelete(t *testing.T) {
	f := newFixture()
	d := f.register(t, "Lamp")
	ctx := context.Background()

	err := f.svc.Delete(ctx, f.stranger, d.ID, audit.Meta{})
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	require.NoError(t, f.svc.Delete(ctx, f.owner, d.ID, audit.Meta{}))
	_, err = f.svc.Get(ctx, f.owner, d.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Equal(t, []string{"device_registered", "device_deleted"}, f.audit.Actions())
}
