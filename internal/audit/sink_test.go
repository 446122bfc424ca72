package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/homegate/server/internal/repo/memrepo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSink_writesInOrder(t *testing.T) {
	store := memrepo.New()
	sink := NewSink(store.Audit(), 16)
	userID := uuid.New()

	sink.Record(Entry(userID, "", "login", Meta{IP: "10.0.0.1", UserAgent: "curl"}, map[string]any{"clientId": "c"}))
	sink.Record(Entry(userID, "device-light-1", "device_registered", Meta{}, nil))
	require.NoError(t, sink.Close(context.Background()))

	entries := store.AuditEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, "login", entries[0].Action)
	assert.Equal(t, "10.0.0.1", entries[0].IPAddress)
	assert.Nil(t, entries[0].DeviceID)
	assert.Equal(t, "device_registered", entries[1].Action)
	require.NotNil(t, entries[1].DeviceID)
	assert.Equal(t, "device-light-1", *entries[1].DeviceID)
	assert.Equal(t, userID, *entries[1].UserID)
}

func TestSink_appendFailureIsSwallowed(t *testing.T) {
	store := memrepo.New()
	store.FailAudit(errors.New("disk full"))
	sink := NewSink(store.Audit(), 4)

	sink.Record(Entry(uuid.New(), "", "login", Meta{}, nil))
	require.NoError(t, sink.Close(context.Background()))
	assert.Empty(t, store.AuditEntries())
}

func TestSink_recordAfterCloseDoesNotPanic(t *testing.T) {
	sink := NewSink(memrepo.New().Audit(), 1)
	require.NoError(t, sink.Close(context.Background()))
	require.NoError(t, sink.Close(context.Background()))
	assert.NotPanics(t, func() { sink.Record(Entry(uuid.New(), "", "logout", Meta{}, nil)) })
}
