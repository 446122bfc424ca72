package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/homegate/server/internal/apperr"
	"github.com/homegate/server/internal/authz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGateway struct {
	user      authz.UserPrincipal
	gotToken  string
	gotDevice string
}

func (g *stubGateway) AuthenticateUser(_ context.Context, raw string) (authz.UserPrincipal, error) {
	g.gotToken = raw
	if raw != "good" {
		return authz.UserPrincipal{}, apperr.Authentication("Invalid token")
	}
	return g.user, nil
}

func (g *stubGateway) AuthenticateDevice(_ context.Context, raw, deviceID string) (authz.DevicePrincipal, error) {
	g.gotToken, g.gotDevice = raw, deviceID
	if raw != "good" || deviceID == "" {
		return authz.DevicePrincipal{}, apperr.Authentication("Invalid device token")
	}
	return authz.DevicePrincipal{DeviceID: deviceID}, nil
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "", BearerToken(req))
	req.Header.Set("Authorization", "bearer abc ")
	assert.Equal(t, "abc", BearerToken(req))
	req.Header.Set("Authorization", "Basic abc")
	assert.Equal(t, "", BearerToken(req))
}

func TestRequireUser(t *testing.T) {
	gw := &stubGateway{user: authz.UserPrincipal{UserID: uuid.New()}}
	var seen authz.UserPrincipal
	h := RequireUser(gw)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = GetUserPrincipal(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer bad")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid token","statusCode":401}`, rec.Body.String())

	req.Header.Set("Authorization", "Bearer good")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, gw.user, seen)
}

func TestRequireDevice_pathParam(t *testing.T) {
	gw := &stubGateway{}
	r := chi.NewRouter()
	r.With(RequireDevice(gw)).Post("/devices/{deviceId}/state", func(w http.ResponseWriter, r *http.Request) {
		p, ok := GetDevicePrincipal(r.Context())
		require.True(t, ok)
		_, _ = io.WriteString(w, p.DeviceID)
	})

	req := httptest.NewRequest(http.MethodPost, "/devices/device-LIGHT-1/state", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "device-LIGHT-1", rec.Body.String())
}

func TestRequireDevice_bodyFallbackKeepsBody(t *testing.T) {
	gw := &stubGateway{}
	var body string
	h := RequireDevice(gw)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
	}))

	payload := `{"deviceId":"device-LIGHT-2","state":{"on":true}}`
	req := httptest.NewRequest(http.MethodPost, "/report", strings.NewReader(payload))
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "device-LIGHT-2", gw.gotDevice)
	assert.Equal(t, payload, body)
}
