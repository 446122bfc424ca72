package tests

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/homegate/server/internal/audit"
	"github.com/homegate/server/internal/auth"
	"github.com/homegate/server/internal/db"
	"github.com/homegate/server/internal/device"
	"github.com/homegate/server/internal/fulfillment"
	"github.com/homegate/server/internal/homegraph"
	httphandler "github.com/homegate/server/internal/http"
	"github.com/homegate/server/internal/http/handlers"
	"github.com/homegate/server/internal/repo"
	"github.com/homegate/server/internal/repo/memrepo"
	"github.com/homegate/server/internal/room"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testJWTSecret = "test-jwt-secret-at-least-32-characters-long"

// stores is the set of repositories a test server runs on
type stores struct {
	users        repo.UserRepo
	oauth        repo.OAuthTokenRepo
	devices      repo.DeviceRepo
	states       repo.StateRepo
	deviceTokens repo.DeviceTokenRepo
	rooms        repo.RoomRepo
	audit        repo.AuditRepo
}

func memStores() stores {
	s := memrepo.New()
	return stores{
		users:        s.Users(),
		oauth:        s.OAuthTokens(),
		devices:      s.Devices(),
		states:       s.States(),
		deviceTokens: s.DeviceTokens(),
		rooms:        s.Rooms(),
		audit:        s.Audit(),
	}
}

// pgStores opens DATABASE_URL, migrates and truncates it. The test is skipped without a database.
func pgStores(t *testing.T) stores {
	t.Helper()
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		t.Skip("DATABASE_URL not set; skipping Postgres integration test")
	}

	database, err := db.Open(context.Background(), databaseURL)
	require.NoError(t, err, "database open must succeed; check DATABASE_URL and that test DB exists")
	t.Cleanup(func() { database.Close() })

	require.NoError(t, db.Migrate(database), "migrations must run successfully")
	require.NoError(t, db.Truncate(database))

	return pgStoresFor(database)
}

func pgStoresFor(database *sql.DB) stores {
	return stores{
		users:        repo.NewUserRepo(database),
		oauth:        repo.NewOAuthTokenRepo(database),
		devices:      repo.NewDeviceRepo(database),
		states:       repo.NewStateRepo(database),
		deviceTokens: repo.NewDeviceTokenRepo(database),
		rooms:        repo.NewRoomRepo(database),
		audit:        repo.NewAuditRepo(database),
	}
}

// testServer is the full HTTP stack on top of st
type testServer struct {
	Server   *httptest.Server
	Notifier *homegraph.Recorder
	t        *testing.T
}

func newTestServer(t *testing.T, st stores) *testServer {
	t.Helper()

	sink := audit.NewSink(st.audit, 64)
	notifier := &homegraph.Recorder{}
	jwtService := auth.NewJWTService(testJWTSecret)
	authService := auth.NewService(jwtService, auth.NewBcryptHasher(bcrypt.MinCost), st.users, st.oauth, sink)
	gateway := auth.NewGateway(jwtService, st.oauth, st.devices, st.deviceTokens)
	deviceService := device.NewService(st.devices, st.states, st.deviceTokens, sink, notifier, time.Hour)
	roomService := room.NewService(st.rooms, st.devices, sink)
	engine := fulfillment.NewEngine(st.devices, st.states, sink)

	limiters := httphandler.NewLimiters()
	router := httphandler.NewRouter(httphandler.Handlers{
		Auth:      handlers.NewAuthHandler(authService),
		Devices:   handlers.NewDeviceHandler(deviceService),
		Rooms:     handlers.NewRoomHandler(roomService),
		SmartHome: handlers.NewSmartHomeHandler(engine, deviceService, notifier),
	}, gateway, limiters, httphandler.Options{CORSOrigins: []string{"*"}, DevicePushLimit: 60})

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		limiters.Stop()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sink.Close(ctx)
	})
	return &testServer{Server: srv, Notifier: notifier, t: t}
}

// do sends a JSON request and decodes the JSON response into out when out is non-nil
func (ts *testServer) do(method, path, token string, body any, out any) int {
	ts.t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(ts.t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, ts.Server.URL+path, reader)
	require.NoError(ts.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ts.Server.Client().Do(req)
	require.NoError(ts.t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(ts.t, err)
	if out != nil {
		require.NoError(ts.t, json.Unmarshal(raw, out), "body: %s", raw)
	}
	return resp.StatusCode
}

// signupAndLogin creates an account and returns its session token
func (ts *testServer) signupAndLogin(email string) string {
	ts.t.Helper()
	const password = "Sup3rSecret"

	status := ts.do(http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email": email, "password": password, "name": "Test User",
	}, nil)
	require.Equal(ts.t, http.StatusCreated, status)

	var login struct {
		AccessToken string `json:"accessToken"`
	}
	status = ts.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": email, "password": password,
	}, &login)
	require.Equal(ts.t, http.StatusOK, status)
	require.NotEmpty(ts.t, login.AccessToken)
	return login.AccessToken
}

type errorBody struct {
	Error      string `json:"error"`
	StatusCode int    `json:"statusCode"`
}
