package tests

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIFlow_Memory(t *testing.T) {
	runAPIFlow(t, newTestServer(t, memStores()))
}

func TestAPIFlow_Postgres(t *testing.T) {
	runAPIFlow(t, newTestServer(t, pgStores(t)))
}

type deviceBody struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Room     *string `json:"room"`
	IsOnline bool    `json:"isOnline"`
}

// runAPIFlow walks the main user journey: account, device, device token, state push, fulfillment, rooms
func runAPIFlow(t *testing.T, ts *testServer) {
	var (
		owner    string
		stranger string
		lamp     deviceBody
		token    string
		roomID   string
	)

	t.Run("A_Health", func(t *testing.T) {
		var body map[string]string
		assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/health", "", nil, &body))
		assert.Equal(t, "ok", body["status"])
	})

	t.Run("B_Accounts", func(t *testing.T) {
		owner = ts.signupAndLogin("owner@example.com")
		stranger = ts.signupAndLogin("stranger@example.com")

		var me struct {
			Email    string `json:"email"`
			IsActive bool   `json:"isActive"`
		}
		require.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/api/auth/me", owner, nil, &me))
		assert.Equal(t, "owner@example.com", me.Email)
		assert.True(t, me.IsActive)

		var errBody errorBody
		assert.Equal(t, http.StatusConflict, ts.do(http.MethodPost, "/api/auth/signup", "", map[string]string{
			"email": "OWNER@example.com", "password": "Sup3rSecret", "name": "Again",
		}, &errBody))
		assert.Equal(t, "Email already registered", errBody.Error)
		assert.Equal(t, http.StatusConflict, errBody.StatusCode)
	})

	t.Run("C_Unauthenticated", func(t *testing.T) {
		var errBody errorBody
		assert.Equal(t, http.StatusUnauthorized, ts.do(http.MethodGet, "/api/devices", "", nil, &errBody))
		assert.Equal(t, "No token provided", errBody.Error)

		assert.Equal(t, http.StatusUnauthorized, ts.do(http.MethodGet, "/api/devices", "not-a-token", nil, &errBody))
		assert.Equal(t, "Invalid token", errBody.Error)
	})

	t.Run("D_RegisterDevice", func(t *testing.T) {
		status := ts.do(http.MethodPost, "/api/devices", owner, map[string]any{
			"name":   "Lamp",
			"type":   "action.devices.types.LIGHT",
			"traits": []string{"action.devices.traits.OnOff"},
			"room":   "Kitchen",
		}, &lamp)
		require.Equal(t, http.StatusCreated, status)
		assert.Regexp(t, `^device-LIGHT-[0-9a-f]{8}$`, lamp.ID)
		assert.True(t, lamp.IsOnline)

		var list []deviceBody
		require.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/api/devices", owner, nil, &list))
		require.Len(t, list, 1)

		require.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/api/devices", stranger, nil, &list))
		assert.Empty(t, list)
	})

	t.Run("E_ExistenceBeforeOwnership", func(t *testing.T) {
		var errBody errorBody
		assert.Equal(t, http.StatusForbidden, ts.do(http.MethodGet, "/api/devices/"+lamp.ID, stranger, nil, &errBody))
		assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/api/devices/device-LIGHT-00000000", stranger, nil, &errBody))
		assert.Equal(t, "Device not found", errBody.Error)
	})

	t.Run("F_DeviceTokenPush", func(t *testing.T) {
		var issued struct {
			ID    string `json:"id"`
			Token string `json:"token"`
			Name  string `json:"name"`
		}
		require.Equal(t, http.StatusCreated, ts.do(http.MethodPost, "/api/devices/"+lamp.ID+"/tokens", owner, map[string]string{"name": "hub"}, &issued))
		assert.Equal(t, "hub", issued.Name)
		token = issued.Token

		var listed []map[string]any
		require.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/api/devices/"+lamp.ID+"/tokens", owner, nil, &listed))
		require.Len(t, listed, 1)
		assert.NotContains(t, listed[0], "tokenHash")
		assert.NotContains(t, listed[0], "token")

		var ok struct {
			Success bool `json:"success"`
		}
		require.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/api/smarthome/devices/"+lamp.ID+"/state", token, map[string]any{
			"state": map[string]any{"on": true, "brightness": 70},
		}, &ok))
		assert.True(t, ok.Success)
		assert.NotEmpty(t, ts.Notifier.Sent())

		// A user session token is not a device token
		var errBody errorBody
		assert.Equal(t, http.StatusUnauthorized, ts.do(http.MethodPost, "/api/smarthome/devices/"+lamp.ID+"/state", owner, map[string]any{
			"state": map[string]any{"on": false},
		}, &errBody))
		assert.Equal(t, "Invalid device token", errBody.Error)
	})

	t.Run("G_Fulfillment", func(t *testing.T) {
		var query struct {
			RequestID string `json:"requestId"`
			Payload   struct {
				Devices map[string]map[string]any `json:"devices"`
			} `json:"payload"`
		}
		require.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/api/smarthome/fulfillment", owner, map[string]any{
			"requestId": "q-1",
			"inputs": []any{map[string]any{
				"intent":  "action.devices.QUERY",
				"payload": map[string]any{"devices": []any{map[string]string{"id": lamp.ID}}},
			}},
		}, &query))
		assert.Equal(t, "q-1", query.RequestID)
		assert.Equal(t, true, query.Payload.Devices[lamp.ID]["on"])
		assert.Equal(t, 70.0, query.Payload.Devices[lamp.ID]["brightness"])

		// The stranger's QUERY leaves the device out
		var strangerQuery struct {
			Payload struct {
				Devices map[string]map[string]any `json:"devices"`
			} `json:"payload"`
		}
		require.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/api/smarthome/fulfillment", stranger, map[string]any{
			"requestId": "q-2",
			"inputs": []any{map[string]any{
				"intent":  "action.devices.QUERY",
				"payload": map[string]any{"devices": []string{lamp.ID}},
			}},
		}, &strangerQuery))
		assert.Empty(t, strangerQuery.Payload.Devices)

		var execute struct {
			Payload struct {
				Commands []struct {
					IDs    []string       `json:"ids"`
					Status string         `json:"status"`
					State  map[string]any `json:"state"`
				} `json:"commands"`
			} `json:"payload"`
		}
		require.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/api/smarthome/fulfillment", owner, map[string]any{
			"requestId": "x-1",
			"inputs": []any{map[string]any{
				"intent": "action.devices.EXECUTE",
				"payload": map[string]any{"commands": []any{map[string]any{
					"devices":   []any{map[string]string{"id": lamp.ID}},
					"execution": []any{map[string]any{"command": "action.devices.commands.OnOff", "params": map[string]any{"on": false}}},
				}}},
			}},
		}, &execute))
		require.Len(t, execute.Payload.Commands, 1)
		assert.Equal(t, "SUCCESS", execute.Payload.Commands[0].Status)
		assert.Equal(t, []string{lamp.ID}, execute.Payload.Commands[0].IDs)

		var state struct {
			DeviceID string         `json:"deviceId"`
			State    map[string]any `json:"state"`
		}
		require.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/api/devices/"+lamp.ID+"/state", owner, nil, &state))
		assert.Equal(t, false, state.State["on"])
		assert.Equal(t, "action.devices.commands.OnOff", state.State["lastCommand"])
		assert.NotContains(t, state.State, "brightness")

		var batch struct {
			Payload struct {
				Responses []map[string]any `json:"responses"`
			} `json:"payload"`
		}
		require.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/api/smarthome/fulfillment", owner, map[string]any{
			"requestId": "b-1",
			"inputs": []any{
				map[string]any{"intent": "action.devices.SYNC"},
				map[string]any{"intent": "action.devices.UNKNOWN"},
			},
		}, &batch))
		require.Len(t, batch.Payload.Responses, 2)
		devices := batch.Payload.Responses[0]["devices"].([]any)
		require.Len(t, devices, 1)
		assert.Equal(t, "Kitchen", devices[0].(map[string]any)["roomHint"])
		assert.Equal(t, "unsupportedIntent", batch.Payload.Responses[1]["errorCode"])

		var errBody errorBody
		assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodPost, "/api/smarthome/fulfillment", owner, map[string]any{
			"requestId": "e-1",
		}, &errBody))
		assert.Equal(t, "No inputs provided", errBody.Error)
	})

	t.Run("H_ReportState", func(t *testing.T) {
		before := len(ts.Notifier.Sent())
		var errBody errorBody
		assert.Equal(t, http.StatusForbidden, ts.do(http.MethodPost, "/api/smarthome/report-state", stranger, map[string]any{
			"deviceId": lamp.ID, "state": map[string]any{"on": true},
		}, &errBody))
		assert.Len(t, ts.Notifier.Sent(), before)

		assert.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/api/smarthome/report-state", owner, map[string]any{
			"deviceId": lamp.ID, "state": map[string]any{"on": true},
		}, nil))
		assert.Len(t, ts.Notifier.Sent(), before+1)

		assert.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/api/smarthome/request-sync", owner, nil, nil))
	})

	t.Run("I_Rooms", func(t *testing.T) {
		var created struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		}
		require.Equal(t, http.StatusCreated, ts.do(http.MethodPost, "/api/rooms", owner, map[string]string{"name": "Kitchen"}, &created))
		roomID = created.ID

		assert.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/api/rooms/"+roomID+"/devices", owner, map[string]string{"deviceId": lamp.ID}, nil))
		// Adding twice is a no-op
		assert.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/api/rooms/"+roomID+"/devices", owner, map[string]string{"deviceId": lamp.ID}, nil))

		var members []deviceBody
		require.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/api/rooms/"+roomID+"/devices", owner, nil, &members))
		require.Len(t, members, 1)
		assert.Equal(t, lamp.ID, members[0].ID)

		assert.Equal(t, http.StatusForbidden, ts.do(http.MethodGet, "/api/rooms/"+roomID, stranger, nil, nil))
		assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/api/rooms/not-a-uuid", owner, nil, nil))

		assert.Equal(t, http.StatusOK, ts.do(http.MethodDelete, fmt.Sprintf("/api/rooms/%s/devices/%s", roomID, lamp.ID), owner, nil, nil))
		var errBody errorBody
		assert.Equal(t, http.StatusNotFound, ts.do(http.MethodDelete, fmt.Sprintf("/api/rooms/%s/devices/%s", roomID, lamp.ID), owner, nil, &errBody))
		assert.Equal(t, "Device is not in this room", errBody.Error)

		assert.Equal(t, http.StatusOK, ts.do(http.MethodDelete, "/api/rooms/"+roomID, owner, nil, nil))
		assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/api/rooms/"+roomID, owner, nil, nil))
	})

	t.Run("J_RevokeAndDelete", func(t *testing.T) {
		var listed []struct {
			ID string `json:"id"`
		}
		require.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/api/devices/"+lamp.ID+"/tokens", owner, nil, &listed))
		require.Len(t, listed, 1)
		assert.Equal(t, http.StatusOK, ts.do(http.MethodDelete, "/api/devices/"+lamp.ID+"/tokens/"+listed[0].ID, owner, nil, nil))

		var errBody errorBody
		assert.Equal(t, http.StatusUnauthorized, ts.do(http.MethodPost, "/api/smarthome/devices/"+lamp.ID+"/state", token, map[string]any{
			"state": map[string]any{"on": true},
		}, &errBody))
		assert.Equal(t, "Invalid device token", errBody.Error)

		assert.Equal(t, http.StatusForbidden, ts.do(http.MethodDelete, "/api/devices/"+lamp.ID, stranger, nil, nil))
		assert.Equal(t, http.StatusOK, ts.do(http.MethodDelete, "/api/devices/"+lamp.ID, owner, nil, nil))
		assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/api/devices/"+lamp.ID, owner, nil, nil))
	})

	t.Run("K_UnknownRoute", func(t *testing.T) {
		var errBody errorBody
		assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/api/nope", "", nil, &errBody))
		assert.Equal(t, "Route not found", errBody.Error)
	})
}

func TestSignupRateLimit(t *testing.T) {
	ts := newTestServer(t, memStores())

	for i := 0; i < 3; i++ {
		status := ts.do(http.MethodPost, "/api/auth/signup", "", map[string]string{
			"email": fmt.Sprintf("user%d@example.com", i), "password": "Sup3rSecret", "name": "Someone",
		}, nil)
		require.Equal(t, http.StatusCreated, status)
	}

	var errBody errorBody
	assert.Equal(t, http.StatusTooManyRequests, ts.do(http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email": "user4@example.com", "password": "Sup3rSecret", "name": "Someone",
	}, &errBody))
	assert.Equal(t, "Too many signup attempts, please try again later", errBody.Error)
}
