package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/homegate/server/internal/device"
	"github.com/homegate/server/internal/model"
)

// DeviceHandler handles device, state and device token endpoints
type DeviceHandler struct {
	deviceService *device.Service
}

// NewDeviceHandler creates a new device handler
func NewDeviceHandler(deviceService *device.Service) *DeviceHandler {
	return &DeviceHandler{deviceService: deviceService}
}

type registerDeviceRequest struct {
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Traits     []string       `json:"traits"`
	Attributes map[string]any `json:"attributes"`
	Room       *string        `json:"room"`
}

type updateDeviceRequest struct {
	Name *string `json:"name"`
	Room *string `json:"room"`
}

type stateRequest struct {
	State model.StateDoc `json:"state"`
}

type createTokenRequest struct {
	Name string `json:"name"`
}

// deviceResponse is the device object in API responses
type deviceResponse struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Traits     []string       `json:"traits"`
	Attributes map[string]any `json:"attributes"`
	Room       *string        `json:"room"`
	IsOnline   bool           `json:"isOnline"`
	LastSeen   *time.Time     `json:"lastSeen"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

type stateResponse struct {
	DeviceID   string         `json:"deviceId"`
	State      model.StateDoc `json:"state"`
	UpdatedAt  *time.Time     `json:"updatedAt,omitempty"`
	ReportedAt *time.Time     `json:"reportedAt,omitempty"`
}

type issuedTokenResponse struct {
	ID        uuid.UUID  `json:"id"`
	Token     string     `json:"token"`
	Name      string     `json:"name"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

// tokenResponse never carries the hash
type tokenResponse struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt *time.Time `json:"expiresAt"`
	Revoked   bool       `json:"revoked"`
}

func toDeviceResponse(d model.Device) deviceResponse {
	return deviceResponse{
		ID:         d.ID,
		Name:       d.Name,
		Type:       d.Type,
		Traits:     d.Traits,
		Attributes: d.Attributes,
		Room:       d.Room,
		IsOnline:   d.IsOnline,
		LastSeen:   d.LastSeen,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

func toStateResponse(st device.State) stateResponse {
	return stateResponse{DeviceID: st.DeviceID, State: st.State, UpdatedAt: st.UpdatedAt, ReportedAt: st.ReportedAt}
}

// HandleRegister handles POST /api/devices
func (h *DeviceHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	p, ok := userPrincipal(w, r)
	if !ok {
		return
	}
	var req registerDeviceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	d, err := h.deviceService.Register(r.Context(), p, device.RegisterInput{
		Name:       req.Name,
		Type:       req.Type,
		Traits:     req.Traits,
		Attributes: req.Attributes,
		Room:       req.Room,
	}, requestMeta(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toDeviceResponse(d))
}

// HandleList handles GET /api/devices
func (h *DeviceHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	p, ok := userPrincipal(w, r)
	if !ok {
		return
	}
	devices, err := h.deviceService.List(r.Context(), p)
	if err != nil {
		respondError(w, r, err)
		return
	}
	out := make([]deviceResponse, 0, len(devices))
	for _, d := range devices {
		out = append(out, toDeviceResponse(d))
	}
	respondJSON(w, http.StatusOK, out)
}

// HandleGet handles GET /api/devices/{deviceId}
func (h *DeviceHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	p, ok := userPrincipal(w, r)
	if !ok {
		return
	}
	d, err := h.deviceService.Get(r.Context(), p, chi.URLParam(r, "deviceId"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toDeviceResponse(d))
}

// HandleUpdate handles PATCH /api/devices/{deviceId}
func (h *DeviceHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	p, ok := userPrincipal(w, r)
	if !ok {
		return
	}
	var req updateDeviceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	d, err := h.deviceService.Update(r.Context(), p, chi.URLParam(r, "deviceId"), req.Name, req.Room)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toDeviceResponse(d))
}

// HandleDelete handles DELETE /api/devices/{deviceId}
func (h *DeviceHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	p, ok := userPrincipal(w, r)
	if !ok {
		return
	}
	if err := h.deviceService.Delete(r.Context(), p, chi.URLParam(r, "deviceId"), requestMeta(r)); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, messageResponse{Message: "Device deleted successfully"})
}

// HandleGetState handles GET /api/devices/{deviceId}/state
func (h *DeviceHandler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	p, ok := userPrincipal(w, r)
	if !ok {
		return
	}
	st, err := h.deviceService.GetState(r.Context(), p, chi.URLParam(r, "deviceId"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toStateResponse(st))
}

// HandleSetState handles POST /api/devices/{deviceId}/state
func (h *DeviceHandler) HandleSetState(w http.ResponseWriter, r *http.Request) {
	p, ok := userPrincipal(w, r)
	if !ok {
		return
	}
	var req stateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	st, err := h.deviceService.SetState(r.Context(), p, chi.URLParam(r, "deviceId"), req.State)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toStateResponse(st))
}

// HandleCreateToken handles POST /api/devices/{deviceId}/tokens
func (h *DeviceHandler) HandleCreateToken(w http.ResponseWriter, r *http.Request) {
	p, ok := userPrincipal(w, r)
	if !ok {
		return
	}
	var req createTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	issued, err := h.deviceService.CreateToken(r.Context(), p, chi.URLParam(r, "deviceId"), req.Name, requestMeta(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, issuedTokenResponse{
		ID:        issued.ID,
		Token:     issued.Token,
		Name:      issued.Name,
		ExpiresAt: issued.ExpiresAt,
	})
}

// HandleListTokens handles GET /api/devices/{deviceId}/tokens
func (h *DeviceHandler) HandleListTokens(w http.ResponseWriter, r *http.Request) {
	p, ok := userPrincipal(w, r)
	if !ok {
		return
	}
	tokens, err := h.deviceService.ListTokens(r.Context(), p, chi.URLParam(r, "deviceId"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	out := make([]tokenResponse, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, tokenResponse{ID: t.ID, Name: t.Name, CreatedAt: t.CreatedAt, ExpiresAt: t.ExpiresAt, Revoked: t.Revoked})
	}
	respondJSON(w, http.StatusOK, out)
}

// HandleRevokeToken handles DELETE /api/devices/{deviceId}/tokens/{tokenId}
func (h *DeviceHandler) HandleRevokeToken(w http.ResponseWriter, r *http.Request) {
	p, ok := userPrincipal(w, r)
	if !ok {
		return
	}
	tokenID, err := parseID(chi.URLParam(r, "tokenId"), "Token")
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.deviceService.RevokeToken(r.Context(), p, chi.URLParam(r, "deviceId"), tokenID, requestMeta(r)); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, messageResponse{Message: "Token revoked successfully"})
}
