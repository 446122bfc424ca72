package handlers

import (
	"net/http"

	"github.com/homegate/server/internal/apperr"
	"github.com/homegate/server/internal/device"
	"github.com/homegate/server/internal/fulfillment"
	"github.com/homegate/server/internal/homegraph"
	"github.com/homegate/server/internal/middleware"
	"github.com/homegate/server/internal/model"
)

// SmartHomeHandler handles the assistant integration endpoints
type SmartHomeHandler struct {
	engine        *fulfillment.Engine
	deviceService *device.Service
	notifier      homegraph.Notifier
}

// NewSmartHomeHandler creates a new smart home handler
func NewSmartHomeHandler(engine *fulfillment.Engine, deviceService *device.Service, notifier homegraph.Notifier) *SmartHomeHandler {
	return &SmartHomeHandler{engine: engine, deviceService: deviceService, notifier: notifier}
}

type reportStateRequest struct {
	DeviceID string         `json:"deviceId"`
	State    model.StateDoc `json:"state"`
}

type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// HandleFulfillment handles POST /api/smarthome/fulfillment
func (h *SmartHomeHandler) HandleFulfillment(w http.ResponseWriter, r *http.Request) {
	p, ok := userPrincipal(w, r)
	if !ok {
		return
	}
	var req fulfillment.Request
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	resp, err := h.engine.Fulfill(r.Context(), p, requestMeta(r), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// HandleRequestSync handles POST /api/smarthome/request-sync
func (h *SmartHomeHandler) HandleRequestSync(w http.ResponseWriter, r *http.Request) {
	p, ok := userPrincipal(w, r)
	if !ok {
		return
	}
	if err := h.notifier.RequestSync(r.Context(), p.UserID.String()); err != nil {
		respondError(w, r, apperr.Internal("request sync failed", err))
		return
	}
	respondJSON(w, http.StatusOK, successResponse{Success: true, Message: "Sync request sent to Google Home"})
}

// HandleReportState handles POST /api/smarthome/report-state
func (h *SmartHomeHandler) HandleReportState(w http.ResponseWriter, r *http.Request) {
	p, ok := userPrincipal(w, r)
	if !ok {
		return
	}
	var req reportStateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.deviceService.ReportState(r.Context(), p, req.DeviceID, req.State); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, successResponse{Success: true, Message: "State reported to Google Home"})
}

// HandleDeviceState handles POST /api/smarthome/devices/{deviceId}/state, authenticated by device token
func (h *SmartHomeHandler) HandleDeviceState(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetDevicePrincipal(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "No device token provided")
		return
	}
	var req reportStateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if _, err := h.deviceService.ReportFromDevice(r.Context(), p, req.State, requestMeta(r)); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, successResponse{Success: true, Message: "State reported to Google Home"})
}
