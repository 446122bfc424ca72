package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/homegate/server/internal/model"
	"github.com/homegate/server/internal/room"
)

// RoomHandler handles room endpoints
type RoomHandler struct {
	roomService *room.Service
}

// NewRoomHandler creates a new room handler
func NewRoomHandler(roomService *room.Service) *RoomHandler {
	return &RoomHandler{roomService: roomService}
}

type roomRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type addRoomDeviceRequest struct {
	DeviceID string `json:"deviceId"`
}

type roomResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type roomDeviceResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	IsOnline bool   `json:"isOnline"`
}

func toRoomResponse(rm model.Room) roomResponse {
	return roomResponse{ID: rm.ID, Name: rm.Name, Description: rm.Description, CreatedAt: rm.CreatedAt, UpdatedAt: rm.UpdatedAt}
}

func roomID(r *http.Request) (uuid.UUID, error) {
	return parseID(chi.URLParam(r, "roomId"), "Room")
}

// HandleCreate handles POST /api/rooms
func (h *RoomHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	p, ok := userPrincipal(w, r)
	if !ok {
		return
	}
	var req roomRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	name := ""
	if req.Name != nil {
		name = *req.Name
	}
	rm, err := h.roomService.Create(r.Context(), p, name, req.Description, requestMeta(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toRoomResponse(rm))
}

// HandleList handles GET /api/rooms
func (h *RoomHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	p, ok := userPrincipal(w, r)
	if !ok {
		return
	}
	rooms, err := h.roomService.List(r.Context(), p)
	if err != nil {
		respondError(w, r, err)
		return
	}
	out := make([]roomResponse, 0, len(rooms))
	for _, rm := range rooms {
		out = append(out, toRoomResponse(rm))
	}
	respondJSON(w, http.StatusOK, out)
}

// HandleGet handles GET /api/rooms/{roomId}
func (h *RoomHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	p, ok := userPrincipal(w, r)
	if !ok {
		return
	}
	id, err := roomID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	rm, err := h.roomService.Get(r.Context(), p, id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toRoomResponse(rm))
}

// HandleUpdate handles PATCH /api/rooms/{roomId}
func (h *RoomHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	p, ok := userPrincipal(w, r)
	if !ok {
		return
	}
	id, err := roomID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req roomRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	rm, err := h.roomService.Update(r.Context(), p, id, req.Name, req.Description)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toRoomResponse(rm))
}

// HandleDelete handles DELETE /api/rooms/{roomId}
func (h *RoomHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	p, ok := userPrincipal(w, r)
	if !ok {
		return
	}
	id, err := roomID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.roomService.Delete(r.Context(), p, id); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, messageResponse{Message: "Room deleted successfully"})
}

// HandleAddDevice handles POST /api/rooms/{roomId}/devices
func (h *RoomHandler) HandleAddDevice(w http.ResponseWriter, r *http.Request) {
	p, ok := userPrincipal(w, r)
	if !ok {
		return
	}
	id, err := roomID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req addRoomDeviceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.roomService.AddDevice(r.Context(), p, id, req.DeviceID); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, messageResponse{Message: "Device added to room"})
}

// HandleListDevices handles GET /api/rooms/{roomId}/devices
func (h *RoomHandler) HandleListDevices(w http.ResponseWriter, r *http.Request) {
	p, ok := userPrincipal(w, r)
	if !ok {
		return
	}
	id, err := roomID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	devices, err := h.roomService.Devices(r.Context(), p, id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	out := make([]roomDeviceResponse, 0, len(devices))
	for _, d := range devices {
		out = append(out, roomDeviceResponse{ID: d.ID, Name: d.Name, Type: d.Type, IsOnline: d.IsOnline})
	}
	respondJSON(w, http.StatusOK, out)
}

// HandleRemoveDevice handles DELETE /api/rooms/{roomId}/devices/{deviceId}
func (h *RoomHandler) HandleRemoveDevice(w http.ResponseWriter, r *http.Request) {
	p, ok := userPrincipal(w, r)
	if !ok {
		return
	}
	id, err := roomID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.roomService.RemoveDevice(r.Context(), p, id, chi.URLParam(r, "deviceId")); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, messageResponse{Message: "Device removed from room"})
}
