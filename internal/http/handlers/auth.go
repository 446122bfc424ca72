package handlers

import (
	"net/http"

	"github.com/homegate/server/internal/auth"
)

// AuthHandler handles account endpoints
type AuthHandler struct {
	authService *auth.Service
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *auth.Service) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// signupRequest is the request body for POST /api/auth/signup
type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type signupResponse struct {
	Message string          `json:"message"`
	User    auth.PublicUser `json:"user"`
}

// loginRequest is the request body for POST /api/auth/login
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleSignup handles POST /api/auth/signup
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	user, err := h.authService.Signup(r.Context(), req.Email, req.Password, req.Name, requestMeta(r))
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, signupResponse{Message: "User created successfully", User: user})
}

// HandleLogin handles POST /api/auth/login. client_id and scope come from the query string.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	q := r.URL.Query()
	res, err := h.authService.Login(r.Context(), auth.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		ClientID: q.Get("client_id"),
		Scope:    q.Get("scope"),
	}, requestMeta(r))
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, res)
}

// HandleMe handles GET /api/auth/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	p, ok := userPrincipal(w, r)
	if !ok {
		return
	}

	profile, err := h.authService.CurrentUser(r.Context(), p.UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, profile)
}

// HandleLogout handles POST /api/auth/logout. The session token is not invalidated.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	p, ok := userPrincipal(w, r)
	if !ok {
		return
	}
	h.authService.Logout(r.Context(), p.UserID)
	respondJSON(w, http.StatusOK, messageResponse{Message: "Logged out successfully"})
}
