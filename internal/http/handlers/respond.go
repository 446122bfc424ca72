package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/google/uuid"
	"github.com/homegate/server/internal/apperr"
	"github.com/homegate/server/internal/audit"
	"github.com/homegate/server/internal/authz"
	"github.com/homegate/server/internal/middleware"
)

// maxBodyBytes bounds every JSON request body
const maxBodyBytes = 1 << 20

type messageResponse struct {
	Message string `json:"message"`
}

// respondJSON sends v as a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, map[string]any{"error": message, "statusCode": statusCode})
}

// respondError maps err to its status. Causes of 5xx responses are logged, never returned.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.StatusCode(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request error", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		slog.Info("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", apperr.Message(err))
	}
	respondWithError(w, status, apperr.Message(err))
}

// decodeJSON reads the request body into dst. An empty body leaves dst untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return apperr.Validation("Invalid request body")
	}
	return nil
}

// requestMeta collects the audit fields of a request. RemoteAddr is already the real client IP.
func requestMeta(r *http.Request) audit.Meta {
	return audit.Meta{IP: clientIP(r), UserAgent: r.UserAgent()}
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// userPrincipal returns the principal set by the auth middleware, answering 401 when absent
func userPrincipal(w http.ResponseWriter, r *http.Request) (authz.UserPrincipal, bool) {
	p, ok := middleware.GetUserPrincipal(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "No token provided")
	}
	return p, ok
}

// parseID parses a path id. Malformed ids cannot exist, so they are reported as not found.
func parseID(raw, entity string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.NotFound(entity + " not found")
	}
	return id, nil
}

// RespondTooManyRequests sends a 429 in the common error shape
func RespondTooManyRequests(w http.ResponseWriter, message string) {
	respondWithError(w, http.StatusTooManyRequests, message)
}
