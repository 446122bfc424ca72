package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/homegate/server/internal/apperr"
	"github.com/homegate/server/internal/authz"
)

type contextKey string

const (
	userPrincipalKey   contextKey = "user_principal"
	devicePrincipalKey contextKey = "device_principal"
)

// maxDeviceIDBody bounds how much of a body is buffered to find a deviceId
const maxDeviceIDBody = 1 << 20

// UserAuthenticator verifies user session tokens
type UserAuthenticator interface {
	AuthenticateUser(ctx context.Context, rawToken string) (authz.UserPrincipal, error)
}

// DeviceAuthenticator verifies device access tokens
type DeviceAuthenticator interface {
	AuthenticateDevice(ctx context.Context, rawToken, deviceID string) (authz.DevicePrincipal, error)
}

// BearerToken returns the token of an "Authorization: Bearer <token>" header, or ""
func BearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// RequireUser authenticates the user session token and attaches the principal to the context
func RequireUser(gw UserAuthenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := gw.AuthenticateUser(r.Context(), BearerToken(r))
			if err != nil {
				respondWithAppError(w, r, err)
				return
			}
			ctx := context.WithValue(r.Context(), userPrincipalKey, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireDevice authenticates a device token. The device id comes from the
// deviceId path parameter, or from the JSON body when the path has none.
func RequireDevice(gw DeviceAuthenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			deviceID := chi.URLParam(r, "deviceId")
			if deviceID == "" {
				deviceID = deviceIDFromBody(r)
			}
			p, err := gw.AuthenticateDevice(r.Context(), BearerToken(r), deviceID)
			if err != nil {
				respondWithAppError(w, r, err)
				return
			}
			ctx := context.WithValue(r.Context(), devicePrincipalKey, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// deviceIDFromBody peeks at the body and restores it for the next handler
func deviceIDFromBody(r *http.Request) string {
	if r.Body == nil {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxDeviceIDBody))
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	var peek struct {
		DeviceID string `json:"deviceId"`
	}
	if err := json.Unmarshal(body, &peek); err != nil {
		return ""
	}
	return peek.DeviceID
}

// GetUserPrincipal returns the principal set by RequireUser
func GetUserPrincipal(ctx context.Context) (authz.UserPrincipal, bool) {
	p, ok := ctx.Value(userPrincipalKey).(authz.UserPrincipal)
	return p, ok
}

// GetDevicePrincipal returns the principal set by RequireDevice
func GetDevicePrincipal(ctx context.Context) (authz.DevicePrincipal, bool) {
	p, ok := ctx.Value(devicePrincipalKey).(authz.DevicePrincipal)
	return p, ok
}

// WithUserPrincipal attaches p to ctx the same way RequireUser does
func WithUserPrincipal(ctx context.Context, p authz.UserPrincipal) context.Context {
	return context.WithValue(ctx, userPrincipalKey, p)
}

func respondWithAppError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.StatusCode(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "path", r.URL.Path, "error", err)
	}
	respondWithError(w, status, apperr.Message(err))
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := map[string]any{"error": message, "statusCode": statusCode}
	_ = json.NewEncoder(w).Encode(response)
}
