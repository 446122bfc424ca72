package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/homegate/server/internal/http/handlers"
	"github.com/homegate/server/internal/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers groups the endpoint handlers mounted by the router
type Handlers struct {
	Auth      *handlers.AuthHandler
	Devices   *handlers.DeviceHandler
	Rooms     *handlers.RoomHandler
	SmartHome *handlers.SmartHomeHandler
}

// Authenticator verifies both user sessions and device tokens
type Authenticator interface {
	middleware.UserAuthenticator
	middleware.DeviceAuthenticator
}

// Limiters are the fixed-window limiters of the public route groups
type Limiters struct {
	Signup *middleware.FixedWindowLimiter
	Login  *middleware.FixedWindowLimiter
	API    *middleware.FixedWindowLimiter
}

// NewLimiters creates the limiters with their default policies
func NewLimiters() *Limiters {
	return &Limiters{
		Signup: middleware.NewFixedWindowLimiter(middleware.SignupPolicy),
		Login:  middleware.NewFixedWindowLimiter(middleware.LoginPolicy),
		API:    middleware.NewFixedWindowLimiter(middleware.APIPolicy),
	}
}

// Stop ends the cleanup loops of all limiters
func (l *Limiters) Stop() {
	l.Signup.Stop()
	l.Login.Stop()
	l.API.Stop()
}

// Options configures cross-cutting router behavior
type Options struct {
	CORSOrigins []string
	// DevicePushLimit is the number of state pushes allowed per device per minute
	DevicePushLimit int
}

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(h Handlers, gw Authenticator, limiters *Limiters, opts Options) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(middleware.WithMetrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"RateLimit-Limit", "RateLimit-Remaining", "RateLimit-Reset"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.NotFound(handlers.HandleNotFound)
	r.MethodNotAllowed(handlers.HandleMethodNotAllowed)

	r.Get("/health", handlers.HandleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/auth", func(r chi.Router) {
		r.With(middleware.RateLimit(limiters.Signup, middleware.GetIPKey)).Post("/signup", h.Auth.HandleSignup)
		r.With(middleware.RateLimit(limiters.Login, middleware.GetIPKey)).Post("/login", h.Auth.HandleLogin)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(limiters.API, middleware.GetIPKey))
			r.Use(middleware.RequireUser(gw))
			r.Get("/me", h.Auth.HandleMe)
			r.Post("/logout", h.Auth.HandleLogout)
		})
	})

	r.Route("/api/devices", func(r chi.Router) {
		r.Use(middleware.RateLimit(limiters.API, middleware.GetIPKey))
		r.Use(middleware.RequireUser(gw))

		r.Post("/", h.Devices.HandleRegister)
		r.Get("/", h.Devices.HandleList)
		r.Route("/{deviceId}", func(r chi.Router) {
			r.Get("/", h.Devices.HandleGet)
			r.Patch("/", h.Devices.HandleUpdate)
			r.Delete("/", h.Devices.HandleDelete)
			r.Get("/state", h.Devices.HandleGetState)
			r.Post("/state", h.Devices.HandleSetState)
			r.Post("/tokens", h.Devices.HandleCreateToken)
			r.Get("/tokens", h.Devices.HandleListTokens)
			r.Delete("/tokens/{tokenId}", h.Devices.HandleRevokeToken)
		})
	})

	r.Route("/api/rooms", func(r chi.Router) {
		r.Use(middleware.RateLimit(limiters.API, middleware.GetIPKey))
		r.Use(middleware.RequireUser(gw))

		r.Post("/", h.Rooms.HandleCreate)
		r.Get("/", h.Rooms.HandleList)
		r.Route("/{roomId}", func(r chi.Router) {
			r.Get("/", h.Rooms.HandleGet)
			r.Patch("/", h.Rooms.HandleUpdate)
			r.Delete("/", h.Rooms.HandleDelete)
			r.Post("/devices", h.Rooms.HandleAddDevice)
			r.Get("/devices", h.Rooms.HandleListDevices)
			r.Delete("/devices/{deviceId}", h.Rooms.HandleRemoveDevice)
		})
	})

	r.Route("/api/smarthome", func(r chi.Router) {
		r.Use(middleware.RateLimit(limiters.API, middleware.GetIPKey))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireUser(gw))
			r.Post("/fulfillment", h.SmartHome.HandleFulfillment)
			r.Post("/request-sync", h.SmartHome.HandleRequestSync)
			r.Post("/report-state", h.SmartHome.HandleReportState)
		})

		// Devices push state with their own token, limited per device
		r.With(
			httprate.Limit(opts.DevicePushLimit, time.Minute,
				httprate.WithKeyFuncs(deviceKey),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					handlers.RespondTooManyRequests(w, "Too many state reports, please try again later")
				}),
			),
			middleware.RequireDevice(gw),
		).Post("/devices/{deviceId}/state", h.SmartHome.HandleDeviceState)
	})

	return r
}

func deviceKey(r *http.Request) (string, error) {
	return "device:" + chi.URLParam(r, "deviceId"), nil
}
