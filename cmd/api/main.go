package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/homegate/server/internal/audit"
	"github.com/homegate/server/internal/auth"
	"github.com/homegate/server/internal/config"
	"github.com/homegate/server/internal/db"
	"github.com/homegate/server/internal/device"
	"github.com/homegate/server/internal/fulfillment"
	"github.com/homegate/server/internal/homegraph"
	httphandler "github.com/homegate/server/internal/http"
	"github.com/homegate/server/internal/http/handlers"
	"github.com/homegate/server/internal/logging"
	"github.com/homegate/server/internal/metrics"
	"github.com/homegate/server/internal/repo"
	"github.com/homegate/server/internal/room"
	"github.com/joho/godotenv"
)

const serviceName = "homegate-api"

func main() {
	// Load .env from CWD or server/ so it works from repo root or server/ (env vars override)
	_ = godotenv.Load(".env")
	_ = godotenv.Load("server/.env")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(logging.Config{
		ServiceName: serviceName,
		Environment: cfg.Environment,
		Level:       cfg.LogLevel,
	})
	slog.SetDefault(logger)

	if cfg.IsProduction() && slices.Contains(cfg.CORSOrigins, "*") {
		logger.Warn("CORS allows every origin in production")
	}

	ctx := context.Background()

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	metrics.MustRegister(serviceName)

	// Repositories
	userRepo := repo.NewUserRepo(database)
	oauthRepo := repo.NewOAuthTokenRepo(database)
	deviceRepo := repo.NewDeviceRepo(database)
	stateRepo := repo.NewStateRepo(database)
	deviceTokenRepo := repo.NewDeviceTokenRepo(database)
	roomRepo := repo.NewRoomRepo(database)

	auditSink := audit.NewSink(repo.NewAuditRepo(database), cfg.AuditBuffer)

	// Services
	jwtService := auth.NewJWTService(cfg.JWTSecret)
	authService := auth.NewService(jwtService, auth.NewBcryptHasher(cfg.BcryptCost), userRepo, oauthRepo, auditSink)
	gateway := auth.NewGateway(jwtService, oauthRepo, deviceRepo, deviceTokenRepo)
	notifier := homegraph.NewLogNotifier(logger)
	deviceService := device.NewService(deviceRepo, stateRepo, deviceTokenRepo, auditSink, notifier, cfg.DeviceTokenTTL)
	roomService := room.NewService(roomRepo, deviceRepo, auditSink)
	engine := fulfillment.NewEngine(deviceRepo, stateRepo, auditSink)

	limiters := httphandler.NewLimiters()
	defer limiters.Stop()

	router := httphandler.NewRouter(httphandler.Handlers{
		Auth:      handlers.NewAuthHandler(authService),
		Devices:   handlers.NewDeviceHandler(deviceService),
		Rooms:     handlers.NewRoomHandler(roomService),
		SmartHome: handlers.NewSmartHomeHandler(engine, deviceService, notifier),
	}, gateway, limiters, httphandler.Options{
		CORSOrigins:     cfg.CORSOrigins,
		DevicePushLimit: cfg.DevicePushLimit,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	// Drain pending audit entries after the last request finished
	if err := auditSink.Close(shutdownCtx); err != nil {
		logger.Warn("audit sink did not drain", "error", err)
	}

	logger.Info("server exited")
}
