package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPort           = "8080"
	defaultEnvironment    = "dev"
	defaultLogLevel       = "info"
	defaultBcryptCost     = 12
	defaultDeviceTokenTTL = 365 * 24 * time.Hour
	defaultAuditBuffer    = 256
	defaultDevicePush     = 60
)

// Config holds the application configuration
type Config struct {
	DatabaseURL     string
	Port            string
	JWTSecret       string
	Environment     string
	LogLevel        string
	BcryptCost      int
	DeviceTokenTTL  time.Duration
	CORSOrigins     []string
	AuditBuffer     int
	DevicePushLimit int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		Port:            defaultPort,
		Environment:     defaultEnvironment,
		LogLevel:        defaultLogLevel,
		BcryptCost:      defaultBcryptCost,
		DeviceTokenTTL:  defaultDeviceTokenTTL,
		CORSOrigins:     []string{"*"},
		AuditBuffer:     defaultAuditBuffer,
		DevicePushLimit: defaultDevicePush,
	}

	// Load DATABASE_URL and log connection details (password masked)
	databaseURL := strings.TrimSpace(getenv("DATABASE_URL"))
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	cfg.DatabaseURL = databaseURL

	if u, err := url.Parse(databaseURL); err == nil {
		host := u.Hostname()
		if host == "" {
			host = "localhost"
		}
		port := u.Port()
		if port == "" {
			port = "5432"
		}
		user := u.User.Username()
		if user == "" {
			user = "(none)"
		}
		slog.Info("db target", "host", host, "port", port, "db", strings.TrimPrefix(u.Path, "/"), "user", user)
	}

	// Load JWT_SECRET (required)
	cfg.JWTSecret = getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}

	if v := getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := getenv("ENVIRONMENT"); v != "" {
		cfg.Environment = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := getenv("CORS_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		if len(origins) > 0 {
			cfg.CORSOrigins = origins
		}
	}

	cfg.BcryptCost = intVar(getenv, "BCRYPT_COST", cfg.BcryptCost)
	cfg.AuditBuffer = intVar(getenv, "AUDIT_BUFFER", cfg.AuditBuffer)
	cfg.DevicePushLimit = intVar(getenv, "DEVICE_PUSH_LIMIT", cfg.DevicePushLimit)
	cfg.DeviceTokenTTL = durationVar(getenv, "DEVICE_TOKEN_TTL", cfg.DeviceTokenTTL)

	return cfg, nil
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return c.Environment == "prod" || c.Environment == "production"
}

func intVar(getenv func(string) string, key string, def int) int {
	v := getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		slog.Warn("invalid config value, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func durationVar(getenv func(string) string, key string, def time.Duration) time.Duration {
	v := getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		slog.Warn("invalid config value, using default", "key", key, "value", v, "default", def.String())
		return def
	}
	return d
}
