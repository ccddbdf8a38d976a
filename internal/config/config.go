package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the realtime client.
type Config struct {
	// APIURL is the base URL of the platform's REST API.
	APIURL string `validate:"required,url"`
	// WSURL is the WebSocket endpoint, e.g. wss://host/ws/notifications.
	// The bearer token is appended as a single url-encoded "token" query
	// parameter; the raw token is sent, not "Bearer <token>".
	WSURL string `validate:"required"`

	// Token is a static credential. Ignored when TokenFile is set.
	Token string
	// TokenFile points at a file containing the credential. The file is
	// watched so token rotation reconnects the channel.
	TokenFile string

	// Reconnect policy for the connection channel.
	ReconnectInitialDelay time.Duration `validate:"gt=0"`
	ReconnectMaxDelay     time.Duration `validate:"gt=0"`
	ReconnectFactor       float64       `validate:"gte=1"`
	ReconnectJitter       bool
	// ReconnectMaxAttempts of 0 means retry forever.
	ReconnectMaxAttempts int `validate:"gte=0"`
	ConnectTimeout       time.Duration `validate:"gt=0"`

	// NotificationPageSize bounds the REST notification list fetch.
	NotificationPageSize int `validate:"gt=0"`

	// StatusAddr is the bind address for the local status endpoint.
	StatusAddr string
}

// New loads configuration from environment variables.
func New() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, relying on environment variables")
	}

	cfg := &Config{
		APIURL:                os.Getenv("REALTIME_API_URL"),
		WSURL:                 os.Getenv("REALTIME_WS_URL"),
		Token:                 os.Getenv("REALTIME_TOKEN"),
		TokenFile:             os.Getenv("REALTIME_TOKEN_FILE"),
		ReconnectInitialDelay: envDuration("RECONNECT_INITIAL_DELAY", 3*time.Second),
		ReconnectMaxDelay:     envDuration("RECONNECT_MAX_DELAY", 30*time.Second),
		ReconnectFactor:       envFloat("RECONNECT_FACTOR", 2.0),
		ReconnectJitter:       envBool("RECONNECT_JITTER", true),
		ReconnectMaxAttempts:  envInt("RECONNECT_MAX_ATTEMPTS", 0),
		ConnectTimeout:        envDuration("CONNECT_TIMEOUT", 10*time.Second),
		NotificationPageSize:  envInt("NOTIFICATION_PAGE_SIZE", 20),
		StatusAddr:            envString("STATUS_ADDR", "127.0.0.1:7313"),
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("Invalid duration in environment, using default", "key", key, "value", v)
		return fallback
	}
	return d
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("Invalid integer in environment, using default", "key", key, "value", v)
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("Invalid float in environment, using default", "key", key, "value", v)
		return fallback
	}
	return f
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("Invalid boolean in environment, using default", "key", key, "value", v)
		return fallback
	}
	return b
}
