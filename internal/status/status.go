// Package status exposes a local diagnostics endpoint reporting the
// realtime client's connection, rate-limit, and notification state.
package status

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hirestack/realtime/internal/channel"
	"github.com/hirestack/realtime/internal/notifications"
	"github.com/hirestack/realtime/internal/ratelimit"
)

// Report is the JSON document served at /status.
type Report struct {
	ConnectionState string               `json:"connection_state"`
	LastCloseCode   int                  `json:"last_close_code,omitempty"`
	LastCloseReason string               `json:"last_close_reason,omitempty"`
	UnreadCount     int                  `json:"unread_count"`
	Guards          map[string]GuardView `json:"guards"`
}

// GuardView summarizes one rate-limit guard for a fixed probe key.
type GuardView struct {
	Remaining    int     `json:"remaining"`
	ResetSeconds float64 `json:"reset_seconds"`
}

// Server serves the diagnostics endpoint on a loopback address.
type Server struct {
	echo    *echo.Echo
	addr    string
	channel *channel.Channel
	store   *notifications.Store
	guards  *ratelimit.Guards
	logger  *slog.Logger
}

// statusKey is the probe identity guards are queried with. The web client
// rates everything under the signed-in user; locally there is one.
const statusKey = "local"

// New creates a status server bound to addr.
func New(addr string, ch *channel.Channel, store *notifications.Store, guards *ratelimit.Guards) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:    e,
		addr:    addr,
		channel: ch,
		store:   store,
		guards:  guards,
		logger:  slog.Default().With("service", "status"),
	}

	e.GET("/status", s.handleStatus)
	e.GET("/healthz", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	return s
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("Status endpoint listening", "addr", s.addr)
	err := s.echo.Start(s.addr)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleStatus(c echo.Context) error {
	code, reason := s.channel.LastClose()

	report := Report{
		ConnectionState: s.channel.State().String(),
		LastCloseCode:   code,
		LastCloseReason: reason,
		UnreadCount:     s.store.UnreadCount(),
		Guards: map[string]GuardView{
			"api":    guardView(s.guards.API),
			"auth":   guardView(s.guards.Auth),
			"upload": guardView(s.guards.Upload),
		},
	}

	return c.JSON(http.StatusOK, report)
}

func guardView(l *ratelimit.Limiter) GuardView {
	return GuardView{
		Remaining:    l.GetRemainingRequests(statusKey),
		ResetSeconds: l.GetResetTime(statusKey).Seconds(),
	}
}
