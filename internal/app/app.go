// Package app assembles the realtime client from its parts: credentials,
// rate-limit guards, the connection channel, the frame dispatcher, the
// notification store, and the local status endpoint. Everything is wired
// through explicit construction so tests and callers can substitute any
// collaborator.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hirestack/realtime/internal/channel"
	"github.com/hirestack/realtime/internal/config"
	"github.com/hirestack/realtime/internal/credentials"
	"github.com/hirestack/realtime/internal/dispatch"
	"github.com/hirestack/realtime/internal/notifications"
	"github.com/hirestack/realtime/internal/pubsub"
	"github.com/hirestack/realtime/internal/ratelimit"
	"github.com/hirestack/realtime/internal/status"
)

// Client is the fully wired realtime client.
type Client struct {
	Config     *config.Config
	Guards     *ratelimit.Guards
	Bus        *pubsub.Bus
	Dispatcher *dispatch.Dispatcher
	Channel    *channel.Channel
	Store      *notifications.Store
	Status     *status.Server

	creds      credentials.Source
	fileSource *credentials.FileSource
	logger     *slog.Logger
}

// New wires a Client from configuration. The channel is constructed but
// not yet connected; call Start.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	c := &Client{
		Config: cfg,
		logger: slog.Default().With("service", "app"),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.Guards == nil {
		c.Guards = ratelimit.NewGuards()
	}
	if c.Bus == nil {
		c.Bus = pubsub.NewBus()
	}
	if c.Dispatcher == nil {
		c.Dispatcher = dispatch.New(dispatch.WithPublisher(c.Bus))
	}

	if c.creds == nil {
		if err := c.buildCredentials(cfg); err != nil {
			return nil, err
		}
	}

	if c.Channel == nil {
		c.Channel = channel.New(channel.Config{
			Endpoint:       cfg.WSURL,
			ConnectTimeout: cfg.ConnectTimeout,
			Backoff: channel.Backoff{
				InitialDelay: cfg.ReconnectInitialDelay,
				MaxDelay:     cfg.ReconnectMaxDelay,
				Factor:       cfg.ReconnectFactor,
				Jitter:       cfg.ReconnectJitter,
				MaxAttempts:  cfg.ReconnectMaxAttempts,
			},
		}, c.creds.Token(), channel.OnFrame(c.Dispatcher.Dispatch))
	}

	if c.Store == nil {
		api := notifications.NewGuardedAPI(
			notifications.NewClient(cfg.APIURL, c.creds),
			c.Guards.API,
		)
		c.Store = notifications.NewStore(api,
			notifications.WithPageSize(cfg.NotificationPageSize),
			notifications.WithAlerter(notifications.NewGatedAlerter(
				notifications.PermissionGranted, nil, notifications.LogAlerter{},
			)),
		)
	}
	c.Store.Bind(c.Dispatcher)

	if c.Status == nil && cfg.StatusAddr != "" {
		c.Status = status.New(cfg.StatusAddr, c.Channel, c.Store, c.Guards)
	}

	return c, nil
}

func (c *Client) buildCredentials(cfg *config.Config) error {
	if cfg.TokenFile == "" {
		c.creds = credentials.Static(cfg.Token)
		return nil
	}

	fs, err := credentials.NewFileSource(cfg.TokenFile,
		credentials.WithChangeHandler(func(token string) {
			c.logger.Info("Credential changed, rotating channel")
			c.Channel.SetCredential(token)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to load credential file: %w", err)
	}

	c.creds = fs
	c.fileSource = fs
	return nil
}

// Start warms the notification caches, opens the realtime connection, and
// begins watching the credential file when one is configured. Cache warm
// failures are non-fatal; the store keeps its zero state and later
// refreshes repair it.
func (c *Client) Start(ctx context.Context) error {
	if err := c.Store.Refresh(ctx); err != nil {
		c.logger.Warn("Initial notification fetch failed", "error", err)
	}
	if err := c.Store.RefreshUnreadCount(ctx); err != nil {
		c.logger.Warn("Initial unread count fetch failed", "error", err)
	}

	if c.fileSource != nil {
		if err := c.fileSource.Watch(); err != nil {
			return fmt.Errorf("failed to watch credential file: %w", err)
		}
	}

	c.Channel.Connect()

	if c.Status != nil {
		go func() {
			if err := c.Status.Start(); err != nil {
				c.logger.Error("Status endpoint failed", "error", err)
			}
		}()
	}

	return nil
}

// Close releases every owned resource in reverse start order.
func (c *Client) Close(ctx context.Context) error {
	if c.Status != nil {
		if err := c.Status.Shutdown(ctx); err != nil {
			c.logger.Warn("Status endpoint shutdown failed", "error", err)
		}
	}

	c.Channel.Disconnect()

	if c.fileSource != nil {
		if err := c.fileSource.Close(); err != nil {
			c.logger.Warn("Credential watcher close failed", "error", err)
		}
	}

	if err := c.Bus.Close(); err != nil {
		c.logger.Warn("Bus close failed", "error", err)
	}

	c.Guards.Stop()
	return nil
}
