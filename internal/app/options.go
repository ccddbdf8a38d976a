package app

import (
	"github.com/hirestack/realtime/internal/channel"
	"github.com/hirestack/realtime/internal/credentials"
	"github.com/hirestack/realtime/internal/dispatch"
	"github.com/hirestack/realtime/internal/notifications"
	"github.com/hirestack/realtime/internal/pubsub"
	"github.com/hirestack/realtime/internal/ratelimit"
)

// Option substitutes a collaborator before the default wiring runs.
type Option func(*Client)

// WithGuards injects pre-built rate-limit guards.
func WithGuards(g *ratelimit.Guards) Option {
	return func(c *Client) {
		c.Guards = g
	}
}

// WithBus injects a message bus.
func WithBus(b *pubsub.Bus) Option {
	return func(c *Client) {
		c.Bus = b
	}
}

// WithDispatcher injects a frame dispatcher.
func WithDispatcher(d *dispatch.Dispatcher) Option {
	return func(c *Client) {
		c.Dispatcher = d
	}
}

// WithChannel injects a pre-built connection channel.
func WithChannel(ch *channel.Channel) Option {
	return func(c *Client) {
		c.Channel = ch
	}
}

// WithStore injects a notification store.
func WithStore(s *notifications.Store) Option {
	return func(c *Client) {
		c.Store = s
	}
}

// WithCredentials injects a credential source, bypassing the
// Token/TokenFile configuration.
func WithCredentials(src credentials.Source) Option {
	return func(c *Client) {
		c.creds = src
	}
}
