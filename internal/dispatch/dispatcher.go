// Package dispatch decodes inbound realtime frames and routes them by type
// to registered handlers. Dispatch is synchronous and preserves arrival
// order; malformed frames are logged and dropped without disturbing the
// connection.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/hirestack/realtime/internal/pubsub"
)

// Handler processes one decoded event. Handlers run synchronously on the
// dispatch goroutine, so they must not block on long work.
type Handler func(Event)

// FrameTopic returns the bus topic decoded frames of the given type are
// republished under.
func FrameTopic(t MessageType) string {
	return "realtime.frames." + string(t)
}

// Dispatcher routes decoded frames to zero or more listeners per type.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[MessageType][]Handler

	publisher pubsub.Publisher
	logger    *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithPublisher makes the dispatcher republish every well-formed frame onto
// the bus after synchronous handlers have run, for consumers that do not
// need ordering guarantees.
func WithPublisher(pub pubsub.Publisher) Option {
	return func(d *Dispatcher) {
		d.publisher = pub
	}
}

// New creates a Dispatcher.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		handlers: make(map[MessageType][]Handler),
		logger:   slog.Default().With("service", "dispatch"),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Subscribe registers a handler for a message type. Registration is meant
// for wiring time; handlers cannot be removed.
func (d *Dispatcher) Subscribe(t MessageType, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[t] = append(d.handlers[t], h)
}

// Dispatch decodes one raw frame and invokes its handlers in registration
// order. It is designed to be the channel's frame callback, which calls it
// from a single goroutine in arrival order.
func (d *Dispatcher) Dispatch(data []byte) {
	event, err := Decode(data)
	switch {
	case errors.Is(err, ErrUnknownType):
		// Unrecognized types are ignored, not fatal. The raw frame is
		// still republished for any forward-compatible bus consumer.
		d.logger.Debug("Ignoring frame with unknown type", "type", event.Type)
	case err != nil:
		d.logger.Error("Dropping malformed frame", "error", err)
		return
	default:
		d.mu.RLock()
		handlers := d.handlers[event.Type]
		d.mu.RUnlock()

		for _, h := range handlers {
			h(event)
		}
	}

	if d.publisher != nil {
		msg := pubsub.Message{
			Topic:   FrameTopic(event.Type),
			Payload: data,
		}
		if err := d.publisher.Publish(context.Background(), msg); err != nil {
			d.logger.Error("Failed to republish frame", "type", event.Type, "error", err)
		}
	}
}
