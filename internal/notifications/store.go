// Package notifications maintains the authoritative client-side view of
// notification items and the unread counter, fed by both REST fetches and
// live pushes from the realtime channel.
package notifications

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hirestack/realtime/internal/dispatch"
)

// Item is one notification as the client sees it.
type Item struct {
	ID        int64      `json:"id"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	IsRead    bool       `json:"is_read"`
	CreatedAt time.Time  `json:"created_at"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
}

// API is the REST collaborator the store synchronizes with. It is consumed,
// not owned: failures are logged and local state keeps its last-known value
// rather than being cleared.
type API interface {
	List(ctx context.Context, page, pageSize int) ([]Item, error)
	UnreadCount(ctx context.Context) (int, error)
	MarkRead(ctx context.Context, ids []int64) error
	MarkAllRead(ctx context.Context) error
}

// Store caches notification items and the unread counter.
type Store struct {
	mu     sync.RWMutex
	items  []Item
	unread int

	api      API
	alerter  Alerter
	pageSize int
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithPageSize bounds the REST list fetch.
func WithPageSize(n int) Option {
	return func(s *Store) {
		s.pageSize = n
	}
}

// WithAlerter sets the platform notification side effect fired on live
// pushes. Alerts are best-effort and never block dispatch.
func WithAlerter(a Alerter) Option {
	return func(s *Store) {
		s.alerter = a
	}
}

// WithClock overrides the store's time source for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a store backed by the given REST collaborator.
func NewStore(api API, opts ...Option) *Store {
	s := &Store{
		api:      api,
		pageSize: 20,
		now:      time.Now,
		logger:   slog.Default().With("service", "notifications"),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Bind registers the store's live-push handler on the dispatcher.
func (s *Store) Bind(d *dispatch.Dispatcher) {
	d.Subscribe(dispatch.TypeNotification, func(event dispatch.Event) {
		n, ok := event.Payload.(*dispatch.Notification)
		if !ok {
			return
		}
		s.HandlePush(*n)
	})
}

// Items returns a copy of the current item list, newest first.
func (s *Store) Items() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]Item, len(s.items))
	copy(items, s.items)
	return items
}

// UnreadCount returns the current unread counter.
func (s *Store) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unread
}

// Refresh replaces the full item list from the REST collaborator. On
// failure the previous list is kept to avoid UI flicker.
func (s *Store) Refresh(ctx context.Context) error {
	items, err := s.api.List(ctx, 1, s.pageSize)
	if err != nil {
		s.logger.Error("Failed to refresh notifications, keeping last-known list", "error", err)
		return err
	}

	s.mu.Lock()
	s.items = items
	s.mu.Unlock()
	return nil
}

// RefreshUnreadCount replaces the unread counter from the REST
// collaborator. On failure the previous value is kept.
func (s *Store) RefreshUnreadCount(ctx context.Context) error {
	count, err := s.api.UnreadCount(ctx)
	if err != nil {
		s.logger.Error("Failed to refresh unread count, keeping last-known value", "error", err)
		return err
	}

	s.mu.Lock()
	s.unread = count
	s.mu.Unlock()
	return nil
}

// MarkAsRead optimistically flips the given items locally, tells the
// server, then re-synchronizes the unread counter from the server rather
// than trusting the local decrement.
func (s *Store) MarkAsRead(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}

	wanted := make(map[int64]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	readAt := s.now()
	s.mu.Lock()
	for i := range s.items {
		if wanted[s.items[i].ID] && !s.items[i].IsRead {
			s.items[i].IsRead = true
			s.items[i].ReadAt = &readAt
		}
	}
	s.mu.Unlock()

	if err := s.api.MarkRead(ctx, ids); err != nil {
		s.logger.Error("Failed to mark notifications read on server", "ids", ids, "error", err)
	}

	return s.RefreshUnreadCount(ctx)
}

// MarkAllAsRead flips every item locally and zeroes the counter
// immediately, then reconciles the counter with the server the same way
// MarkAsRead does, so the two paths stay consistent.
func (s *Store) MarkAllAsRead(ctx context.Context) error {
	readAt := s.now()
	s.mu.Lock()
	for i := range s.items {
		if !s.items[i].IsRead {
			s.items[i].IsRead = true
			s.items[i].ReadAt = &readAt
		}
	}
	s.unread = 0
	s.mu.Unlock()

	if err := s.api.MarkAllRead(ctx); err != nil {
		s.logger.Error("Failed to mark all notifications read on server", "error", err)
	}

	return s.RefreshUnreadCount(ctx)
}

// HandlePush applies a live-pushed notification: prepend, bump the counter
// by exactly one, then fire the platform alert. Duplicate delivery is
// possible and tolerated; pushes are never deduped against the list.
func (s *Store) HandlePush(n dispatch.Notification) {
	item := Item{
		ID:        n.ID,
		Title:     n.Title,
		Message:   n.Message,
		CreatedAt: n.CreatedAt,
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = s.now()
	}

	s.mu.Lock()
	s.items = append([]Item{item}, s.items...)
	s.unread++
	alerter := s.alerter
	s.mu.Unlock()

	s.logger.Debug("Notification pushed", "id", item.ID, "title", item.Title)

	if alerter != nil {
		// Best-effort side effect off the dispatch goroutine.
		go alerter.Alert(item)
	}
}
