package notifications

import "context"

// Admitter is the slice of the rate limiter the REST layer depends on.
type Admitter interface {
	Check(key string) error
}

// GuardedAPI applies admission control in front of another API. A rejected
// call fails with the limiter's *LimitError before any network traffic.
type GuardedAPI struct {
	api   API
	admit Admitter
}

// NewGuardedAPI wraps api behind the given admitter.
func NewGuardedAPI(api API, admit Admitter) *GuardedAPI {
	return &GuardedAPI{api: api, admit: admit}
}

func (g *GuardedAPI) List(ctx context.Context, page, pageSize int) ([]Item, error) {
	if err := g.admit.Check("notifications/list"); err != nil {
		return nil, err
	}
	return g.api.List(ctx, page, pageSize)
}

func (g *GuardedAPI) UnreadCount(ctx context.Context) (int, error) {
	if err := g.admit.Check("notifications/unread-count"); err != nil {
		return 0, err
	}
	return g.api.UnreadCount(ctx)
}

func (g *GuardedAPI) MarkRead(ctx context.Context, ids []int64) error {
	if err := g.admit.Check("notifications/mark-read"); err != nil {
		return err
	}
	return g.api.MarkRead(ctx, ids)
}

func (g *GuardedAPI) MarkAllRead(ctx context.Context) error {
	if err := g.admit.Check("notifications/mark-all-read"); err != nil {
		return err
	}
	return g.api.MarkAllRead(ctx)
}
