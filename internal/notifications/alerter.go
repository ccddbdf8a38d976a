package notifications

import (
	"log/slog"
	"sync"
)

// Permission mirrors the platform notification-permission state.
type Permission int

const (
	PermissionDefault Permission = iota
	PermissionGranted
	PermissionDenied
)

// Alerter delivers a platform-level alert for one notification item.
type Alerter interface {
	Alert(item Item)
}

// GatedAlerter enforces the permission protocol in front of another
// Alerter: when permission is undecided it asks once, and once denied it
// never asks again.
type GatedAlerter struct {
	mu        sync.Mutex
	perm      Permission
	requested bool
	request   func() Permission
	next      Alerter
}

// NewGatedAlerter wraps next behind the permission gate. request is
// invoked at most once, and only while permission is still undecided.
func NewGatedAlerter(perm Permission, request func() Permission, next Alerter) *GatedAlerter {
	return &GatedAlerter{
		perm:    perm,
		request: request,
		next:    next,
	}
}

func (g *GatedAlerter) Alert(item Item) {
	g.mu.Lock()
	if g.perm == PermissionDefault && !g.requested && g.request != nil {
		g.requested = true
		g.perm = g.request()
	}
	granted := g.perm == PermissionGranted
	g.mu.Unlock()

	if granted && g.next != nil {
		g.next.Alert(item)
	}
}

// LogAlerter writes alerts to the structured log. It stands in for a
// real desktop notifier in headless environments.
type LogAlerter struct {
	Logger *slog.Logger
}

func (l LogAlerter) Alert(item Item) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Notification alert", "id", item.ID, "title", item.Title, "message", item.Message)
}
