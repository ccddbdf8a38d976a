package ratelimit

import "time"

// Guards bundles the three independent limiters the client uses. They are
// deliberately separate instances with different policies: exhausting the
// upload budget must not lock out ordinary API calls, and the tight auth
// budget must not be widened by general traffic.
type Guards struct {
	// API guards general REST traffic.
	API *Limiter
	// Auth guards credential-sensitive endpoints.
	Auth *Limiter
	// Upload guards file upload endpoints.
	Upload *Limiter
}

// NewGuards constructs the standard guard set. Callers own the instances;
// nothing here is process-wide, so tests can build isolated sets per case.
func NewGuards(opts ...Option) *Guards {
	return &Guards{
		API:    New(100, time.Minute, opts...),
		Auth:   New(5, time.Minute, opts...),
		Upload: New(10, time.Minute, opts...),
	}
}

// Stop halts the background sweeps of all three limiters.
func (g *Guards) Stop() {
	g.API.Stop()
	g.Auth.Stop()
	g.Upload.Stop()
}
