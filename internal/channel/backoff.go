package channel

import (
	"math"
	"math/rand"
	"time"
)

// Backoff controls the reconnect delay policy. Delays grow exponentially by
// Factor from InitialDelay, capped at MaxDelay, with optional jitter to
// spread simultaneous reconnects across clients.
type Backoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Factor       float64
	Jitter       bool
	// MaxAttempts of 0 means retry forever.
	MaxAttempts int
}

// DefaultBackoff returns the baseline reconnect policy. The initial delay
// matches the fixed 3 s interval the backend's other clients use.
func DefaultBackoff() Backoff {
	return Backoff{
		InitialDelay: 3 * time.Second,
		MaxDelay:     30 * time.Second,
		Factor:       2,
		Jitter:       true,
	}
}

// Delay returns the wait before the given attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := float64(b.InitialDelay) * math.Pow(b.Factor, float64(attempt-1))
	if d > float64(b.MaxDelay) {
		d = float64(b.MaxDelay)
	}

	if b.Jitter {
		// Jitter: delay * [0.5, 1.5)
		d *= 0.5 + rand.Float64()
		if d > float64(b.MaxDelay) {
			d = float64(b.MaxDelay)
		}
	}

	return time.Duration(d)
}
