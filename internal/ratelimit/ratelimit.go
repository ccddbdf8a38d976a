// Package ratelimit implements client-side admission control for outbound
// API calls using a fixed-size sliding time window per key. The decision is
// made before the network call is attempted, so a saturated key fails fast
// instead of burning a request the backend would reject anyway.
package ratelimit

import (
	"log/slog"
	"sync"
	"time"
)

// record tracks the request history for a single key. Timestamps are
// append-only until pruned; entries older than the window are never counted.
type record struct {
	timestamps   []time.Time
	blocked      bool
	blockedUntil time.Time
}

// Limiter admits requests for arbitrary string keys (typically endpoint
// paths) within a sliding time window. Records are created lazily on first
// check and garbage-collected by a background sweep when idle and unblocked.
type Limiter struct {
	mu      sync.Mutex
	records map[string]*record

	maxRequests int
	window      time.Duration

	now func() time.Time

	sweepTicker *time.Ticker
	stopSweep   chan struct{}
	stopOnce    sync.Once

	logger *slog.Logger
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the limiter's time source. Tests use this to advance
// time without sleeping.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New creates a limiter that admits at most maxRequests per key within the
// trailing window. The background sweep runs on the window interval and
// deletes keys with no valid timestamps and no active block.
func New(maxRequests int, window time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		records:     make(map[string]*record),
		maxRequests: maxRequests,
		window:      window,
		now:         time.Now,
		sweepTicker: time.NewTicker(window),
		stopSweep:   make(chan struct{}),
		logger:      slog.Default().With("service", "ratelimit"),
	}

	for _, opt := range opts {
		opt(l)
	}

	go l.sweepLoop()

	return l
}

// CanMakeRequest reports whether a request for key is admitted right now,
// recording the attempt when it is. A key that just exhausted its budget is
// blocked for exactly one window from that moment. This method never fails;
// use Check when a descriptive error is wanted.
func (l *Limiter) CanMakeRequest(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	rec, ok := l.records[key]
	if !ok {
		rec = &record{}
		l.records[key] = rec
	}

	if rec.blocked {
		if now.Before(rec.blockedUntil) {
			return false
		}
		rec.blocked = false
	}

	rec.timestamps = l.prune(rec.timestamps, now)

	if len(rec.timestamps) < l.maxRequests {
		rec.timestamps = append(rec.timestamps, now)
		return true
	}

	// The block lifts when the oldest admission slides out of the window,
	// which is exactly when a slot frees up again.
	rec.blocked = true
	rec.blockedUntil = rec.timestamps[0].Add(l.window)
	l.logger.Debug("Key blocked", "key", key, "until", rec.blockedUntil)
	return false
}

// GetRemainingRequests returns how many admissions are left for key in the
// current window. It never returns a negative number and equals the
// configured maximum for an unseen key. It does not mutate state.
func (l *Limiter) GetRemainingRequests(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[key]
	if !ok {
		return l.maxRequests
	}

	remaining := l.maxRequests - l.validCount(rec, l.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// GetResetTime returns how long until the oldest timestamp in the window
// expires, or zero when no timestamps are recorded.
func (l *Limiter) GetResetTime(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[key]
	if !ok {
		return 0
	}

	now := l.now()
	cutoff := now.Add(-l.window)
	for _, ts := range rec.timestamps {
		if ts.After(cutoff) {
			return ts.Add(l.window).Sub(now)
		}
	}
	return 0
}

// IsBlocked reports whether key is currently suppressed.
func (l *Limiter) IsBlocked(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[key]
	if !ok {
		return false
	}
	return rec.blocked && l.now().Before(rec.blockedUntil)
}

// Reset clears all stored state for key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.records, key)
}

// ClearAll clears stored state for every key.
func (l *Limiter) ClearAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = make(map[string]*record)
}

// Stop halts the background sweep. The limiter remains usable afterwards;
// idle records are simply no longer garbage-collected.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopSweep)
	})
}

// prune drops timestamps older than the window.
func (l *Limiter) prune(timestamps []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-l.window)
	kept := timestamps[:0]
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	return kept
}

// validCount counts in-window timestamps without mutating the record.
func (l *Limiter) validCount(rec *record, now time.Time) int {
	cutoff := now.Add(-l.window)
	count := 0
	for _, ts := range rec.timestamps {
		if ts.After(cutoff) {
			count++
		}
	}
	return count
}

func (l *Limiter) sweepLoop() {
	defer l.sweepTicker.Stop()
	for {
		select {
		case <-l.sweepTicker.C:
			l.sweep()
		case <-l.stopSweep:
			return
		}
	}
}

// sweep prunes every key and deletes those with empty timestamps and no
// active block, bounding memory on long-running clients.
func (l *Limiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, rec := range l.records {
		rec.timestamps = l.prune(rec.timestamps, now)
		if rec.blocked && !now.Before(rec.blockedUntil) {
			rec.blocked = false
		}
		if len(rec.timestamps) == 0 && !rec.blocked {
			delete(l.records, key)
		}
	}
}
