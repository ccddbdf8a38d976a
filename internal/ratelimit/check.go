package ratelimit

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// LimitError is returned by Check when a request is not admitted. It carries
// a retry-after estimate so callers can surface a user-visible message before
// any network call is attempted. This is the one place the layer deliberately
// turns a precondition into an error.
type LimitError struct {
	Key        string
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	seconds := int(math.Ceil(e.RetryAfter.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return fmt.Sprintf("rate limit exceeded for %s, please retry in %d second(s)", e.Key, seconds)
}

// IsLimitError reports whether err is a rate-limit admission failure.
func IsLimitError(err error) bool {
	var le *LimitError
	return errors.As(err, &le)
}

// Check admits a request for key or returns a *LimitError describing how
// long the caller should wait. Remote faults never surface here; admission
// is purely a client-enforced precondition.
func (l *Limiter) Check(key string) error {
	if l.CanMakeRequest(key) {
		return nil
	}
	return &LimitError{
		Key:        key,
		RetryAfter: l.GetResetTime(key),
	}
}
