package storage

import (
	"context"
	"math/rand"
	"time"
)

// Backoff implements exponential backoff with jitter for retrying
// Transient failures against the remote calendar API.
type Backoff struct {
	Base       time.Duration
	Max        time.Duration
	MaxRetries int
}

// DefaultBackoff gives a bounded number of attempts before a
// Transient failure escalates to RemoteUnavailableErr.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:       200 * time.Millisecond,
		Max:        5 * time.Second,
		MaxRetries: 5,
	}
}

func (b Backoff) delay(attempt int) time.Duration {
	d := b.Base << uint(attempt)
	if d > b.Max || d <= 0 {
		d = b.Max
	}
	half := int64(d) / 2
	if half <= 0 {
		return d
	}
	jitter := time.Duration(rand.Int63n(half))
	return time.Duration(half) + jitter
}

// Retry calls fn until it succeeds, fn returns a non-Transient error,
// or MaxRetries is exhausted, in which case it returns a
// RemoteUnavailableErr wrapping the last error.
func (b Backoff) Retry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= b.MaxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if _, transient := lastErr.(*TransientErr); !transient {
			return lastErr
		}
		if attempt == b.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.delay(attempt)):
		}
	}
	return &RemoteUnavailableErr{Attempts: b.MaxRetries + 1, Err: lastErr}
}
