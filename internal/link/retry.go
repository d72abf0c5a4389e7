package link

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Default reconnect policy values.
const (
	defaultInitialDelay = 1 * time.Second
	defaultMaxDelay     = 60 * time.Second
	defaultMultiplier   = 2.0
	defaultJitter       = 0.2
	defaultStableAfter  = 10 * time.Second
)

// RetryConfig configures reconnect backoff.
type RetryConfig struct {
	// InitialDelay is the first backoff interval.
	InitialDelay time.Duration

	// MaxDelay caps the backoff interval.
	MaxDelay time.Duration

	// Multiplier grows the interval after each failed attempt.
	Multiplier float64

	// Jitter is the randomisation factor applied to each interval (0-1).
	Jitter float64

	// StableAfter is how long a connection must stay up before the
	// attempt counter is reset.
	StableAfter time.Duration
}

// withDefaults fills zero fields.
func (c RetryConfig) withDefaults() RetryConfig {
	if c.InitialDelay <= 0 {
		c.InitialDelay = defaultInitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = defaultMaxDelay
	}
	if c.MaxDelay < c.InitialDelay {
		c.MaxDelay = c.InitialDelay
	}
	if c.Multiplier < 1 {
		c.Multiplier = defaultMultiplier
	}
	if c.Jitter < 0 || c.Jitter > 1 {
		c.Jitter = defaultJitter
	}
	if c.StableAfter <= 0 {
		c.StableAfter = defaultStableAfter
	}
	return c
}

// Retry is a link's RetryState: attempt count and next-retry deadline,
// backed by exponential backoff with jitter.
//
// Thread Safety: All methods are safe for concurrent use.
type Retry struct {
	cfg RetryConfig

	mu       sync.Mutex
	bo       *backoff.ExponentialBackOff
	attempts int
	next     time.Time
}

// NewRetry creates a retry state with zero attempts.
func NewRetry(cfg RetryConfig) *Retry {
	cfg = cfg.withDefaults()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.InitialDelay
	bo.MaxInterval = cfg.MaxDelay
	bo.Multiplier = cfg.Multiplier
	bo.RandomizationFactor = cfg.Jitter
	bo.MaxElapsedTime = 0 // retry forever
	bo.Reset()

	return &Retry{cfg: cfg, bo: bo}
}

// Next records a failed attempt and returns the delay before the next one.
func (r *Retry) Next() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.attempts++
	d := r.bo.NextBackOff()
	if d == backoff.Stop || d > r.cfg.MaxDelay {
		d = r.cfg.MaxDelay
	}
	r.next = time.Now().Add(d)
	return d
}

// Reset zeroes the attempt counter and restarts the backoff sequence.
func (r *Retry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.attempts = 0
	r.next = time.Time{}
	r.bo.Reset()
}

// Attempts returns the number of consecutive failed attempts.
func (r *Retry) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}

// NextRetry returns the deadline of the pending retry, or zero if none.
func (r *Retry) NextRetry() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.next
}

// StableAfter returns the confirmation window for resetting attempts.
func (r *Retry) StableAfter() time.Duration {
	return r.cfg.StableAfter
}

// Wait records a failed attempt and sleeps for the backoff delay.
// It returns ctx.Err() if the context is cancelled first.
func (r *Retry) Wait(ctx context.Context) error {
	timer := time.NewTimer(r.Next())
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
