package resolver

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/sydlexius/releasewire/internal/provider"
)

// Policy is a bounded exponential backoff: up to MaxAttempts calls, waiting
// InitialDelay, InitialDelay*Factor, InitialDelay*Factor^2, ... in between.
// A server Retry-After longer than MaxRetryAfter ends the retries instead of
// stalling the batch.
type Policy struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	Factor        float64
	MaxRetryAfter time.Duration
}

const defaultMaxRetryAfter = time.Minute

// DefaultPolicy is 3 attempts starting at one second, doubling, honoring
// Retry-After up to a minute.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, InitialDelay: time.Second, Factor: 2, MaxRetryAfter: defaultMaxRetryAfter}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Factor < 1 {
		p.Factor = 1
	}
	if p.InitialDelay < 0 {
		p.InitialDelay = 0
	}
	if p.MaxRetryAfter <= 0 {
		p.MaxRetryAfter = defaultMaxRetryAfter
	}
	return p
}

// hint carries a server-requested minimum wait from the failed attempt to
// the backoff.
type hint struct {
	mu         sync.Mutex
	retryAfter time.Duration
}

func (h *hint) set(d time.Duration) {
	h.mu.Lock()
	h.retryAfter = d
	h.mu.Unlock()
}

func (h *hint) take() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	d := h.retryAfter
	h.retryAfter = 0
	return d
}

// backoff yields InitialDelay*Factor^n for n = 0, 1, ... and stops after
// MaxAttempts-1 waits. A larger Retry-After from the last failure wins,
// unless it exceeds MaxRetryAfter, which stops the backoff.
func (p Policy) backoff(h *hint) retry.Backoff {
	var n int
	next := retry.BackoffFunc(func() (time.Duration, bool) {
		d := time.Duration(float64(p.InitialDelay) * math.Pow(p.Factor, float64(n)))
		n++
		if ra := h.take(); ra > d {
			if ra > p.MaxRetryAfter {
				return 0, true
			}
			d = ra
		}
		return d, false
	})
	return retry.WithMaxRetries(uint64(p.MaxAttempts-1), next) //nolint:gosec // G115: MaxAttempts >= 1
}

// Do calls fn until it succeeds, returns a non-transient error, or the
// policy's attempts are used up. The last error is returned unwrapped.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	p = p.normalized()
	h := &hint{}
	return retry.Do(ctx, p.backoff(h), func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		var unavailable *provider.ErrUnavailable
		if errors.As(err, &unavailable) {
			h.set(unavailable.RetryAfter)
			return retry.RetryableError(err)
		}
		return err
	})
}
