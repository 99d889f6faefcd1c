package provider

import (
	"context"
	"sync"
	"time"
)

// WindowLimit allows MaxRequests calls per fixed Window.
type WindowLimit struct {
	MaxRequests int
	Window      time.Duration
}

type windowState struct {
	start time.Time
	count int
}

// RateLimiter enforces a fixed-window request budget per endpoint key.
// Window state is created lazily on the first Acquire for a key and reset
// once the window has elapsed.
type RateLimiter struct {
	mu     sync.Mutex
	limits map[string]WindowLimit
	def    WindowLimit
	states map[string]*windowState

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRateLimiter creates a limiter with per-key limits. Keys without an
// entry use def; a zero def leaves those keys unlimited.
func NewRateLimiter(limits map[string]WindowLimit, def WindowLimit) *RateLimiter {
	copied := make(map[string]WindowLimit, len(limits))
	for k, v := range limits {
		copied[k] = v
	}
	return &RateLimiter{
		limits: copied,
		def:    def,
		states: make(map[string]*windowState),
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

// Acquire takes one request slot for key. When the window's budget is spent
// it blocks until the window resets or ctx is done.
func (l *RateLimiter) Acquire(ctx context.Context, key string) error {
	for {
		wait, ok := l.tryAcquire(key)
		if ok {
			return nil
		}
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (l *RateLimiter) tryAcquire(key string) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limits[key]
	if !ok {
		lim = l.def
	}
	if lim.MaxRequests <= 0 || lim.Window <= 0 {
		return 0, true
	}

	now := l.now()
	st, ok := l.states[key]
	if !ok {
		st = &windowState{start: now}
		l.states[key] = st
	}
	if now.Sub(st.start) >= lim.Window {
		st.start = now
		st.count = 0
	}
	if st.count < lim.MaxRequests {
		st.count++
		return 0, true
	}
	return st.start.Add(lim.Window).Sub(now), false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
