package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// TriggerRateLimiter limits how often a single client may start imports.
// Each client IP gets its own token bucket.
type TriggerRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
	every    time.Duration
	burst    int
}

// NewTriggerRateLimiter creates a limiter allowing burst requests and then
// one request per every. Stale entries are swept until ctx is done.
func NewTriggerRateLimiter(ctx context.Context, every time.Duration, burst int) *TriggerRateLimiter {
	if burst < 1 {
		burst = 1
	}
	rl := &TriggerRateLimiter{
		limiters: make(map[string]*ipLimiter),
		every:    every,
		burst:    burst,
	}
	go rl.cleanup(ctx)
	return rl
}

// Middleware rejects requests over the client's budget with 429.
func (rl *TriggerRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.getLimiter(clientIP(r)).Allow() {
			reject(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *TriggerRateLimiter) getLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, exists := rl.limiters[ip]
	if !exists {
		entry = &ipLimiter{limiter: rate.NewLimiter(rate.Every(rl.every), rl.burst)}
		rl.limiters[ip] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

func (rl *TriggerRateLimiter) cleanup(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.mu.Lock()
			for ip, entry := range rl.limiters {
				if time.Since(entry.lastSeen) > 15*time.Minute {
					delete(rl.limiters, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
