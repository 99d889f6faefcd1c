package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func post(h http.Handler, remote string) int {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/imports", nil)
	req.RemoteAddr = remote
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w.Code
}

func TestTriggerRateLimiter_AllowsBurst(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewTriggerRateLimiter(ctx, time.Minute, 3).Middleware(okHandler())

	for i := range 3 {
		if code := post(h, "203.0.113.1:1234"); code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want %d", i+1, code, http.StatusOK)
		}
	}
}

func TestTriggerRateLimiter_BlocksAfterBurst(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewTriggerRateLimiter(ctx, time.Minute, 2).Middleware(okHandler())

	post(h, "203.0.113.2:1234")
	post(h, "203.0.113.2:1234")
	if code := post(h, "203.0.113.2:1234"); code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", code, http.StatusTooManyRequests)
	}
}

func TestTriggerRateLimiter_DifferentIPsIndependent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewTriggerRateLimiter(ctx, time.Minute, 1).Middleware(okHandler())

	post(h, "203.0.113.3:1234")
	if code := post(h, "203.0.113.4:1234"); code != http.StatusOK {
		t.Fatalf("second IP status = %d, want %d", code, http.StatusOK)
	}
}

func TestClientIP_PrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	req.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")
	if got := clientIP(req); got != "198.51.100.7" {
		t.Errorf("clientIP = %q", got)
	}
}
