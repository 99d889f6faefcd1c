package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTokenServer issues tokens tok-1, tok-2, ... that expire after expiresIn
// seconds. Requests without the expected client credentials get 401.
func newTokenServer(t *testing.T, expiresIn int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, secret, ok := r.BasicAuth()
		if !ok || id != "client" || secret != "secret" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
			return
		}
		if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "client_credentials" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		n := calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"access_token":"tok-%d","token_type":"bearer","expires_in":%d}`, n, expiresIn)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestToken_Cached(t *testing.T) {
	srv, calls := newTokenServer(t, 3600)
	m := New(Config{ClientID: "client", ClientSecret: "secret", TokenURL: srv.URL}, testLogger())
	ctx := context.Background()

	for range 3 {
		tok, err := m.Token(ctx)
		if err != nil {
			t.Fatalf("Token: %v", err)
		}
		if tok != "tok-1" {
			t.Errorf("Token = %q, want tok-1", tok)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("token endpoint called %d times, want 1", got)
	}
}

func TestToken_RefreshWithinSkew(t *testing.T) {
	// 30s lifetime is inside the 60s default skew, so every call refreshes.
	srv, calls := newTokenServer(t, 30)
	m := New(Config{ClientID: "client", ClientSecret: "secret", TokenURL: srv.URL}, testLogger())
	ctx := context.Background()

	first, _ := m.Token(ctx)
	second, err := m.Token(ctx)
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if first == second {
		t.Errorf("expected a refreshed token, got %q twice", first)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("token endpoint called %d times, want 2", got)
	}
}

func TestToken_ExpiryUsesClock(t *testing.T) {
	srv, calls := newTokenServer(t, 3600)
	m := New(Config{ClientID: "client", ClientSecret: "secret", TokenURL: srv.URL, Skew: time.Minute}, testLogger())
	ctx := context.Background()

	if _, err := m.Token(ctx); err != nil {
		t.Fatal(err)
	}
	m.now = func() time.Time { return time.Now().Add(59*time.Minute + 30*time.Second) }
	tok, err := m.Token(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if tok != "tok-2" || calls.Load() != 2 {
		t.Errorf("expected refresh near expiry, got %q after %d calls", tok, calls.Load())
	}
}

func TestInvalidate(t *testing.T) {
	srv, calls := newTokenServer(t, 3600)
	m := New(Config{ClientID: "client", ClientSecret: "secret", TokenURL: srv.URL}, testLogger())
	ctx := context.Background()

	if _, err := m.Token(ctx); err != nil {
		t.Fatal(err)
	}
	m.Invalidate()
	tok, err := m.Token(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if tok != "tok-2" || calls.Load() != 2 {
		t.Errorf("Invalidate did not force a refresh: %q after %d calls", tok, calls.Load())
	}
}

func TestToken_Rejected(t *testing.T) {
	srv, calls := newTokenServer(t, 3600)
	m := New(Config{ClientID: "client", ClientSecret: "wrong", TokenURL: srv.URL}, testLogger())

	_, err := m.Token(context.Background())
	var authErr *ErrAuth
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *ErrAuth, got %v", err)
	}
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) || re.Response.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected wrapped 401 RetrieveError, got %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("rejected request should not issue a token")
	}
}
