// Package credential acquires and caches the metadata service access token
// using the OAuth2 client-credentials grant.
package credential

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// DefaultSkew is how long before expiry a cached token is considered stale.
const DefaultSkew = 60 * time.Second

// ErrAuth is returned when the token endpoint rejects the request or cannot
// be reached. Cause is usually an *oauth2.RetrieveError.
type ErrAuth struct {
	Cause error
}

func (e *ErrAuth) Error() string {
	return fmt.Sprintf("acquiring access token: %v", e.Cause)
}

func (e *ErrAuth) Unwrap() error { return e.Cause }

// Config configures a Manager.
type Config struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Skew         time.Duration
	// HTTPClient is used for token requests. Nil means http.DefaultClient.
	HTTPClient *http.Client
}

// Manager caches one access token and refreshes it when it is within the
// skew margin of expiry. It is safe for concurrent use; concurrent callers
// that find the token stale share a single refresh.
type Manager struct {
	mu     sync.Mutex
	conf   *clientcredentials.Config
	client *http.Client
	skew   time.Duration
	token  *oauth2.Token
	now    func() time.Time
	logger *slog.Logger
}

// New creates a Manager.
func New(cfg Config, logger *slog.Logger) *Manager {
	skew := cfg.Skew
	if skew <= 0 {
		skew = DefaultSkew
	}
	return &Manager{
		conf: &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
		client: cfg.HTTPClient,
		skew:   skew,
		now:    time.Now,
		logger: logger.With(slog.String("component", "credential")),
	}
}

// Token returns a valid access token, fetching a new one when the cached
// token is missing or about to expire. Each call makes at most one request
// to the token endpoint.
func (m *Manager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fresh(m.token) {
		return m.token.AccessToken, nil
	}

	if m.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, m.client)
	}
	tok, err := m.conf.Token(ctx)
	if err != nil {
		m.token = nil
		return "", &ErrAuth{Cause: err}
	}
	m.token = tok
	m.logger.Debug("access token refreshed", slog.Time("expires_at", tok.Expiry))
	return tok.AccessToken, nil
}

// Invalidate drops the cached token so the next Token call fetches a new one.
// Adapters call it after the service answers 401.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = nil
}

func (m *Manager) fresh(tok *oauth2.Token) bool {
	if tok == nil || tok.AccessToken == "" {
		return false
	}
	if tok.Expiry.IsZero() {
		return true
	}
	return m.now().Add(m.skew).Before(tok.Expiry)
}
