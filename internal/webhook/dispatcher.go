package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/sydlexius/releasewire/internal/event"
	"github.com/sydlexius/releasewire/internal/version"
)

const (
	maxRetries     = 2
	requestTimeout = 10 * time.Second
)

// Dispatcher sends import events to the configured webhooks.
type Dispatcher struct {
	hooks      []Webhook
	httpClient *http.Client
	retryDelay time.Duration
	logger     *slog.Logger
	wg         sync.WaitGroup
}

// NewDispatcher creates a webhook dispatcher.
func NewDispatcher(hooks []Webhook, logger *slog.Logger) *Dispatcher {
	return NewDispatcherWithHTTPClient(hooks, &http.Client{Timeout: requestTimeout}, logger)
}

// NewDispatcherWithHTTPClient creates a dispatcher with a custom HTTP client (for testing).
func NewDispatcherWithHTTPClient(hooks []Webhook, httpClient *http.Client, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		hooks:      hooks,
		httpClient: httpClient,
		retryDelay: time.Second,
		logger:     logger.With(slog.String("component", "webhook-dispatcher")),
	}
}

// Subscribe registers the dispatcher for all import lifecycle events.
func (d *Dispatcher) Subscribe(bus *event.Bus) {
	bus.Subscribe(d.HandleEvent, event.ImportStarted, event.ImportCompleted, event.ImportFailed)
}

// HandleEvent is an event.Handler that delivers e to every matching webhook
// in the background.
func (d *Dispatcher) HandleEvent(e event.Event) {
	for i := range d.hooks {
		w := d.hooks[i]
		if !w.Matches(e.Type) {
			continue
		}
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.deliver(w, e)
		}()
	}
}

// Wait blocks until in-flight deliveries finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) deliver(w Webhook, e event.Event) {
	body, contentType := formatPayload(&w, e)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	attempt := 0
	backoff := retry.WithMaxRetries(maxRetries, retry.NewExponential(d.retryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := d.send(ctx, w.URL, body, contentType)
		if err == nil {
			return nil
		}
		d.logger.Warn("webhook delivery failed",
			slog.String("webhook", w.Name),
			slog.String("event", string(e.Type)),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))
		var se *statusError
		if errors.As(err, &se) && !se.retryable() {
			return err
		}
		return retry.RetryableError(err)
	})
	if err != nil {
		d.logger.Error("webhook delivery gave up",
			slog.String("webhook", w.Name),
			slog.String("event", string(e.Type)),
			slog.String("error", err.Error()))
		return
	}
	d.logger.Debug("webhook delivered",
		slog.String("webhook", w.Name),
		slog.String("event", string(e.Type)),
		slog.Int("attempt", attempt))
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.code)
}

func (e *statusError) retryable() bool {
	return e.code == http.StatusTooManyRequests || e.code >= 500
}

func (d *Dispatcher) send(ctx context.Context, url string, body []byte, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()        //nolint:errcheck
	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	if resp.StatusCode >= 400 {
		return &statusError{code: resp.StatusCode}
	}
	return nil
}
