package webhook

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sydlexius/releasewire/internal/event"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestDispatcher(hooks []Webhook, srv *httptest.Server) *Dispatcher {
	d := NewDispatcherWithHTTPClient(hooks, srv.Client(), testLogger())
	d.retryDelay = time.Millisecond
	return d
}

func completedEvent() event.Event {
	return event.Event{
		Type:        event.ImportCompleted,
		RunID:       "run-1",
		PrincipalID: "user-1",
		Timestamp:   time.Now().UTC(),
		Data:        map[string]any{"created": 2, "skipped": 1, "errors": 0},
	}
}

func TestDispatcher_GenericWebhook(t *testing.T) {
	var mu sync.Mutex
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		json.NewDecoder(r.Body).Decode(&received) //nolint:errcheck
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := newTestDispatcher([]Webhook{{Name: "test", URL: srv.URL, Type: TypeGeneric}}, srv)
	d.HandleEvent(completedEvent())
	d.Wait()

	mu.Lock()
	defer mu.Unlock()
	if received == nil {
		t.Fatal("expected to receive webhook payload")
	}
	if received["event"] != "import.completed" || received["run_id"] != "run-1" {
		t.Errorf("payload = %v", received)
	}
}

func TestDispatcher_DiscordFormat(t *testing.T) {
	var mu sync.Mutex
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		json.NewDecoder(r.Body).Decode(&received) //nolint:errcheck
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := newTestDispatcher([]Webhook{{Name: "discord", URL: srv.URL, Type: TypeDiscord}}, srv)
	d.HandleEvent(completedEvent())
	d.Wait()

	mu.Lock()
	defer mu.Unlock()
	embeds, ok := received["embeds"].([]any)
	if !ok || len(embeds) == 0 {
		t.Fatalf("expected discord embeds array, got %v", received)
	}
	desc, _ := embeds[0].(map[string]any)["description"].(string)
	if !strings.Contains(desc, "2 created, 1 skipped, 0 errors") {
		t.Errorf("description = %q", desc)
	}
}

func TestDispatcher_RetryOn500(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := newTestDispatcher([]Webhook{{Name: "retry", URL: srv.URL}}, srv)
	d.HandleEvent(completedEvent())
	d.Wait()

	if n := attempts.Load(); n != 3 {
		t.Errorf("attempts = %d, want 3", n)
	}
}

func TestDispatcher_NoRetryOn400(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	d := newTestDispatcher([]Webhook{{Name: "bad", URL: srv.URL}}, srv)
	d.HandleEvent(completedEvent())
	d.Wait()

	if n := attempts.Load(); n != 1 {
		t.Errorf("attempts = %d, want 1", n)
	}
}

func TestDispatcher_EventFilter(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := newTestDispatcher([]Webhook{{Name: "failures", URL: srv.URL, Events: []string{"import.failed"}}}, srv)
	d.HandleEvent(completedEvent())
	d.Wait()
	if hits.Load() != 0 {
		t.Fatalf("completed event delivered to a failures-only hook")
	}

	d.HandleEvent(event.Event{Type: event.ImportFailed, RunID: "run-2", Data: map[string]any{"error": "no candidates"}})
	d.Wait()
	if hits.Load() != 1 {
		t.Errorf("hits = %d, want 1", hits.Load())
	}
}

func TestFormatDescription(t *testing.T) {
	got := formatDescription(event.Event{
		Type:        event.ImportFailed,
		RunID:       "r",
		PrincipalID: "p",
		Data:        map[string]any{"error": "boom"},
	})
	if got != "Import r by p failed: boom" {
		t.Errorf("formatDescription = %q", got)
	}
}

func TestDispatcher_DeliversQueuedEventOnShutdown(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	for i := 0; i < 20; i++ {
		bus := event.NewBus(testLogger(), 16)
		d := newTestDispatcher([]Webhook{{Name: "ops", URL: srv.URL}}, srv)
		d.Subscribe(bus)
		go bus.Start()

		bus.Publish(completedEvent())
		bus.Stop()
		bus.Wait()
		d.Wait()

		if n := hits.Load(); n != int32(i+1) {
			t.Fatalf("shutdown %d: %d deliveries, want %d", i, n, i+1)
		}
	}
}
