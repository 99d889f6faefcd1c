package event

import (
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestPublishSubscribe(t *testing.T) {
	bus := NewBus(testLogger(), 16)
	go bus.Start()
	defer bus.Stop()

	var mu sync.Mutex
	var received []Event
	bus.Subscribe(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, e)
	}, ImportCompleted, ImportFailed)

	bus.Publish(Event{Type: ImportCompleted, RunID: "run-1", Data: map[string]any{"created": 2}})
	bus.Publish(Event{Type: ImportStarted, RunID: "run-2"})
	bus.Publish(Event{Type: ImportFailed, RunID: "run-3"})

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 2 {
		t.Fatalf("got %d events, want 2", len(received))
	}
	if received[0].RunID != "run-1" || received[0].Data["created"] != 2 {
		t.Errorf("first event = %+v", received[0])
	}
	if received[0].Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}
	if received[1].Type != ImportFailed {
		t.Errorf("second event type = %s, want %s", received[1].Type, ImportFailed)
	}
}

func TestPanickingHandlerDoesNotStopBus(t *testing.T) {
	bus := NewBus(testLogger(), 16)
	go bus.Start()
	defer bus.Stop()

	var mu sync.Mutex
	calls := 0
	bus.Subscribe(func(Event) { panic("boom") }, ImportCompleted)
	bus.Subscribe(func(Event) {
		mu.Lock()
		calls++
		mu.Unlock()
	}, ImportCompleted)

	bus.Publish(Event{Type: ImportCompleted})
	bus.Publish(Event{Type: ImportCompleted})
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Errorf("got %d calls, want 2", calls)
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	bus := NewBus(testLogger(), 1)
	// Not started: the second publish must not block.
	done := make(chan struct{})
	go func() {
		bus.Publish(Event{Type: ImportStarted})
		bus.Publish(Event{Type: ImportStarted})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full buffer")
	}
	bus.Stop()
	bus.Stop()
}

func TestWaitDrainsAfterStop(t *testing.T) {
	for i := 0; i < 50; i++ {
		bus := NewBus(testLogger(), 16)
		var mu sync.Mutex
		got := 0
		bus.Subscribe(func(Event) {
			mu.Lock()
			got++
			mu.Unlock()
		}, ImportCompleted)
		go bus.Start()

		bus.Publish(Event{Type: ImportCompleted, RunID: "a"})
		bus.Publish(Event{Type: ImportCompleted, RunID: "b"})
		bus.Stop()
		bus.Wait()

		mu.Lock()
		n := got
		mu.Unlock()
		if n != 2 {
			t.Fatalf("iteration %d: dispatched %d events before Wait returned, want 2", i, n)
		}
	}
}
