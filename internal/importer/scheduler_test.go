package importer

import (
	"context"
	"testing"
	"time"

	"github.com/sydlexius/releasewire/internal/dedup"
	"github.com/sydlexius/releasewire/internal/source"
)

func TestScheduler_RunsOnTick(t *testing.T) {
	store := setupStore(t)
	o, _ := newTestOrchestrator(Deps{
		Sources:  []source.Source{sourceOf("forum", urlB)},
		Resolver: catalogResolver(),
		Dedup:    dedup.NewEngine(store, dedup.DefaultThresholds()),
		Writer:   store,
	}, DefaultOptions())
	r := NewRunner(o, albumMatcher, testLogger())
	s := NewScheduler(r, "scheduler", testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx, 10*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		st := r.Status()
		if st.Summary != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("scheduled import never ran")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	n, err := store.Count(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("catalog has %d releases, want 1", n)
	}
}

func TestScheduler_NonPositiveIntervalReturns(t *testing.T) {
	s := NewScheduler(nil, "scheduler", testLogger())
	done := make(chan struct{})
	go func() {
		s.Start(context.Background(), 0)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return for a zero interval")
	}
}
