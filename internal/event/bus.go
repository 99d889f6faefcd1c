package event

import (
	"log/slog"
	"sync"
	"time"
)

// Type identifies a category of event.
type Type string

// Import run lifecycle events.
const (
	ImportStarted   Type = "import.started"
	ImportCompleted Type = "import.completed"
	ImportFailed    Type = "import.failed"
)

// Event is a notification about an import run.
type Event struct {
	Type        Type           `json:"type"`
	RunID       string         `json:"run_id"`
	PrincipalID string         `json:"principal_id"`
	Timestamp   time.Time      `json:"timestamp"`
	Data        map[string]any `json:"data,omitempty"`
}

// Handler processes an event. Handlers run on the bus goroutine.
type Handler func(Event)

// Bus is an in-process event bus backed by a buffered channel.
type Bus struct {
	ch     chan Event
	mu     sync.RWMutex
	subs   map[Type][]Handler
	logger *slog.Logger
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// NewBus creates an event bus with the given buffer size.
func NewBus(logger *slog.Logger, bufSize int) *Bus {
	if bufSize <= 0 {
		bufSize = 64
	}
	return &Bus{
		ch:      make(chan Event, bufSize),
		subs:    make(map[Type][]Handler),
		logger:  logger.With(slog.String("component", "event-bus")),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Subscribe registers h for each of the given event types.
func (b *Bus) Subscribe(h Handler, types ...Type) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range types {
		b.subs[t] = append(b.subs[t], h)
	}
}

// Publish enqueues an event. It never blocks; when the buffer is full the
// event is dropped with a warning.
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	select {
	case b.ch <- e:
	default:
		b.logger.Warn("event bus full, dropping event",
			slog.String("type", string(e.Type)),
			slog.String("run_id", e.RunID))
	}
}

// Start dispatches events until Stop is called, then drains the buffer.
// Call it in its own goroutine.
func (b *Bus) Start() {
	defer close(b.stopped)
	for {
		select {
		case e := <-b.ch:
			b.dispatch(e)
		case <-b.done:
			for {
				select {
				case e := <-b.ch:
					b.dispatch(e)
				default:
					return
				}
			}
		}
	}
}

// Stop signals Start to drain and return. Safe to call more than once.
func (b *Bus) Stop() {
	b.once.Do(func() { close(b.done) })
}

// Wait blocks until Start has drained the buffer and returned. Call it after
// Stop, and only when Start was launched.
func (b *Bus) Wait() {
	<-b.stopped
}

func (b *Bus) dispatch(e Event) {
	b.mu.RLock()
	handlers := b.subs[e.Type]
	b.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("event handler panicked",
						slog.String("type", string(e.Type)),
						slog.Any("panic", r))
				}
			}()
			h(e)
		}()
	}
}
